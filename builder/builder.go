// Package builder assembles new pages from drawing primitives: text in the
// standard fonts, rectangles, lines and raster images.
package builder

import (
	"errors"
	"fmt"

	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/fonts"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/security"
)

// PDFBuilder provides a fluent API for PDF construction.
type PDFBuilder interface {
	NewPage(width, height float64) PageBuilder
	SetInfo(key, value string) PDFBuilder
	SetEncryption(cfg security.Config) PDFBuilder
	Build() (*semantic.Document, error)
}

// PageBuilder provides a fluent API for page construction.
type PageBuilder interface {
	DrawText(text string, x, y float64, opts TextOptions) PageBuilder
	DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder
	DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder
	DrawImage(img *raster.PixelBuffer, x, y, width, height float64, opts ImageOptions) PageBuilder
	SetRotation(degrees int) PageBuilder
	Finish() PDFBuilder
}

// TextOptions configures text drawing.
type TextOptions struct {
	// Font is a standard font name; Helvetica when empty.
	Font     string
	FontSize float64
	Color    Color
	// Alpha is the fill opacity; 0 means opaque.
	Alpha float64
	// Angle rotates the text counterclockwise about (x, y), in degrees.
	Angle float64
}

// PathOptions configures path drawing.
type PathOptions struct {
	StrokeColor Color
	FillColor   Color
	LineWidth   float64
	Fill        bool
	Stroke      bool
}

// RectOptions configures rectangle drawing (defaults to stroke if neither fill nor stroke is set).
type RectOptions = PathOptions

// LineOptions configures line drawing.
type LineOptions struct {
	StrokeColor Color
	LineWidth   float64
}

// ImageOptions configures image drawing.
type ImageOptions struct {
	Compression raster.Compression
}

// Color is an RGB color with components in [0, 1].
type Color struct {
	R, G, B float64
}

// Gray returns the gray color with level g.
func Gray(g float64) Color { return Color{g, g, g} }

const defaultBaseFont = "Helvetica"

type builderImpl struct {
	doc   *semantic.Document
	pages []*pageBuilderImpl
	fonts map[string]raw.ObjectRef
	enc   *security.Config
	err   error
}

type pageBuilderImpl struct {
	parent   *builderImpl
	box      semantic.Rectangle
	rotate   int
	content  Content
	res      *Resources
	names    map[string]string
	counters map[string]int
}

// NewBuilder constructs a PDFBuilder.
func NewBuilder() PDFBuilder {
	return &builderImpl{doc: semantic.New(), fonts: make(map[string]raw.ObjectRef)}
}

func (b *builderImpl) NewPage(w, h float64) PageBuilder {
	p := &pageBuilderImpl{
		parent:   b,
		box:      semantic.Rectangle{URX: w, URY: h},
		res:      NewResources(),
		names:    make(map[string]string),
		counters: make(map[string]int),
	}
	b.pages = append(b.pages, p)
	return p
}

func (b *builderImpl) SetInfo(key, value string) PDFBuilder {
	b.doc.Metadata[key] = value
	return b
}

func (b *builderImpl) SetEncryption(cfg security.Config) PDFBuilder {
	b.enc = &cfg
	return b
}

func (b *builderImpl) Build() (*semantic.Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.pages) == 0 {
		return nil, errors.New("build: no pages")
	}
	if b.enc != nil {
		if err := b.enc.Validate(); err != nil {
			return nil, err
		}
		b.doc.Encryption = b.enc
	}
	for _, p := range b.pages {
		page := b.doc.AddPage(p.box, p.res.Dict(), p.content.Bytes())
		if p.rotate != 0 {
			if _, err := b.doc.SetRotate(page, p.rotate); err != nil {
				return nil, err
			}
		}
	}
	// a builder produces one document
	b.pages = nil
	return b.doc, nil
}

func (b *builderImpl) fontRef(baseFont string) raw.ObjectRef {
	ref, ok := b.fonts[baseFont]
	if !ok {
		ref = b.doc.Store.Add(StandardFont(baseFont))
		b.fonts[baseFont] = ref
	}
	return ref
}

// resource returns the page-local name for key, registering obj under a
// fresh name in category on first use.
func (p *pageBuilderImpl) resource(category, prefix, key string, obj func() raw.Object) string {
	if name, ok := p.names[category+"/"+key]; ok {
		return name
	}
	p.counters[prefix]++
	name := fmt.Sprintf("%s%d", prefix, p.counters[prefix])
	p.res.Add(category, name, obj())
	p.names[category+"/"+key] = name
	return name
}

func (p *pageBuilderImpl) alpha(fill, stroke float64) string {
	key := fmt.Sprintf("%g/%g", fill, stroke)
	return p.resource("ExtGState", "GS", key, func() raw.Object { return Transparency(fill, stroke) })
}

func (p *pageBuilderImpl) DrawText(text string, x, y float64, opts TextOptions) PageBuilder {
	base := opts.Font
	if base == "" {
		base = defaultBaseFont
	}
	if _, ok := fonts.Standard(base); !ok {
		p.parent.err = fmt.Errorf("draw text: %q is not a standard font", base)
		return p
	}
	name := p.resource("Font", "F", base, func() raw.Object { return raw.RefObj{R: p.parent.fontRef(base)} })
	size := opts.FontSize
	if size <= 0 {
		size = 12
	}

	p.content.Save()
	if opts.Alpha > 0 && opts.Alpha < 1 {
		p.content.ExtGState(p.alpha(opts.Alpha, opts.Alpha))
	}
	p.content.FillColor(opts.Color)
	tm := matrix.Translate(x, y)
	if opts.Angle != 0 {
		tm = matrix.RotateDeg(opts.Angle).Mul(tm)
	}
	p.content.Text(name, size, tm, fonts.EncodeWinAnsi(text))
	p.content.Restore()
	return p
}

func (p *pageBuilderImpl) DrawRectangle(x, y, width, height float64, opts RectOptions) PageBuilder {
	po := opts
	if !po.Stroke && !po.Fill {
		po.Stroke = true
	}
	p.content.Save()
	p.applyPathState(po)
	p.content.Rect(x, y, width, height)
	p.content.Paint(paintOperator(po.Fill, po.Stroke))
	p.content.Restore()
	return p
}

func (p *pageBuilderImpl) DrawLine(x1, y1, x2, y2 float64, opts LineOptions) PageBuilder {
	p.content.Save()
	p.applyPathState(PathOptions{StrokeColor: opts.StrokeColor, LineWidth: opts.LineWidth, Stroke: true})
	p.content.MoveTo(x1, y1).LineTo(x2, y2).Paint("S")
	p.content.Restore()
	return p
}

func (p *pageBuilderImpl) DrawImage(img *raster.PixelBuffer, x, y, width, height float64, opts ImageOptions) PageBuilder {
	if img == nil {
		return p
	}
	enc, err := raster.Encode(img, opts.Compression)
	if err != nil {
		p.parent.err = fmt.Errorf("draw image: %w", err)
		return p
	}
	ref := p.parent.doc.Store.Add(ImageXObject(enc))
	name := p.resource("XObject", "Im", ref.String(), func() raw.Object { return raw.RefObj{R: ref} })
	w, h := width, height
	if w == 0 {
		w = float64(img.Width)
	}
	if h == 0 {
		h = float64(img.Height)
	}
	p.content.Image(name, x, y, w, h)
	return p
}

func (p *pageBuilderImpl) SetRotation(degrees int) PageBuilder {
	p.rotate = degrees
	return p
}

func (p *pageBuilderImpl) Finish() PDFBuilder { return p.parent }

func (p *pageBuilderImpl) applyPathState(opts PathOptions) {
	if opts.Fill {
		p.content.FillColor(opts.FillColor)
	}
	if opts.Stroke {
		p.content.StrokeColor(opts.StrokeColor)
		if opts.LineWidth > 0 {
			p.content.LineWidth(opts.LineWidth)
		}
	}
}

func paintOperator(fill, stroke bool) string {
	switch {
	case fill && stroke:
		return "B"
	case fill:
		return "f"
	default:
		return "S"
	}
}
