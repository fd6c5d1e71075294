// Package overlay paints text over existing pages: a diagonal watermark, a
// corner footer and page numbers. The original content is wrapped in q/Q so
// its graphics state cannot leak into the overlay.
package overlay

import (
	"fmt"
	"strconv"

	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/builder"
	"github.com/sfdeloach/pdf-tools/fonts"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
)

const (
	stampFont = "Times-Roman"

	watermarkSize  = 100
	watermarkAngle = 45
	footerSize     = 10
	footerMargin   = 20
	numberSize     = 12
	numberMargin   = 36

	stampGray  = 0.8
	stampAlpha = 0.3
)

// Stamp holds the text painted by Compose. Empty strings are skipped.
type Stamp struct {
	Watermark string
	Footer    string
}

// Empty reports whether the stamp paints nothing.
func (s Stamp) Empty() bool { return s.Watermark == "" && s.Footer == "" }

// Composer paints one Stamp over pages of a single document. The font and
// graphics state dictionaries are added to the document once, on the first
// page painted, and shared by every page after that.
type Composer struct {
	doc   *semantic.Document
	stamp Stamp

	font raw.ObjectRef
	gs   raw.ObjectRef
}

// NewComposer returns a Composer painting s over pages of doc.
func NewComposer(doc *semantic.Document, s Stamp) *Composer {
	return &Composer{doc: doc, stamp: s}
}

// Compose paints s over page and returns the replacement page. The page is
// returned unchanged when s is empty. Use a Composer to stamp several pages
// of one document.
func Compose(doc *semantic.Document, page *semantic.Page, s Stamp) (*semantic.Page, error) {
	return NewComposer(doc, s).Compose(page)
}

// Compose paints the stamp over page, which must belong to the Composer's
// document, and returns the replacement page.
func (o *Composer) Compose(page *semantic.Page) (*semantic.Page, error) {
	s := o.stamp
	if s.Empty() {
		return page, nil
	}
	if o.font.IsZero() {
		o.font = o.doc.Store.Add(builder.StandardFont(stampFont))
		o.gs = o.doc.Store.Add(builder.Transparency(stampAlpha, stampAlpha))
	}
	metrics, _ := fonts.Standard(stampFont)
	font := semantic.FreshResourceName(page, "Font", "Ov")
	gs := semantic.FreshResourceName(page, "ExtGState", "Ov")
	res := builder.NewResources().
		Add("Font", font, raw.RefObj{R: o.font}).
		Add("ExtGState", gs, raw.RefObj{R: o.gs})

	box := page.MediaBox
	var c builder.Content
	c.Restore()
	c.Save().ExtGState(gs).FillGray(stampGray)
	if s.Watermark != "" {
		// rotated about the lower left corner of the MediaBox
		c.Save().Transform(matrix.RotateDeg(watermarkAngle).Mul(matrix.Translate(box.LLX, box.LLY)))
		c.Text(font, watermarkSize, matrix.Translate(box.Width()/4, -box.Height()/4), fonts.EncodeWinAnsi(s.Watermark))
		c.Restore()
	}
	if s.Footer != "" {
		text := fonts.EncodeWinAnsi(s.Footer)
		x := box.URX - footerMargin - metrics.TextWidth(text, footerSize)
		c.Text(font, footerSize, matrix.Translate(x, box.LLY+footerMargin), text)
	}
	c.Restore()

	var before builder.Content
	before.Save()
	np, err := o.doc.AppendContent(page, before.Bytes(), c.Bytes(), res.Dict())
	if err != nil {
		return nil, fmt.Errorf("overlay: %w", err)
	}
	return np, nil
}

// NumberPages stamps 1..n on the pages of doc in their current order. Odd
// pages are numbered at the lower right, even pages at the lower left.
func NumberPages(doc *semantic.Document) error {
	metrics, _ := fonts.Standard(stampFont)
	fontRef := doc.Store.Add(builder.StandardFont(stampFont))
	// Pages() is rewritten in place as pages are replaced
	for i := 0; i < doc.PageCount(); i++ {
		page, err := doc.Page(i)
		if err != nil {
			return err
		}
		font := semantic.FreshResourceName(page, "Font", "Num")
		text := []byte(strconv.Itoa(i + 1))
		box := page.MediaBox
		x := box.LLX + numberMargin
		if (i+1)%2 == 1 {
			x = box.URX - numberMargin - metrics.TextWidth(text, numberSize)
		}

		var before, after builder.Content
		before.Save()
		after.Restore().Save().FillGray(0)
		after.Text(font, numberSize, matrix.Translate(x, box.LLY+numberMargin), text)
		after.Restore()
		res := builder.NewResources().Add("Font", font, raw.RefObj{R: fontRef})
		if _, err := doc.AppendContent(page, before.Bytes(), after.Bytes(), res.Dict()); err != nil {
			return fmt.Errorf("number page %d: %w", i+1, err)
		}
	}
	return nil
}
