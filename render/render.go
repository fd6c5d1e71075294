// Package render rasterizes page content streams into pixel buffers.
//
// Paths are filled with golang.org/x/image/vector; strokes are approximated
// by one quadrilateral per flattened segment; text is drawn from the
// embedded TrueType outlines or a fallback face; images are painted with a
// bilinear affine transform. Clipping is not applied and even-odd fills
// are rendered with the nonzero rule.
package render

import (
	"context"
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"

	"golang.org/x/image/vector"
	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/contentstream"
	"github.com/sfdeloach/pdf-tools/fonts"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/security"
)

// DefaultDPI is used when Options.DPI is zero.
const DefaultDPI = 72

// maxFormDepth bounds nested form XObjects.
const maxFormDepth = 12

// Options control rendering.
type Options struct {
	DPI        float64
	ColorSpace raster.ColorSpace
	// MaxPixels bounds width*height of the output; zero means
	// security.DefaultLimits().MaxPixels.
	MaxPixels int64
	Logger    observability.Logger
}

// SizeError reports a page whose rendering would exceed the pixel limit.
type SizeError struct {
	Width, Height float64 // pixels
	Max           int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("render: page of %.0fx%.0f pixels exceeds limit of %d", e.Width, e.Height, e.Max)
}

// Size returns the pixel dimensions of box at dpi: round(width/72*dpi) by
// round(height/72*dpi), at least one pixel each. Dimensions saturate at
// math.MaxInt32.
func Size(box semantic.Rectangle, dpi float64) (w, h int) {
	fw, fh := pixels(box, dpi)
	return saturate(fw), saturate(fh)
}

func pixels(box semantic.Rectangle, dpi float64) (w, h float64) {
	w = math.Max(math.Round(box.Width()/72*dpi), 1)
	h = math.Max(math.Round(box.Height()/72*dpi), 1)
	return w, h
}

func saturate(f float64) int {
	if !(f < math.MaxInt32) {
		return math.MaxInt32
	}
	return int(f)
}

// checkedSize is Size with the pixel limit applied.
func checkedSize(box semantic.Rectangle, dpi float64, limit int64) (w, h int, err error) {
	if limit <= 0 {
		limit = security.DefaultLimits().MaxPixels
	}
	fw, fh := pixels(box, dpi)
	if !(fw*fh <= float64(limit)) {
		return 0, 0, &SizeError{Width: fw, Height: fh, Max: limit}
	}
	return int(fw), int(fh), nil
}

// Render rasterizes the MediaBox of page. The page's /Rotate is not
// applied. Malformed content is painted up to the first error, which is
// logged; Render itself fails only on cancellation or an unusable page.
// Render only reads the page's document, so several pages of one document
// may be rendered concurrently.
func Render(ctx context.Context, page *semantic.Page, opts Options) (*raster.PixelBuffer, error) {
	dpi := opts.DPI
	if dpi == 0 {
		dpi = DefaultDPI
	}
	if dpi < 0 || math.IsNaN(dpi) || math.IsInf(dpi, 0) {
		return nil, fmt.Errorf("render: invalid dpi %v", opts.DPI)
	}
	logger := observability.OrNop(opts.Logger)
	start := time.Now()

	box := page.MediaBox
	w, h, err := checkedSize(box, dpi, opts.MaxPixels)
	if err != nil {
		return nil, err
	}
	s := dpi / 72
	// default user space to pixels, y pointing down
	device := matrix.Translate(-box.LLX, -box.LLY).Mul(matrix.Matrix{s, 0, 0, -s, 0, float64(h)})

	r := newRenderer(page.Document().Store, w, h, logger)
	data, err := page.Content(ctx)
	if err != nil {
		logger.Warn("page content unreadable", observability.Error("error", err))
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		logger.Warn("content stream truncated", observability.Error("error", err), observability.Int("ops", len(ops)))
	}
	ec := contentstream.NewExecutionContext(device, r.store, page.Resources())
	if err := r.run(ctx, ec, ops, 0); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("rendering stopped", observability.Error("error", err))
	}

	logger.Debug("page rendered",
		observability.Int("width", w),
		observability.Int("height", h),
		observability.Duration(observability.MetricRenderTime, time.Since(start)),
	)
	return raster.FromImage(r.img, opts.ColorSpace), nil
}

type renderer struct {
	store  *raw.Store
	img    *image.RGBA
	ras    *vector.Rasterizer
	logger observability.Logger

	// fonts are keyed by font dictionary, since resource names are local
	// to a resource dictionary
	metrics map[*raw.DictObj]*fonts.Metrics
	faces   map[*raw.DictObj]*fonts.Face
	images  map[*raw.StreamObj]image.Image
}

func newRenderer(store *raw.Store, w, h int, logger observability.Logger) *renderer {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return &renderer{
		store:   store,
		img:     img,
		ras:     vector.NewRasterizer(w, h),
		logger:  logger,
		metrics: make(map[*raw.DictObj]*fonts.Metrics),
		faces:   make(map[*raw.DictObj]*fonts.Face),
		images:  make(map[*raw.StreamObj]image.Image),
	}
}

func (r *renderer) run(ctx context.Context, ec *contentstream.ExecutionContext, ops []contentstream.Operation, depth int) error {
	ec.Widths = func(name string, code byte) float64 {
		fd, ok := r.store.ResolveDict(ec.Resource("Font", name))
		if !ok {
			return 0
		}
		return r.fontMetrics(fd).Width(code)
	}

	proc := contentstream.NewProcessor()
	fill := contentstream.HandlerFunc(func(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
		switch op.Operator {
		case "f", "F", "f*":
			r.fill(ec)
		case "S":
			r.stroke(ec, false)
		case "s":
			r.stroke(ec, true)
		case "B", "B*":
			r.fill(ec)
			r.stroke(ec, false)
		case "b", "b*":
			r.fill(ec)
			r.stroke(ec, true)
		}
		return nil
	})
	for _, op := range []string{"f", "F", "f*", "S", "s", "B", "B*", "b", "b*"} {
		proc.RegisterHandler(op, fill)
	}
	proc.RegisterHandler("Do", contentstream.HandlerFunc(func(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
		return r.xobject(ctx, ec, op, depth)
	}))
	proc.RegisterHandler("BI", contentstream.HandlerFunc(func(ec *contentstream.ExecutionContext, op contentstream.Operation) error {
		r.inlineImage(ctx, ec, op)
		return nil
	}))
	proc.OnGlyph(func(ec *contentstream.ExecutionContext, g contentstream.Glyph) error {
		r.glyph(ctx, ec, g)
		return nil
	})
	return proc.Process(ctx, ec, ops)
}

func (r *renderer) fontMetrics(fd *raw.DictObj) *fonts.Metrics {
	m, ok := r.metrics[fd]
	if !ok {
		m = fonts.FromDict(r.store, fd)
		r.metrics[fd] = m
	}
	return m
}

func (r *renderer) fontFace(ctx context.Context, fd *raw.DictObj) *fonts.Face {
	f, ok := r.faces[fd]
	if !ok {
		f = fonts.Load(ctx, r.store, fd)
		r.faces[fd] = f
	}
	return f
}

// xobject paints an image or runs a form XObject.
func (r *renderer) xobject(ctx context.Context, ec *contentstream.ExecutionContext, op contentstream.Operation, depth int) error {
	if len(op.Operands) != 1 {
		return nil
	}
	name, ok := op.Operands[0].(raw.NameObj)
	if !ok {
		return nil
	}
	st, ok := r.store.ResolveStream(ec.Resource("XObject", name.Val))
	if !ok {
		return nil
	}
	subtype, _ := r.store.ResolveName(st.Dict.Lookup("Subtype"))
	switch subtype {
	case "Image":
		img, err := r.image(ctx, st)
		if err != nil {
			r.logger.Warn("image skipped", observability.String("name", name.Val), observability.Error("error", err))
			return nil
		}
		r.drawImage(ec, img)
	case "Form":
		if depth >= maxFormDepth {
			r.logger.Warn("form nesting too deep", observability.String("name", name.Val))
			return nil
		}
		return r.form(ctx, ec, st, depth+1)
	}
	return nil
}

func (r *renderer) form(ctx context.Context, parent *contentstream.ExecutionContext, st *raw.StreamObj, depth int) error {
	data, err := decodeStream(ctx, r.store, st)
	if err != nil {
		r.logger.Warn("form content unreadable", observability.Error("error", err))
		return nil
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		r.logger.Warn("form content truncated", observability.Error("error", err))
	}
	ctm := parent.State.CTM
	if arr, ok := r.store.ResolveArray(st.Dict.Lookup("Matrix")); ok && arr.Len() == 6 {
		var m matrix.Matrix
		for i := range m {
			m[i], _ = r.store.ResolveNumber(arr.Items[i])
		}
		ctm = m.Mul(ctm)
	}
	res, ok := r.store.ResolveDict(st.Dict.Lookup("Resources"))
	if !ok {
		res = parent.Resources
	}
	ec := contentstream.NewExecutionContext(ctm, r.store, res)
	state := parent.State
	state.CTM = ctm
	ec.State = state
	return r.run(ctx, ec, ops, depth)
}
