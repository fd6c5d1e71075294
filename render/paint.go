package render

import (
	"context"
	"image"
	"image/color"
	"math"

	"seehuhn.de/go/geom/vec"

	"github.com/sfdeloach/pdf-tools/contentstream"
	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/fonts"
	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// curveSteps is the number of line segments a cubic is flattened into for
// stroking.
const curveSteps = 16

func (r *renderer) paint(c contentstream.Color, alpha float64) {
	r.ras.Draw(r.img, r.img.Bounds(), image.NewUniform(toColor(c, alpha)), image.Point{})
	r.ras.Reset(r.img.Bounds().Dx(), r.img.Bounds().Dy())
}

func (r *renderer) fill(ec *contentstream.ExecutionContext) {
	drawn := false
	for _, sp := range ec.Path.Subpaths {
		if len(sp.Points) < 2 {
			continue
		}
		for _, pt := range sp.Points {
			switch pt.Type {
			case contentstream.PathMoveTo:
				r.ras.MoveTo(float32(pt.X), float32(pt.Y))
			case contentstream.PathLineTo, contentstream.PathClose:
				r.ras.LineTo(float32(pt.X), float32(pt.Y))
			case contentstream.PathCurveTo:
				r.ras.CubeTo(float32(pt.Control1X), float32(pt.Control1Y),
					float32(pt.Control2X), float32(pt.Control2Y), float32(pt.X), float32(pt.Y))
			}
		}
		r.ras.ClosePath()
		drawn = true
	}
	if drawn {
		r.paint(ec.State.FillColor, ec.State.FillAlpha)
	}
}

// stroke covers every segment of the path with a quadrilateral of the line
// width. Joins and caps are not drawn.
func (r *renderer) stroke(ec *contentstream.ExecutionContext, closePath bool) {
	ctm := ec.State.CTM
	scale := math.Sqrt(math.Abs(ctm[0]*ctm[3] - ctm[1]*ctm[2]))
	half := ec.State.LineWidth * scale / 2
	// zero-width lines are one device pixel wide
	half = max(half, 0.5)

	drawn := false
	segment := func(x0, y0, x1, y1 float64) {
		dx, dy := x1-x0, y1-y0
		l := math.Hypot(dx, dy)
		if l == 0 {
			return
		}
		nx, ny := -dy/l*half, dx/l*half
		r.ras.MoveTo(float32(x0+nx), float32(y0+ny))
		r.ras.LineTo(float32(x1+nx), float32(y1+ny))
		r.ras.LineTo(float32(x1-nx), float32(y1-ny))
		r.ras.LineTo(float32(x0-nx), float32(y0-ny))
		r.ras.ClosePath()
		drawn = true
	}

	for _, sp := range ec.Path.Subpaths {
		if len(sp.Points) == 0 {
			continue
		}
		start := sp.Points[0]
		cx, cy := start.X, start.Y
		for _, pt := range sp.Points[1:] {
			switch pt.Type {
			case contentstream.PathLineTo, contentstream.PathClose:
				segment(cx, cy, pt.X, pt.Y)
			case contentstream.PathCurveTo:
				px, py := cx, cy
				for i := 1; i <= curveSteps; i++ {
					t := float64(i) / curveSteps
					x, y := cubic(cx, pt.Control1X, pt.Control2X, pt.X, t), cubic(cy, pt.Control1Y, pt.Control2Y, pt.Y, t)
					segment(px, py, x, y)
					px, py = x, y
				}
			}
			cx, cy = pt.X, pt.Y
		}
		if closePath && !sp.Closed {
			segment(cx, cy, start.X, start.Y)
		}
	}
	if drawn {
		r.paint(ec.State.StrokeColor, ec.State.StrokeAlpha)
	}
}

func cubic(p0, p1, p2, p3, t float64) float64 {
	u := 1 - t
	return u*u*u*p0 + 3*u*u*t*p1 + 3*u*t*t*p2 + t*t*t*p3
}

// glyph fills the outline of one shown character.
func (r *renderer) glyph(ctx context.Context, ec *contentstream.ExecutionContext, g contentstream.Glyph) {
	switch ec.State.Text.Mode {
	case contentstream.TextInvisible, contentstream.TextClip:
		return
	}
	fd, ok := r.store.ResolveDict(ec.Resource("Font", g.Font))
	if !ok {
		return
	}
	outline := r.fontFace(ctx, fd).Glyph(g.Code)
	if len(outline.Segments) == 0 {
		return
	}
	pt := func(v vec.Vec2) (float32, float32) {
		x, y := g.Matrix.Apply(v.X, v.Y)
		return float32(x), float32(y)
	}
	open := false
	for _, s := range outline.Segments {
		switch s.Op {
		case fonts.MoveTo:
			if open {
				r.ras.ClosePath()
			}
			r.ras.MoveTo(pt(s.Points[0]))
			open = true
		case fonts.LineTo:
			r.ras.LineTo(pt(s.Points[0]))
		case fonts.QuadTo:
			x1, y1 := pt(s.Points[0])
			x2, y2 := pt(s.Points[1])
			r.ras.QuadTo(x1, y1, x2, y2)
		case fonts.CubeTo:
			x1, y1 := pt(s.Points[0])
			x2, y2 := pt(s.Points[1])
			x3, y3 := pt(s.Points[2])
			r.ras.CubeTo(x1, y1, x2, y2, x3, y3)
		}
	}
	if open {
		r.ras.ClosePath()
	}
	c, alpha := ec.State.FillColor, ec.State.FillAlpha
	if ec.State.Text.Mode == contentstream.TextStroke || ec.State.Text.Mode == contentstream.TextStrokeClip {
		c, alpha = ec.State.StrokeColor, ec.State.StrokeAlpha
	}
	r.paint(c, alpha)
}

func toColor(c contentstream.Color, alpha float64) color.Color {
	rf, gf, bf := c.RGB()
	return color.NRGBA{R: unit(rf), G: unit(gf), B: unit(bf), A: unit(alpha)}
}

func unit(v float64) uint8 {
	return uint8(math.Round(min(1, max(0, v)) * 255))
}

func decodeStream(ctx context.Context, store *raw.Store, st *raw.StreamObj) ([]byte, error) {
	return filters.DecodeStream(ctx, st, store.Resolve)
}
