package contentstream

import (
	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// Operation is one operator together with its operands, in stream order.
type Operation struct {
	Operator string
	Operands []raw.Object
	// ImageData holds the bytes between ID and EI of an inline image. The
	// operator is then "BI" and Operands[0] the image dictionary.
	ImageData []byte
}

// TextRenderMode matches PDF text rendering modes set via Tr operator.
type TextRenderMode int

const (
	TextFill TextRenderMode = iota
	TextStroke
	TextFillStroke
	TextInvisible
	TextFillClip
	TextStrokeClip
	TextFillStrokeClip
	TextClip
)

// LineCap represents the line cap style (J operator).
type LineCap int

const (
	LineCapButt LineCap = iota
	LineCapRound
	LineCapSquare
)

// LineJoin represents the line join style (j operator).
type LineJoin int

const (
	LineJoinMiter LineJoin = iota
	LineJoinRound
	LineJoinBevel
)

// Path describes a graphics path made of subpaths. Coordinates are in
// device space: the CTM in effect when a point was added has already been
// applied.
type Path struct {
	Subpaths []Subpath
}

// Subpath describes a portion of a path.
type Subpath struct {
	Points []PathPoint
	Closed bool
}

// PathPoint identifies a path segment and its coordinates. For curves the
// control points come first and X, Y is the end point.
type PathPoint struct {
	X, Y                 float64
	Type                 PathPointType
	Control1X, Control1Y float64
	Control2X, Control2Y float64
}

// PathPointType enumerates path segment types.
type PathPointType int

const (
	PathMoveTo PathPointType = iota
	PathLineTo
	PathCurveTo
	PathClose
)

// Empty reports whether the path has no segments.
func (p *Path) Empty() bool { return len(p.Subpaths) == 0 }

func (p *Path) current() *Subpath {
	if len(p.Subpaths) == 0 {
		return nil
	}
	return &p.Subpaths[len(p.Subpaths)-1]
}

func (p *Path) moveTo(x, y float64) {
	p.Subpaths = append(p.Subpaths, Subpath{Points: []PathPoint{{X: x, Y: y, Type: PathMoveTo}}})
}

// open returns the subpath that new segments extend. After a close the
// current point is the start of the closed subpath.
func (p *Path) open() *Subpath {
	sp := p.current()
	if sp == nil {
		return nil
	}
	if sp.Closed {
		start := sp.Points[0]
		p.moveTo(start.X, start.Y)
		sp = p.current()
	}
	return sp
}

func (p *Path) lineTo(x, y float64) {
	sp := p.open()
	if sp == nil {
		// a segment without current point starts a new subpath
		p.moveTo(x, y)
		return
	}
	sp.Points = append(sp.Points, PathPoint{X: x, Y: y, Type: PathLineTo})
}

func (p *Path) curveTo(x1, y1, x2, y2, x3, y3 float64) {
	sp := p.open()
	if sp == nil {
		p.moveTo(x3, y3)
		return
	}
	sp.Points = append(sp.Points, PathPoint{
		X: x3, Y: y3, Type: PathCurveTo,
		Control1X: x1, Control1Y: y1, Control2X: x2, Control2Y: y2,
	})
}

func (p *Path) close() {
	if sp := p.current(); sp != nil && !sp.Closed {
		sp.Closed = true
		start := sp.Points[0]
		sp.Points = append(sp.Points, PathPoint{X: start.X, Y: start.Y, Type: PathClose})
	}
}

// last returns the current point.
func (p *Path) last() (x, y float64, ok bool) {
	sp := p.current()
	if sp == nil {
		return 0, 0, false
	}
	pt := sp.Points[len(sp.Points)-1]
	return pt.X, pt.Y, true
}

// Bounds returns the bounding box of the path's points and control points.
func (p *Path) Bounds() (llx, lly, urx, ury float64, ok bool) {
	first := true
	add := func(x, y float64) {
		if first {
			llx, lly, urx, ury = x, y, x, y
			first = false
			return
		}
		llx, lly = min(llx, x), min(lly, y)
		urx, ury = max(urx, x), max(ury, y)
	}
	for _, sp := range p.Subpaths {
		for _, pt := range sp.Points {
			add(pt.X, pt.Y)
			if pt.Type == PathCurveTo {
				add(pt.Control1X, pt.Control1Y)
				add(pt.Control2X, pt.Control2Y)
			}
		}
	}
	return llx, lly, urx, ury, !first
}

// Color is a device color. Components are in [0, 1]; their count selects
// the color space: one for gray, three for RGB, four for CMYK.
type Color struct {
	Components []float64
}

// Gray returns a gray color.
func Gray(g float64) Color { return Color{Components: []float64{g}} }

// RGB converts the color to RGB components.
func (c Color) RGB() (r, g, b float64) {
	v := c.Components
	switch len(v) {
	case 1:
		return v[0], v[0], v[0]
	case 3:
		return v[0], v[1], v[2]
	case 4:
		k := v[3]
		return (1 - v[0]) * (1 - k), (1 - v[1]) * (1 - k), (1 - v[2]) * (1 - k)
	default:
		return 0, 0, 0
	}
}

// TextState holds the text parameters and matrices.
type TextState struct {
	Font        string
	Size        float64
	CharSpacing float64
	WordSpacing float64
	Scale       float64
	Leading     float64
	Rise        float64
	Mode        TextRenderMode
	Matrix      matrix.Matrix
	LineMatrix  matrix.Matrix
}

// GraphicsState holds the parameters that q and Q save and restore.
type GraphicsState struct {
	CTM         matrix.Matrix
	LineWidth   float64
	LineCap     LineCap
	LineJoin    LineJoin
	FillColor   Color
	StrokeColor Color
	FillAlpha   float64
	StrokeAlpha float64
	Text        TextState
}

// NewGraphicsState returns the initial state for a page whose default user
// space is mapped by ctm.
func NewGraphicsState(ctm matrix.Matrix) GraphicsState {
	return GraphicsState{
		CTM:         ctm,
		LineWidth:   1,
		FillColor:   Gray(0),
		StrokeColor: Gray(0),
		FillAlpha:   1,
		StrokeAlpha: 1,
		Text: TextState{
			Scale:      1,
			Matrix:     matrix.Identity,
			LineMatrix: matrix.Identity,
		},
	}
}
