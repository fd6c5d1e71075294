// Package contentstream parses page content streams and interprets them:
// the Processor tracks the graphics and text state, builds paths in device
// space and hands painting operations to registered handlers.
package contentstream

import (
	"context"
	"errors"
	"fmt"

	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// maxStateDepth bounds the q/Q stack.
const maxStateDepth = 64

// WidthFunc returns the advance width, in thousandths of text space units,
// of the glyph for code in the font registered under the resource name font.
type WidthFunc func(font string, code byte) float64

// Glyph describes one shown character.
type Glyph struct {
	Font string
	Code byte
	// Matrix maps glyph space, scaled to one unit per em, to device space.
	Matrix matrix.Matrix
	// Width is the advance in thousandths of an em.
	Width float64
}

// ExecutionContext is the state shared between the processor and its
// handlers while one content stream is interpreted.
type ExecutionContext struct {
	State     GraphicsState
	Path      Path
	Resources *raw.DictObj
	Store     *raw.Store
	Widths    WidthFunc

	stack []GraphicsState
}

// NewExecutionContext prepares interpretation with the initial CTM ctm.
func NewExecutionContext(ctm matrix.Matrix, store *raw.Store, resources *raw.DictObj) *ExecutionContext {
	if store == nil {
		store = raw.NewStore()
	}
	return &ExecutionContext{
		State:     NewGraphicsState(ctm),
		Resources: resources,
		Store:     store,
	}
}

// Resource resolves a named entry of a resource category.
func (ec *ExecutionContext) Resource(category, name string) raw.Object {
	cat, ok := ec.Store.ResolveDict(ec.Resources.Lookup(category))
	if !ok {
		return nil
	}
	return cat.Lookup(name)
}

// Save pushes a copy of the graphics state.
func (ec *ExecutionContext) Save() error {
	if len(ec.stack) >= maxStateDepth {
		return errors.New("graphics state stack overflow")
	}
	ec.stack = append(ec.stack, ec.State)
	return nil
}

// Restore pops the graphics state.
func (ec *ExecutionContext) Restore() error {
	n := len(ec.stack)
	if n == 0 {
		return errors.New("state stack empty")
	}
	ec.State = ec.stack[n-1]
	ec.stack = ec.stack[:n-1]
	return nil
}

// OperatorHandler is called for painting operators.
type OperatorHandler interface {
	Handle(ec *ExecutionContext, op Operation) error
}

// HandlerFunc adapts a function to OperatorHandler.
type HandlerFunc func(ec *ExecutionContext, op Operation) error

func (f HandlerFunc) Handle(ec *ExecutionContext, op Operation) error { return f(ec, op) }

// GlyphFunc receives every character shown by a text operator.
type GlyphFunc func(ec *ExecutionContext, g Glyph) error

// Processor interprets operations. State operators are applied directly;
// path painting, XObject and inline image operators go to the registered
// handlers, and every shown character to the glyph callback.
type Processor struct {
	handlers map[string]OperatorHandler
	glyph    GlyphFunc
}

func NewProcessor() *Processor {
	return &Processor{handlers: make(map[string]OperatorHandler)}
}

// RegisterHandler installs h for op, replacing any previous handler.
func (p *Processor) RegisterHandler(op string, h OperatorHandler) { p.handlers[op] = h }

// OnGlyph installs the glyph callback.
func (p *Processor) OnGlyph(fn GlyphFunc) { p.glyph = fn }

// Process runs ops against ec. Operators with too few operands are
// skipped; an unbalanced Q is ignored.
func (p *Processor) Process(ctx context.Context, ec *ExecutionContext, ops []Operation) error {
	for i, op := range ops {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := p.apply(ec, op); err != nil {
			return fmt.Errorf("operator %s: %w", op.Operator, err)
		}
	}
	return nil
}

var paintingOps = map[string]bool{
	"S": true, "s": true, "f": true, "F": true, "f*": true,
	"B": true, "B*": true, "b": true, "b*": true, "n": true,
}

func (p *Processor) apply(ec *ExecutionContext, op Operation) error {
	gs := &ec.State
	args := numbers(op.Operands)
	switch op.Operator {
	case "q":
		return ec.Save()
	case "Q":
		_ = ec.Restore()
	case "cm":
		if len(args) == 6 {
			gs.CTM = matrix.Matrix{args[0], args[1], args[2], args[3], args[4], args[5]}.Mul(gs.CTM)
		}
	case "w":
		if len(args) == 1 {
			gs.LineWidth = args[0]
		}
	case "J":
		if len(args) == 1 {
			gs.LineCap = LineCap(args[0])
		}
	case "j":
		if len(args) == 1 {
			gs.LineJoin = LineJoin(args[0])
		}
	case "g", "rg", "k", "sc", "scn":
		if c, ok := colorFrom(args); ok {
			gs.FillColor = c
		}
	case "G", "RG", "K", "SC", "SCN":
		if c, ok := colorFrom(args); ok {
			gs.StrokeColor = c
		}
	case "cs":
		gs.FillColor = initialColor(op.Operands)
	case "CS":
		gs.StrokeColor = initialColor(op.Operands)
	case "gs":
		p.extGState(ec, op.Operands)

	case "m":
		if len(args) == 2 {
			x, y := gs.CTM.Apply(args[0], args[1])
			ec.Path.moveTo(x, y)
		}
	case "l":
		if len(args) == 2 {
			x, y := gs.CTM.Apply(args[0], args[1])
			ec.Path.lineTo(x, y)
		}
	case "c":
		if len(args) == 6 {
			x1, y1 := gs.CTM.Apply(args[0], args[1])
			x2, y2 := gs.CTM.Apply(args[2], args[3])
			x3, y3 := gs.CTM.Apply(args[4], args[5])
			ec.Path.curveTo(x1, y1, x2, y2, x3, y3)
		}
	case "v":
		if len(args) == 4 {
			x0, y0, ok := ec.Path.last()
			if !ok {
				return nil
			}
			x2, y2 := gs.CTM.Apply(args[0], args[1])
			x3, y3 := gs.CTM.Apply(args[2], args[3])
			ec.Path.curveTo(x0, y0, x2, y2, x3, y3)
		}
	case "y":
		if len(args) == 4 {
			x1, y1 := gs.CTM.Apply(args[0], args[1])
			x3, y3 := gs.CTM.Apply(args[2], args[3])
			ec.Path.curveTo(x1, y1, x3, y3, x3, y3)
		}
	case "h":
		ec.Path.close()
	case "re":
		if len(args) == 4 {
			x, y, w, h := args[0], args[1], args[2], args[3]
			x0, y0 := gs.CTM.Apply(x, y)
			x1, y1 := gs.CTM.Apply(x+w, y)
			x2, y2 := gs.CTM.Apply(x+w, y+h)
			x3, y3 := gs.CTM.Apply(x, y+h)
			ec.Path.moveTo(x0, y0)
			ec.Path.lineTo(x1, y1)
			ec.Path.lineTo(x2, y2)
			ec.Path.lineTo(x3, y3)
			ec.Path.close()
		}

	case "BT":
		gs.Text.Matrix = matrix.Identity
		gs.Text.LineMatrix = matrix.Identity
	case "Tf":
		if len(op.Operands) == 2 {
			if name, ok := op.Operands[0].(raw.NameObj); ok {
				gs.Text.Font = name.Val
			}
			if n, ok := ec.Store.ResolveNumber(op.Operands[1]); ok {
				gs.Text.Size = n
			}
		}
	case "Tc":
		if len(args) == 1 {
			gs.Text.CharSpacing = args[0]
		}
	case "Tw":
		if len(args) == 1 {
			gs.Text.WordSpacing = args[0]
		}
	case "Tz":
		if len(args) == 1 {
			gs.Text.Scale = args[0] / 100
		}
	case "TL":
		if len(args) == 1 {
			gs.Text.Leading = args[0]
		}
	case "Ts":
		if len(args) == 1 {
			gs.Text.Rise = args[0]
		}
	case "Tr":
		if len(args) == 1 {
			gs.Text.Mode = TextRenderMode(args[0])
		}
	case "Td":
		if len(args) == 2 {
			nextLine(gs, args[0], args[1])
		}
	case "TD":
		if len(args) == 2 {
			gs.Text.Leading = -args[1]
			nextLine(gs, args[0], args[1])
		}
	case "Tm":
		if len(args) == 6 {
			gs.Text.LineMatrix = matrix.Matrix{args[0], args[1], args[2], args[3], args[4], args[5]}
			gs.Text.Matrix = gs.Text.LineMatrix
		}
	case "T*":
		nextLine(gs, 0, -gs.Text.Leading)
	case "Tj":
		if len(op.Operands) == 1 {
			return p.show(ec, op.Operands[0])
		}
	case "'":
		if len(op.Operands) == 1 {
			nextLine(gs, 0, -gs.Text.Leading)
			return p.show(ec, op.Operands[0])
		}
	case "\"":
		if len(op.Operands) == 3 {
			if sp := numbers(op.Operands[:2]); sp != nil {
				gs.Text.WordSpacing, gs.Text.CharSpacing = sp[0], sp[1]
			}
			nextLine(gs, 0, -gs.Text.Leading)
			return p.show(ec, op.Operands[2])
		}
	case "TJ":
		if len(op.Operands) == 1 {
			arr, ok := ec.Store.ResolveArray(op.Operands[0])
			if !ok {
				return nil
			}
			for _, it := range arr.Items {
				if n, ok := it.(raw.NumberObj); ok {
					advance(gs, -n.Float()/1000*gs.Text.Size*gs.Text.Scale)
					continue
				}
				if err := p.show(ec, it); err != nil {
					return err
				}
			}
		}
	}

	if h, ok := p.handlers[op.Operator]; ok {
		if err := h.Handle(ec, op); err != nil {
			return err
		}
	}
	if paintingOps[op.Operator] {
		ec.Path = Path{}
	}
	return nil
}

// show paints the characters of a string operand and advances the text
// matrix.
func (p *Processor) show(ec *ExecutionContext, obj raw.Object) error {
	s, ok := obj.(raw.StringObj)
	if !ok {
		return nil
	}
	ts := &ec.State.Text
	for _, code := range s.Bytes {
		w := 0.0
		if ec.Widths != nil {
			w = ec.Widths(ts.Font, code)
		}
		if p.glyph != nil {
			trm := matrix.Matrix{ts.Size * ts.Scale, 0, 0, ts.Size, 0, ts.Rise}.Mul(ts.Matrix).Mul(ec.State.CTM)
			if err := p.glyph(ec, Glyph{Font: ts.Font, Code: code, Matrix: trm, Width: w}); err != nil {
				return err
			}
		}
		tx := w/1000*ts.Size + ts.CharSpacing
		if code == ' ' {
			tx += ts.WordSpacing
		}
		advance(&ec.State, tx*ts.Scale)
	}
	return nil
}

func advance(gs *GraphicsState, tx float64) {
	gs.Text.Matrix = matrix.Translate(tx, 0).Mul(gs.Text.Matrix)
}

func nextLine(gs *GraphicsState, tx, ty float64) {
	gs.Text.LineMatrix = matrix.Translate(tx, ty).Mul(gs.Text.LineMatrix)
	gs.Text.Matrix = gs.Text.LineMatrix
}

func (p *Processor) extGState(ec *ExecutionContext, operands []raw.Object) {
	if len(operands) != 1 {
		return
	}
	name, ok := operands[0].(raw.NameObj)
	if !ok {
		return
	}
	d, ok := ec.Store.ResolveDict(ec.Resource("ExtGState", name.Val))
	if !ok {
		return
	}
	if v, ok := ec.Store.ResolveNumber(d.Lookup("ca")); ok {
		ec.State.FillAlpha = v
	}
	if v, ok := ec.Store.ResolveNumber(d.Lookup("CA")); ok {
		ec.State.StrokeAlpha = v
	}
	if v, ok := ec.Store.ResolveNumber(d.Lookup("LW")); ok {
		ec.State.LineWidth = v
	}
}

// numbers returns the numeric operands, or nil if any operand is not a
// number.
func numbers(operands []raw.Object) []float64 {
	out := make([]float64, 0, len(operands))
	for _, o := range operands {
		n, ok := o.(raw.NumberObj)
		if !ok {
			return nil
		}
		out = append(out, n.Float())
	}
	return out
}

func colorFrom(args []float64) (Color, bool) {
	switch len(args) {
	case 1, 3, 4:
		return Color{Components: append([]float64(nil), args...)}, true
	}
	return Color{}, false
}

// initialColor returns the initial color of the space named by a cs or CS
// operand. Spaces other than the device spaces start as gray.
func initialColor(operands []raw.Object) Color {
	if len(operands) != 1 {
		return Gray(0)
	}
	name, _ := operands[0].(raw.NameObj)
	switch name.Val {
	case "DeviceRGB", "CalRGB", "RGB":
		return Color{Components: []float64{0, 0, 0}}
	case "DeviceCMYK", "CMYK":
		return Color{Components: []float64{0, 0, 0, 1}}
	}
	return Gray(0)
}
