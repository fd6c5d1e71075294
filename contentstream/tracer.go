package contentstream

import (
	"context"

	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
)

// OpBBox represents the bounding box of an operation.
type OpBBox struct {
	OpIndex  int
	Operator string
	Rect     semantic.Rectangle
}

// Tracer calculates the bounding boxes of painting operations in a
// content stream.
type Tracer struct {
	Widths WidthFunc
}

func NewTracer(widths WidthFunc) *Tracer {
	return &Tracer{Widths: widths}
}

// Trace executes the operations virtually and returns the user space
// bounding boxes of every operation that marks the page. Text boxes span
// from the baseline to one em above it.
func (t *Tracer) Trace(ctx context.Context, ops []Operation, store *raw.Store, resources *raw.DictObj) ([]OpBBox, error) {
	var (
		bboxes []OpBBox
		acc    rectAcc
	)
	ec := NewExecutionContext(matrix.Identity, store, resources)
	ec.Widths = t.Widths

	proc := NewProcessor()
	paint := HandlerFunc(func(ec *ExecutionContext, op Operation) error {
		if op.Operator == "n" {
			return nil
		}
		if llx, lly, urx, ury, ok := ec.Path.Bounds(); ok {
			acc.add(llx, lly)
			acc.add(urx, ury)
		}
		return nil
	})
	for op := range paintingOps {
		proc.RegisterHandler(op, paint)
	}
	unitSquare := HandlerFunc(func(ec *ExecutionContext, op Operation) error {
		m := ec.State.CTM
		for _, p := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			acc.add(m.Apply(p[0], p[1]))
		}
		return nil
	})
	proc.RegisterHandler("Do", unitSquare)
	proc.RegisterHandler("BI", unitSquare)
	proc.OnGlyph(func(ec *ExecutionContext, g Glyph) error {
		w := g.Width / 1000
		for _, p := range [][2]float64{{0, 0}, {w, 0}, {0, 1}, {w, 1}} {
			acc.add(g.Matrix.Apply(p[0], p[1]))
		}
		return nil
	})

	for i, op := range ops {
		acc = rectAcc{}
		if err := proc.Process(ctx, ec, ops[i:i+1]); err != nil {
			return nil, err
		}
		if acc.ok {
			bboxes = append(bboxes, OpBBox{OpIndex: i, Operator: op.Operator, Rect: acc.rect})
		}
	}
	return bboxes, nil
}

type rectAcc struct {
	rect semantic.Rectangle
	ok   bool
}

func (a *rectAcc) add(x, y float64) {
	if !a.ok {
		a.rect = semantic.Rectangle{LLX: x, LLY: y, URX: x, URY: y}
		a.ok = true
		return
	}
	a.rect.LLX = min(a.rect.LLX, x)
	a.rect.LLY = min(a.rect.LLY, y)
	a.rect.URX = max(a.rect.URX, x)
	a.rect.URY = max(a.rect.URY, y)
}
