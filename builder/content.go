package builder

import (
	"seehuhn.de/go/geom/matrix"

	"github.com/sfdeloach/pdf-tools/contentstream"
	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// Content accumulates the operations of one content stream.
type Content struct {
	ops []contentstream.Operation
}

// Op appends an operation with arbitrary operands.
func (c *Content) Op(operator string, operands ...raw.Object) *Content {
	c.ops = append(c.ops, contentstream.Operation{Operator: operator, Operands: operands})
	return c
}

// Num appends an operation with numeric operands.
func (c *Content) Num(operator string, args ...float64) *Content {
	c.ops = append(c.ops, contentstream.Op(operator, args...))
	return c
}

func (c *Content) Save() *Content    { return c.Op("q") }
func (c *Content) Restore() *Content { return c.Op("Q") }

// Transform concatenates m to the CTM.
func (c *Content) Transform(m matrix.Matrix) *Content {
	return c.Num("cm", m[:]...)
}

func (c *Content) FillGray(g float64) *Content   { return c.Num("g", g) }
func (c *Content) StrokeGray(g float64) *Content { return c.Num("G", g) }

// FillColor sets the fill color in DeviceRGB, or DeviceGray when the
// components are equal.
func (c *Content) FillColor(col Color) *Content {
	if col.R == col.G && col.G == col.B {
		return c.FillGray(col.R)
	}
	return c.Num("rg", col.R, col.G, col.B)
}

// StrokeColor is the stroking counterpart of FillColor.
func (c *Content) StrokeColor(col Color) *Content {
	if col.R == col.G && col.G == col.B {
		return c.StrokeGray(col.R)
	}
	return c.Num("RG", col.R, col.G, col.B)
}

// ExtGState selects a named graphics state parameter dictionary.
func (c *Content) ExtGState(name string) *Content {
	return c.Op("gs", raw.NameLiteral(name))
}

// Text shows an encoded string in its own text object, with the text
// matrix set to m.
func (c *Content) Text(font string, size float64, m matrix.Matrix, text []byte) *Content {
	c.Op("BT")
	c.Op("Tf", raw.NameLiteral(font), raw.NumberFloat(size))
	c.Num("Tm", m[:]...)
	c.Op("Tj", raw.Str(text))
	return c.Op("ET")
}

func (c *Content) MoveTo(x, y float64) *Content          { return c.Num("m", x, y) }
func (c *Content) LineTo(x, y float64) *Content          { return c.Num("l", x, y) }
func (c *Content) Rect(x, y, w, h float64) *Content      { return c.Num("re", x, y, w, h) }
func (c *Content) LineWidth(w float64) *Content          { return c.Num("w", w) }
func (c *Content) Paint(operator string) *Content        { return c.Op(operator) }
func (c *Content) XObject(name string) *Content          { return c.Op("Do", raw.NameLiteral(name)) }
func (c *Content) Append(ops ...contentstream.Operation) { c.ops = append(c.ops, ops...) }

// Image paints the named image XObject into the rectangle at (x, y) with
// width w and height h: q w 0 0 h x y cm /name Do Q.
func (c *Content) Image(name string, x, y, w, h float64) *Content {
	return c.Save().Num("cm", w, 0, 0, h, x, y).XObject(name).Restore()
}

// Operations returns the accumulated operations.
func (c *Content) Operations() []contentstream.Operation { return c.ops }

// Bytes serialises the content stream.
func (c *Content) Bytes() []byte { return contentstream.Encode(c.ops) }

// Len reports the number of operations.
func (c *Content) Len() int { return len(c.ops) }
