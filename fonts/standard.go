package fonts

import (
	"strings"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// Metrics holds the advance widths of a simple font, in glyph space units
// (1/1000 em), indexed by character code.
type Metrics struct {
	Name    string
	Ascent  float64
	Descent float64

	widths  [256]float64
	missing float64
}

// Width returns the advance width of code in glyph space units.
func (m *Metrics) Width(code byte) float64 {
	if w := m.widths[code]; w > 0 {
		return w
	}
	return m.missing
}

// TextWidth returns the advance width of the encoded text at the given font
// size, in text space units.
func (m *Metrics) TextWidth(text []byte, size float64) float64 {
	var sum float64
	for _, c := range text {
		sum += m.Width(c)
	}
	return sum * size / 1000
}

// Standard returns the built-in metrics of a standard font. Widths are
// indexed by WinAnsiEncoding codes.
func Standard(name string) (*Metrics, bool) {
	name = strings.TrimPrefix(name, "/")
	switch name {
	case "Times-Roman", "TimesNewRoman", "Times":
		m := &Metrics{Name: "Times-Roman", Ascent: 683, Descent: -217, missing: 250}
		copy(m.widths[32:], timesRoman[:])
		return m, true
	case "Helvetica", "Arial", "ArialMT":
		m := &Metrics{Name: "Helvetica", Ascent: 718, Descent: -207, missing: 556}
		copy(m.widths[32:], helvetica[:])
		return m, true
	case "Courier", "CourierNew":
		m := &Metrics{Name: "Courier", Ascent: 629, Descent: -157, missing: 600}
		for i := 32; i < 256; i++ {
			m.widths[i] = 600
		}
		return m, true
	}
	return nil, false
}

// FromDict returns the metrics of a simple font dictionary: /Widths with
// /FirstChar when present, then the standard metrics of /BaseFont, and
// finally a flat 500 units per glyph.
func FromDict(store *raw.Store, font *raw.DictObj) *Metrics {
	base := ""
	if n, ok := store.ResolveName(font.Lookup("BaseFont")); ok {
		base = stripSubset(n)
	}
	m, ok := Standard(base)
	if !ok {
		m = &Metrics{Name: base, Ascent: 750, Descent: -250, missing: 500}
	}

	if fd, ok := store.ResolveDict(font.Lookup("FontDescriptor")); ok {
		if v, ok := store.ResolveNumber(fd.Lookup("MissingWidth")); ok && v > 0 {
			m.missing = v
		}
		if v, ok := store.ResolveNumber(fd.Lookup("Ascent")); ok && v != 0 {
			m.Ascent = v
		}
		if v, ok := store.ResolveNumber(fd.Lookup("Descent")); ok && v != 0 {
			m.Descent = v
		}
	}

	widths, ok := store.ResolveArray(font.Lookup("Widths"))
	if !ok {
		return m
	}
	first := 0
	if v, ok := store.ResolveNumber(font.Lookup("FirstChar")); ok {
		first = int(v)
	}
	for i, item := range widths.Items {
		code := first + i
		if code < 0 || code > 255 {
			break
		}
		if v, ok := store.ResolveNumber(item); ok {
			m.widths[code] = v
		}
	}
	return m
}

// stripSubset removes a six letter subset tag such as "ABCDEF+".
func stripSubset(name string) string {
	if len(name) > 7 && name[6] == '+' {
		return name[7:]
	}
	return name
}

// Widths of Times-Roman for WinAnsiEncoding codes 32 to 255.
var timesRoman = [224]float64{
	// 0x20
	250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333, 250, 278,
	500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278, 564, 564, 564, 444,
	// 0x40
	921, 722, 667, 667, 722, 611, 556, 722, 722, 333, 389, 722, 611, 889, 722, 722,
	556, 722, 667, 556, 611, 722, 722, 944, 722, 722, 611, 333, 278, 333, 469, 500,
	// 0x60
	333, 444, 500, 444, 500, 444, 333, 500, 500, 278, 278, 500, 278, 778, 500, 500,
	500, 500, 333, 389, 278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541, 0,
	// 0x80
	500, 0, 333, 500, 444, 1000, 500, 500, 333, 1000, 556, 333, 889, 0, 611, 0,
	0, 333, 333, 444, 444, 350, 500, 1000, 333, 980, 389, 333, 722, 0, 444, 722,
	// 0xA0
	250, 333, 500, 500, 500, 500, 200, 500, 333, 760, 276, 500, 564, 333, 760, 333,
	400, 564, 300, 300, 333, 500, 453, 250, 333, 300, 310, 500, 750, 750, 750, 444,
	// 0xC0
	722, 722, 722, 722, 722, 722, 889, 667, 611, 611, 611, 611, 333, 333, 333, 333,
	722, 722, 722, 722, 722, 722, 722, 564, 722, 722, 722, 722, 722, 722, 556, 500,
	// 0xE0
	444, 444, 444, 444, 444, 444, 667, 444, 444, 444, 444, 444, 278, 278, 278, 278,
	500, 500, 500, 500, 500, 500, 500, 564, 500, 500, 500, 500, 500, 500, 500, 500,
}

// Widths of Helvetica for codes 32 to 126; the rest use the missing width.
var helvetica = [95]float64{
	278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333, 278, 278,
	556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278, 584, 584, 584, 556,
	1015, 667, 667, 722, 722, 667, 611, 778, 722, 278, 500, 667, 556, 833, 722, 778,
	667, 778, 722, 667, 611, 722, 667, 944, 667, 667, 611, 278, 278, 278, 469, 556,
	333, 556, 556, 500, 556, 556, 278, 556, 556, 222, 222, 500, 222, 833, 556, 556,
	556, 556, 333, 500, 278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
}
