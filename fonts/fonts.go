package fonts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	xfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"seehuhn.de/go/geom/vec"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// SegmentOp is the kind of an outline segment.
type SegmentOp int

const (
	MoveTo SegmentOp = iota
	LineTo
	QuadTo
	CubeTo
)

// Segment is one piece of a glyph outline. Points are in em units with the
// y axis pointing up; only the first 1, 2 or 3 points are used depending on
// Op, and the last used point is the end point.
type Segment struct {
	Op     SegmentOp
	Points [3]vec.Vec2
}

// Glyph is the outline and advance of one character code.
type Glyph struct {
	Segments []Segment
	// Advance is in glyph space units (1/1000 em).
	Advance float64
}

// Face turns character codes of a simple font into outlines. A Face is safe
// for concurrent use.
type Face struct {
	Name string

	font *sfnt.Font
	ppem fixed.Int26_6
	upem float64

	mu    sync.Mutex
	buf   sfnt.Buffer
	cache map[byte]*Glyph
}

// ParseFace parses TrueType or OpenType font data.
func ParseFace(name string, data []byte) (*Face, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("font data is empty")
	}
	f, err := sfnt.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	upem := f.UnitsPerEm()
	if upem == 0 {
		return nil, fmt.Errorf("invalid unitsPerEm")
	}
	if name == "" {
		var buf sfnt.Buffer
		name, _ = f.Name(&buf, sfnt.NameIDPostScript)
	}
	return &Face{
		Name:  name,
		font:  f,
		ppem:  fixed.Int26_6(upem << 6),
		upem:  float64(upem),
		cache: make(map[byte]*Glyph),
	}, nil
}

var (
	regularFace = sync.OnceValue(func() *Face { return mustFace("GoRegular", goregular.TTF) })
	monoFace    = sync.OnceValue(func() *Face { return mustFace("GoMono", gomono.TTF) })
)

func mustFace(name string, data []byte) *Face {
	f, err := ParseFace(name, data)
	if err != nil {
		panic(err)
	}
	return f
}

// Fallback returns the face used for fonts that are not embedded or cannot
// be parsed: Go Mono for Courier and fixed-pitch fonts, Go Regular otherwise.
func Fallback(baseFont string) *Face {
	if strings.Contains(baseFont, "Courier") || strings.Contains(baseFont, "Mono") {
		return monoFace()
	}
	return regularFace()
}

// Load returns the embedded face of a font dictionary, or the fallback
// face when the font is not embedded in a format the sfnt parser reads
// (FontFile2, or FontFile3 with /Subtype /OpenType).
func Load(ctx context.Context, store *raw.Store, font *raw.DictObj) *Face {
	base, _ := store.ResolveName(font.Lookup("BaseFont"))
	base = stripSubset(base)
	fd, ok := store.ResolveDict(font.Lookup("FontDescriptor"))
	if !ok {
		return Fallback(base)
	}
	stream, ok := store.ResolveStream(fd.Lookup("FontFile2"))
	if !ok {
		stream, ok = store.ResolveStream(fd.Lookup("FontFile3"))
		if !ok {
			return Fallback(base)
		}
		if st, _ := store.ResolveName(stream.Dict.Lookup("Subtype")); st != "OpenType" {
			return Fallback(base)
		}
	}
	data, err := filters.DecodeStream(ctx, stream, store.Resolve)
	if err != nil {
		return Fallback(base)
	}
	face, err := ParseFace(base, data)
	if err != nil {
		return Fallback(base)
	}
	return face
}

// Glyph returns the outline of a character code. Codes are mapped to
// glyphs through WinAnsiEncoding, then through the symbol range
// U+F000+code used by symbolic TrueType fonts.
func (f *Face) Glyph(code byte) *Glyph {
	f.mu.Lock()
	defer f.mu.Unlock()
	if g, ok := f.cache[code]; ok {
		return g
	}
	g := f.load(code)
	f.cache[code] = g
	return g
}

func (f *Face) load(code byte) *Glyph {
	gi, _ := f.font.GlyphIndex(&f.buf, DecodeWinAnsi(code))
	if gi == 0 {
		gi, _ = f.font.GlyphIndex(&f.buf, 0xF000+rune(code))
	}
	g := &Glyph{}
	if gi == 0 {
		return g
	}
	if adv, err := f.font.GlyphAdvance(&f.buf, gi, f.ppem, xfont.HintingNone); err == nil {
		g.Advance = f.scale(adv) * 1000
	}
	segs, err := f.font.LoadGlyph(&f.buf, gi, f.ppem, nil)
	if err != nil {
		return g
	}
	g.Segments = make([]Segment, 0, len(segs))
	for _, s := range segs {
		seg := Segment{}
		n := 1
		switch s.Op {
		case sfnt.SegmentOpMoveTo:
			seg.Op = MoveTo
		case sfnt.SegmentOpLineTo:
			seg.Op = LineTo
		case sfnt.SegmentOpQuadTo:
			seg.Op, n = QuadTo, 2
		case sfnt.SegmentOpCubeTo:
			seg.Op, n = CubeTo, 3
		}
		for i := 0; i < n; i++ {
			// sfnt outlines have y pointing down
			seg.Points[i] = vec.Vec2{X: f.scale(s.Args[i].X), Y: -f.scale(s.Args[i].Y)}
		}
		g.Segments = append(g.Segments, seg)
	}
	return g
}

func (f *Face) scale(v fixed.Int26_6) float64 {
	return float64(v) / 64 / f.upem
}
