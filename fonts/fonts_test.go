package fonts

import (
	"context"
	"math"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

func TestStandardWidths(t *testing.T) {
	m, ok := Standard("Times-Roman")
	if !ok {
		t.Fatalf("Times-Roman not found")
	}
	tests := []struct {
		code byte
		want float64
	}{
		{' ', 250},
		{'1', 500},
		{'A', 722},
		{'W', 944},
		{'i', 278},
		{0xE9, 444}, // eacute
		{0x81, 250}, // unassigned, missing width
	}
	for _, tt := range tests {
		if got := m.Width(tt.code); got != tt.want {
			t.Errorf("Width(%#x) = %v, want %v", tt.code, got, tt.want)
		}
	}
	if w := m.TextWidth([]byte("12"), 12); w != 12 {
		t.Fatalf("TextWidth = %v, want 12", w)
	}
	if _, ok := Standard("NoSuchFont"); ok {
		t.Fatalf("unknown font resolved")
	}
}

func TestFromDict(t *testing.T) {
	store := raw.NewStore()
	widths := store.Add(raw.NewArray(raw.NumberInt(600), raw.NumberInt(700)))
	font := raw.Dict()
	font.Put("BaseFont", raw.NameLiteral("ABCDEF+Times-Roman"))
	font.Put("FirstChar", raw.NumberInt(65))
	font.Put("Widths", raw.RefObj{R: widths})

	m := FromDict(store, font)
	if m.Name != "Times-Roman" {
		t.Fatalf("Name = %q", m.Name)
	}
	if m.Width('A') != 600 || m.Width('B') != 700 {
		t.Fatalf("explicit widths not applied: %v %v", m.Width('A'), m.Width('B'))
	}
	if m.Width('C') != 667 {
		t.Fatalf("standard width for C = %v", m.Width('C'))
	}

	bare := raw.Dict()
	bare.Put("BaseFont", raw.NameLiteral("Unknown"))
	if w := FromDict(store, bare).Width('x'); w != 500 {
		t.Fatalf("default width = %v", w)
	}
}

func TestEncodeWinAnsi(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Page 1", "Page 1"},
		{"café", "caf\xe9"},
		{"€5", "\x805"},
		{"日本", "??"},
	}
	for _, tt := range tests {
		if got := string(EncodeWinAnsi(tt.in)); got != tt.want {
			t.Errorf("EncodeWinAnsi(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if r := DecodeWinAnsi(0x80); r != '€' {
		t.Fatalf("DecodeWinAnsi(0x80) = %q", r)
	}
}

func TestFallbackGlyph(t *testing.T) {
	face := Fallback("Times-Roman")
	g := face.Glyph('H')
	if len(g.Segments) == 0 {
		t.Fatalf("no outline for H")
	}
	if g.Advance <= 0 || g.Advance > 1000 {
		t.Fatalf("advance = %v", g.Advance)
	}
	var maxY float64
	for _, s := range g.Segments {
		for _, p := range s.Points {
			maxY = math.Max(maxY, p.Y)
		}
	}
	if maxY < 0.5 || maxY > 1 {
		t.Fatalf("H cap height %v em, want y up in em units", maxY)
	}
	if sp := face.Glyph(' '); len(sp.Segments) != 0 {
		t.Fatalf("space has %d segments", len(sp.Segments))
	}
	if face.Glyph('H') != g {
		t.Fatalf("glyph not cached")
	}
	if Fallback("Courier-Bold") != Fallback("Courier") {
		t.Fatalf("mono fallback not shared")
	}
}

func TestLoadWithoutEmbedding(t *testing.T) {
	store := raw.NewStore()
	font := raw.Dict()
	font.Put("BaseFont", raw.NameLiteral("Courier"))
	if got := Load(context.Background(), store, font); got != Fallback("Courier") {
		t.Fatalf("Load returned %q, want fallback", got.Name)
	}
}
