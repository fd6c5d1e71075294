package scanner

import (
	"errors"
	"io"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/recovery"
)

func newScanner(t *testing.T, data string, cfg Config) Scanner {
	t.Helper()
	return New([]byte(data), cfg)
}

func nextToken(t *testing.T, s Scanner) Token {
	t.Helper()
	tok, err := s.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tok
}

func TestScanner_BasicTokens(t *testing.T) {
	s := newScanner(t, "%PDF-1.7\n1 0 obj\n<< /Name /Value /Nums [1 2 3] /Flag true /Null null >>\nendobj", Config{})

	tok := nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 1 {
		t.Fatalf("expected first token number 1, got %+v", tok)
	}
	tok = nextToken(t, s)
	if tok.Type != TokenNumber || !tok.IsInt || tok.Int != 0 {
		t.Fatalf("expected generation number 0, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "obj" {
		t.Fatalf("expected obj keyword, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenDict {
		t.Fatalf("expected dict start, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Name" {
		t.Fatalf("expected Name key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Value" {
		t.Fatalf("expected Name value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Nums" {
		t.Fatalf("expected Nums key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenArray {
		t.Fatalf("expected array start, got %+v", tok)
	}
	for i := int64(1); i <= 3; i++ {
		tok = nextToken(t, s)
		if tok.Type != TokenNumber || !tok.IsInt || tok.Int != i {
			t.Fatalf("expected array number %d, got %+v", i, tok)
		}
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "]" {
		t.Fatalf("expected array close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Flag" {
		t.Fatalf("expected Flag key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenBoolean || !tok.Bool {
		t.Fatalf("expected true boolean, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenName || tok.Str != "Null" {
		t.Fatalf("expected Null key, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenNull {
		t.Fatalf("expected null value, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != ">>" {
		t.Fatalf("expected dict close, got %+v", tok)
	}
	if tok = nextToken(t, s); tok.Type != TokenKeyword || tok.Str != "endobj" {
		t.Fatalf("expected endobj, got %+v", tok)
	}
	if _, err := s.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestScanner_NameHexEscapes(t *testing.T) {
	s := newScanner(t, "/A#20B /C#23", Config{})
	if tok := nextToken(t, s); tok.Str != "A B" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
	if tok := nextToken(t, s); tok.Str != "C#" {
		t.Fatalf("expected decoded name, got %q", tok.Str)
	}
}

func TestScanner_LiteralStringEscapes(t *testing.T) {
	s := newScanner(t, `(a\nb\(c\)\\d\101 (nested))`, Config{})
	tok := nextToken(t, s)
	if got, want := string(tok.Bytes), "a\nb(c)\\dA (nested)"; got != want {
		t.Fatalf("literal string = %q, want %q", got, want)
	}
	if tok.Hex {
		t.Fatalf("literal string flagged as hex")
	}
}

func TestScanner_LiteralStringLineContinuation(t *testing.T) {
	s := newScanner(t, "(abc\\\r\ndef)", Config{})
	if tok := nextToken(t, s); string(tok.Bytes) != "abcdef" {
		t.Fatalf("expected continuation to be dropped, got %q", tok.Bytes)
	}
}

func TestScanner_HexStringOddLength(t *testing.T) {
	s := newScanner(t, "<4142 4>", Config{})
	tok := nextToken(t, s)
	if string(tok.Bytes) != "AB@" || !tok.Hex {
		t.Fatalf("unexpected hex string %+v", tok)
	}
}

func TestScanner_ReferenceDetection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []TokenType
	}{
		{"reference", "12 0 R", []TokenType{TokenRef}},
		{"two numbers", "12 0", []TokenType{TokenNumber, TokenNumber}},
		{"stroke color operator", "1 0 0 RG", []TokenType{TokenNumber, TokenNumber, TokenNumber, TokenKeyword}},
		{"negative is not a ref", "-1 0 R", []TokenType{TokenNumber, TokenNumber, TokenKeyword}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newScanner(t, tc.input, Config{})
			for i, want := range tc.want {
				tok := nextToken(t, s)
				if tok.Type != want {
					t.Fatalf("token %d: type %v, want %v (%+v)", i, tok.Type, want, tok)
				}
			}
			if _, err := s.Next(); !errors.Is(err, io.EOF) {
				t.Fatalf("expected EOF, got %v", err)
			}
		})
	}
}

func TestScanner_StreamWithLength(t *testing.T) {
	s := newScanner(t, "stream\r\nhello endstream\nendstream", Config{})
	s.SetNextStreamLength(15)
	tok := nextToken(t, s)
	if tok.Type != TokenStream || string(tok.Bytes) != "hello endstream" {
		t.Fatalf("unexpected stream payload %q", tok.Bytes)
	}
}

func TestScanner_StreamFallbackToEndstream(t *testing.T) {
	rec := recovery.NewLenientStrategy()
	s := newScanner(t, "stream\nhello world\nendstream endobj", Config{Recovery: rec})
	s.SetNextStreamLength(3)
	tok := nextToken(t, s)
	if string(tok.Bytes) != "hello world" {
		t.Fatalf("expected fallback payload, got %q", tok.Bytes)
	}
	if len(rec.Errors) != 1 {
		t.Fatalf("expected one recorded warning, got %v", rec.Errors)
	}
	if tok = nextToken(t, s); tok.Str != "endobj" {
		t.Fatalf("expected endobj after stream, got %+v", tok)
	}
}

func TestScanner_StreamLengthMismatchIsStrictError(t *testing.T) {
	s := newScanner(t, "stream\nhello world\nendstream", Config{})
	s.SetNextStreamLength(3)
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected error without a recovery strategy")
	}
}

func TestScanner_InlineImage(t *testing.T) {
	s := newScanner(t, "BI /W 2 /H 1 /CS /G /BPC 8 ID \x00\xffEI\xff\nEI Q", Config{})
	var sawData bool
	for {
		tok, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		if tok.Type == TokenInlineImage {
			sawData = true
			if string(tok.Bytes) != "\x00\xffEI\xff" {
				t.Fatalf("inline data = %q", tok.Bytes)
			}
		}
	}
	if !sawData {
		t.Fatalf("inline image data not found")
	}
}

func TestScanner_UnterminatedLiteralString(t *testing.T) {
	s := newScanner(t, "(abc", Config{})
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected error for unterminated string")
	}
	rec := recovery.NewLenientStrategy()
	s = newScanner(t, "(abc", Config{Recovery: rec})
	if tok := nextToken(t, s); string(tok.Bytes) != "abc" {
		t.Fatalf("expected partial string, got %q", tok.Bytes)
	}
}

func TestScanner_DepthLimits(t *testing.T) {
	s := newScanner(t, "[[[1]]]", Config{MaxArrayDepth: 2})
	nextToken(t, s)
	nextToken(t, s)
	if _, err := s.Next(); err == nil {
		t.Fatalf("expected depth error")
	}
}

func TestScanner_RecoveryContextIncludesObject(t *testing.T) {
	rec := recovery.NewLenientStrategy()
	s := newScanner(t, "<41 zz>", Config{Recovery: rec})
	s.SetRecoveryLocation(recovery.Location{ObjectNum: 7, Component: "loader"})
	nextToken(t, s)
	if len(rec.Locations) == 0 || rec.Locations[0].ObjectNum != 7 {
		t.Fatalf("expected object number in recovery location, got %+v", rec.Locations)
	}
	if rec.Locations[0].Component != "loader->scanner:hex" {
		t.Fatalf("unexpected component %q", rec.Locations[0].Component)
	}
}

func TestObjectReader_ReadsNestedObjects(t *testing.T) {
	r := NewObjectReader(New([]byte("<< /Kids [3 0 R 4 0 R] /Count 2 /Skip null /Box [0 0 612.5 792] >>"), Config{}))
	obj, err := r.ReadObject()
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		t.Fatalf("expected dict, got %T", obj)
	}
	kids, ok := dict.Lookup("Kids").(*raw.ArrayObj)
	if !ok || kids.Len() != 2 {
		t.Fatalf("unexpected kids %#v", dict.Lookup("Kids"))
	}
	if ref, ok := kids.Items[1].(raw.RefObj); !ok || ref.R != (raw.ObjectRef{Num: 4}) {
		t.Fatalf("unexpected kid %#v", kids.Items[1])
	}
	if dict.Lookup("Skip") != nil {
		t.Fatalf("null entries should be dropped")
	}
	box := dict.Lookup("Box").(*raw.ArrayObj)
	if n := box.Items[2].(raw.NumberObj); n.IsInt || n.Float() != 612.5 {
		t.Fatalf("unexpected box width %#v", n)
	}
}

func TestObjectReader_UnterminatedArray(t *testing.T) {
	r := NewObjectReader(New([]byte("[1 2 endobj"), Config{}))
	if _, err := r.ReadObject(); err == nil {
		t.Fatalf("expected error for unterminated array")
	}
	tok, err := r.Next()
	if err != nil || tok.Str != "endobj" {
		t.Fatalf("expected endobj to be pushed back, got %+v %v", tok, err)
	}
}
