package semantic

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// pdfDocHigh maps PDFDocEncoding bytes 0x80..0x9F, which differ from Latin-1.
var pdfDocHigh = [32]rune{
	'•', '†', '‡', '…', '—', '–', 'ƒ', '⁄',
	'‹', '›', '−', '‰', '„', '“', '”', '‘',
	'’', '‚', '™', 'ﬁ', 'ﬂ', 'Ł', 'Œ', 'Š',
	'Ÿ', 'Ž', 'ı', 'ł', 'œ', 'š', 'ž', '�',
}

var utf16BOM = []byte{0xFE, 0xFF}

// DecodeText converts a PDF text string to UTF-8. Strings starting with a
// UTF-16BE byte order mark are decoded as UTF-16, everything else as
// PDFDocEncoding.
func DecodeText(b []byte) string {
	if bytes.HasPrefix(b, utf16BOM) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		if s, err := dec.Bytes(b); err == nil {
			return string(s)
		}
	}
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return string(b[3:])
	}
	var sb strings.Builder
	for _, c := range b {
		switch {
		case c >= 0x80 && c <= 0x9F:
			sb.WriteRune(pdfDocHigh[c-0x80])
		case c == 0xA0:
			sb.WriteRune('€')
		default:
			sb.WriteRune(rune(c))
		}
	}
	return sb.String()
}

// EncodeText converts s to a PDF text string. ASCII and Latin-1 text stays
// single byte; anything else is written as UTF-16BE with a byte order mark.
func EncodeText(s string) []byte {
	latin := true
	for _, r := range s {
		if r > 0xFF || (r >= 0x80 && r <= 0xA0) {
			latin = false
			break
		}
	}
	if latin {
		out := make([]byte, 0, len(s))
		for _, r := range s {
			out = append(out, byte(r))
		}
		return out
	}
	enc := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder()
	out, err := enc.Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}
