package fonts

import "golang.org/x/text/encoding/charmap"

// EncodeWinAnsi encodes s for a simple font with /WinAnsiEncoding. Runes
// the encoding cannot represent become '?'.
func EncodeWinAnsi(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// DecodeWinAnsi maps a character code to its Unicode value.
func DecodeWinAnsi(code byte) rune {
	return charmap.Windows1252.DecodeByte(code)
}
