package raw

import (
	"fmt"
	"strconv"
)

// AppendObject appends the PDF syntax of obj to buf. Dictionary keys are
// written in sorted order so that output is deterministic. Stream payloads
// are written verbatim; the caller is responsible for /Length.
func AppendObject(buf []byte, obj Object) []byte {
	switch v := obj.(type) {
	case nil:
		return append(buf, "null"...)
	case NameObj:
		return appendName(buf, v.Val)
	case NumberObj:
		if v.IsInt {
			return strconv.AppendInt(buf, v.I, 10)
		}
		return AppendNumber(buf, v.F)
	case BoolObj:
		return strconv.AppendBool(buf, v.V)
	case NullObj:
		return append(buf, "null"...)
	case StringObj:
		if v.Hex {
			return appendHexString(buf, v.Bytes)
		}
		return appendLiteralString(buf, v.Bytes)
	case RefObj:
		return fmt.Appendf(buf, "%d %d R", v.R.Num, v.R.Gen)
	case *ArrayObj:
		buf = append(buf, '[')
		for i, it := range v.Items {
			if i > 0 {
				buf = append(buf, ' ')
			}
			buf = AppendObject(buf, it)
		}
		return append(buf, ']')
	case *DictObj:
		buf = append(buf, "<<"...)
		for _, k := range v.Keys() {
			buf = appendName(buf, k.Value())
			buf = append(buf, ' ')
			buf = AppendObject(buf, v.Lookup(k.Value()))
		}
		return append(buf, ">>"...)
	case *StreamObj:
		buf = AppendObject(buf, v.Dict)
		buf = append(buf, "\nstream\n"...)
		buf = append(buf, v.Data...)
		return append(buf, "\nendstream"...)
	default:
		return append(buf, "null"...)
	}
}

// AppendNumber formats a real number without exponent and with at most
// five fractional digits.
func AppendNumber(buf []byte, f float64) []byte {
	if f == float64(int64(f)) {
		return strconv.AppendInt(buf, int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', 5, 64)
	for s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	if s == "-0" {
		s = "0"
	}
	return append(buf, s...)
}

func appendName(buf []byte, name string) []byte {
	buf = append(buf, '/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || c == '#' || isDelimiter(c) {
			buf = fmt.Appendf(buf, "#%02X", c)
			continue
		}
		buf = append(buf, c)
	}
	return buf
}

func appendLiteralString(buf []byte, s []byte) []byte {
	buf = append(buf, '(')
	for _, c := range s {
		switch c {
		case '(', ')', '\\':
			buf = append(buf, '\\', c)
		case '\r':
			buf = append(buf, '\\', 'r')
		case '\n':
			buf = append(buf, '\\', 'n')
		default:
			buf = append(buf, c)
		}
	}
	return append(buf, ')')
}

func appendHexString(buf []byte, s []byte) []byte {
	const digits = "0123456789ABCDEF"
	buf = append(buf, '<')
	for _, c := range s {
		buf = append(buf, digits[c>>4], digits[c&0x0F])
	}
	return append(buf, '>')
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
