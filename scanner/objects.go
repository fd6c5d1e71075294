package scanner

import (
	"errors"
	"fmt"
	"io"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// maxNesting bounds array/dictionary nesting while building objects.
const maxNesting = 256

// ObjectReader builds raw objects from a token stream. It supports pushing
// back tokens, which the indirect-object grammar needs for its lookahead.
type ObjectReader struct {
	s   Scanner
	buf []Token
}

// NewObjectReader wraps a scanner.
func NewObjectReader(s Scanner) *ObjectReader { return &ObjectReader{s: s} }

// Scanner returns the underlying scanner.
func (r *ObjectReader) Scanner() Scanner { return r.s }

// Next returns the next token, honouring pushed-back tokens.
func (r *ObjectReader) Next() (Token, error) {
	if n := len(r.buf); n > 0 {
		tok := r.buf[n-1]
		r.buf = r.buf[:n-1]
		return tok, nil
	}
	return r.s.Next()
}

// Unread pushes tok back so the next call to Next returns it.
func (r *ObjectReader) Unread(tok Token) { r.buf = append(r.buf, tok) }

// Seek repositions the underlying scanner and drops pushed-back tokens.
func (r *ObjectReader) Seek(offset int64) error {
	r.buf = r.buf[:0]
	return r.s.Seek(offset)
}

// ReadObject reads one complete object. Stream payloads are not handled
// here: a dictionary followed by the stream keyword is returned as the
// dictionary, and the caller reads the stream token next.
func (r *ObjectReader) ReadObject() (raw.Object, error) {
	tok, err := r.Next()
	if err != nil {
		return nil, err
	}
	return r.objectFrom(tok, 0)
}

// ObjectFromToken converts a token that has already been read.
func (r *ObjectReader) ObjectFromToken(tok Token) (raw.Object, error) {
	return r.objectFrom(tok, 0)
}

func (r *ObjectReader) objectFrom(tok Token, depth int) (raw.Object, error) {
	if depth > maxNesting {
		return nil, errors.New("object nesting too deep")
	}
	switch tok.Type {
	case TokenName:
		return raw.NameLiteral(tok.Str), nil
	case TokenNumber:
		if tok.IsInt {
			return raw.NumberInt(tok.Int), nil
		}
		return raw.NumberFloat(tok.Float), nil
	case TokenString:
		return raw.StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case TokenBoolean:
		return raw.Bool(tok.Bool), nil
	case TokenNull:
		return raw.NullObj{}, nil
	case TokenRef:
		return raw.Ref(int(tok.Int), tok.Gen), nil
	case TokenArray:
		arr := raw.NewArray()
		for {
			next, err := r.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, fmt.Errorf("unterminated array at offset %d", tok.Pos)
				}
				return nil, err
			}
			if next.Type == TokenKeyword && next.Str == "]" {
				return arr, nil
			}
			if next.Type == TokenKeyword && isObjectBoundary(next.Str) {
				r.Unread(next)
				err := fmt.Errorf("unterminated array at offset %d", tok.Pos)
				if r.tolerate(err, "array") {
					return arr, nil
				}
				return nil, err
			}
			item, err := r.objectFrom(next, depth+1)
			if err != nil {
				return nil, err
			}
			arr.Append(item)
		}
	case TokenDict:
		dict := raw.Dict()
		for {
			keyTok, err := r.Next()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil, fmt.Errorf("unterminated dictionary at offset %d", tok.Pos)
				}
				return nil, err
			}
			if keyTok.Type == TokenKeyword && keyTok.Str == ">>" {
				return dict, nil
			}
			if keyTok.Type != TokenName {
				if keyTok.Type == TokenKeyword && isObjectBoundary(keyTok.Str) {
					r.Unread(keyTok)
					err := fmt.Errorf("unterminated dictionary at offset %d", tok.Pos)
					if r.tolerate(err, "dict") {
						return dict, nil
					}
					return nil, err
				}
				// tolerate junk between entries
				continue
			}
			valTok, err := r.Next()
			if err != nil {
				return nil, fmt.Errorf("dictionary value for /%s: %w", keyTok.Str, err)
			}
			if valTok.Type == TokenKeyword && valTok.Str == ">>" {
				return dict, nil
			}
			val, err := r.objectFrom(valTok, depth+1)
			if err != nil {
				return nil, err
			}
			// a null value is equivalent to an absent entry
			if _, isNull := val.(raw.NullObj); isNull {
				continue
			}
			dict.Put(keyTok.Str, val)
		}
	case TokenKeyword:
		return nil, fmt.Errorf("unexpected keyword %q at offset %d", tok.Str, tok.Pos)
	default:
		return nil, fmt.Errorf("unexpected token at offset %d", tok.Pos)
	}
}

// tolerate asks the scanner's recovery strategy whether a structural
// error may be repaired in place.
func (r *ObjectReader) tolerate(err error, component string) bool {
	rec, ok := r.s.(interface{ Recover(error, string) error })
	return ok && rec.Recover(err, component) == nil
}

func isObjectBoundary(kw string) bool {
	switch kw {
	case "endobj", "obj", "endstream", "xref", "trailer", "startxref":
		return true
	}
	return false
}
