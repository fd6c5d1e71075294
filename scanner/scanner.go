package scanner

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/sfdeloach/pdf-tools/recovery"
)

type TokenType int

const (
	TokenDict        TokenType = iota // '<<'
	TokenArray                        // '['
	TokenName                         // '/Name'
	TokenString                       // literal or hex string
	TokenNumber                       // numeric value
	TokenBoolean                      // true/false
	TokenNull                         // null
	TokenRef                          // indirect ref '5 0 R'
	TokenStream                       // 'stream' keyword
	TokenInlineImage                  // inline image data following ID ... EI (content stream only)
	TokenKeyword                      // other keywords (obj, endobj, endstream, >>, ], etc.)
)

// Token is one lexical element. Which value field is meaningful depends on
// Type: Str for names and keywords, Bytes for strings, streams and inline
// image data, Int/Float/IsInt for numbers, Int/Gen for references.
type Token struct {
	Type  TokenType
	Str   string
	Bytes []byte
	Int   int64
	Float float64
	IsInt bool
	Bool  bool
	Gen   int
	Hex   bool
	Pos   int64
}

// Number returns the numeric value of a number token.
func (t Token) Number() float64 {
	if t.IsInt {
		return float64(t.Int)
	}
	return t.Float
}

type Scanner interface {
	Next() (Token, error)
	Position() int64
	Seek(offset int64) error
	SetNextStreamLength(n int64)
	SetRecoveryLocation(loc recovery.Location)
}

type Config struct {
	MaxStringLength int64
	MaxArrayDepth   int
	MaxDictDepth    int
	MaxStreamLength int64
	MaxStreamScan   int64
	MaxInlineImage  int64
	Recovery        recovery.Strategy
}

// pdfScanner tokenizes an in-memory PDF (or content stream) buffer.
type pdfScanner struct {
	data          []byte
	pos           int64
	cfg           Config
	nextStreamLen int64
	arrayDepth    int
	dictDepth     int
	recLoc        recovery.Location
	lastAction    recovery.Action
}

// New returns a scanner over data. The buffer is not copied; stream and
// string tokens are.
func New(data []byte, cfg Config) Scanner {
	return &pdfScanner{data: data, cfg: cfg, nextStreamLen: -1}
}

func (s *pdfScanner) Position() int64 { return s.pos }
func (s *pdfScanner) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(s.data)) {
		return errors.New("seek out of range")
	}
	s.pos = offset
	s.arrayDepth, s.dictDepth = 0, 0
	return nil
}
func (s *pdfScanner) SetNextStreamLength(n int64)               { s.nextStreamLen = n }
func (s *pdfScanner) SetRecoveryLocation(loc recovery.Location) { s.recLoc = loc }

func (s *pdfScanner) Next() (Token, error) {
	s.skipWSAndComments()
	if s.pos >= int64(len(s.data)) {
		return Token{}, io.EOF
	}
	start := s.pos
	c := s.data[s.pos]
	switch c {
	case '<':
		if s.peekAhead(1) == '<' {
			s.pos += 2
			return s.emit(Token{Type: TokenDict, Str: "<<", Pos: start})
		}
		return s.scanHexString()
	case '>':
		if s.peekAhead(1) == '>' {
			s.pos += 2
			return s.emit(Token{Type: TokenKeyword, Str: ">>", Pos: start})
		}
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: ">", Pos: start})
	case '[':
		s.pos++
		return s.emit(Token{Type: TokenArray, Str: "[", Pos: start})
	case ']':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: "]", Pos: start})
	case '{', '}':
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
	case '(':
		return s.scanLiteralString()
	case '/':
		return s.scanName()
	}
	if isDigitStart(c) {
		return s.scanNumberOrRef()
	}
	if !isDelimiter(c) {
		return s.scanKeyword()
	}
	s.pos++
	return s.emit(Token{Type: TokenKeyword, Str: string(c), Pos: start})
}

func (s *pdfScanner) skipWSAndComments() {
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for s.pos < int64(len(s.data)) && !isEOL(s.data[s.pos]) {
				s.pos++
			}
			continue
		}
		return
	}
}

func isDigitStart(c byte) bool { return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') }

func (s *pdfScanner) scanName() (Token, error) {
	start := s.pos
	s.pos++ // skip '/'
	var out bytes.Buffer
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if isDelimiter(c) {
			break
		}
		if c == '#' && s.pos+2 < int64(len(s.data)) && isHex(s.data[s.pos+1]) && isHex(s.data[s.pos+2]) {
			out.WriteByte(fromHex(s.data[s.pos+1])<<4 | fromHex(s.data[s.pos+2]))
			s.pos += 3
			continue
		}
		out.WriteByte(c)
		s.pos++
	}
	return s.emit(Token{Type: TokenName, Str: out.String(), Pos: start})
}

func (s *pdfScanner) scanLiteralString() (Token, error) { /* PDF 7.3.4.2 */
	start := s.pos
	s.pos++ // skip '('
	var buf bytes.Buffer
	depth := 1
	n := int64(len(s.data))
	for s.pos < n {
		c := s.data[s.pos]
		if c == '\\' {
			s.pos++
			if s.pos >= n {
				break
			}
			esc := s.data[s.pos]
			// backslash followed by EOL is a line continuation
			if esc == '\r' {
				s.pos++
				if s.pos < n && s.data[s.pos] == '\n' {
					s.pos++
				}
				continue
			}
			if esc == '\n' {
				s.pos++
				continue
			}
			if esc >= '0' && esc <= '7' {
				val := int(esc - '0')
				s.pos++
				for k := 0; k < 2 && s.pos < n; k++ {
					d := s.data[s.pos]
					if d < '0' || d > '7' {
						break
					}
					val = (val << 3) + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
				continue
			}
			buf.WriteByte(translateEscape(esc))
			s.pos++
			continue
		}
		if c == '(' {
			depth++
		} else if c == ')' {
			depth--
			if depth == 0 {
				s.pos++
				break
			}
		}
		buf.WriteByte(c)
		s.pos++
		if s.cfg.MaxStringLength > 0 && int64(buf.Len()) > s.cfg.MaxStringLength {
			return Token{}, s.recover(errors.New("literal string too long"), "literal")
		}
	}
	if depth != 0 {
		if err := s.recover(errors.New("unterminated literal string"), "literal"); err != nil {
			return Token{}, err
		}
	}
	return s.emit(Token{Type: TokenString, Bytes: buf.Bytes(), Pos: start})
}

func (s *pdfScanner) scanHexString() (Token, error) {
	start := s.pos
	s.pos++ // skip '<'
	var hexbuf []byte
	closed := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			closed = true
			break
		}
		if isWhitespace(c) {
			continue
		}
		if !isHex(c) {
			if err := s.recover(errors.New("invalid hex digit"), "hex"); err != nil {
				return Token{}, err
			}
			continue
		}
		hexbuf = append(hexbuf, c)
	}
	if !closed {
		if err := s.recover(errors.New("unterminated hex string"), "hex"); err != nil {
			return Token{}, err
		}
	}
	// odd number of nibbles: the last one is followed by an implicit 0
	if len(hexbuf)%2 == 1 {
		hexbuf = append(hexbuf, '0')
	}
	if s.cfg.MaxStringLength > 0 && int64(len(hexbuf)/2) > s.cfg.MaxStringLength {
		return Token{}, s.recover(errors.New("hex string too long"), "hex")
	}
	out := make([]byte, 0, len(hexbuf)/2)
	for i := 0; i < len(hexbuf); i += 2 {
		out = append(out, fromHex(hexbuf[i])<<4|fromHex(hexbuf[i+1]))
	}
	return s.emit(Token{Type: TokenString, Bytes: out, Hex: true, Pos: start})
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

var endstreamMarker = []byte("endstream")

// scanStream consumes the stream payload after the 'stream' keyword. A length
// hint set through SetNextStreamLength is trusted when 'endstream' follows it;
// otherwise the data is searched for the marker.
func (s *pdfScanner) scanStream(start int64) (Token, error) {
	n := int64(len(s.data))
	// PDF 7.3.8: stream keyword must be followed by EOL before data
	if s.pos < n && s.data[s.pos] == '\r' {
		s.pos++
		if s.pos < n && s.data[s.pos] == '\n' {
			s.pos++
		}
	} else if s.pos < n && s.data[s.pos] == '\n' {
		s.pos++
	} else if err := s.recover(errors.New("stream missing EOL before data"), "stream"); err != nil {
		return Token{}, err
	}
	dataStart := s.pos
	hint := s.nextStreamLen
	s.nextStreamLen = -1
	if hint >= 0 {
		if s.cfg.MaxStreamLength > 0 && hint > s.cfg.MaxStreamLength {
			return Token{}, s.recover(errors.New("stream too long"), "stream")
		}
		end := dataStart + hint
		if end <= n {
			p := end
			for p < n && isWhitespace(s.data[p]) {
				p++
			}
			if bytes.HasPrefix(s.data[p:], endstreamMarker) {
				payload := append([]byte(nil), s.data[dataStart:end]...)
				s.pos = p + int64(len(endstreamMarker))
				return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
			}
		}
		if err := s.recover(errors.New("stream length does not match endstream position"), "stream"); err != nil {
			return Token{}, err
		}
	}
	idx := s.findEndstream(dataStart)
	if idx < 0 {
		if err := s.recover(errors.New("endstream not found"), "stream"); err != nil {
			return Token{}, err
		}
		payload := append([]byte(nil), s.data[dataStart:]...)
		s.pos = n
		return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
	}
	// the EOL before the marker is not part of the data
	end := idx
	if end > dataStart && s.data[end-1] == '\n' {
		end--
	}
	if end > dataStart && s.data[end-1] == '\r' {
		end--
	}
	payload := append([]byte(nil), s.data[dataStart:end]...)
	if s.cfg.MaxStreamLength > 0 && int64(len(payload)) > s.cfg.MaxStreamLength {
		return Token{}, s.recover(errors.New("stream too long"), "stream")
	}
	s.pos = idx + int64(len(endstreamMarker))
	return s.emit(Token{Type: TokenStream, Bytes: payload, Pos: start})
}

func (s *pdfScanner) findEndstream(from int64) int64 {
	limit := int64(len(s.data))
	if s.cfg.MaxStreamScan > 0 && from+s.cfg.MaxStreamScan < limit {
		limit = from + s.cfg.MaxStreamScan
	}
	for i := from; i < limit; {
		rel := bytes.Index(s.data[i:limit], endstreamMarker)
		if rel < 0 {
			return -1
		}
		at := i + int64(rel)
		after := at + int64(len(endstreamMarker))
		if hasStreamBreakBefore(s.data, at, from) && (after >= int64(len(s.data)) || isDelimiter(s.data[after])) {
			return at
		}
		i = at + 1
	}
	return -1
}

// scanInlineImage consumes bytes after the ID keyword up to the EI operator
// that is preceded by whitespace and followed by a delimiter.
func (s *pdfScanner) scanInlineImage(start int64) (Token, error) {
	n := int64(len(s.data))
	if s.pos >= n || !isWhitespace(s.data[s.pos]) {
		return Token{}, s.recover(errors.New("inline image missing required whitespace after ID"), "inline_image")
	}
	s.pos++
	dataStart := s.pos
	for s.pos+1 < n {
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' {
			prevOK := s.pos > dataStart && isWhitespace(s.data[s.pos-1])
			nextOK := s.pos+2 >= n || isDelimiter(s.data[s.pos+2])
			if prevOK && nextOK {
				end := s.pos - 1
				payload := append([]byte(nil), s.data[dataStart:end]...)
				if s.cfg.MaxInlineImage > 0 && int64(len(payload)) > s.cfg.MaxInlineImage {
					return Token{}, s.recover(errors.New("inline image too long"), "inline_image")
				}
				s.pos += 2
				return s.emit(Token{Type: TokenInlineImage, Bytes: payload, Pos: start})
			}
		}
		s.pos++
	}
	return Token{}, s.recover(errors.New("unterminated inline image"), "inline_image")
}

func isWhitespace(c byte) bool {
	return c == 0x00 || c == 0x09 || c == 0x0A || c == 0x0C || c == 0x0D || c == 0x20
}
func isEOL(c byte) bool { return c == '\r' || c == '\n' }
func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	default:
		return isWhitespace(c)
	}
}

func translateEscape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	default:
		return c
	}
}

func (s *pdfScanner) peekAhead(n int64) byte {
	if s.pos+n >= int64(len(s.data)) {
		return 0
	}
	return s.data[s.pos+n]
}

func (s *pdfScanner) scanKeyword() (Token, error) {
	start := s.pos
	for s.pos < int64(len(s.data)) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	kw := string(s.data[start:s.pos])
	switch kw {
	case "true", "false":
		return Token{Type: TokenBoolean, Bool: kw == "true", Str: kw, Pos: start}, nil
	case "null":
		return Token{Type: TokenNull, Str: kw, Pos: start}, nil
	case "stream":
		return s.scanStream(start)
	case "ID": // inline image data; the caller has read the image dict already
		return s.scanInlineImage(start)
	default:
		return Token{Type: TokenKeyword, Str: kw, Pos: start}, nil
	}
}

// scanNumberOrRef reads a number and, when it is followed by a second
// unsigned integer and the R keyword, folds the three into a reference.
func (s *pdfScanner) scanNumberOrRef() (Token, error) {
	start := s.pos
	num1 := s.scanNumberString()
	if num1 == "" {
		s.pos++
		return s.emit(Token{Type: TokenKeyword, Str: string(s.data[start]), Pos: start})
	}
	afterFirst := s.pos
	if isUnsignedInt(num1) {
		s.skipWSAndComments()
		num2 := s.scanNumberString()
		if num2 != "" && isUnsignedInt(num2) {
			s.skipWSAndComments()
			if s.pos < int64(len(s.data)) && s.data[s.pos] == 'R' &&
				(s.pos+1 >= int64(len(s.data)) || isDelimiter(s.data[s.pos+1])) {
				s.pos++
				n1, _ := strconv.ParseInt(num1, 10, 64)
				n2, _ := strconv.Atoi(num2)
				return Token{Type: TokenRef, Int: n1, Gen: n2, IsInt: true, Pos: start}, nil
			}
		}
		s.pos = afterFirst
	}
	if i, err := strconv.ParseInt(num1, 10, 64); err == nil {
		return s.emit(Token{Type: TokenNumber, Int: i, IsInt: true, Pos: start})
	}
	f, err := strconv.ParseFloat(num1, 64)
	if err != nil {
		// malformed numbers such as "--5" or "1.2.3" read as zero, as most readers do
		if recErr := s.recover(err, "number"); recErr != nil {
			return Token{}, recErr
		}
		f = 0
	}
	return s.emit(Token{Type: TokenNumber, Float: f, Pos: start})
}

func isUnsignedInt(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func (s *pdfScanner) scanNumberString() string {
	start := s.pos
	seenDigit := false
	for s.pos < int64(len(s.data)) {
		c := s.data[s.pos]
		if c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9') {
			if c >= '0' && c <= '9' {
				seenDigit = true
			}
			s.pos++
			continue
		}
		break
	}
	if !seenDigit {
		s.pos = start
		return ""
	}
	return string(s.data[start:s.pos])
}

// Recover reports err to the configured recovery strategy and returns nil
// when parsing may continue.
func (s *pdfScanner) Recover(err error, component string) error { return s.recover(err, component) }

func (s *pdfScanner) recover(err error, loc string) error {
	if s.cfg.Recovery == nil {
		return err
	}
	location := s.recLoc
	location.ByteOffset = s.pos
	if location.Component != "" {
		location.Component += "->"
	}
	location.Component += "scanner:" + loc
	s.lastAction = s.cfg.Recovery.OnError(nil, err, location)
	switch s.lastAction {
	case recovery.ActionSkip, recovery.ActionFix, recovery.ActionWarn:
		return nil
	default:
		return err
	}
}

func (s *pdfScanner) emit(tok Token) (Token, error) {
	switch tok.Type {
	case TokenArray:
		s.arrayDepth++
		if s.cfg.MaxArrayDepth > 0 && s.arrayDepth > s.cfg.MaxArrayDepth {
			return Token{}, errors.New("array depth exceeded")
		}
	case TokenDict:
		s.dictDepth++
		if s.cfg.MaxDictDepth > 0 && s.dictDepth > s.cfg.MaxDictDepth {
			return Token{}, errors.New("dict depth exceeded")
		}
	case TokenKeyword:
		if tok.Str == "]" && s.arrayDepth > 0 {
			s.arrayDepth--
		}
		if tok.Str == ">>" && s.dictDepth > 0 {
			s.dictDepth--
		}
	}
	return tok, nil
}

// hasStreamBreakBefore reports whether position i is preceded by a line
// break or whitespace, making it a safe candidate for an endstream marker.
func hasStreamBreakBefore(data []byte, i, dataStart int64) bool {
	if i == dataStart {
		return true
	}
	return isWhitespace(data[i-1])
}
