package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/recovery"
	"github.com/sfdeloach/pdf-tools/scanner"
)

// EntryKind distinguishes the three kinds of cross-reference entries.
type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	// EntryCompressed objects live inside an object stream.
	EntryCompressed
)

// Entry locates one object. For compressed entries Stream is the object
// number of the containing object stream and Index the position inside it.
type Entry struct {
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Table holds the merged cross-reference information of a file, newest
// revision first.
type Table interface {
	Lookup(objNum int) (offset int64, gen int, found bool)
	Entry(objNum int) (Entry, bool)
	Objects() []int
	Trailer() *raw.DictObj
	Type() string
}

// Resolver locates and parses xref information in a PDF.
type Resolver interface {
	Resolve(ctx context.Context, data []byte) (Table, error)
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
}

// NewResolver returns a resolver that understands classic tables, xref
// streams and hybrid files, following /Prev chains.
func NewResolver(cfg ResolverConfig) Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 64
	}
	return &tableResolver{cfg: cfg}
}

type tableResolver struct {
	cfg ResolverConfig
}

// Repair rebuilds a table by scanning the whole file.
func Repair(ctx context.Context, data []byte) (Table, error) {
	return repair(ctx, data)
}

func (t *tableResolver) Resolve(ctx context.Context, data []byte) (Table, error) {
	offset, err := findStartXRef(data)
	if err != nil {
		return nil, err
	}
	tbl := &table{entries: make(map[int]Entry), kind: "table"}
	seen := make(map[int64]bool)
	for depth := 0; offset > 0 || depth == 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if depth >= t.cfg.MaxXRefDepth {
			return nil, errors.New("xref chain too long")
		}
		if seen[offset] {
			break
		}
		seen[offset] = true
		if offset < 0 || offset >= int64(len(data)) {
			return nil, fmt.Errorf("xref offset out of range: %d", offset)
		}
		trailer, err := t.readSection(data, offset, tbl)
		if err != nil {
			return nil, err
		}
		if tbl.trailer == nil {
			tbl.trailer = trailer
		}
		// hybrid files: the classic trailer points at an xref stream too
		if stm, ok := trailer.Lookup("XRefStm").(raw.NumberObj); ok && !seen[stm.Int()] {
			seen[stm.Int()] = true
			if _, err := t.readSection(data, stm.Int(), tbl); err != nil {
				return nil, fmt.Errorf("xref stream of hybrid file: %w", err)
			}
		}
		prev, ok := trailer.Lookup("Prev").(raw.NumberObj)
		if !ok {
			break
		}
		offset = prev.Int()
	}
	if tbl.trailer == nil {
		return nil, errors.New("trailer not found")
	}
	return tbl, nil
}

func findStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, errors.New("startxref not found")
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	val, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse startxref: %w", err)
	}
	return val, nil
}

// readSection parses the classic table or xref stream at offset, adding
// entries not already defined by a newer revision, and returns its trailer.
func (t *tableResolver) readSection(data []byte, offset int64, tbl *table) (*raw.DictObj, error) {
	s := scanner.New(data, scanner.Config{Recovery: t.cfg.Recovery})
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	r := scanner.NewObjectReader(s)
	tok, err := r.Next()
	if err != nil {
		return nil, fmt.Errorf("read xref at %d: %w", offset, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		return readClassic(r, tbl)
	}
	if tok.Type == scanner.TokenNumber {
		r.Unread(tok)
		return readStream(r, tbl)
	}
	return nil, fmt.Errorf("no xref section at offset %d", offset)
}

func readClassic(r *scanner.ObjectReader, tbl *table) (*raw.DictObj, error) {
	for {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("xref table: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			obj, err := r.ReadObject()
			if err != nil {
				return nil, fmt.Errorf("trailer: %w", err)
			}
			dict, ok := obj.(*raw.DictObj)
			if !ok {
				return nil, errors.New("trailer is not a dictionary")
			}
			return dict, nil
		}
		countTok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("xref subsection: %w", err)
		}
		if tok.Type != scanner.TokenNumber || countTok.Type != scanner.TokenNumber {
			return nil, fmt.Errorf("invalid xref subsection header at offset %d", tok.Pos)
		}
		start, count := int(tok.Int), int(countTok.Int)
		if count < 0 || count > 10_000_000 {
			return nil, fmt.Errorf("invalid xref subsection count %d", count)
		}
		for i := 0; i < count; i++ {
			offTok, err1 := r.Next()
			genTok, err2 := r.Next()
			kindTok, err3 := r.Next()
			if err := errors.Join(err1, err2, err3); err != nil {
				return nil, fmt.Errorf("unexpected end of xref section: %w", err)
			}
			if offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return nil, fmt.Errorf("invalid xref entry at offset %d", offTok.Pos)
			}
			num := start + i
			// object 0 is always the head of the free list, whatever the
			// subsection header claims
			if num == 0 {
				continue
			}
			e := Entry{Kind: EntryFree, Offset: offTok.Int, Gen: int(genTok.Int)}
			if kindTok.Str == "n" {
				e.Kind = EntryInUse
			}
			tbl.add(num, e)
		}
	}
}

func readStream(r *scanner.ObjectReader, tbl *table) (*raw.DictObj, error) {
	for _, want := range []scanner.TokenType{scanner.TokenNumber, scanner.TokenNumber} {
		tok, err := r.Next()
		if err != nil || tok.Type != want {
			return nil, errors.New("xref stream: malformed object header")
		}
	}
	if tok, err := r.Next(); err != nil || tok.Str != "obj" {
		return nil, errors.New("xref stream: missing obj keyword")
	}
	obj, err := r.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("xref stream dictionary: %w", err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("xref stream: not a dictionary")
	}
	if n, ok := dict.Lookup("Length").(raw.NumberObj); ok {
		r.Scanner().SetNextStreamLength(n.Int())
	}
	tok, err := r.Next()
	if err != nil || tok.Type != scanner.TokenStream {
		return nil, errors.New("xref stream: missing stream data")
	}
	data, err := filters.DecodeStream(context.Background(), raw.NewStream(dict, tok.Bytes), nil)
	if err != nil {
		return nil, fmt.Errorf("xref stream: %w", err)
	}
	return dict, parseStreamEntries(dict, data, tbl)
}

func parseStreamEntries(dict *raw.DictObj, data []byte, tbl *table) error {
	wArr, ok := dict.Lookup("W").(*raw.ArrayObj)
	if !ok || wArr.Len() < 3 {
		return errors.New("xref stream: invalid /W")
	}
	var w [3]int
	for i := 0; i < 3; i++ {
		n, ok := wArr.Items[i].(raw.NumberObj)
		if !ok || n.Int() < 0 || n.Int() > 8 {
			return errors.New("xref stream: invalid /W entry")
		}
		w[i] = int(n.Int())
	}
	size := 0
	if n, ok := dict.Lookup("Size").(raw.NumberObj); ok {
		size = int(n.Int())
	}
	index := []int{0, size}
	if idx, ok := dict.Lookup("Index").(*raw.ArrayObj); ok {
		index = index[:0]
		for _, it := range idx.Items {
			if n, ok := it.(raw.NumberObj); ok {
				index = append(index, int(n.Int()))
			}
		}
	}
	rowLen := w[0] + w[1] + w[2]
	if rowLen == 0 {
		return errors.New("xref stream: empty rows")
	}
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		start, count := index[i], index[i+1]
		for j := 0; j < count; j++ {
			if pos+rowLen > len(data) {
				return nil
			}
			row := data[pos : pos+rowLen]
			pos += rowLen
			typ := int64(1)
			if w[0] > 0 {
				typ = be(row[:w[0]])
			}
			f2 := be(row[w[0] : w[0]+w[1]])
			f3 := be(row[w[0]+w[1]:])
			num := start + j
			if num == 0 {
				continue
			}
			switch typ {
			case 0:
				tbl.add(num, Entry{Kind: EntryFree, Gen: int(f3)})
			case 1:
				tbl.add(num, Entry{Kind: EntryInUse, Offset: f2, Gen: int(f3)})
			case 2:
				tbl.add(num, Entry{Kind: EntryCompressed, Stream: int(f2), Index: int(f3)})
			}
		}
	}
	return nil
}

func be(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

type table struct {
	entries map[int]Entry
	trailer *raw.DictObj
	kind    string
}

// add keeps the first definition seen, which is the newest revision.
func (t *table) add(num int, e Entry) {
	if _, ok := t.entries[num]; ok {
		return
	}
	t.entries[num] = e
}

func (t *table) Lookup(objNum int) (int64, int, bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind != EntryInUse {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

func (t *table) Entry(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects lists every object number that is in use.
func (t *table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *table) Trailer() *raw.DictObj { return t.trailer }

func (t *table) Type() string { return t.kind }
