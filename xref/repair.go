package xref

import (
	"context"
	"errors"
	"io"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/scanner"
)

// repair scans the entire file to reconstruct the xref table.
// It looks for "<num> <gen> obj" patterns and "trailer" dictionaries. Later
// definitions win, matching the effect of incremental updates.
func repair(ctx context.Context, data []byte) (Table, error) {
	s := scanner.New(data, scanner.Config{})
	r := scanner.NewObjectReader(s)
	entries := make(map[int]Entry)
	var lastTrailer *raw.DictObj

	var window [2]scanner.Token
	filled := 0
	for i := 0; ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		before := s.Position()
		tok, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// skip the offending byte and keep scanning
			if s.Position() == before {
				if s.Seek(before+1) != nil {
					break
				}
			}
			filled = 0
			continue
		}
		switch {
		case tok.Type == scanner.TokenKeyword && tok.Str == "obj":
			if filled == 2 && window[0].Type == scanner.TokenNumber && window[1].Type == scanner.TokenNumber &&
				window[0].IsInt && window[1].IsInt && window[0].Int > 0 {
				entries[int(window[0].Int)] = Entry{Kind: EntryInUse, Offset: window[0].Pos, Gen: int(window[1].Int)}
			}
			filled = 0
			continue
		case tok.Type == scanner.TokenKeyword && tok.Str == "trailer":
			obj, err := r.ReadObject()
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					lastTrailer = mergeTrailer(lastTrailer, dict)
				}
			}
			filled = 0
			continue
		case tok.Type == scanner.TokenDict:
			// xref stream dictionaries carry the trailer keys in files
			// without a classic trailer
			r.Unread(tok)
			obj, err := r.ReadObject()
			if err == nil {
				if dict, ok := obj.(*raw.DictObj); ok {
					if typ, _ := dict.Lookup("Type").(raw.NameObj); typ.Val == "XRef" {
						lastTrailer = mergeTrailer(lastTrailer, dict)
					}
				}
			}
			filled = 0
			continue
		}
		if filled < 2 {
			window[filled] = tok
			filled++
		} else {
			window[0], window[1] = window[1], tok
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("repair failed: no objects found")
	}

	if lastTrailer == nil {
		lastTrailer = raw.Dict()
	}
	maxNum := 0
	for n := range entries {
		maxNum = max(maxNum, n)
	}
	lastTrailer.Put("Size", raw.NumberInt(int64(maxNum+1)))

	return &table{entries: entries, trailer: lastTrailer, kind: "repaired"}, nil
}

// mergeTrailer keeps the newest value of every trailer key.
func mergeTrailer(old, newer *raw.DictObj) *raw.DictObj {
	if old == nil {
		return raw.CloneDict(newer)
	}
	for k, v := range newer.KV {
		switch k {
		case "Root", "Info", "ID", "Encrypt", "Size":
			old.Put(k, v)
		}
	}
	return old
}
