// Package parser turns the bytes of a PDF file into a raw.Document: it
// resolves cross-reference data, authenticates against the standard
// security handler, and loads every indirect object.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/recovery"
	"github.com/sfdeloach/pdf-tools/security"
	"github.com/sfdeloach/pdf-tools/xref"
)

// ErrNotPDF is returned when the input has no %PDF- header.
var ErrNotPDF = errors.New("not a PDF file")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	// Recovery decides whether malformed input aborts the parse. Nil
	// means a lenient strategy that records and skips problems.
	Recovery recovery.Strategy
	XRef     xref.ResolverConfig
	Limits   security.Limits
	Password string
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewLenientStrategy()
	}
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.XRef.MaxXRefDepth == 0 {
		cfg.XRef.MaxXRefDepth = cfg.Limits.MaxXRefDepth
	}
	if cfg.XRef.Recovery == nil {
		cfg.XRef.Recovery = cfg.Recovery
	}
	cfg.Logger = observability.OrNop(cfg.Logger)
	return &DocumentParser{cfg: cfg}
}

// SetPassword updates the password for decryption when parsing encrypted PDFs.
func (p *DocumentParser) SetPassword(pwd string) {
	p.cfg.Password = pwd
}

// Parse reads the whole of r and parses it.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	data, err := readAll(r)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(ctx, data)
}

func readAll(r io.ReaderAt) ([]byte, error) {
	if sized, ok := r.(interface{ Size() int64 }); ok {
		buf := make([]byte, sized.Size())
		n, err := r.ReadAt(buf, 0)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return buf[:n], nil
	}
	return io.ReadAll(io.NewSectionReader(r, 0, math.MaxInt64))
}

// ParseBytes parses an in-memory file. The returned document does not
// retain data, so the caller may release or unmap it afterwards.
func (p *DocumentParser) ParseBytes(ctx context.Context, data []byte) (*raw.Document, error) {
	start := time.Now()
	if p.cfg.Limits.MaxParseTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Limits.MaxParseTime)
		defer cancel()
	}
	version, err := headerVersion(data)
	if err != nil {
		return nil, err
	}

	repaired := false
	table, err := xref.NewResolver(p.cfg.XRef).Resolve(ctx, data)
	if err != nil {
		if !p.tolerate(ctx, fmt.Errorf("xref: %w", err), recovery.Location{Component: "xref"}) {
			return nil, fmt.Errorf("resolve xref: %w", err)
		}
		if table, err = xref.Repair(ctx, data); err != nil {
			return nil, fmt.Errorf("repair xref: %w", err)
		}
		repaired = true
	}

	doc, err := p.load(ctx, data, table, repaired)
	if err == nil && !repaired && !hasCatalog(doc) {
		err = errors.New("document catalog could not be loaded")
	}
	if err != nil && !repaired && !errors.Is(err, security.ErrAuthentication) && ctx.Err() == nil {
		if !p.tolerate(ctx, err, recovery.Location{Component: "loader"}) {
			return nil, err
		}
		table, rerr := xref.Repair(ctx, data)
		if rerr != nil {
			return nil, fmt.Errorf("repair xref: %w", rerr)
		}
		doc, err = p.load(ctx, data, table, true)
	}
	if err != nil {
		return nil, err
	}
	if !hasCatalog(doc) {
		return nil, errors.New("document catalog not found")
	}
	doc.Version = maxVersion(version, catalogVersion(doc))

	p.cfg.Logger.Debug("parsed document",
		observability.Int(observability.MetricObjectCount, len(doc.Objects)),
		observability.Int("warnings", len(doc.Warnings)),
		observability.Bool("encrypted", doc.Encrypted),
		observability.Duration(observability.MetricParseTime, time.Since(start)),
	)
	return doc, nil
}

func (p *DocumentParser) tolerate(ctx context.Context, err error, loc recovery.Location) bool {
	return p.cfg.Recovery.OnError(ctx, err, loc) != recovery.ActionFail
}

func (p *DocumentParser) load(ctx context.Context, data []byte, table xref.Table, repaired bool) (*raw.Document, error) {
	loader := newObjectLoader(data, table, p.cfg)
	trailer := raw.CloneDict(table.Trailer())
	if trailer == nil {
		trailer = raw.Dict()
	}
	sec, encNum, err := p.selectSecurity(ctx, loader, trailer)
	if err != nil {
		return nil, err
	}
	loader.security = sec
	loader.encryptNum = encNum

	doc := &raw.Document{
		Objects:     make(map[raw.ObjectRef]raw.Object),
		Trailer:     trailer,
		Permissions: sec.Permissions(),
		Encrypted:   sec.IsEncrypted(),
	}
	for _, num := range table.Objects() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, ok := table.Entry(num)
		if !ok || e.Kind == xref.EntryFree || num == 0 {
			continue
		}
		obj, err := loader.Load(ctx, num)
		if err != nil {
			loc := recovery.Location{ByteOffset: e.Offset, ObjectNum: num, ObjectGen: e.Gen, Component: "loader"}
			if !p.tolerate(ctx, err, loc) {
				return nil, err
			}
			doc.Warnings = append(doc.Warnings, err)
			continue
		}
		gen := e.Gen
		if e.Kind == xref.EntryCompressed {
			gen = 0
		}
		doc.Objects[raw.ObjectRef{Num: num, Gen: gen}] = obj
	}
	if repaired {
		p.expandObjectStreams(ctx, loader, doc)
		if _, ok := trailer.Lookup("Root").(raw.RefObj); !ok {
			if ref, ok := findCatalog(doc); ok {
				trailer.Put("Root", raw.RefObj{R: ref})
			}
		}
	}
	return doc, nil
}

// expandObjectStreams adds objects that a repaired table cannot locate
// because they live inside object streams.
func (p *DocumentParser) expandObjectStreams(ctx context.Context, loader *objectLoader, doc *raw.Document) {
	have := make(map[int]bool, len(doc.Objects))
	var streams []int
	for ref, obj := range doc.Objects {
		have[ref.Num] = true
		if st, ok := obj.(*raw.StreamObj); ok {
			if typ, _ := st.Dict.Lookup("Type").(raw.NameObj); typ.Val == "ObjStm" {
				streams = append(streams, ref.Num)
			}
		}
	}
	for _, num := range streams {
		objs, err := loader.objectStream(ctx, num)
		if err != nil {
			doc.Warnings = append(doc.Warnings, err)
			continue
		}
		for n, obj := range objs {
			if !have[n] {
				doc.Objects[raw.ObjectRef{Num: n}] = obj
				have[n] = true
			}
		}
	}
}

func (p *DocumentParser) selectSecurity(ctx context.Context, loader *objectLoader, trailer *raw.DictObj) (security.Handler, int, error) {
	var (
		encDict *raw.DictObj
		encNum  int
	)
	switch v := trailer.Lookup("Encrypt").(type) {
	case *raw.DictObj:
		encDict = v
	case raw.RefObj:
		obj, err := loader.Load(ctx, v.R.Num)
		if err != nil {
			return nil, 0, fmt.Errorf("load encryption dictionary: %w", err)
		}
		encDict, _ = obj.(*raw.DictObj)
		encNum = v.R.Num
	default:
		return security.NoopHandler(), 0, nil
	}
	if encDict == nil {
		return nil, 0, errors.New("encryption dictionary is not a dictionary")
	}
	handler, err := (&security.HandlerBuilder{}).WithEncryptDict(encDict).WithTrailer(trailer).Build()
	if err != nil {
		return nil, 0, err
	}
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		return nil, 0, err
	}
	// objects read so far were not decrypted
	for num := range loader.cache {
		if num != encNum {
			delete(loader.cache, num)
		}
	}
	return handler, encNum, nil
}

func recoveryLocation(num, gen int, offset int64) recovery.Location {
	return recovery.Location{ByteOffset: offset, ObjectNum: num, ObjectGen: gen, Component: "loader"}
}

func headerVersion(data []byte) (string, error) {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	i := bytes.Index(head, []byte("%PDF-"))
	if i < 0 {
		return "", ErrNotPDF
	}
	v := head[i+5:]
	end := 0
	for end < len(v) && (v[end] == '.' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return "1.4", nil
	}
	return string(v[:end]), nil
}

func hasCatalog(doc *raw.Document) bool {
	td, _ := doc.Trailer.(*raw.DictObj)
	ref, ok := td.Lookup("Root").(raw.RefObj)
	if !ok {
		return false
	}
	for r, obj := range doc.Objects {
		if r.Num == ref.R.Num {
			_, isDict := obj.(*raw.DictObj)
			return isDict
		}
	}
	return false
}

func findCatalog(doc *raw.Document) (raw.ObjectRef, bool) {
	var best raw.ObjectRef
	found := false
	for ref, obj := range doc.Objects {
		d, ok := obj.(*raw.DictObj)
		if !ok {
			continue
		}
		if typ, _ := d.Lookup("Type").(raw.NameObj); typ.Val != "Catalog" {
			continue
		}
		// prefer the newest definition
		if !found || ref.Num > best.Num {
			best, found = ref, true
		}
	}
	return best, found
}

func catalogVersion(doc *raw.Document) string {
	td, _ := doc.Trailer.(*raw.DictObj)
	ref, _ := td.Lookup("Root").(raw.RefObj)
	cat, _ := doc.Objects[ref.R].(*raw.DictObj)
	if v, ok := cat.Lookup("Version").(raw.NameObj); ok {
		return v.Val
	}
	return ""
}

func maxVersion(a, b string) string {
	if b == "" {
		return a
	}
	if strings.Compare(b, a) > 0 {
		return b
	}
	return a
}
