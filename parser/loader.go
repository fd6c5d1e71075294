package parser

import (
	"context"
	"errors"
	"fmt"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/scanner"
	"github.com/sfdeloach/pdf-tools/security"
	"github.com/sfdeloach/pdf-tools/xref"
)

// errNotFound reports an object that is neither at its xref offset nor in
// an object stream.
var errNotFound = errors.New("object not found")

// objectLoader reads indirect objects from an in-memory file. Loaded
// objects are cached by object number; strings and streams are decrypted
// with the document's security handler as they are read.
type objectLoader struct {
	data     []byte
	table    xref.Table
	security security.Handler
	limits   security.Limits
	scanCfg  scanner.Config

	// encryptNum is the object number of the Encrypt dictionary, whose
	// strings are never encrypted.
	encryptNum int

	cache    map[int]raw.Object
	objstm   map[int]map[int]raw.Object
	inflight map[int]bool
}

func newObjectLoader(data []byte, table xref.Table, cfg Config) *objectLoader {
	return &objectLoader{
		data:     data,
		table:    table,
		security: security.NoopHandler(),
		limits:   cfg.Limits,
		scanCfg: scanner.Config{
			Recovery:        cfg.Recovery,
			MaxStringLength: cfg.Limits.MaxStringLength,
			MaxStreamLength: cfg.Limits.MaxStreamLength,
		},
		cache:    make(map[int]raw.Object),
		objstm:   make(map[int]map[int]raw.Object),
		inflight: make(map[int]bool),
	}
}

// Load returns object num, reading it from the file on first use.
func (o *objectLoader) Load(ctx context.Context, num int) (raw.Object, error) {
	if obj, ok := o.cache[num]; ok {
		return obj, nil
	}
	if o.inflight[num] {
		return nil, fmt.Errorf("object %d refers to itself while loading", num)
	}
	o.inflight[num] = true
	defer delete(o.inflight, num)

	e, ok := o.table.Entry(num)
	if !ok || e.Kind == xref.EntryFree {
		return nil, fmt.Errorf("%w: %d", errNotFound, num)
	}
	var (
		obj raw.Object
		err error
	)
	switch e.Kind {
	case xref.EntryCompressed:
		obj, err = o.loadCompressed(ctx, num, e.Stream)
	default:
		obj, err = o.loadAt(ctx, num, e.Gen, e.Offset)
	}
	if err != nil {
		return nil, err
	}
	o.cache[num] = obj
	return obj, nil
}

// loadAt parses "num gen obj ... endobj" at offset.
func (o *objectLoader) loadAt(ctx context.Context, num, gen int, offset int64) (raw.Object, error) {
	if offset < 0 || offset >= int64(len(o.data)) {
		return nil, fmt.Errorf("object %d: offset %d outside file", num, offset)
	}
	s := scanner.New(o.data, o.scanCfg)
	r := scanner.NewObjectReader(s)
	if err := r.Seek(offset); err != nil {
		return nil, err
	}
	for i, want := range []int64{int64(num), int64(gen)} {
		tok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("object %d header: %w", num, err)
		}
		if tok.Type != scanner.TokenNumber || !tok.IsInt || (i == 0 && tok.Int != want) {
			return nil, fmt.Errorf("object %d: no object header at offset %d", num, offset)
		}
	}
	if tok, err := r.Next(); err != nil || tok.Type != scanner.TokenKeyword || tok.Str != "obj" {
		return nil, fmt.Errorf("object %d: missing obj keyword", num)
	}
	s.SetRecoveryLocation(recoveryLocation(num, gen, offset))

	obj, err := r.ReadObject()
	if err != nil {
		return nil, fmt.Errorf("object %d: %w", num, err)
	}
	if dict, ok := obj.(*raw.DictObj); ok {
		s.SetNextStreamLength(o.streamLength(ctx, dict))
		tok, err := r.Next()
		if err == nil && tok.Type == scanner.TokenStream {
			obj = raw.NewStream(dict, tok.Bytes)
		}
	}
	return o.decrypt(raw.ObjectRef{Num: num, Gen: gen}, obj)
}

// streamLength resolves /Length, which may be an indirect number. A
// negative result makes the scanner search for endstream.
func (o *objectLoader) streamLength(ctx context.Context, dict *raw.DictObj) int64 {
	switch v := dict.Lookup("Length").(type) {
	case raw.NumberObj:
		return v.Int()
	case raw.RefObj:
		obj, err := o.Load(ctx, v.R.Num)
		if err != nil {
			return -1
		}
		if n, ok := obj.(raw.NumberObj); ok {
			dict.Put("Length", n)
			return n.Int()
		}
	}
	return -1
}

// loadCompressed returns object num from the object stream stmNum,
// parsing and caching the whole stream on first use.
func (o *objectLoader) loadCompressed(ctx context.Context, num, stmNum int) (raw.Object, error) {
	objs, err := o.objectStream(ctx, stmNum)
	if err != nil {
		return nil, err
	}
	obj, ok := objs[num]
	if !ok {
		return nil, fmt.Errorf("%w: %d in object stream %d", errNotFound, num, stmNum)
	}
	return obj, nil
}

func (o *objectLoader) objectStream(ctx context.Context, stmNum int) (map[int]raw.Object, error) {
	if objs, ok := o.objstm[stmNum]; ok {
		return objs, nil
	}
	obj, err := o.Load(ctx, stmNum)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	objs, err := o.parseObjectStream(ctx, stmNum, obj)
	if err != nil {
		return nil, err
	}
	o.objstm[stmNum] = objs
	return objs, nil
}

func (o *objectLoader) parseObjectStream(ctx context.Context, stmNum int, obj raw.Object) (map[int]raw.Object, error) {
	st, ok := obj.(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("object stream %d is a %s", stmNum, obj.Type())
	}
	n, _ := st.Dict.Lookup("N").(raw.NumberObj)
	first, _ := st.Dict.Lookup("First").(raw.NumberObj)
	data, err := o.decodeStream(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	if first.Int() < 0 || first.Int() > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d: /First %d out of range", stmNum, first.Int())
	}

	hs := scanner.New(data[:first.Int()], o.scanCfg)
	type slot struct {
		num int
		off int64
	}
	var slots []slot
	for i := int64(0); i < n.Int(); i++ {
		numTok, err1 := hs.Next()
		offTok, err2 := hs.Next()
		if err1 != nil || err2 != nil || !numTok.IsInt || !offTok.IsInt {
			break
		}
		slots = append(slots, slot{int(numTok.Int), first.Int() + offTok.Int})
	}

	body := scanner.NewObjectReader(scanner.New(data, o.scanCfg))
	objs := make(map[int]raw.Object, len(slots))
	for _, sl := range slots {
		if sl.off >= int64(len(data)) {
			continue
		}
		if err := body.Seek(sl.off); err != nil {
			continue
		}
		item, err := body.ReadObject()
		if err != nil {
			continue
		}
		// the first definition of a number wins inside one stream
		if _, dup := objs[sl.num]; !dup {
			objs[sl.num] = item
		}
	}
	return objs, nil
}

func (o *objectLoader) decodeStream(ctx context.Context, st *raw.StreamObj) ([]byte, error) {
	names, params := filters.ExtractFilters(st.Dict, o.resolver(ctx))
	p := filters.NewDefaultPipeline(filters.Limits{
		MaxDecompressedSize: o.limits.MaxDecompressedSize,
		MaxDecodeTime:       o.limits.MaxDecodeTime,
	})
	return p.Decode(ctx, st.Data, names, params)
}

func (o *objectLoader) resolver(ctx context.Context) filters.Resolver {
	return func(obj raw.Object) raw.Object {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj
		}
		v, err := o.Load(ctx, ref.R.Num)
		if err != nil {
			return raw.NullObj{}
		}
		return v
	}
}

// decrypt replaces encrypted strings and stream payloads in obj.
func (o *objectLoader) decrypt(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	if !o.security.IsEncrypted() || ref.Num == o.encryptNum {
		return obj, nil
	}
	return o.decryptValue(ref, obj)
}

func (o *objectLoader) decryptValue(ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch v := obj.(type) {
	case raw.StringObj:
		dec, err := o.security.Decrypt(ref.Num, ref.Gen, v.Bytes, security.DataClassString)
		if err != nil {
			return nil, fmt.Errorf("decrypt string in object %d: %w", ref.Num, err)
		}
		return raw.StringObj{Bytes: dec, Hex: v.Hex}, nil
	case *raw.ArrayObj:
		for i, item := range v.Items {
			dec, err := o.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.Items[i] = dec
		}
		return v, nil
	case *raw.DictObj:
		for key, item := range v.KV {
			dec, err := o.decryptValue(ref, item)
			if err != nil {
				return nil, err
			}
			v.KV[key] = dec
		}
		return v, nil
	case *raw.StreamObj:
		if typ, _ := v.Dict.Lookup("Type").(raw.NameObj); typ.Val == "XRef" {
			return v, nil
		}
		if _, err := o.decryptValue(ref, v.Dict); err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if typ, _ := v.Dict.Lookup("Type").(raw.NameObj); typ.Val == "Metadata" {
			class = security.DataClassMetadataStream
		}
		dec, err := o.security.DecryptWithFilter(ref.Num, ref.Gen, v.Data, class, stripCryptFilter(v.Dict))
		if err != nil {
			return nil, fmt.Errorf("decrypt stream %d: %w", ref.Num, err)
		}
		v.Data = dec
		v.Dict.Put("Length", raw.NumberInt(int64(len(dec))))
		return v, nil
	}
	return obj, nil
}

// stripCryptFilter removes a leading /Crypt filter from the stream
// dictionary and returns the crypt filter name it selected.
func stripCryptFilter(d *raw.DictObj) string {
	names, params := filters.ExtractFilters(d, nil)
	if len(names) == 0 || names[0] != "Crypt" {
		return ""
	}
	name := "Identity"
	if len(params) > 0 {
		dp, _ := params[0].(*raw.DictObj)
		if n, ok := dp.Lookup("Name").(raw.NameObj); ok {
			name = n.Val
		}
	}
	if len(names) == 1 {
		d.Delete("Filter")
		d.Delete("DecodeParms")
		return name
	}
	rest := raw.NewArray()
	for _, n := range names[1:] {
		rest.Append(raw.NameLiteral(n))
	}
	d.Put("Filter", rest)
	if arr, ok := d.Lookup("DecodeParms").(*raw.ArrayObj); ok && arr.Len() > 0 {
		d.Put("DecodeParms", raw.NewArray(arr.Items[1:]...))
	}
	return name
}
