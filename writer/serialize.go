package writer

import (
	"bufio"
	"context"
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/security"
)

// countingWriter tracks the byte offset of everything written so far.
type countingWriter struct {
	w *bufio.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func serialize(ctx context.Context, w *bufio.Writer, store *raw.Store, trailer *raw.DictObj, version PDFVersion) (int64, error) {
	cw := &countingWriter{w: w}
	if _, err := fmt.Fprintf(cw, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", version); err != nil {
		return cw.n, err
	}

	refs := store.Refs()
	size := store.NextNum()
	offsets := make([]int64, size)
	var buf []byte
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return cw.n, err
		}
		obj, _ := store.Get(ref)
		if st, ok := obj.(*raw.StreamObj); ok {
			dict := raw.CloneDict(st.Dict)
			dict.Put("Length", raw.NumberInt(int64(len(st.Data))))
			obj = raw.NewStream(dict, st.Data)
		}
		offsets[ref.Num] = cw.n
		buf = fmt.Appendf(buf[:0], "%d %d obj\n", ref.Num, ref.Gen)
		buf = raw.AppendObject(buf, obj)
		buf = append(buf, "\nendobj\n"...)
		if _, err := cw.Write(buf); err != nil {
			return cw.n, err
		}
	}

	xrefOffset := cw.n
	buf = fmt.Appendf(buf[:0], "xref\n0 %d\n", size)
	buf = append(buf, "0000000000 65535 f \n"...)
	for num := 1; num < size; num++ {
		if off := offsets[num]; off > 0 {
			buf = fmt.Appendf(buf, "%010d 00000 n \n", off)
		} else {
			buf = append(buf, "0000000000 65535 f \n"...)
		}
	}
	buf = append(buf, "trailer\n"...)
	buf = raw.AppendObject(buf, trailer)
	buf = fmt.Appendf(buf, "\nstartxref\n%d\n%%%%EOF\n", xrefOffset)
	_, err := cw.Write(buf)
	return cw.n, err
}

// encryptStore replaces every string and stream in store with its
// encrypted form.
func encryptStore(ctx context.Context, store *raw.Store, h security.Handler) error {
	for _, ref := range store.Refs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		obj, _ := store.Get(ref)
		enc, err := encryptObject(h, ref, obj)
		if err != nil {
			return fmt.Errorf("object %v: %w", ref, err)
		}
		store.Set(ref, enc)
	}
	return nil
}

func encryptObject(h security.Handler, ref raw.ObjectRef, obj raw.Object) (raw.Object, error) {
	switch t := obj.(type) {
	case raw.StringObj:
		data, err := h.Encrypt(ref.Num, ref.Gen, t.Bytes, security.DataClassString)
		if err != nil {
			return nil, err
		}
		return raw.HexStr(data), nil
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(t.Items))}
		for i, it := range t.Items {
			v, err := encryptObject(h, ref, it)
			if err != nil {
				return nil, err
			}
			out.Items[i] = v
		}
		return out, nil
	case *raw.DictObj:
		out := raw.Dict()
		if t == nil {
			return out, nil
		}
		for k, v := range t.KV {
			ev, err := encryptObject(h, ref, v)
			if err != nil {
				return nil, err
			}
			out.KV[k] = ev
		}
		return out, nil
	case *raw.StreamObj:
		dict, err := encryptObject(h, ref, t.Dict)
		if err != nil {
			return nil, err
		}
		class := security.DataClassStream
		if typ, _ := t.Dict.Lookup("Type").(raw.NameObj); typ.Val == "Metadata" {
			class = security.DataClassMetadataStream
		}
		data, err := h.Encrypt(ref.Num, ref.Gen, t.Data, class)
		if err != nil {
			return nil, err
		}
		return raw.NewStream(dict.(*raw.DictObj), data), nil
	}
	return obj, nil
}
