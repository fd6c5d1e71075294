package optimize

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
)

// Collected is a compacted copy of a document: a fresh catalog and flat page
// tree over the objects the pages reach, numbered contiguously from 1.
type Collected struct {
	Store *raw.Store
	Root  raw.ObjectRef
	// Info is zero when the document has no metadata.
	Info raw.ObjectRef

	Kept      int
	Dropped   int
	Merged    int
	Reclaimed int64
}

// Collect builds a new catalog and page tree for doc, marks every object
// reachable from it and copies the marked objects into a new store. Streams
// with identical dictionaries and data are folded into one when dedupe is
// set. doc.Store is not modified.
func Collect(ctx context.Context, doc *semantic.Document, dedupe bool) (*Collected, error) {
	src := doc.Store
	pages := doc.Pages()

	isPage := make(map[raw.ObjectRef]bool, len(pages))
	var roots []raw.ObjectRef
	for _, p := range pages {
		isPage[p.Ref] = true
		roots = append(roots, p.Ref)
	}
	if !doc.XMP.IsZero() {
		roots = append(roots, doc.XMP)
	}

	var marked bitset.BitSet
	stack := append([]raw.ObjectRef(nil), roots...)
	for _, r := range roots {
		marked.Set(uint(r.Num))
	}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ref := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj, ok := src.Get(ref)
		if !ok {
			continue
		}
		// the page tree is rebuilt, so the old parents are not followed
		skipParent := isPage[ref]
		visitRefs(obj, skipParent, func(child raw.ObjectRef) {
			if !marked.Test(uint(child.Num)) {
				marked.Set(uint(child.Num))
				stack = append(stack, child)
			}
		})
	}

	out := &Collected{Store: raw.NewStore()}
	dst := out.Store
	out.Root = dst.Reserve()
	pagesRef := dst.Reserve()

	remap := make(map[raw.ObjectRef]raw.ObjectRef)
	canonical := make(map[string]raw.ObjectRef)
	dup := make(map[raw.ObjectRef]raw.ObjectRef)
	var kept []raw.ObjectRef
	for _, ref := range src.Refs() {
		obj, _ := src.Get(ref)
		if !marked.Test(uint(ref.Num)) {
			out.Dropped++
			out.Reclaimed += objectSize(obj)
			continue
		}
		if st, ok := obj.(*raw.StreamObj); ok && dedupe {
			key := hashObject(st)
			if first, seen := canonical[key]; seen {
				dup[ref] = first
				out.Merged++
				out.Reclaimed += objectSize(obj)
				continue
			}
			canonical[key] = ref
		}
		remap[ref] = dst.Reserve()
		kept = append(kept, ref)
	}
	for ref, first := range dup {
		remap[ref] = remap[first]
	}

	for _, ref := range kept {
		obj, _ := src.Get(ref)
		copied := rewrite(obj, remap)
		if isPage[ref] {
			if d, ok := copied.(*raw.DictObj); ok {
				d.Put("Parent", raw.RefObj{R: pagesRef})
			}
		}
		dst.Set(remap[ref], copied)
	}
	out.Kept = len(kept)

	kids := make([]raw.Object, 0, len(pages))
	for _, p := range pages {
		kids = append(kids, raw.RefObj{R: remap[p.Ref]})
	}
	tree := raw.Dict()
	tree.Put("Type", raw.NameLiteral("Pages"))
	tree.Put("Kids", raw.NewArray(kids...))
	tree.Put("Count", raw.NumberInt(int64(len(pages))))
	dst.Set(pagesRef, tree)

	catalog := raw.Dict()
	catalog.Put("Type", raw.NameLiteral("Catalog"))
	catalog.Put("Pages", raw.RefObj{R: pagesRef})
	if !doc.XMP.IsZero() {
		if r, ok := remap[doc.XMP]; ok {
			catalog.Put("Metadata", raw.RefObj{R: r})
		}
	}
	dst.Set(out.Root, catalog)

	if len(doc.Metadata) > 0 {
		info := raw.Dict()
		for _, k := range doc.MetadataKeys() {
			info.Put(k, raw.Str(semantic.EncodeText(doc.Metadata[k])))
		}
		out.Info = dst.Add(info)
	}
	return out, nil
}

// visitRefs calls fn for every reference held directly or nested in obj.
func visitRefs(obj raw.Object, skipParent bool, fn func(raw.ObjectRef)) {
	switch t := obj.(type) {
	case raw.RefObj:
		fn(t.R)
	case *raw.ArrayObj:
		for _, it := range t.Items {
			visitRefs(it, false, fn)
		}
	case *raw.DictObj:
		if t == nil {
			return
		}
		for k, v := range t.KV {
			if skipParent && k == "Parent" {
				continue
			}
			visitRefs(v, false, fn)
		}
	case *raw.StreamObj:
		visitRefs(t.Dict, false, fn)
	}
}

// rewrite deep-copies obj with references renumbered through remap.
// References to objects that were not kept become null.
func rewrite(obj raw.Object, remap map[raw.ObjectRef]raw.ObjectRef) raw.Object {
	switch t := obj.(type) {
	case raw.RefObj:
		if r, ok := remap[t.R]; ok {
			return raw.RefObj{R: r}
		}
		return raw.NullObj{}
	case *raw.ArrayObj:
		out := &raw.ArrayObj{Items: make([]raw.Object, len(t.Items))}
		for i, it := range t.Items {
			out.Items[i] = rewrite(it, remap)
		}
		return out
	case *raw.DictObj:
		out := raw.Dict()
		if t == nil {
			return out
		}
		for k, v := range t.KV {
			out.KV[k] = rewrite(v, remap)
		}
		return out
	case *raw.StreamObj:
		return raw.NewStream(rewrite(t.Dict, remap).(*raw.DictObj), t.Data)
	}
	return obj
}

func objectSize(obj raw.Object) int64 {
	if st, ok := obj.(*raw.StreamObj); ok {
		return int64(len(st.Data))
	}
	return 0
}
