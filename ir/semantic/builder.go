package semantic

import (
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// maxTreeDepth bounds page tree recursion.
const maxTreeDepth = 64

type inheritedPageProps struct {
	MediaBox  raw.Object
	CropBox   raw.Object
	Rotate    raw.Object
	Resources raw.Object
}

// FromRaw builds a Document over the objects of a parsed file. Inherited
// page attributes are copied onto every page dictionary so that pages can
// be moved between documents on their own. The raw objects are taken over,
// not copied.
func FromRaw(rd *raw.Document, source string) (*Document, error) {
	doc := New()
	doc.Store = raw.NewStoreFrom(rd.Objects)
	doc.Source = source
	doc.Encrypted = rd.Encrypted
	doc.Permissions = rd.Permissions
	doc.Warnings = append(doc.Warnings, rd.Warnings...)
	if rd.Version != "" {
		doc.Version = rd.Version
	}

	trailer, _ := rd.Trailer.(*raw.DictObj)
	if info, ok := doc.Store.ResolveDict(trailer.Lookup("Info")); ok {
		for _, k := range info.Keys() {
			if s, ok := doc.Store.Resolve(info.Lookup(k.Value())).(raw.StringObj); ok {
				doc.Metadata[k.Value()] = DecodeText(s.Bytes)
			}
		}
	}
	catalog, ok := doc.Store.ResolveDict(trailer.Lookup("Root"))
	if !ok {
		return nil, fmt.Errorf("document catalog missing")
	}
	if ref, ok := catalog.Lookup("Metadata").(raw.RefObj); ok {
		if _, isStream := doc.Store.ResolveStream(ref); isStream {
			doc.XMP = ref.R
		}
	}

	root, ok := catalog.Lookup("Pages").(raw.RefObj)
	if !ok {
		return doc, nil
	}
	w := &treeWalker{doc: doc, seen: make(map[raw.ObjectRef]bool)}
	w.walk(root.R, inheritedPageProps{}, 0)
	return doc, nil
}

type treeWalker struct {
	doc  *Document
	seen map[raw.ObjectRef]bool
}

// walk traverses the page tree and appends leaf pages in document order.
func (w *treeWalker) walk(ref raw.ObjectRef, inherited inheritedPageProps, depth int) {
	if depth > maxTreeDepth || w.seen[ref] {
		w.doc.Warnings = append(w.doc.Warnings, fmt.Errorf("page tree: cycle or excessive depth at %v", ref))
		return
	}
	w.seen[ref] = true
	dict, ok := w.doc.Store.ResolveDict(raw.RefObj{R: ref})
	if !ok {
		w.doc.Warnings = append(w.doc.Warnings, fmt.Errorf("page tree: %v is not a dictionary", ref))
		return
	}

	next := inherited
	if v := dict.Lookup("MediaBox"); v != nil {
		next.MediaBox = v
	}
	if v := dict.Lookup("CropBox"); v != nil {
		next.CropBox = v
	}
	if v := dict.Lookup("Rotate"); v != nil {
		next.Rotate = v
	}
	if v := dict.Lookup("Resources"); v != nil {
		next.Resources = v
	}

	typ, _ := w.doc.Store.ResolveName(dict.Lookup("Type"))
	kids, hasKids := w.doc.Store.ResolveArray(dict.Lookup("Kids"))
	if typ == "Page" || (typ == "" && !hasKids) {
		w.addPage(ref, dict, next)
		return
	}
	if !hasKids {
		w.doc.Warnings = append(w.doc.Warnings, fmt.Errorf("page tree: node %v has no Kids", ref))
		return
	}
	for _, kid := range kids.Items {
		if r, ok := kid.(raw.RefObj); ok {
			w.walk(r.R, next, depth+1)
		}
	}
}

func (w *treeWalker) addPage(ref raw.ObjectRef, dict *raw.DictObj, props inheritedPageProps) {
	store := w.doc.Store
	mb, ok := RectangleFrom(store, props.MediaBox)
	if !ok {
		// US Letter when no usable MediaBox is present
		mb = Rectangle{0, 0, 612, 792}
	}
	dict.Put("MediaBox", mb.Array())
	cb, ok := RectangleFrom(store, props.CropBox)
	if ok {
		dict.Put("CropBox", cb.Array())
	} else {
		cb = mb
	}
	rotate := 0
	if n, ok := store.ResolveNumber(props.Rotate); ok {
		r := (int(n)%360 + 360) % 360
		rotate = r - r%90
	}
	if rotate != 0 {
		dict.Put("Rotate", raw.NumberInt(int64(rotate)))
	} else {
		dict.Delete("Rotate")
	}
	if props.Resources != nil {
		dict.Put("Resources", raw.Clone(props.Resources))
	} else {
		dict.Put("Resources", raw.Dict())
	}
	dict.Delete("Parent")
	dict.Put("Type", raw.NameLiteral("Page"))

	w.doc.pages = append(w.doc.pages, &Page{
		Ref:      ref,
		MediaBox: mb,
		CropBox:  cb,
		Rotate:   rotate,
		doc:      w.doc,
	})
}
