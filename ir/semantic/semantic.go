// Package semantic holds the page-level view of a PDF: an ordered list of
// pages backed by an arena of indirect objects, document metadata and the
// encryption settings to apply on output.
package semantic

import (
	"context"
	"sort"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/security"
)

// Document is the semantic representation of a PDF.
type Document struct {
	// Store owns every indirect object the pages refer to.
	Store *raw.Store
	// Metadata holds the document information dictionary as text.
	Metadata map[string]string
	// XMP references the catalog's metadata stream; zero when absent.
	XMP raw.ObjectRef
	// Encryption, when set, is applied by the writer.
	Encryption *security.Config
	// Version is the PDF version read from the source, e.g. "1.7".
	Version string
	// Source names the file the document was read from.
	Source string
	// Encrypted reports whether the source file was encrypted.
	Encrypted   bool
	Permissions raw.Permissions
	// Warnings lists problems recovered from while parsing.
	Warnings []error

	pages     []*Page
	importers map[*Document]*raw.Copier
}

// New returns an empty document.
func New() *Document {
	return &Document{
		Store:       raw.NewStore(),
		Metadata:    make(map[string]string),
		Version:     "1.7",
		Permissions: raw.AllPermissions(),
	}
}

// Page models a single PDF page. Pages are immutable: operations that
// change content produce a new Page with a new page dictionary.
type Page struct {
	// Ref is the page dictionary in the owning document's store.
	Ref      raw.ObjectRef
	MediaBox Rectangle
	CropBox  Rectangle
	Rotate   int

	doc *Document
}

// Rectangle is a box in default user space units.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Array returns the rectangle as a PDF array.
func (r Rectangle) Array() *raw.ArrayObj {
	return raw.NewArray(number(r.LLX), number(r.LLY), number(r.URX), number(r.URY))
}

func number(f float64) raw.NumberObj {
	if f == float64(int64(f)) {
		return raw.NumberInt(int64(f))
	}
	return raw.NumberFloat(f)
}

// RectangleFrom reads a four-number array. Corners are normalised so that
// LLX <= URX and LLY <= URY.
func RectangleFrom(store *raw.Store, obj raw.Object) (Rectangle, bool) {
	arr, ok := store.ResolveArray(obj)
	if !ok || arr.Len() < 4 {
		return Rectangle{}, false
	}
	var v [4]float64
	for i := 0; i < 4; i++ {
		n, ok := store.ResolveNumber(arr.Items[i])
		if !ok {
			return Rectangle{}, false
		}
		v[i] = n
	}
	r := Rectangle{LLX: min(v[0], v[2]), LLY: min(v[1], v[3]), URX: max(v[0], v[2]), URY: max(v[1], v[3])}
	if r.Width() == 0 || r.Height() == 0 {
		return Rectangle{}, false
	}
	return r, true
}

// Document returns the document that owns p.
func (p *Page) Document() *Document { return p.doc }

// Dict returns the page dictionary.
func (p *Page) Dict() *raw.DictObj {
	d, _ := p.doc.Store.ResolveDict(raw.RefObj{R: p.Ref})
	return d
}

// Resources returns the page's resource dictionary, or an empty one.
func (p *Page) Resources() *raw.DictObj {
	if d, ok := p.doc.Store.ResolveDict(p.Dict().Lookup("Resources")); ok {
		return d
	}
	return raw.Dict()
}

// ContentRefs lists the page's content streams in painting order.
func (p *Page) ContentRefs() []raw.ObjectRef {
	var refs []raw.ObjectRef
	switch c := p.Dict().Lookup("Contents").(type) {
	case raw.RefObj:
		if arr, ok := p.doc.Store.ResolveArray(c); ok {
			for _, it := range arr.Items {
				if r, ok := it.(raw.RefObj); ok {
					refs = append(refs, r.R)
				}
			}
			return refs
		}
		refs = append(refs, c.R)
	case *raw.ArrayObj:
		for _, it := range c.Items {
			if r, ok := it.(raw.RefObj); ok {
				refs = append(refs, r.R)
			}
		}
	}
	return refs
}

// Content returns the decoded content streams joined by newlines.
func (p *Page) Content(ctx context.Context) ([]byte, error) {
	var out []byte
	for i, ref := range p.ContentRefs() {
		st, ok := p.doc.Store.ResolveStream(raw.RefObj{R: ref})
		if !ok {
			continue
		}
		data, err := filters.DecodeStream(ctx, st, p.doc.Store.Resolve)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, data...)
	}
	return out, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns page i, counting from zero.
func (d *Document) Page(i int) (*Page, error) {
	if i < 0 || i >= len(d.pages) {
		return nil, &IndexError{Index: i, Count: len(d.pages)}
	}
	return d.pages[i], nil
}

// Pages returns the pages in order. The slice must not be modified.
func (d *Document) Pages() []*Page { return d.pages }

// SetMetadata replaces the information dictionary entries.
func (d *Document) SetMetadata(m map[string]string) {
	d.Metadata = make(map[string]string, len(m))
	for k, v := range m {
		d.Metadata[k] = v
	}
}

// ClearMetadata removes the information dictionary and the XMP stream.
func (d *Document) ClearMetadata() {
	d.Metadata = make(map[string]string)
	d.XMP = raw.ObjectRef{}
}

// MetadataKeys returns the metadata keys in sorted order.
func (d *Document) MetadataKeys() []string {
	keys := make([]string, 0, len(d.Metadata))
	for k := range d.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Document) indexOf(p *Page) int {
	for i, q := range d.pages {
		if q == p {
			return i
		}
	}
	return -1
}
