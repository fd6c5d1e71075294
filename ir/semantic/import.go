package semantic

import (
	"errors"
	"fmt"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// ImportPage deep-copies p, and every object its dictionary reaches, into d
// and appends the copy as the last page. Objects shared by several pages of
// the same source are copied once.
func (d *Document) ImportPage(p *Page) (*Page, error) {
	if p.doc == d {
		return nil, errors.New("import: page already belongs to the document")
	}
	if d.importers == nil {
		d.importers = make(map[*Document]*raw.Copier)
	}
	cp, ok := d.importers[p.doc]
	if !ok {
		cp = raw.NewCopier(p.doc.Store, d.Store)
		cp.Skip = map[string]bool{"Parent": true}
		d.importers[p.doc] = cp
	}
	obj, err := cp.Copy(raw.RefObj{R: p.Ref})
	if err != nil {
		return nil, fmt.Errorf("import page: %w", err)
	}
	ref, ok := obj.(raw.RefObj)
	if !ok {
		return nil, fmt.Errorf("import page: %v did not resolve", p.Ref)
	}
	np := &Page{Ref: ref.R, MediaBox: p.MediaBox, CropBox: p.CropBox, Rotate: p.Rotate, doc: d}
	d.pages = append(d.pages, np)
	return np, nil
}

// AddPage appends a page with the given box, resources and a single
// content stream. The content is stored unfiltered.
func (d *Document) AddPage(mediaBox Rectangle, resources *raw.DictObj, content []byte) *Page {
	if resources == nil {
		resources = raw.Dict()
	}
	contentRef := d.Store.Add(raw.NewStream(raw.Dict(), content))
	page := raw.Dict()
	page.Put("Type", raw.NameLiteral("Page"))
	page.Put("MediaBox", mediaBox.Array())
	page.Put("Resources", resources)
	page.Put("Contents", raw.RefObj{R: contentRef})
	p := &Page{Ref: d.Store.Add(page), MediaBox: mediaBox, CropBox: mediaBox, doc: d}
	d.pages = append(d.pages, p)
	return p
}

// AppendContent returns a new page that paints before, then the content of
// p, then after. Entries of res are merged into the page resources category
// by category; existing names are kept. The new page takes p's position in
// the document.
func (d *Document) AppendContent(p *Page, before, after []byte, res *raw.DictObj) (*Page, error) {
	idx := d.indexOf(p)
	if idx < 0 {
		return nil, errors.New("append content: page does not belong to the document")
	}
	old := p.Dict()
	if old == nil {
		return nil, fmt.Errorf("append content: page %v missing", p.Ref)
	}
	page := raw.CloneDict(old)

	var contents []raw.Object
	if len(before) > 0 {
		contents = append(contents, raw.RefObj{R: d.Store.Add(raw.NewStream(raw.Dict(), before))})
	}
	for _, ref := range p.ContentRefs() {
		contents = append(contents, raw.RefObj{R: ref})
	}
	if len(after) > 0 {
		contents = append(contents, raw.RefObj{R: d.Store.Add(raw.NewStream(raw.Dict(), after))})
	}
	page.Put("Contents", raw.NewArray(contents...))

	resources := raw.CloneDict(p.Resources())
	for _, category := range res.Keys() {
		cat := category.Value()
		add, ok := d.Store.ResolveDict(res.Lookup(cat))
		if !ok {
			if _, exists := resources.Get(category); !exists {
				resources.Put(cat, res.Lookup(cat))
			}
			continue
		}
		existing, _ := d.Store.ResolveDict(resources.Lookup(cat))
		merged := raw.CloneDict(existing)
		for _, name := range add.Keys() {
			if _, taken := merged.Get(name); !taken {
				merged.Put(name.Value(), add.Lookup(name.Value()))
			}
		}
		resources.Put(cat, merged)
	}
	page.Put("Resources", resources)

	np := &Page{Ref: d.Store.Add(page), MediaBox: p.MediaBox, CropBox: p.CropBox, Rotate: p.Rotate, doc: d}
	d.pages[idx] = np
	return np, nil
}

// FreshResourceName returns a name starting with prefix that is not yet
// used in the given resource category of p.
func FreshResourceName(p *Page, category, prefix string) string {
	used, _ := p.doc.Store.ResolveDict(p.Resources().Lookup(category))
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s%d", prefix, i)
		if used.Lookup(name) == nil {
			return name
		}
	}
}

// SetRotate returns a new page that differs from p only in its /Rotate
// entry. degrees is normalised to a multiple of 90 in [0, 360).
func (d *Document) SetRotate(p *Page, degrees int) (*Page, error) {
	idx := d.indexOf(p)
	if idx < 0 {
		return nil, errors.New("set rotate: page does not belong to the document")
	}
	r := (degrees%360 + 360) % 360
	r -= r % 90
	page := raw.CloneDict(p.Dict())
	if r == 0 {
		page.Delete("Rotate")
	} else {
		page.Put("Rotate", raw.NumberInt(int64(r)))
	}
	np := &Page{Ref: d.Store.Add(page), MediaBox: p.MediaBox, CropBox: p.CropBox, Rotate: r, doc: d}
	d.pages[idx] = np
	return np, nil
}
