package semantic

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// twoPageRaw returns a parsed-looking document with an intermediate Pages
// node carrying inherited attributes.
func twoPageRaw() *raw.Document {
	font := raw.Dict()
	font.Put("Type", raw.NameLiteral("Font"))
	font.Put("BaseFont", raw.NameLiteral("Helvetica"))

	fonts := raw.Dict()
	fonts.Put("F0", raw.Ref(5, 0))
	res := raw.Dict()
	res.Put("Font", fonts)

	pages := raw.Dict()
	pages.Put("Type", raw.NameLiteral("Pages"))
	pages.Put("Kids", raw.NewArray(raw.Ref(3, 0), raw.Ref(7, 0)))
	pages.Put("Count", raw.NumberInt(2))
	pages.Put("MediaBox", raw.NewArray(raw.NumberInt(0), raw.NumberInt(0), raw.NumberInt(200), raw.NumberInt(100)))
	pages.Put("Resources", res)
	pages.Put("Rotate", raw.NumberInt(450))

	p1 := raw.Dict()
	p1.Put("Type", raw.NameLiteral("Page"))
	p1.Put("Parent", raw.Ref(2, 0))
	p1.Put("Contents", raw.Ref(4, 0))

	p2 := raw.Dict()
	p2.Put("Type", raw.NameLiteral("Page"))
	p2.Put("Parent", raw.Ref(2, 0))
	p2.Put("Contents", raw.Ref(8, 0))
	p2.Put("MediaBox", raw.NewArray(raw.NumberInt(300), raw.NumberInt(400), raw.NumberInt(0), raw.NumberInt(0)))
	p2.Put("Rotate", raw.NumberInt(0))

	catalog := raw.Dict()
	catalog.Put("Type", raw.NameLiteral("Catalog"))
	catalog.Put("Pages", raw.Ref(2, 0))

	info := raw.Dict()
	info.Put("Title", raw.Str([]byte("Hi")))
	info.Put("Author", raw.Str([]byte{0xFE, 0xFF, 0x00, 'Z', 0x00, 'o', 0x00, 0xEB}))

	trailer := raw.Dict()
	trailer.Put("Root", raw.Ref(1, 0))
	trailer.Put("Info", raw.Ref(6, 0))

	return &raw.Document{
		Objects: map[raw.ObjectRef]raw.Object{
			{Num: 1}: catalog,
			{Num: 2}: pages,
			{Num: 3}: p1,
			{Num: 4}: raw.NewStream(raw.Dict(), []byte("BT /F0 12 Tf (one) Tj ET")),
			{Num: 5}: font,
			{Num: 6}: info,
			{Num: 7}: p2,
			{Num: 8}: raw.NewStream(raw.Dict(), []byte("0 0 10 10 re f")),
		},
		Trailer:     trailer,
		Version:     "1.4",
		Permissions: raw.AllPermissions(),
	}
}

func TestFromRawMaterialisesInheritedAttributes(t *testing.T) {
	doc, err := FromRaw(twoPageRaw(), "two.pdf")
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", doc.PageCount())
	}
	if doc.Version != "1.4" || doc.Source != "two.pdf" {
		t.Fatalf("version/source = %q/%q", doc.Version, doc.Source)
	}

	p1, _ := doc.Page(0)
	if diff := cmp.Diff(Rectangle{0, 0, 200, 100}, p1.MediaBox); diff != "" {
		t.Fatalf("page 1 MediaBox (-want +got):\n%s", diff)
	}
	if p1.Rotate != 90 {
		t.Fatalf("page 1 Rotate = %d, want 90", p1.Rotate)
	}
	if p1.Dict().Lookup("Parent") != nil {
		t.Fatalf("Parent should be removed from page dictionaries")
	}
	if _, ok := p1.Resources().Lookup("Font").(*raw.DictObj); !ok {
		t.Fatalf("inherited Resources not copied onto the page")
	}

	p2, _ := doc.Page(1)
	if diff := cmp.Diff(Rectangle{0, 0, 300, 400}, p2.MediaBox); diff != "" {
		t.Fatalf("page 2 MediaBox (-want +got):\n%s", diff)
	}
	if p2.Rotate != 0 || p2.Dict().Lookup("Rotate") != nil {
		t.Fatalf("page 2 should not be rotated")
	}

	want := map[string]string{"Title": "Hi", "Author": "Zoë"}
	if diff := cmp.Diff(want, doc.Metadata); diff != "" {
		t.Fatalf("metadata (-want +got):\n%s", diff)
	}
}

func TestPageIndexError(t *testing.T) {
	doc, err := FromRaw(twoPageRaw(), "")
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	for _, i := range []int{-1, 2} {
		_, err := doc.Page(i)
		var ie *IndexError
		if !errors.As(err, &ie) {
			t.Fatalf("Page(%d) error = %v, want IndexError", i, err)
		}
		if ie.Index != i || ie.Count != 2 {
			t.Fatalf("IndexError = %+v", ie)
		}
	}
}

func TestPageContent(t *testing.T) {
	doc, _ := FromRaw(twoPageRaw(), "")
	p, _ := doc.Page(0)
	got, err := p.Content(context.Background())
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if string(got) != "BT /F0 12 Tf (one) Tj ET" {
		t.Fatalf("Content = %q", got)
	}
}

func TestPageTreeCycle(t *testing.T) {
	rd := twoPageRaw()
	pages := rd.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	pages.Put("Kids", raw.NewArray(raw.Ref(3, 0), raw.Ref(2, 0)))
	doc, err := FromRaw(rd, "")
	if err != nil {
		t.Fatalf("FromRaw: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("PageCount = %d, want 1", doc.PageCount())
	}
	if len(doc.Warnings) == 0 {
		t.Fatalf("expected a warning for the cycle")
	}
}

func TestImportPageRenumbersAndShares(t *testing.T) {
	src, _ := FromRaw(twoPageRaw(), "")
	dst := New()
	for _, p := range src.Pages() {
		if _, err := dst.ImportPage(p); err != nil {
			t.Fatalf("ImportPage: %v", err)
		}
	}
	if dst.PageCount() != 2 {
		t.Fatalf("PageCount = %d, want 2", dst.PageCount())
	}
	// two pages, two content streams and the shared font
	if dst.Store.Len() != 5 {
		t.Fatalf("destination holds %d objects, want 5", dst.Store.Len())
	}
	a, _ := dst.Page(0)
	b, _ := dst.Page(1)
	fa := a.Resources().Lookup("Font").(*raw.DictObj).Lookup("F0")
	fb := b.Resources().Lookup("Font").(*raw.DictObj).Lookup("F0")
	if fa != fb {
		t.Fatalf("font refs differ after import: %v vs %v", fa, fb)
	}
	got, err := a.Content(context.Background())
	if err != nil || !bytes.Contains(got, []byte("(one) Tj")) {
		t.Fatalf("imported content = %q, %v", got, err)
	}
	if _, err := dst.ImportPage(a); err == nil {
		t.Fatalf("importing a page into its own document should fail")
	}
}

func TestAppendContentKeepsOriginal(t *testing.T) {
	doc, _ := FromRaw(twoPageRaw(), "")
	p, _ := doc.Page(0)

	fonts := raw.Dict()
	fonts.Put("F0", raw.Ref(99, 0))
	fonts.Put("F1", raw.Ref(5, 0))
	res := raw.Dict()
	res.Put("Font", fonts)

	np, err := doc.AppendContent(p, []byte("q"), []byte("Q"), res)
	if err != nil {
		t.Fatalf("AppendContent: %v", err)
	}
	if np == p {
		t.Fatalf("AppendContent returned the original page")
	}
	if cur, _ := doc.Page(0); cur != np {
		t.Fatalf("document still holds the old page")
	}
	got, err := np.Content(context.Background())
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if string(got) != "q\nBT /F0 12 Tf (one) Tj ET\nQ" {
		t.Fatalf("Content = %q", got)
	}
	old, _ := p.Content(context.Background())
	if string(old) != "BT /F0 12 Tf (one) Tj ET" {
		t.Fatalf("original page changed: %q", old)
	}

	merged := np.Resources().Lookup("Font").(*raw.DictObj)
	if merged.Lookup("F0") != raw.Ref(5, 0) {
		t.Fatalf("existing font name was overwritten: %v", merged.Lookup("F0"))
	}
	if merged.Lookup("F1") == nil {
		t.Fatalf("new font not merged")
	}
	if got := FreshResourceName(np, "Font", "F"); got != "F2" {
		t.Fatalf("FreshResourceName = %q, want F2", got)
	}
	if got := FreshResourceName(np, "ExtGState", "GS"); got != "GS0" {
		t.Fatalf("FreshResourceName = %q, want GS0", got)
	}
}

func TestAddPage(t *testing.T) {
	doc := New()
	p := doc.AddPage(Rectangle{0, 0, 100, 50}, nil, []byte("0 0 m"))
	if doc.PageCount() != 1 {
		t.Fatalf("PageCount = %d", doc.PageCount())
	}
	got, _ := p.Content(context.Background())
	if string(got) != "0 0 m" {
		t.Fatalf("Content = %q", got)
	}
	if r, ok := RectangleFrom(doc.Store, p.Dict().Lookup("MediaBox")); !ok || r.Width() != 100 || r.Height() != 50 {
		t.Fatalf("MediaBox = %+v, %v", r, ok)
	}
}

func TestMetadata(t *testing.T) {
	doc, _ := FromRaw(twoPageRaw(), "")
	in := map[string]string{"Keywords": "a, b"}
	doc.SetMetadata(in)
	in["Keywords"] = "changed"
	if doc.Metadata["Keywords"] != "a, b" {
		t.Fatalf("SetMetadata must copy the map")
	}
	doc.XMP = raw.ObjectRef{Num: 3}
	doc.ClearMetadata()
	if len(doc.Metadata) != 0 || !doc.XMP.IsZero() {
		t.Fatalf("ClearMetadata left %v / %v", doc.Metadata, doc.XMP)
	}
}

func TestTextStrings(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("plain"), "plain"},
		{"latin1", []byte{'Z', 'o', 0xEB}, "Zoë"},
		{"pdfdoc", []byte{0x80, 0x92}, "•™"},
		{"utf16", []byte{0xFE, 0xFF, 0x65, 0xE5, 0x67, 0x2C}, "日本"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeText(tc.in)
			if got != tc.want {
				t.Fatalf("DecodeText = %q, want %q", got, tc.want)
			}
			if back := DecodeText(EncodeText(got)); back != tc.want {
				t.Fatalf("round trip = %q, want %q", back, tc.want)
			}
		})
	}
	if !bytes.HasPrefix(EncodeText("日本"), []byte{0xFE, 0xFF}) {
		t.Fatalf("non Latin-1 text should carry a byte order mark")
	}
}

func TestSetRotate(t *testing.T) {
	doc := New()
	p := doc.AddPage(Rectangle{0, 0, 100, 50}, nil, nil)
	for _, tt := range []struct{ in, want int }{{90, 90}, {-90, 270}, {450, 90}, {100, 90}, {360, 0}} {
		np, err := doc.SetRotate(p, tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if np.Rotate != tt.want {
			t.Fatalf("SetRotate(%d) = %d, want %d", tt.in, np.Rotate, tt.want)
		}
		n, _ := doc.Store.ResolveNumber(np.Dict().Lookup("Rotate"))
		if int(n) != tt.want {
			t.Fatalf("/Rotate = %v, want %d", n, tt.want)
		}
		p = np
	}
	if got, _ := doc.Page(0); got != p {
		t.Fatalf("page not replaced in place")
	}
	if _, err := New().SetRotate(p, 90); err == nil {
		t.Fatalf("foreign page accepted")
	}
}
