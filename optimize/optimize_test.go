package optimize

import (
	"context"
	"testing"

	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
)

var box = semantic.Rectangle{URX: 100, URY: 100}

func TestCollectDropsUnreachable(t *testing.T) {
	doc := semantic.New()
	orphan := doc.Store.Add(raw.NewStream(raw.Dict(), []byte("unused data")))
	page := doc.AddPage(box, nil, []byte("0 g 0 0 10 10 re f"))
	oldContent := page.ContentRefs()[0]
	if _, err := doc.AppendContent(page, nil, []byte("1 g"), nil); err != nil {
		t.Fatal(err)
	}
	before := doc.Store.Len()

	out, err := Collect(context.Background(), doc, false)
	if err != nil {
		t.Fatal(err)
	}
	// orphan stream and the replaced page dictionary
	if out.Dropped != 2 {
		t.Fatalf("dropped %d objects, want 2", out.Dropped)
	}
	if out.Reclaimed != int64(len("unused data")) {
		t.Fatalf("reclaimed %d bytes", out.Reclaimed)
	}
	if doc.Store.Len() != before {
		t.Fatalf("source store modified")
	}
	if _, ok := doc.Store.Get(orphan); !ok {
		t.Fatalf("orphan removed from the source store")
	}

	refs := out.Store.Refs()
	for i, ref := range refs {
		if ref.Num != i+1 || ref.Gen != 0 {
			t.Fatalf("object %d numbered %v, want contiguous numbering", i, ref)
		}
	}

	catalog, _ := out.Store.ResolveDict(raw.RefObj{R: out.Root})
	tree, _ := out.Store.ResolveDict(catalog.Lookup("Pages"))
	if n, _ := out.Store.ResolveNumber(tree.Lookup("Count")); n != 1 {
		t.Fatalf("Count = %v", n)
	}
	kids, _ := out.Store.ResolveArray(tree.Lookup("Kids"))
	pageDict, _ := out.Store.ResolveDict(kids.Items[0])
	if parent, ok := pageDict.Lookup("Parent").(raw.RefObj); !ok || parent != catalog.Lookup("Pages") {
		t.Fatalf("page Parent = %v", pageDict.Lookup("Parent"))
	}
	contents, _ := out.Store.ResolveArray(pageDict.Lookup("Contents"))
	if len(contents.Items) != 2 {
		t.Fatalf("contents = %v", contents.Items)
	}
	// the first content stream is the original one under a new number
	st, _ := out.Store.ResolveStream(contents.Items[0])
	orig, _ := doc.Store.ResolveStream(raw.RefObj{R: oldContent})
	if string(st.Data) != string(orig.Data) {
		t.Fatalf("content stream not carried over")
	}
	if !out.Info.IsZero() {
		t.Fatalf("info dictionary written for empty metadata")
	}
}

func TestCollectMetadataAndXMP(t *testing.T) {
	doc := semantic.New()
	doc.AddPage(box, nil, nil)
	doc.SetMetadata(map[string]string{"Title": "Quarterly", "Keywords": "a, b"})
	xmpDict := raw.Dict()
	xmpDict.Put("Type", raw.NameLiteral("Metadata"))
	doc.XMP = doc.Store.Add(raw.NewStream(xmpDict, []byte("<x:xmpmeta/>")))

	out, err := Collect(context.Background(), doc, false)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := out.Store.ResolveDict(raw.RefObj{R: out.Info})
	if !ok {
		t.Fatalf("info dictionary missing")
	}
	if s, ok := info.Lookup("Title").(raw.StringObj); !ok || semantic.DecodeText(s.Bytes) != "Quarterly" {
		t.Fatalf("Title = %v", info.Lookup("Title"))
	}
	catalog, _ := out.Store.ResolveDict(raw.RefObj{R: out.Root})
	if _, ok := out.Store.ResolveStream(catalog.Lookup("Metadata")); !ok {
		t.Fatalf("XMP stream not linked from the catalog")
	}

	doc.ClearMetadata()
	out, err = Collect(context.Background(), doc, false)
	if err != nil {
		t.Fatal(err)
	}
	catalog, _ = out.Store.ResolveDict(raw.RefObj{R: out.Root})
	if catalog.Lookup("Metadata") != nil || !out.Info.IsZero() {
		t.Fatalf("cleared metadata still written")
	}
	if out.Dropped != 1 {
		t.Fatalf("XMP stream not dropped after clearing: %d", out.Dropped)
	}
}

func TestCollectMergesDuplicateStreams(t *testing.T) {
	doc := semantic.New()
	for i := 0; i < 3; i++ {
		font := raw.Dict()
		font.Put("Length1", raw.NumberInt(4))
		ref := doc.Store.Add(raw.NewStream(font, []byte("glyf")))
		fonts := raw.Dict()
		fonts.Put("FF", raw.RefObj{R: ref})
		res := raw.Dict()
		res.Put("Font", fonts)
		doc.AddPage(box, res, []byte{byte('a' + i)})
	}
	out, err := Collect(context.Background(), doc, true)
	if err != nil {
		t.Fatal(err)
	}
	if out.Merged != 2 {
		t.Fatalf("merged %d streams, want 2", out.Merged)
	}
	var first raw.Object
	tree := pagesOf(t, out)
	for i, kid := range tree {
		pageDict, _ := out.Store.ResolveDict(kid)
		res, _ := out.Store.ResolveDict(pageDict.Lookup("Resources"))
		fonts, _ := out.Store.ResolveDict(res.Lookup("Font"))
		ref := fonts.Lookup("FF")
		if i == 0 {
			first = ref
		} else if ref != first {
			t.Fatalf("page %d font %v, want shared %v", i, ref, first)
		}
	}
}

func pagesOf(t *testing.T, out *Collected) []raw.Object {
	t.Helper()
	catalog, _ := out.Store.ResolveDict(raw.RefObj{R: out.Root})
	tree, _ := out.Store.ResolveDict(catalog.Lookup("Pages"))
	kids, ok := out.Store.ResolveArray(tree.Lookup("Kids"))
	if !ok {
		t.Fatalf("no Kids")
	}
	return kids.Items
}

func TestCompressStreams(t *testing.T) {
	store := raw.NewStore()
	plain := store.Add(raw.NewStream(raw.Dict(), []byte("BT /F1 12 Tf (hello hello hello) Tj ET")))

	hexDict := raw.Dict()
	hexDict.Put("Filter", raw.NameLiteral("ASCIIHexDecode"))
	hex := store.Add(raw.NewStream(hexDict, []byte("48656C6C6F>")))

	jpegDict := raw.Dict()
	jpegDict.Put("Filter", raw.NameLiteral("DCTDecode"))
	jpeg := store.Add(raw.NewStream(jpegDict, []byte{0xff, 0xd8}))

	n, err := CompressStreams(context.Background(), store, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("compressed %d streams, want 2", n)
	}
	tests := []struct {
		ref  raw.ObjectRef
		want string
	}{
		{plain, "BT /F1 12 Tf (hello hello hello) Tj ET"},
		{hex, "Hello"},
	}
	for _, tt := range tests {
		st, _ := store.ResolveStream(raw.RefObj{R: tt.ref})
		if f, _ := store.ResolveName(st.Dict.Lookup("Filter")); f != "FlateDecode" {
			t.Fatalf("%v Filter = %q", tt.ref, f)
		}
		if l, _ := store.ResolveNumber(st.Dict.Lookup("Length")); int(l) != len(st.Data) {
			t.Fatalf("%v Length = %v, data %d", tt.ref, l, len(st.Data))
		}
		got, err := filters.DecodeStream(context.Background(), st, store.Resolve)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != tt.want {
			t.Fatalf("%v decodes to %q", tt.ref, got)
		}
	}
	st, _ := store.ResolveStream(raw.RefObj{R: jpeg})
	if f, _ := store.ResolveName(st.Dict.Lookup("Filter")); f != "DCTDecode" {
		t.Fatalf("image stream re-encoded as %q", f)
	}
}

func TestOptimize(t *testing.T) {
	doc := semantic.New()
	doc.AddPage(box, nil, []byte("0 g 0 0 10 10 re f"))
	out, err := New(DefaultConfig()).Optimize(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	pageDict, _ := out.Store.ResolveDict(pagesOf(t, out)[0])
	st, _ := out.Store.ResolveStream(pageDict.Lookup("Contents"))
	if f, _ := out.Store.ResolveName(st.Dict.Lookup("Filter")); f != "FlateDecode" {
		t.Fatalf("content not deflated")
	}
}
