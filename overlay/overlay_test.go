package overlay

import (
	"context"
	"testing"

	"github.com/sfdeloach/pdf-tools/builder"
	"github.com/sfdeloach/pdf-tools/contentstream"
	"github.com/sfdeloach/pdf-tools/fonts"
	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/render"
)

func blankDoc(t *testing.T, pages int) *semantic.Document {
	t.Helper()
	b := builder.NewBuilder()
	for i := 0; i < pages; i++ {
		b.NewPage(612, 792).Finish()
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return doc
}

func parse(t *testing.T, p *semantic.Page) []contentstream.Operation {
	t.Helper()
	data, err := p.Content(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ops, err := contentstream.Parse(data)
	if err != nil {
		t.Fatalf("parse %q: %v", data, err)
	}
	return ops
}

func numbers(t *testing.T, store *raw.Store, op contentstream.Operation) []float64 {
	t.Helper()
	var out []float64
	for _, o := range op.Operands {
		n, ok := store.ResolveNumber(o)
		if !ok {
			t.Fatalf("%s operand %v is not a number", op.Operator, o)
		}
		out = append(out, n)
	}
	return out
}

func TestComposeEmptyIsIdentity(t *testing.T) {
	doc := blankDoc(t, 1)
	page, _ := doc.Page(0)
	got, err := Compose(doc, page, Stamp{})
	if err != nil {
		t.Fatal(err)
	}
	if got != page {
		t.Fatalf("empty stamp replaced the page")
	}
	if cur, _ := doc.Page(0); cur != page {
		t.Fatalf("document page changed")
	}
}

func TestComposeWatermark(t *testing.T) {
	doc := blankDoc(t, 1)
	page, _ := doc.Page(0)
	np, err := Compose(doc, page, Stamp{Watermark: "CONFIDENTIAL", Footer: "internal"})
	if err != nil {
		t.Fatal(err)
	}
	if np == page {
		t.Fatalf("page not replaced")
	}
	if cur, _ := doc.Page(0); cur != np {
		t.Fatalf("replacement not stored at the same index")
	}

	ops := parse(t, np)
	if ops[0].Operator != "q" || ops[1].Operator != "Q" {
		t.Fatalf("original content not wrapped in q/Q: %v %v", ops[0].Operator, ops[1].Operator)
	}
	var sizes []float64
	for _, op := range ops {
		if op.Operator == "Tf" {
			n, _ := doc.Store.ResolveNumber(op.Operands[1])
			sizes = append(sizes, n)
		}
	}
	if len(sizes) != 2 || sizes[0] != 100 || sizes[1] != 10 {
		t.Fatalf("font sizes = %v, want [100 10]", sizes)
	}

	buf, err := render.Render(context.Background(), np, render.Options{DPI: 72})
	if err != nil {
		t.Fatal(err)
	}
	marked := 0
	for _, v := range buf.Pix {
		if v < 250 {
			marked++
		}
	}
	if marked < 500 {
		t.Fatalf("only %d non-white pixels after watermarking", marked)
	}
}

func TestComposerSharesResources(t *testing.T) {
	doc := blankDoc(t, 4)
	before := doc.Store.Len()
	composer := NewComposer(doc, Stamp{Watermark: "DRAFT", Footer: "f"})
	for i := 0; i < doc.PageCount(); i++ {
		page, _ := doc.Page(i)
		if _, err := composer.Compose(page); err != nil {
			t.Fatal(err)
		}
	}

	refs := map[string]map[raw.ObjectRef]bool{"Font": {}, "ExtGState": {}}
	for i, page := range doc.Pages() {
		for category, seen := range refs {
			d, ok := doc.Store.ResolveDict(page.Resources().Lookup(category))
			if !ok {
				t.Fatalf("page %d has no %s resources", i, category)
			}
			for _, k := range d.Keys() {
				if ref, ok := d.Lookup(k.Value()).(raw.RefObj); ok {
					seen[ref.R] = true
				}
			}
		}
	}
	for category, seen := range refs {
		if len(seen) != 1 {
			t.Fatalf("%s resources reference %d objects, want 1 shared", category, len(seen))
		}
	}

	// one font, one graphics state and a content stream per page
	if added := doc.Store.Len() - before; added > 2+doc.PageCount()*3 {
		t.Fatalf("%d objects added for %d pages", added, doc.PageCount())
	}
}

func TestComposeFooterPosition(t *testing.T) {
	doc := blankDoc(t, 1)
	page, _ := doc.Page(0)
	np, err := Compose(doc, page, Stamp{Footer: "ab"})
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range parse(t, np) {
		if op.Operator != "Tm" {
			continue
		}
		tm := numbers(t, doc.Store, op)
		// Times-Roman a=444, b=500 at 10pt
		if want := 612 - 20 - 9.44; tm[4] < want-0.01 || tm[4] > want+0.01 || tm[5] != 20 {
			t.Fatalf("footer at (%v, %v), want (%v, 20)", tm[4], tm[5], want)
		}
		return
	}
	t.Fatalf("no text matrix in footer")
}

func TestComposeAvoidsNameCollisions(t *testing.T) {
	doc := semantic.New()
	fontsDict := raw.Dict()
	fontsDict.Put("Ov0", builder.StandardFont("Courier"))
	res := raw.Dict()
	res.Put("Font", fontsDict)
	page := doc.AddPage(semantic.Rectangle{URX: 100, URY: 100}, res, []byte("BT /Ov0 10 Tf (x) Tj ET"))

	np, err := Compose(doc, page, Stamp{Footer: "f"})
	if err != nil {
		t.Fatal(err)
	}
	merged, _ := doc.Store.ResolveDict(np.Resources().Lookup("Font"))
	orig, _ := doc.Store.ResolveDict(merged.Lookup("Ov0"))
	if name, _ := doc.Store.ResolveName(orig.Lookup("BaseFont")); name != "Courier" {
		t.Fatalf("existing font overwritten with %q", name)
	}
	added, ok := doc.Store.ResolveDict(merged.Lookup("Ov1"))
	if !ok {
		t.Fatalf("overlay font not added under a fresh name: %v", merged.Keys())
	}
	if name, _ := doc.Store.ResolveName(added.Lookup("BaseFont")); name != "Times-Roman" {
		t.Fatalf("overlay font = %q", name)
	}
}

func TestNumberPages(t *testing.T) {
	doc := blankDoc(t, 3)
	if err := NumberPages(doc); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		x    float64
		text string
	}{
		{612 - 36 - 6, "1"},
		{36, "2"},
		{612 - 36 - 6, "3"},
	}
	for i, tt := range tests {
		page, _ := doc.Page(i)
		var tm []float64
		var text string
		for _, op := range parse(t, page) {
			switch op.Operator {
			case "Tm":
				tm = numbers(t, doc.Store, op)
			case "Tj":
				text = string(op.Operands[0].(raw.StringObj).Bytes)
			}
		}
		if len(tm) != 6 || tm[4] != tt.x || tm[5] != 36 {
			t.Fatalf("page %d number at %v, want x=%v y=36", i+1, tm, tt.x)
		}
		if text != tt.text {
			t.Fatalf("page %d number %q, want %q", i+1, text, tt.text)
		}
	}
}

func TestNumberPagesPlacement(t *testing.T) {
	doc := blankDoc(t, 5)
	if err := NumberPages(doc); err != nil {
		t.Fatal(err)
	}
	times, _ := fonts.Standard("Times-Roman")
	tracer := contentstream.NewTracer(func(string, byte) float64 { return times.Width('0') })
	for i, page := range doc.Pages() {
		boxes, err := tracer.Trace(context.Background(), parse(t, page), doc.Store, page.Resources())
		if err != nil {
			t.Fatal(err)
		}
		if len(boxes) != 1 {
			t.Fatalf("page %d: %d marks, want the number only", i+1, len(boxes))
		}
		r := boxes[0].Rect
		if r.LLY != 36 {
			t.Fatalf("page %d baseline %v, want 36", i+1, r.LLY)
		}
		if odd := i%2 == 0; odd && r.URX != 612-36 {
			t.Fatalf("page %d ends at %v, want right margin 576", i+1, r.URX)
		} else if !odd && r.LLX != 36 {
			t.Fatalf("page %d starts at %v, want left margin 36", i+1, r.LLX)
		}
	}
}
