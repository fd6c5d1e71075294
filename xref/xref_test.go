package xref_test

import (
	"bytes"
	"compress/zlib"
	"context"
	"fmt"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/xref"
)

func buildSimplePDF() ([]byte, map[int]int64) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.7\n")

	offsets := make(map[int]int64)

	offsets[1] = int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	offsets[2] = int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] >>\nendobj\n")

	xrefOffset := buf.Len()
	buf.WriteString("xref\n0 3\n")
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= 2; i++ {
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", offsets[i]))
	}
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\n")
	buf.WriteString("startxref\n")
	buf.WriteString(fmt.Sprintf("%d\n", xrefOffset))
	buf.WriteString("%%EOF\n")

	return buf.Bytes(), offsets
}

func TestResolverParsesXRefTable(t *testing.T) {
	pdf, offsets := buildSimplePDF()

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), pdf)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for num, want := range offsets {
		off, gen, ok := table.Lookup(num)
		if !ok || off != want || gen != 0 {
			t.Fatalf("object %d: got (%d,%d,%v), want offset %d", num, off, gen, ok, want)
		}
	}
	if got := table.Objects(); len(got) != 2 {
		t.Fatalf("expected 2 objects, got %v", got)
	}
	if _, ok := table.Trailer().Lookup("Root").(raw.RefObj); !ok {
		t.Fatalf("trailer Root missing")
	}
}

func TestResolverFollowsPrev(t *testing.T) {
	pdf, _ := buildSimplePDF()
	buf := bytes.NewBuffer(append([]byte(nil), pdf...))
	firstXRef := bytes.LastIndex(pdf, []byte("xref\n0 3"))

	off3 := buf.Len()
	buf.WriteString("3 0 obj\n(added)\nendobj\n")
	off2 := buf.Len()
	buf.WriteString("2 0 obj\n<< /Type /Pages /Count 0 /Kids [] /Updated true >>\nendobj\n")
	xrefOff := buf.Len()
	buf.WriteString("xref\n2 2\n")
	fmt.Fprintf(buf, "%010d 00000 n \n%010d 00000 n \n", off2, off3)
	fmt.Fprintf(buf, "trailer\n<< /Size 4 /Root 1 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", firstXRef, xrefOff)

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if off, _, _ := table.Lookup(2); off != int64(off2) {
		t.Fatalf("object 2 should come from the update, got offset %d want %d", off, off2)
	}
	if _, _, ok := table.Lookup(1); !ok {
		t.Fatalf("object 1 from the base revision missing")
	}
	if _, _, ok := table.Lookup(3); !ok {
		t.Fatalf("object 3 missing")
	}
}

func TestResolverReadsXRefStream(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	// rows: type(1) offset(2) gen(1)
	rows := []byte{
		0, 0, 0, 255,
		1, byte(off1 >> 8), byte(off1), 0,
		2, 0, 7, 3, // object 2: compressed in object stream 7 at index 3
	}
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write(rows)
	zw.Close()

	xrefOff := buf.Len()
	fmt.Fprintf(buf, "9 0 obj\n<< /Type /XRef /Size 3 /W [1 2 1] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n", z.Len())
	buf.Write(z.Bytes())
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOff)

	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), buf.Bytes())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if off, _, ok := table.Lookup(1); !ok || off != int64(off1) {
		t.Fatalf("object 1 offset = %d (%v), want %d", off, ok, off1)
	}
	e, ok := table.Entry(2)
	if !ok || e.Kind != xref.EntryCompressed || e.Stream != 7 || e.Index != 3 {
		t.Fatalf("unexpected compressed entry %+v", e)
	}
	if table.Trailer().Lookup("Root") == nil {
		t.Fatalf("xref stream dictionary should act as trailer")
	}
}

func TestResolverRejectsMissingStartXRef(t *testing.T) {
	if _, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), []byte("%PDF-1.4\n")); err == nil {
		t.Fatalf("expected error")
	}
}
