package ir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/parser"
)

func buildPDF(objs ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.5\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 5 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func onePage() []byte {
	content := "0 0 m 10 10 l S"
	return buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		"<< /Title (Report) /Producer (test) >>",
	)
}

func TestOpen(t *testing.T) {
	doc, err := Open(context.Background(), onePage(), WithSource("one.pdf"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if doc.PageCount() != 1 {
		t.Fatalf("PageCount = %d, want 1", doc.PageCount())
	}
	if doc.Metadata["Title"] != "Report" {
		t.Fatalf("Title = %q", doc.Metadata["Title"])
	}
	p, _ := doc.Page(0)
	if p.MediaBox.Width() != 612 || p.MediaBox.Height() != 792 {
		t.Fatalf("MediaBox = %+v", p.MediaBox)
	}
	content, err := p.Content(context.Background())
	if err != nil || string(content) != "0 0 m 10 10 l S" {
		t.Fatalf("Content = %q, %v", content, err)
	}
	if s := StatsOf(doc); s.Streams != 1 || s.Objects != 5 {
		t.Fatalf("StatsOf = %+v", s)
	}
}

func TestOpenErrors(t *testing.T) {
	t.Run("NotPDF", func(t *testing.T) {
		_, err := Open(context.Background(), []byte("hello"), WithSource("x.txt"))
		var pe *semantic.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("err = %v, want ParseError", err)
		}
		if pe.Source != "x.txt" || !errors.Is(err, parser.ErrNotPDF) {
			t.Fatalf("ParseError = %+v", pe)
		}
	})
	t.Run("NoPages", func(t *testing.T) {
		data := buildPDF(
			"<< /Type /Catalog /Pages 2 0 R >>",
			"<< /Type /Pages /Kids [] /Count 0 >>",
			"null", "null",
			"<< >>",
		)
		_, err := Open(context.Background(), data)
		if !errors.Is(err, semantic.ErrEmptyDocument) {
			t.Fatalf("err = %v, want ErrEmptyDocument", err)
		}
		var ee *semantic.EmptyDocumentError
		if !errors.As(err, &ee) {
			t.Fatalf("err = %T, want *EmptyDocumentError", err)
		}
	})
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "one.pdf")
	if err := os.WriteFile(path, onePage(), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := OpenFile(context.Background(), path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if doc.Source != path || doc.PageCount() != 1 {
		t.Fatalf("doc = %q with %d pages", doc.Source, doc.PageCount())
	}
	// the mapping is gone; content must still be readable
	p, _ := doc.Page(0)
	if c, err := p.Content(context.Background()); err != nil || len(c) == 0 {
		t.Fatalf("Content after unmap = %q, %v", c, err)
	}

	empty := filepath.Join(dir, "empty.pdf")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	var pe *semantic.ParseError
	if _, err := OpenFile(context.Background(), empty); !errors.As(err, &pe) {
		t.Fatalf("empty file: err = %v, want ParseError", err)
	}
	if _, err := OpenFile(context.Background(), filepath.Join(dir, "missing.pdf")); !errors.As(err, &pe) {
		t.Fatalf("missing file: err = %v, want ParseError", err)
	}
}
