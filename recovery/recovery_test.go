package recovery_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/parser"
	"github.com/sfdeloach/pdf-tools/recovery"
)

// brokenCatalogPDF returns a file whose catalog dictionary is missing ">>".
func brokenCatalogPDF() []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /MediaBox [0 0 612 792] /Parent 2 0 R /Resources << >> >>",
	}
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
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
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestRecoveryStrategies(t *testing.T) {
	data := brokenCatalogPDF()

	t.Run("StrictStrategy", func(t *testing.T) {
		cfg := parser.Config{Recovery: recovery.NewStrictStrategy()}
		if _, err := parser.NewDocumentParser(cfg).ParseBytes(context.Background(), data); err == nil {
			t.Fatal("expected error with StrictStrategy, got nil")
		}
	})

	t.Run("LenientStrategy", func(t *testing.T) {
		rec := recovery.NewLenientStrategy()
		doc, err := parser.NewDocumentParser(parser.Config{Recovery: rec}).ParseBytes(context.Background(), data)
		if err != nil {
			t.Fatalf("expected success with LenientStrategy, got error: %v", err)
		}
		cat, ok := doc.Objects[raw.ObjectRef{Num: 1}].(*raw.DictObj)
		if !ok {
			t.Fatalf("catalog not recovered")
		}
		if _, ok := cat.Lookup("Pages").(raw.RefObj); !ok {
			t.Fatalf("catalog lost /Pages")
		}
		if len(rec.Recorded()) == 0 {
			t.Fatal("expected the lenient strategy to record the problem")
		}
		if !strings.Contains(rec.Locations[0].Component, "dict") {
			t.Fatalf("component = %q, want a dictionary location", rec.Locations[0].Component)
		}
	})
}

type captureLogger struct {
	observability.NopLogger
	warnings []string
}

func (c *captureLogger) Warn(msg string, fields ...observability.Field) {
	c.warnings = append(c.warnings, msg)
}

func TestLoggingStrategyReportsToLogger(t *testing.T) {
	log := &captureLogger{}
	s := recovery.NewLoggingStrategy(log)
	act := s.OnError(context.Background(), errors.New("bad xref"), recovery.Location{Component: "xref", ByteOffset: 10})
	if act != recovery.ActionWarn {
		t.Fatalf("action = %v, want warn", act)
	}
	if len(log.warnings) != 1 {
		t.Fatalf("logged %d warnings, want 1", len(log.warnings))
	}
	if got := s.Recorded(); len(got) != 1 || !strings.Contains(got[0].Error(), "bad xref") {
		t.Fatalf("recorded = %v", got)
	}
}

func TestActionString(t *testing.T) {
	for act, want := range map[recovery.Action]string{
		recovery.ActionFail: "fail",
		recovery.ActionSkip: "skip",
		recovery.ActionFix:  "fix",
		recovery.ActionWarn: "warn",
	} {
		if act.String() != want {
			t.Fatalf("%d.String() = %q, want %q", act, act.String(), want)
		}
	}
}
