package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNopTracer(t *testing.T) {
	tracer := NopTracer()
	ctx := context.Background()
	ctx2, span := tracer.StartSpan(ctx, "test")
	if ctx2 != ctx {
		t.Fatalf("nop tracer should return same context")
	}
	span.SetTag("key", "value")
	span.SetError(nil)
	span.Finish()
}

func TestSlogWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewTextLogger(&buf, slog.LevelInfo).With(String("file", "a.pdf"))
	log.Debug("hidden")
	log.Warn("skipped", Int("pages", 3), Error("error", errors.New("boom")))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered: %q", out)
	}
	for _, want := range []string{"level=WARN", "msg=skipped", "file=a.pdf", "pages=3", "error=boom"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestTeeFansOut(t *testing.T) {
	var a, b bytes.Buffer
	log := Tee{NewTextLogger(&a, slog.LevelInfo), NewTextLogger(&b, slog.LevelInfo)}
	log.Info("merged")
	if !strings.Contains(a.String(), "merged") || !strings.Contains(b.String(), "merged") {
		t.Fatalf("expected both sinks to receive the record")
	}
}

func TestRecorderFunc(t *testing.T) {
	var got []EventKind
	var r Recorder = RecorderFunc(func(e Event) { got = append(got, e.Kind) })
	r.Record(Event{Kind: EventFileStarted})
	r.Record(Event{Kind: EventFileDone})
	if len(got) != 2 || got[1] != EventFileDone {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestTerminalRecorder(t *testing.T) {
	var buf bytes.Buffer
	r := newTerminalRecorder(&buf, 2, true, 20)
	r.Record(Event{Kind: EventFileStarted, File: "a.pdf"})
	if buf.Len() != 0 {
		t.Fatalf("start event drew %q", buf.String())
	}
	r.Record(Event{Kind: EventFileDone, File: "a.pdf"})
	r.Record(Event{Kind: EventPageDone, File: "b.pdf"})
	r.Record(Event{Kind: EventFileFailed, File: "b.pdf", Err: errors.New("broken")})
	out := buf.String()
	if !strings.Contains(out, "2/2") || !strings.HasSuffix(out, "\n") {
		t.Fatalf("progress output %q", out)
	}

	buf.Reset()
	quiet := newTerminalRecorder(&buf, 1, false, 0)
	quiet.Record(Event{Kind: EventFileDone, File: "a.pdf"})
	if buf.Len() != 0 {
		t.Fatalf("disabled recorder wrote %q", buf.String())
	}
}
