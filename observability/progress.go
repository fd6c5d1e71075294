package observability

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// EventKind classifies progress events.
type EventKind int

const (
	EventFileStarted EventKind = iota
	EventFileDone
	EventFileFailed
	EventPageDone
)

// Event is a progress notification. Recorders must not block or fail the
// operation that emits it.
type Event struct {
	Kind  EventKind
	File  string
	Page  int // zero-based, EventPageDone only
	Pages int // total pages of File when known
	Err   error
}

// Recorder receives progress events.
type Recorder interface {
	Record(Event)
}

// NopRecorder discards events.
type NopRecorder struct{}

func (NopRecorder) Record(Event) {}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(Event)

func (f RecorderFunc) Record(e Event) { f(e) }

// TerminalRecorder advances a progress bar by one for every finished or
// failed file. The bar is drawn only when the output is a terminal.
type TerminalRecorder struct {
	out     io.Writer
	enabled bool
	bar     *progressbar.ProgressBar
}

// NewTerminalRecorder prepares a progress bar for total files on f.
func NewTerminalRecorder(f *os.File, total int) *TerminalRecorder {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return newTerminalRecorder(f, total, false, 0)
	}
	width := 40
	if w, _, err := term.GetSize(fd); err == nil && w > 50 {
		width = min(w-40, 60)
	}
	return newTerminalRecorder(f, total, true, width)
}

func newTerminalRecorder(out io.Writer, total int, enabled bool, width int) *TerminalRecorder {
	r := &TerminalRecorder{out: out, enabled: enabled}
	if enabled {
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(width),
			progressbar.OptionSetDescription("files"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
		)
	}
	return r
}

func (r *TerminalRecorder) Record(e Event) {
	if !r.enabled {
		return
	}
	switch e.Kind {
	case EventFileDone, EventFileFailed:
	default:
		return
	}
	r.bar.Add(1)
	if r.bar.IsFinished() {
		fmt.Fprintln(r.out)
	}
}
