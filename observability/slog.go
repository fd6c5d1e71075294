package observability

import (
	"context"
	"io"
	"log/slog"
)

// Slog adapts a *slog.Logger to the Logger interface.
type Slog struct {
	l *slog.Logger
}

// NewSlog wraps l. A nil l uses slog.Default().
func NewSlog(l *slog.Logger) *Slog {
	if l == nil {
		l = slog.Default()
	}
	return &Slog{l: l}
}

// NewTextLogger returns a Logger writing logfmt-style records to w at the
// given minimum level.
func NewTextLogger(w io.Writer, level slog.Level) *Slog {
	return NewSlog(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func (s *Slog) Debug(msg string, fields ...Field) { s.log(slog.LevelDebug, msg, fields) }
func (s *Slog) Info(msg string, fields ...Field)  { s.log(slog.LevelInfo, msg, fields) }
func (s *Slog) Warn(msg string, fields ...Field)  { s.log(slog.LevelWarn, msg, fields) }
func (s *Slog) Error(msg string, fields ...Field) { s.log(slog.LevelError, msg, fields) }

func (s *Slog) With(fields ...Field) Logger {
	return &Slog{l: s.l.With(attrs(fields)...)}
}

func (s *Slog) log(level slog.Level, msg string, fields []Field) {
	s.l.Log(context.Background(), level, msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v := f.Value()
		if err, ok := v.(error); ok {
			if err == nil {
				continue
			}
			v = err.Error()
		}
		out = append(out, slog.Any(f.Key(), v))
	}
	return out
}

// Tee fans records out to several loggers.
type Tee []Logger

func (t Tee) Debug(msg string, fields ...Field) {
	for _, l := range t {
		l.Debug(msg, fields...)
	}
}

func (t Tee) Info(msg string, fields ...Field) {
	for _, l := range t {
		l.Info(msg, fields...)
	}
}

func (t Tee) Warn(msg string, fields ...Field) {
	for _, l := range t {
		l.Warn(msg, fields...)
	}
}

func (t Tee) Error(msg string, fields ...Field) {
	for _, l := range t {
		l.Error(msg, fields...)
	}
}

func (t Tee) With(fields ...Field) Logger {
	out := make(Tee, len(t))
	for i, l := range t {
		out[i] = l.With(fields...)
	}
	return out
}
