// Package ir opens PDF files into the semantic document model: bytes are
// parsed into raw objects, then the page tree is flattened into a
// semantic.Document.
package ir

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/edsrzf/mmap-go"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/parser"
	"github.com/sfdeloach/pdf-tools/recovery"
	"github.com/sfdeloach/pdf-tools/security"
)

type options struct {
	password string
	source   string
	logger   observability.Logger
	tracer   observability.Tracer
	recovery recovery.Strategy
	limits   security.Limits
}

// Option configures Open and OpenFile.
type Option func(*options)

// WithPassword sets the password tried against encrypted input.
func WithPassword(pwd string) Option { return func(o *options) { o.password = pwd } }

// WithLogger routes parse diagnostics to l.
func WithLogger(l observability.Logger) Option { return func(o *options) { o.logger = l } }

// WithTracer wraps the parse in a span.
func WithTracer(t observability.Tracer) Option { return func(o *options) { o.tracer = t } }

// WithRecovery overrides the default lenient recovery strategy.
func WithRecovery(s recovery.Strategy) Option { return func(o *options) { o.recovery = s } }

// WithLimits overrides the default resource limits.
func WithLimits(l security.Limits) Option { return func(o *options) { o.limits = l } }

// WithSource names the input in errors and log records.
func WithSource(name string) Option { return func(o *options) { o.source = name } }

// Open parses data into a document. Parse failures are reported as
// *semantic.ParseError; a document without pages as
// *semantic.EmptyDocumentError.
func Open(ctx context.Context, data []byte, opts ...Option) (*semantic.Document, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	log := observability.OrNop(o.logger)
	if o.source != "" {
		log = log.With(observability.String("source", o.source))
	}
	tracer := o.tracer
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	ctx, span := tracer.StartSpan(ctx, "ir.Open")
	defer span.Finish()
	start := time.Now()

	p := parser.NewDocumentParser(parser.Config{
		Recovery: o.recovery,
		Limits:   o.limits,
		Password: o.password,
		Logger:   log,
	})
	rd, err := p.ParseBytes(ctx, data)
	if err != nil {
		span.SetError(err)
		return nil, &semantic.ParseError{Source: o.source, Err: err}
	}
	doc, err := semantic.FromRaw(rd, o.source)
	if err != nil {
		span.SetError(err)
		return nil, &semantic.ParseError{Source: o.source, Err: err}
	}
	for _, w := range doc.Warnings {
		log.Warn("recovered from malformed input", observability.Error("error", w))
	}
	if doc.PageCount() == 0 {
		err := &semantic.EmptyDocumentError{Source: o.source}
		span.SetError(err)
		return nil, err
	}
	span.SetTag(observability.MetricPageCount, doc.PageCount())
	log.Debug("opened document",
		observability.Int(observability.MetricPageCount, doc.PageCount()),
		observability.Duration(observability.MetricParseTime, time.Since(start)),
	)
	return doc, nil
}

// OpenFile memory-maps path and parses it. The mapping is released before
// OpenFile returns.
func OpenFile(ctx context.Context, path string, opts ...Option) (doc *semantic.Document, err error) {
	opts = append([]Option{WithSource(path)}, opts...)
	f, err := os.Open(path)
	if err != nil {
		return nil, &semantic.ParseError{Source: path, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &semantic.ParseError{Source: path, Err: err}
	}
	if info.Size() == 0 {
		return nil, &semantic.ParseError{Source: path, Err: parser.ErrNotPDF}
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, &semantic.ParseError{Source: path, Err: fmt.Errorf("map file: %w", err)}
	}
	defer func() {
		if uerr := m.Unmap(); uerr != nil && err == nil {
			doc, err = nil, &semantic.ParseError{Source: path, Err: uerr}
		}
	}()
	return Open(ctx, m, opts...)
}

// IsAuthError reports whether err was caused by a wrong password.
func IsAuthError(err error) bool {
	return errors.Is(err, security.ErrAuthentication)
}

// Stats summarises the object arena of a document.
type Stats struct {
	Objects int
	Streams int
	Bytes   int64
}

// StatsOf counts the objects and stream bytes held by doc.
func StatsOf(doc *semantic.Document) Stats {
	var s Stats
	for _, ref := range doc.Store.Refs() {
		obj, _ := doc.Store.Get(ref)
		s.Objects++
		if st, ok := obj.(*raw.StreamObj); ok {
			s.Streams++
			s.Bytes += int64(len(st.Data))
		}
	}
	return s
}
