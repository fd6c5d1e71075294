package assemble

import (
	"context"
	"fmt"
	"time"

	"github.com/sfdeloach/pdf-tools/ir"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
)

// FileResult is the outcome of processing one input file.
type FileResult struct {
	Path string
	// Output is the written file, batch drivers only.
	Output string
	Pages  int
	Err    error
}

// Report collects per-file results in input order.
type Report struct {
	Files []FileResult
}

// Failed returns the results that carry an error.
func (r Report) Failed() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f)
		}
	}
	return out
}

// Succeeded counts the files processed without error.
func (r Report) Succeeded() int {
	return len(r.Files) - len(r.Failed())
}

// Merge appends the pages of every readable file in paths, in the given
// order, to a new document. Files that cannot be opened are recorded in the
// report and skipped. Merge fails with semantic.ErrEmptyDocument when no
// file contributed a page. The result carries no metadata.
func Merge(ctx context.Context, paths []string, opts Options) (*semantic.Document, Report, error) {
	log := opts.logger()
	rec := opts.recorder()
	dst := semantic.New()
	var report Report
	start := time.Now()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		rec.Record(observability.Event{Kind: observability.EventFileStarted, File: path})
		n, err := mergeFile(ctx, dst, path, opts)
		report.Files = append(report.Files, FileResult{Path: path, Pages: n, Err: err})
		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			log.Error("failed to merge", observability.String("file", path), observability.Error("error", err))
			rec.Record(observability.Event{Kind: observability.EventFileFailed, File: path, Err: err})
			continue
		}
		log.Info("merged", observability.String("file", path), observability.Int(observability.MetricPageCount, n))
		rec.Record(observability.Event{Kind: observability.EventFileDone, File: path, Pages: n})
	}

	if dst.PageCount() == 0 {
		return nil, report, &semantic.EmptyDocumentError{}
	}
	log.Debug("merge complete",
		observability.Int("files", report.Succeeded()),
		observability.Int(observability.MetricPageCount, dst.PageCount()),
		observability.Int(observability.MetricObjectCount, dst.Store.Len()),
		observability.Duration("duration", time.Since(start)),
	)
	return dst, report, nil
}

// mergeFile imports every page of path into dst. A failure part way leaves
// the pages imported so far in dst.
func mergeFile(ctx context.Context, dst *semantic.Document, path string, opts Options) (int, error) {
	src, err := open(ctx, path, opts)
	if err != nil {
		return 0, err
	}
	for i, p := range src.Pages() {
		if _, err := dst.ImportPage(p); err != nil {
			return i, fmt.Errorf("page %d: %w", i, err)
		}
	}
	return src.PageCount(), nil
}

func open(ctx context.Context, path string, opts Options) (*semantic.Document, error) {
	return ir.OpenFile(ctx, path,
		ir.WithLogger(opts.logger().With(observability.String("file", path))),
		ir.WithPassword(opts.InputPassword),
	)
}
