package assemble

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/writer"
)

var batchPrefix = regexp.MustCompile(`\d+_\d+`)

// OutputName returns the name of the rasterized copy of input in dir: the
// first "<digits>_<digits>" run of the input's file name, or its base name
// without extension, followed by "_<unix seconds>-<8 hex digits>.pdf".
func OutputName(input, dir string, now time.Time) string {
	base := filepath.Base(input)
	prefix := batchPrefix.FindString(base)
	if prefix == "" {
		prefix = strings.TrimSuffix(base, filepath.Ext(base))
	}
	suffix := fmt.Sprintf("%d-%s", now.Unix(), uuid.NewString()[:8])
	return filepath.Join(dir, prefix+"_"+suffix+".pdf")
}

// RasterizeBatch rasterizes each file in paths into outDir. Files run on
// up to opts.Workers goroutines, each rendering its pages sequentially; a
// single file renders its pages in parallel instead. A failing file is
// recorded in the report and the batch continues. The returned error is
// non-nil only on cancellation or when every file failed.
func RasterizeBatch(ctx context.Context, paths []string, outDir string, opts Options, wcfg writer.Config) (Report, error) {
	if err := opts.validate(); err != nil {
		return Report{}, err
	}
	report := Report{Files: make([]FileResult, len(paths))}
	if len(paths) == 0 {
		return report, nil
	}
	log := opts.logger()
	rec := opts.recorder()
	fileOpts := opts
	workers := 1
	if len(paths) > 1 {
		workers = min(opts.workers(), len(paths))
		fileOpts.Workers = 1
	}
	if wcfg.Logger == nil {
		wcfg.Logger = log
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, path := range paths {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(paths); j++ {
				report.Files[j] = FileResult{Path: paths[j], Err: ctx.Err()}
			}
			wg.Wait()
			return report, ctx.Err()
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			rec.Record(observability.Event{Kind: observability.EventFileStarted, File: path})
			res := rasterizeFile(ctx, path, outDir, fileOpts, wcfg)
			report.Files[i] = res
			if res.Err != nil {
				log.Error("failed to rasterize", observability.String("file", path), observability.Error("error", res.Err))
				rec.Record(observability.Event{Kind: observability.EventFileFailed, File: path, Err: res.Err})
				return
			}
			log.Info("rasterized",
				observability.String("file", path),
				observability.String("output", res.Output),
				observability.Int(observability.MetricPageCount, res.Pages),
			)
			rec.Record(observability.Event{Kind: observability.EventFileDone, File: path, Pages: res.Pages})
		}(i, path)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Succeeded() == 0 {
		return report, fmt.Errorf("rasterize: all %d files failed", len(paths))
	}
	return report, nil
}

func rasterizeFile(ctx context.Context, path, outDir string, opts Options, wcfg writer.Config) FileResult {
	res := FileResult{Path: path}
	src, err := open(ctx, path, opts)
	if err != nil {
		res.Err = err
		return res
	}
	doc, err := Rasterize(ctx, src, opts)
	if err != nil {
		res.Err = err
		return res
	}
	out := OutputName(path, outDir, time.Now())
	if err := writer.WriteFile(ctx, doc, out, wcfg); err != nil {
		res.Err = err
		return res
	}
	res.Output = out
	res.Pages = doc.PageCount()
	return res
}
