package assemble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sfdeloach/pdf-tools/builder"
	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/render"
)

// Rasterize replaces every page of src by a single image of its rendering.
// Each output page keeps the MediaBox and Rotate of its source page and
// paints nothing but the image. Pages are rendered on up to opts.Workers
// goroutines and added to the result in source order. The result carries
// no metadata. A page that fails to render, or whose rendering would
// exceed security.DefaultLimits().MaxPixels, fails the whole document.
func Rasterize(ctx context.Context, src *semantic.Document, opts Options) (*semantic.Document, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	log := opts.logger()
	rec := opts.recorder()
	pages := src.Pages()
	if len(pages) == 0 {
		return nil, &semantic.EmptyDocumentError{Source: src.Source}
	}
	start := time.Now()

	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := renderPages(rctx, pages, opts)

	dst := semantic.New()
	ready := make([]*raster.PixelBuffer, len(pages))
	next := 0
	for res := range results {
		if res.err != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("rasterize page %d: %w", res.index, res.err)
		}
		ready[res.index] = res.buf
		for next < len(pages) && ready[next] != nil {
			if err := embed(dst, pages[next], ready[next], opts.Compression); err != nil {
				return nil, fmt.Errorf("rasterize page %d: %w", next, err)
			}
			ready[next] = nil
			rec.Record(observability.Event{Kind: observability.EventPageDone, File: src.Source, Page: next, Pages: len(pages)})
			next++
		}
	}

	dst.ClearMetadata()
	log.Debug("rasterized document",
		observability.String("source", src.Source),
		observability.Int(observability.MetricPageCount, len(pages)),
		observability.Float64("dpi", opts.dpi()),
		observability.Duration(observability.MetricRenderTime, time.Since(start)),
	)
	return dst, nil
}

type rendered struct {
	index int
	buf   *raster.PixelBuffer
	err   error
}

// renderPages renders and filters pages concurrently. The returned channel
// has room for every page, so workers never block on it, and is closed once
// all of them have finished.
func renderPages(ctx context.Context, pages []*semantic.Page, opts Options) <-chan rendered {
	results := make(chan rendered, len(pages))
	sem := make(chan struct{}, opts.workers())
	filter := opts.filter()
	ropts := render.Options{DPI: opts.dpi(), ColorSpace: opts.ColorSpace, Logger: opts.logger()}

	var wg sync.WaitGroup
	for i, p := range pages {
		wg.Add(1)
		go func(i int, p *semantic.Page) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results <- rendered{index: i, err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			if err := ctx.Err(); err != nil {
				results <- rendered{index: i, err: err}
				return
			}

			results <- renderPage(ctx, i, p, ropts, filter)
		}(i, p)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

// renderPage turns a panic while rendering into an error so a malformed
// page cannot take down the other documents of a batch.
func renderPage(ctx context.Context, i int, p *semantic.Page, ropts render.Options, filter raster.Filter) (res rendered) {
	defer func() {
		if r := recover(); r != nil {
			res = rendered{index: i, err: fmt.Errorf("render: %v", r)}
		}
	}()
	buf, err := render.Render(ctx, p, ropts)
	if err != nil {
		return rendered{index: i, err: err}
	}
	return rendered{index: i, buf: filter.Apply(buf)}
}

func embed(dst *semantic.Document, src *semantic.Page, buf *raster.PixelBuffer, c raster.Compression) error {
	p, err := builder.EmbedImage(dst, buf, src.MediaBox, c)
	if err != nil {
		return err
	}
	if src.Rotate != 0 {
		if _, err := dst.SetRotate(p, src.Rotate); err != nil {
			return err
		}
	}
	return nil
}
