// Package optimize compacts a document for output: unreachable objects are
// dropped, the survivors renumbered and their streams deflated.
package optimize

import (
	"context"
	"fmt"
	"time"

	"github.com/sfdeloach/pdf-tools/ir/semantic"
	"github.com/sfdeloach/pdf-tools/observability"
)

type Config struct {
	// CombineDuplicateStreams folds byte-identical streams, e.g. a font
	// embedded by every merged source, into one object.
	CombineDuplicateStreams bool
	CompressStreams         bool
	// CompressionLevel is a compress/zlib level; 0 means the default.
	CompressionLevel int
	Logger           observability.Logger
}

// DefaultConfig compresses and deduplicates streams.
func DefaultConfig() Config {
	return Config{CombineDuplicateStreams: true, CompressStreams: true}
}

type Optimizer struct {
	config Config
	logger observability.Logger
}

func New(config Config) *Optimizer {
	return &Optimizer{config: config, logger: observability.OrNop(config.Logger)}
}

// Optimize returns the compacted copy of doc. doc itself is not modified.
func (o *Optimizer) Optimize(ctx context.Context, doc *semantic.Document) (*Collected, error) {
	start := time.Now()
	out, err := Collect(ctx, doc, o.config.CombineDuplicateStreams)
	if err != nil {
		return nil, fmt.Errorf("failed to collect garbage: %w", err)
	}
	compressed := 0
	if o.config.CompressStreams {
		compressed, err = CompressStreams(ctx, out.Store, o.config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to compress streams: %w", err)
		}
	}
	o.logger.Debug("optimized document",
		observability.String("source", doc.Source),
		observability.Int(observability.MetricObjectCount, out.Store.Len()),
		observability.Int(observability.MetricDroppedCount, out.Dropped),
		observability.Int("pdf.gc.merged", out.Merged),
		observability.Int64(observability.MetricReclaimedSize, out.Reclaimed),
		observability.Int("pdf.streams.compressed", compressed),
		observability.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
