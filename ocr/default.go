package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/sfdeloach/pdf-tools/raster"
)

// PageBreak separates the text of consecutive pages in JoinPages.
const PageBreak = "\n\n--- Page Break ---\n\n"

var defaultEngine Engine = &noopEngine{}

// DefaultEngine returns the registered default OCR engine. Importing
// ocr/tesseract registers Tesseract; otherwise recognition yields no text.
func DefaultEngine() Engine {
	return defaultEngine
}

// SetDefaultEngine sets the library's default OCR engine.
func SetDefaultEngine(engine Engine) {
	defaultEngine = engine
}

// RecognizePages converts rendered pages to OCR inputs and invokes the
// provided engine. If the engine supports batch operation, it is used;
// otherwise calls are executed sequentially. Results are in page order.
func RecognizePages(ctx context.Context, engine Engine, pages []*raster.PixelBuffer, opts ...InputOption) ([]Result, error) {
	inputs := make([]Input, 0, len(pages))
	for i, buf := range pages {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		in, err := InputFromPixels(buf, i, opts...)
		if err != nil {
			return nil, fmt.Errorf("build input for page %d: %w", i, err)
		}
		inputs = append(inputs, in)
	}
	if b, ok := engine.(BatchEngine); ok {
		return b.RecognizeBatch(ctx, inputs)
	}
	results := make([]Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		res, err := engine.Recognize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// RecognizePage runs engine on a single rendered page.
func RecognizePage(ctx context.Context, engine Engine, buf *raster.PixelBuffer, page int, opts ...InputOption) (Result, error) {
	in, err := InputFromPixels(buf, page, opts...)
	if err != nil {
		return Result{}, err
	}
	res, err := engine.Recognize(ctx, in)
	if err != nil {
		return Result{}, fmt.Errorf("recognize %s: %w", in.ID, err)
	}
	return res, nil
}

// JoinPages concatenates the plain text of results separated by PageBreak.
func JoinPages(results []Result) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.PlainText
	}
	return strings.Join(texts, PageBreak)
}

type noopEngine struct{}

func (n noopEngine) Name() string {
	return "noop"
}

func (n noopEngine) Recognize(ctx context.Context, input Input) (Result, error) {
	return Result{InputID: input.ID}, nil
}
