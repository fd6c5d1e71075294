// Package tesseract registers a gosseract backed engine as the default OCR
// engine. It requires libtesseract and the trained data for the requested
// languages at run time.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/sfdeloach/pdf-tools/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// DefaultLanguage is used when an input carries no language hints.
const DefaultLanguage = "eng"

// Engine implements ocr.Engine and ocr.BatchEngine on top of gosseract.
type Engine struct {
	clientFactory func() *gosseract.Client
}

// New constructs a Tesseract-backed OCR engine.
func New() *Engine {
	return &Engine{clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize performs OCR on a single image input.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.clientFactory()
	defer c.Close()
	return e.recognizeWithClient(ctx, c, in)
}

// RecognizeBatch processes inputs sequentially with a fresh client per page
// so variables set for one page do not leak into the next.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	for _, in := range inputs {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		c := e.clientFactory()
		res, err := e.recognizeWithClient(ctx, c, in)
		c.Close()
		if err != nil {
			return nil, fmt.Errorf("recognize %s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func (e *Engine) recognizeWithClient(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	imgData, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(imgData); err != nil {
		return ocr.Result{}, fmt.Errorf("set image: %w", err)
	}
	langs := in.Languages
	if len(langs) == 0 {
		langs = []string{DefaultLanguage}
	}
	if err := c.SetLanguage(langs...); err != nil {
		return ocr.Result{}, fmt.Errorf("set languages: %w", err)
	}
	if in.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(in.DPI)); err != nil {
			return ocr.Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range in.Metadata {
		if err := c.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return ocr.Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	words, avgConf := extractWords(c)
	bounds := mergeBounds(words)
	block := ocr.TextBlock{
		Text:       plain,
		Bounds:     bounds,
		Lines:      []ocr.TextLine{{Text: plain, Bounds: bounds, Words: words, Confidence: avgConf}},
		Confidence: avgConf,
	}

	return ocr.Result{
		InputID:   in.ID,
		PlainText: plain,
		Blocks:    []ocr.TextBlock{block},
		Language:  langs[0],
	}, nil
}

func extractWords(c *gosseract.Client) ([]ocr.TextWord, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}
	words := make([]ocr.TextWord, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		words = append(words, ocr.TextWord{
			Text:       b.Word,
			Bounds:     ocr.Region{X: float64(b.Box.Min.X), Y: float64(b.Box.Min.Y), Width: float64(b.Box.Dx()), Height: float64(b.Box.Dy())},
			Confidence: conf,
		})
	}
	if len(words) == 0 {
		return words, 0
	}
	return words, sum / float64(len(words))
}

func mergeBounds(words []ocr.TextWord) ocr.Region {
	if len(words) == 0 {
		return ocr.Region{}
	}
	minX, minY := math.MaxFloat64, math.MaxFloat64
	var maxX, maxY float64
	for _, w := range words {
		minX = math.Min(minX, w.Bounds.X)
		minY = math.Min(minY, w.Bounds.Y)
		maxX = math.Max(maxX, w.Bounds.X+w.Bounds.Width)
		maxY = math.Max(maxY, w.Bounds.Y+w.Bounds.Height)
	}
	return ocr.Region{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func cropImage(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X)),
		int(math.Round(region.Y)),
		int(math.Round(region.X+region.Width)),
		int(math.Round(region.Y+region.Height)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("region outside image bounds")
	}
	subImg, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("image does not support sub-image")
	}
	cropped := subImg.SubImage(rect)
	var buf bytes.Buffer
	if err := png.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), nil
}
