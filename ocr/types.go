package ocr

import "context"

// ImageFormat is the encoding of Input.Image.
type ImageFormat string

// ImageFormatPNG is what InputFromPixels produces for rendered pages.
const ImageFormatPNG ImageFormat = "image/png"

// Region is a rectangle of a rendered page in pixels, origin at the top
// left.
type Region struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsEmpty reports whether the region has non-positive dimensions.
func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Input is one rendered page handed to an Engine.
type Input struct {
	// ID is echoed back in Result.InputID; InputFromPixels sets "page-<n>".
	ID     string
	Image  []byte
	Format ImageFormat
	// PageIndex is the zero-based page the image was rendered from.
	PageIndex int
	// DPI is the resolution the page was rendered at, zero if unknown.
	DPI int
	// Languages are trained-data names such as "eng" or "deu". The first is
	// reported as the result language.
	Languages []string
	// Region limits recognition to part of the page; nil means all of it.
	Region *Region
	// Metadata carries engine-specific settings, see WithTesseractPSM.
	Metadata map[string]string
}

// TextWord is a recognized word with its page position.
type TextWord struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// TextLine is a run of words on one baseline.
type TextLine struct {
	Text       string
	Bounds     Region
	Words      []TextWord
	Confidence float64
}

// TextBlock is a paragraph or other group of lines.
type TextBlock struct {
	Text       string
	Bounds     Region
	Lines      []TextLine
	Confidence float64
}

// Result is the text recognized on one page.
type Result struct {
	InputID string
	// PlainText is the page text in reading order; JoinPages concatenates
	// it across pages.
	PlainText string
	// Blocks is filled when the engine reports layout.
	Blocks   []TextBlock
	Language string
}

// Engine recognizes the text of one page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, input Input) (Result, error)
}

// BatchEngine recognizes several pages in one call, reusing its setup
// between them. RecognizePages prefers it when available.
type BatchEngine interface {
	Engine
	RecognizeBatch(ctx context.Context, inputs []Input) ([]Result, error)
}
