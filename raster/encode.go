package raster

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"image/png"

	"github.com/sfdeloach/pdf-tools/filters"
)

// Compression selects the codec of embedded page images.
type Compression int

const (
	// CompressionPNG is lossless Flate with PNG row predictors.
	CompressionPNG Compression = iota
	// CompressionJPEG is baseline DCT at JPEGQuality.
	CompressionJPEG
)

// JPEGQuality is the quality used for CompressionJPEG.
const JPEGQuality = 85

func (c Compression) String() string {
	if c == CompressionJPEG {
		return "jpeg"
	}
	return "png"
}

// Encoded is an image stream payload ready to be placed in an XObject.
type Encoded struct {
	Data       []byte
	Filter     string // FlateDecode or DCTDecode
	Predictor  bool   // DecodeParms /Predictor 15 applies
	Width      int
	Height     int
	ColorSpace ColorSpace
}

// Encode compresses b. JPEG has no CMYK encoder here, so CMYK buffers are
// converted to RGB first under CompressionJPEG.
func Encode(b *PixelBuffer, c Compression) (*Encoded, error) {
	if b.Width <= 0 || b.Height <= 0 {
		return nil, fmt.Errorf("empty pixel buffer %dx%d", b.Width, b.Height)
	}
	if len(b.Pix) != b.Stride()*b.Height {
		return nil, fmt.Errorf("pixel buffer has %d samples, want %d", len(b.Pix), b.Stride()*b.Height)
	}
	switch c {
	case CompressionJPEG:
		if b.ColorSpace == CMYK {
			b = FromImage(b.Image(), RGB)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, b.Image(), &jpeg.Options{Quality: JPEGQuality}); err != nil {
			return nil, fmt.Errorf("jpeg encode: %w", err)
		}
		return &Encoded{Data: buf.Bytes(), Filter: "DCTDecode", Width: b.Width, Height: b.Height, ColorSpace: b.ColorSpace}, nil
	default:
		data, err := filters.FlateEncode(filters.PNGPredict(b.Pix, b.Width, b.ColorSpace.Components()), 0)
		if err != nil {
			return nil, fmt.Errorf("flate encode: %w", err)
		}
		return &Encoded{Data: data, Filter: "FlateDecode", Predictor: true, Width: b.Width, Height: b.Height, ColorSpace: b.ColorSpace}, nil
	}
}

// PNG encodes b as a PNG file, the input format of the OCR engine.
func PNG(b *PixelBuffer) ([]byte, error) {
	img := b.Image()
	if b.ColorSpace == CMYK {
		img = FromImage(img, RGB).Image()
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
