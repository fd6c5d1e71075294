// Package raster holds device pixel buffers and the codecs used to embed
// them as image XObjects.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
)

// ColorSpace is the sample layout of a PixelBuffer.
type ColorSpace int

const (
	Gray ColorSpace = iota
	RGB
	CMYK
)

func (c ColorSpace) String() string {
	switch c {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case CMYK:
		return "cmyk"
	}
	return fmt.Sprintf("ColorSpace(%d)", int(c))
}

// Components returns the number of samples per pixel.
func (c ColorSpace) Components() int {
	switch c {
	case RGB:
		return 3
	case CMYK:
		return 4
	}
	return 1
}

// PDFName returns the device color space name, e.g. "DeviceGray".
func (c ColorSpace) PDFName() string {
	switch c {
	case RGB:
		return "DeviceRGB"
	case CMYK:
		return "DeviceCMYK"
	}
	return "DeviceGray"
}

// ParseColorSpace accepts "gray", "rgb" or "cmyk" in any case.
func ParseColorSpace(s string) (ColorSpace, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gray", "grey", "":
		return Gray, nil
	case "rgb":
		return RGB, nil
	case "cmyk":
		return CMYK, nil
	}
	return Gray, fmt.Errorf("unknown color space %q", s)
}

// PixelBuffer is a row-major image with 8-bit samples.
type PixelBuffer struct {
	Width      int
	Height     int
	ColorSpace ColorSpace
	Pix        []byte
}

// New returns a white buffer.
func New(width, height int, cs ColorSpace) *PixelBuffer {
	b := &PixelBuffer{
		Width:      width,
		Height:     height,
		ColorSpace: cs,
		Pix:        make([]byte, width*height*cs.Components()),
	}
	if cs != CMYK {
		for i := range b.Pix {
			b.Pix[i] = 0xff
		}
	}
	return b
}

// Stride returns the number of bytes per row.
func (b *PixelBuffer) Stride() int { return b.Width * b.ColorSpace.Components() }

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	c := *b
	c.Pix = append([]byte(nil), b.Pix...)
	return &c
}

// Image returns a view of the buffer as an image.Image. Gray and CMYK
// buffers share their samples; RGB samples are expanded to NRGBA.
func (b *PixelBuffer) Image() image.Image {
	r := image.Rect(0, 0, b.Width, b.Height)
	switch b.ColorSpace {
	case Gray:
		return &image.Gray{Pix: b.Pix, Stride: b.Stride(), Rect: r}
	case CMYK:
		return &image.CMYK{Pix: b.Pix, Stride: b.Stride(), Rect: r}
	}
	img := image.NewNRGBA(r)
	for i, j := 0, 0; i+2 < len(b.Pix); i, j = i+3, j+4 {
		img.Pix[j] = b.Pix[i]
		img.Pix[j+1] = b.Pix[i+1]
		img.Pix[j+2] = b.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// FromImage converts img to a buffer in the given color space. Transparent
// pixels are composed over white.
func FromImage(img image.Image, cs ColorSpace) *PixelBuffer {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	switch cs {
	case Gray:
		if g, ok := img.(*image.Gray); ok && g.Stride == w {
			return &PixelBuffer{Width: w, Height: h, ColorSpace: Gray, Pix: append([]byte(nil), g.Pix...)}
		}
	case CMYK:
		if c, ok := img.(*image.CMYK); ok && c.Stride == 4*w {
			return &PixelBuffer{Width: w, Height: h, ColorSpace: CMYK, Pix: append([]byte(nil), c.Pix...)}
		}
	}

	flat := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)

	out := New(w, h, cs)
	n := cs.Components()
	for i, j := 0, 0; i < len(flat.Pix); i, j = i+4, j+n {
		r, g, b := flat.Pix[i], flat.Pix[i+1], flat.Pix[i+2]
		switch cs {
		case Gray:
			out.Pix[j] = color.GrayModel.Convert(color.RGBA{r, g, b, 0xff}).(color.Gray).Y
		case RGB:
			out.Pix[j], out.Pix[j+1], out.Pix[j+2] = r, g, b
		case CMYK:
			c, m, y, k := color.RGBToCMYK(r, g, b)
			out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = c, m, y, k
		}
	}
	return out
}
