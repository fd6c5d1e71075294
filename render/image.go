package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"io"

	"golang.org/x/image/ccitt"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/sfdeloach/pdf-tools/contentstream"
	"github.com/sfdeloach/pdf-tools/filters"
	"github.com/sfdeloach/pdf-tools/ir/raw"
)

// maxImagePixels bounds the size of a decoded image.
const maxImagePixels = 1 << 26

var errUnsupported = errors.New("unsupported image")

// image decodes an image XObject, caching the result for repeated use.
func (r *renderer) image(ctx context.Context, st *raw.StreamObj) (image.Image, error) {
	if img, ok := r.images[st]; ok {
		return img, nil
	}
	img, err := decodeImage(ctx, r.store, st.Dict, st)
	if err != nil {
		return nil, err
	}
	r.images[st] = img
	return img, nil
}

func (r *renderer) inlineImage(ctx context.Context, ec *contentstream.ExecutionContext, op contentstream.Operation) {
	if len(op.Operands) != 1 {
		return
	}
	dict, ok := op.Operands[0].(*raw.DictObj)
	if !ok {
		return
	}
	dict = expandInline(dict)
	img, err := decodeImage(ctx, r.store, dict, raw.NewStream(dict, op.ImageData))
	if err != nil {
		r.logger.Warn("inline image skipped")
		return
	}
	r.drawImage(ec, img)
}

var inlineKeys = map[string]string{
	"W": "Width", "H": "Height", "BPC": "BitsPerComponent", "CS": "ColorSpace",
	"F": "Filter", "DP": "DecodeParms", "IM": "ImageMask", "D": "Decode", "I": "Interpolate",
}

var inlineNames = map[string]string{
	"G": "DeviceGray", "RGB": "DeviceRGB", "CMYK": "DeviceCMYK", "I": "Indexed",
	"AHx": "ASCIIHexDecode", "A85": "ASCII85Decode", "LZW": "LZWDecode", "Fl": "FlateDecode",
	"RL": "RunLengthDecode", "CCF": "CCITTFaxDecode", "DCT": "DCTDecode",
}

// expandInline rewrites the abbreviated keys and names of an inline image
// dictionary.
func expandInline(d *raw.DictObj) *raw.DictObj {
	out := raw.Dict()
	for _, k := range d.Keys() {
		key := k.Value()
		if long, ok := inlineKeys[key]; ok {
			key = long
		}
		out.Put(key, expandName(d.Lookup(k.Value())))
	}
	return out
}

func expandName(obj raw.Object) raw.Object {
	switch t := obj.(type) {
	case raw.NameObj:
		if long, ok := inlineNames[t.Val]; ok {
			return raw.NameLiteral(long)
		}
	case *raw.ArrayObj:
		out := raw.NewArray()
		for _, it := range t.Items {
			out.Append(expandName(it))
		}
		return out
	}
	return obj
}

// drawImage maps the image onto the unit square of the current CTM. Image
// row 0 is the top edge of the square.
func (r *renderer) drawImage(ec *contentstream.ExecutionContext, img image.Image) {
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	if w == 0 || h == 0 {
		return
	}
	m := ec.State.CTM
	s2d := f64.Aff3{
		m[0] / w, -m[2] / h, m[2] + m[4],
		m[1] / w, -m[3] / h, m[3] + m[5],
	}
	var opts *xdraw.Options
	if a := ec.State.FillAlpha; a < 1 {
		opts = &xdraw.Options{SrcMask: image.NewUniform(color.Alpha{A: unit(a)})}
	}
	if mask, ok := img.(*stencil); ok {
		// stencil masks paint the fill color where the mask is set
		colored := image.NewNRGBA(mask.Rect)
		draw.DrawMask(colored, colored.Rect, image.NewUniform(toColor(ec.State.FillColor, 1)), image.Point{}, mask.Alpha, mask.Rect.Min, draw.Src)
		img = colored
	}
	xdraw.BiLinear.Transform(r.img, s2d, img, b, xdraw.Over, opts)
}

// stencil is a decoded /ImageMask.
type stencil struct {
	*image.Alpha
}

// imageSpace describes the sample layout of an image color space.
type imageSpace struct {
	n       int    // components per sample
	base    int    // components of the base space of an Indexed space
	palette []byte // Indexed lookup table
}

func parseSpace(ctx context.Context, store *raw.Store, obj raw.Object) (imageSpace, error) {
	obj = store.Resolve(obj)
	if name, ok := obj.(raw.NameObj); ok {
		switch name.Val {
		case "DeviceGray", "CalGray", "G":
			return imageSpace{n: 1}, nil
		case "DeviceRGB", "CalRGB", "RGB":
			return imageSpace{n: 3}, nil
		case "DeviceCMYK", "CMYK":
			return imageSpace{n: 4}, nil
		}
		return imageSpace{}, fmt.Errorf("%w: color space %s", errUnsupported, name.Val)
	}
	arr, ok := obj.(*raw.ArrayObj)
	if !ok || arr.Len() == 0 {
		return imageSpace{}, fmt.Errorf("%w: missing color space", errUnsupported)
	}
	family, _ := store.ResolveName(arr.Items[0])
	switch family {
	case "CalGray":
		return imageSpace{n: 1}, nil
	case "CalRGB", "Lab":
		return imageSpace{n: 3}, nil
	case "ICCBased":
		if arr.Len() > 1 {
			if st, ok := store.ResolveStream(arr.Items[1]); ok {
				if n, ok := store.ResolveNumber(st.Dict.Lookup("N")); ok && (n == 1 || n == 3 || n == 4) {
					return imageSpace{n: int(n)}, nil
				}
			}
		}
	case "Indexed", "I":
		if arr.Len() != 4 {
			break
		}
		base, err := parseSpace(ctx, store, arr.Items[1])
		if err != nil || base.palette != nil {
			break
		}
		var lookup []byte
		switch t := store.Resolve(arr.Items[3]).(type) {
		case raw.StringObj:
			lookup = t.Bytes
		case *raw.StreamObj:
			lookup, err = filters.DecodeStream(ctx, t, store.Resolve)
			if err != nil {
				return imageSpace{}, err
			}
		}
		return imageSpace{n: 1, base: base.n, palette: lookup}, nil
	}
	return imageSpace{}, fmt.Errorf("%w: color space %s", errUnsupported, family)
}

func decodeImage(ctx context.Context, store *raw.Store, dict *raw.DictObj, st *raw.StreamObj) (image.Image, error) {
	num := func(key string) int {
		v, _ := store.ResolveNumber(dict.Lookup(key))
		return int(v)
	}
	width, height := num("Width"), num("Height")
	if width <= 0 || height <= 0 || width > maxImagePixels || height > maxImagePixels || width*height > maxImagePixels {
		return nil, fmt.Errorf("%w: size %dx%d", errUnsupported, width, height)
	}

	data, codec, params, err := filters.ImageData(ctx, st, store.Resolve)
	if err != nil {
		return nil, err
	}
	switch codec {
	case "":
	case "DCTDecode":
		return jpeg.Decode(bytes.NewReader(data))
	case "CCITTFaxDecode":
		data, err = decodeCCITT(data, params, width, height)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: filter %s", errUnsupported, codec)
	}

	invert := false
	if d, ok := store.ResolveArray(dict.Lookup("Decode")); ok && d.Len() >= 2 {
		lo, _ := store.ResolveNumber(d.Items[0])
		hi, _ := store.ResolveNumber(d.Items[1])
		invert = lo > hi
	}

	if mask, ok := store.Resolve(dict.Lookup("ImageMask")).(raw.BoolObj); ok && mask.V {
		samples := unpack(data, width, height, 1, 1)
		a := image.NewAlpha(image.Rect(0, 0, width, height))
		for i, v := range samples {
			// sample 0 paints unless the decode array is inverted
			if (v == 0) != invert {
				a.Pix[i] = 0xff
			}
		}
		return &stencil{a}, nil
	}

	bpc := num("BitsPerComponent")
	if bpc == 0 {
		bpc = 8
	}
	space, err := parseSpace(ctx, store, dict.Lookup("ColorSpace"))
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)

	if space.palette != nil {
		idx := unpackRaw(data, width, height, 1, bpc)
		out := image.NewNRGBA(rect)
		for i, k := range idx {
			off := k * space.base
			var c [4]byte
			if off+space.base <= len(space.palette) {
				copy(c[:], space.palette[off:off+space.base])
			}
			out.Pix[4*i], out.Pix[4*i+1], out.Pix[4*i+2], out.Pix[4*i+3] = sampleRGB(c[:space.base])
		}
		return out, nil
	}

	samples := unpack(data, width, height, space.n, bpc)
	if invert {
		for i := range samples {
			samples[i] = 0xff - samples[i]
		}
	}
	switch space.n {
	case 1:
		return &image.Gray{Pix: samples, Stride: width, Rect: rect}, nil
	case 4:
		return &image.CMYK{Pix: samples, Stride: 4 * width, Rect: rect}, nil
	}
	out := image.NewNRGBA(rect)
	for i := 0; i < width*height; i++ {
		copy(out.Pix[4*i:], samples[3*i:3*i+3])
		out.Pix[4*i+3] = 0xff
	}
	return out, nil
}

func sampleRGB(c []byte) (r, g, b, a byte) {
	switch len(c) {
	case 1:
		return c[0], c[0], c[0], 0xff
	case 4:
		r, g, b := color.CMYKToRGB(c[0], c[1], c[2], c[3])
		return r, g, b, 0xff
	case 3:
		return c[0], c[1], c[2], 0xff
	}
	return 0, 0, 0, 0xff
}

// unpackRaw returns width*height*n sample values of bpc bits each. Rows
// start on byte boundaries; missing data reads as zero.
func unpackRaw(data []byte, width, height, n, bpc int) []int {
	out := make([]int, width*height*n)
	rowBits := width * n * bpc
	rowBytes := (rowBits + 7) / 8
	for y := 0; y < height; y++ {
		row := data[min(len(data), y*rowBytes):min(len(data), (y+1)*rowBytes)]
		for i := 0; i < width*n; i++ {
			out[y*width*n+i] = readBits(row, i*bpc, bpc)
		}
	}
	return out
}

func readBits(row []byte, bit, bpc int) int {
	if bpc == 16 {
		if i := bit / 8; i+1 < len(row) {
			return int(row[i])<<8 | int(row[i+1])
		}
		return 0
	}
	i := bit / 8
	if i >= len(row) {
		return 0
	}
	if bpc == 8 {
		return int(row[i])
	}
	shift := 8 - bpc - bit%8
	return int(row[i]>>shift) & (1<<bpc - 1)
}

// unpack scales the samples to 8 bits.
func unpack(data []byte, width, height, n, bpc int) []byte {
	if bpc == 8 && len(data) >= width*height*n {
		return append([]byte(nil), data[:width*height*n]...)
	}
	vals := unpackRaw(data, width, height, n, bpc)
	maxVal := 1<<bpc - 1
	out := make([]byte, len(vals))
	for i, v := range vals {
		out[i] = byte(v * 255 / maxVal)
	}
	return out
}

func decodeCCITT(data []byte, params raw.Dictionary, width, height int) ([]byte, error) {
	intParam := func(key string, def int) int {
		if params == nil {
			return def
		}
		v, ok := params.Get(raw.NameLiteral(key))
		if !ok {
			return def
		}
		if n, ok := v.(raw.NumberObj); ok {
			return int(n.Int())
		}
		if b, ok := v.(raw.BoolObj); ok && b.V {
			return 1
		}
		return def
	}
	cols := intParam("Columns", 1728)
	if cols != width {
		return nil, fmt.Errorf("%w: CCITT columns %d for width %d", errUnsupported, cols, width)
	}
	mode := ccitt.Group3
	if intParam("K", 0) < 0 {
		mode = ccitt.Group4
	}
	opts := &ccitt.Options{Invert: intParam("BlackIs1", 0) == 1, Align: intParam("EncodedByteAlign", 0) == 1}
	rd := ccitt.NewReader(bytes.NewReader(data), ccitt.MSB, mode, cols, height, opts)
	out, err := io.ReadAll(rd)
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("ccitt: %w", err)
	}
	// 0 bits are black, as in a 1-bit DeviceGray image
	return out, nil
}
