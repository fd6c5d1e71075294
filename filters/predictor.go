package filters

import (
	"errors"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

func intParam(params raw.Dictionary, key string, def int) int {
	if params == nil {
		return def
	}
	v, ok := params.Get(raw.NameLiteral(key))
	if !ok {
		return def
	}
	if n, ok := v.(raw.Number); ok {
		return int(n.Int())
	}
	return def
}

// applyPredictor undoes the TIFF (2) or PNG (10-15) predictor described by
// the DecodeParms of Flate and LZW streams.
func applyPredictor(data []byte, params raw.Dictionary) ([]byte, error) {
	predictor := intParam(params, "Predictor", 1)
	if predictor <= 1 {
		return data, nil
	}
	colors := intParam(params, "Colors", 1)
	bpc := intParam(params, "BitsPerComponent", 8)
	columns := intParam(params, "Columns", 1)
	if colors < 1 || bpc < 1 || columns < 1 {
		return nil, errors.New("invalid predictor parameters")
	}
	bpp := (colors*bpc + 7) / 8
	rowLen := (colors*bpc*columns + 7) / 8
	if predictor == 2 {
		return tiffPredict(data, rowLen, colors, bpc), nil
	}
	return pngPredict(data, rowLen, bpp)
}

func tiffPredict(data []byte, rowLen, colors, bpc int) []byte {
	if bpc != 8 {
		return data
	}
	out := append([]byte(nil), data...)
	for row := 0; row+rowLen <= len(out); row += rowLen {
		for i := colors; i < rowLen; i++ {
			out[row+i] += out[row+i-colors]
		}
	}
	return out
}

func pngPredict(data []byte, rowLen, bpp int) ([]byte, error) {
	stride := rowLen + 1
	rows := len(data) / stride
	out := make([]byte, 0, rows*rowLen)
	prev := make([]byte, rowLen)
	cur := make([]byte, rowLen)
	for r := 0; r < rows; r++ {
		line := data[r*stride : (r+1)*stride]
		filter := line[0]
		copy(cur, line[1:])
		switch filter {
		case 0:
		case 1:
			for i := bpp; i < rowLen; i++ {
				cur[i] += cur[i-bpp]
			}
		case 2:
			for i := 0; i < rowLen; i++ {
				cur[i] += prev[i]
			}
		case 3:
			for i := 0; i < rowLen; i++ {
				var left byte
				if i >= bpp {
					left = cur[i-bpp]
				}
				cur[i] += byte((int(left) + int(prev[i])) / 2)
			}
		case 4:
			for i := 0; i < rowLen; i++ {
				var a, c byte
				if i >= bpp {
					a = cur[i-bpp]
					c = prev[i-bpp]
				}
				cur[i] += paeth(a, prev[i], c)
			}
		default:
			return nil, errors.New("unknown png predictor row filter")
		}
		out = append(out, cur...)
		prev, cur = cur, prev
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
