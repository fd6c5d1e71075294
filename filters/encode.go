package filters

import (
	"bytes"
	"compress/zlib"
)

// FlateEncode compresses data with zlib at the given level
// (zlib.DefaultCompression when level is 0).
func FlateEncode(data []byte, level int) ([]byte, error) {
	if level == 0 {
		level = zlib.DefaultCompression
	}
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PNGPredict applies PNG row filters to 8-bit samples laid out in rows of
// columns*colors bytes, choosing per row the filter with the smallest sum
// of absolute differences. The output matches /Predictor 15.
func PNGPredict(data []byte, columns, colors int) []byte {
	rowLen := columns * colors
	if rowLen <= 0 {
		return nil
	}
	rows := len(data) / rowLen
	out := make([]byte, 0, rows*(rowLen+1))
	prev := make([]byte, rowLen)
	cand := make([][]byte, 5)
	for i := range cand {
		cand[i] = make([]byte, rowLen)
	}
	for r := 0; r < rows; r++ {
		cur := data[r*rowLen : (r+1)*rowLen]
		for i := 0; i < rowLen; i++ {
			var a, c byte
			if i >= colors {
				a = cur[i-colors]
				c = prev[i-colors]
			}
			b := prev[i]
			cand[0][i] = cur[i]
			cand[1][i] = cur[i] - a
			cand[2][i] = cur[i] - b
			cand[3][i] = cur[i] - byte((int(a)+int(b))/2)
			cand[4][i] = cur[i] - paeth(a, b, c)
		}
		best, bestSum := 0, -1
		for f, line := range cand {
			sum := 0
			for _, v := range line {
				sum += abs(int(int8(v)))
			}
			if bestSum < 0 || sum < bestSum {
				best, bestSum = f, sum
			}
		}
		out = append(out, byte(best))
		out = append(out, cand[best]...)
		prev = cur
	}
	return out
}
