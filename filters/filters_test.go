package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	"errors"
	"testing"

	"github.com/hhrutter/lzw"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

func zlibBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()
	return buf.Bytes()
}

func predictorParams(predictor, colors, columns int) *raw.DictObj {
	params := raw.Dict()
	params.Set(raw.NameObj{Val: "Predictor"}, raw.NumberInt(int64(predictor)))
	params.Set(raw.NameObj{Val: "Colors"}, raw.NumberInt(int64(colors)))
	params.Set(raw.NameObj{Val: "BitsPerComponent"}, raw.NumberInt(8))
	params.Set(raw.NameObj{Val: "Columns"}, raw.NumberInt(int64(columns)))
	return params
}

func TestFlateDecode(t *testing.T) {
	dec := NewFlateDecoder()
	out, err := dec.Decode(context.Background(), zlibBytes(t, []byte("hello world")), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("no zlib header"))
	w.Close()

	out, err := NewFlateDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "no zlib header" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeTruncated(t *testing.T) {
	payload := make([]byte, 64<<10)
	x := uint32(1)
	for i := range payload {
		x = x*1664525 + 1013904223
		payload[i] = byte(x >> 24)
	}
	full := zlibBytes(t, payload)
	out, err := NewFlateDecoder().Decode(context.Background(), full[:len(full)-6], nil)
	if err != nil {
		t.Fatalf("truncated data should decode partially: %v", err)
	}
	if len(out) == 0 || !bytes.HasPrefix(payload, out) {
		t.Fatalf("unexpected partial output of %d bytes", len(out))
	}
}

func TestFlateDecodeWithPredictor(t *testing.T) {
	// PNG predictor row: filter byte 1 (Sub), then row bytes.
	comp := zlibBytes(t, []byte{1, 10, 12, 20})
	out, err := NewFlateDecoder().Decode(context.Background(), comp, predictorParams(12, 1, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 22, 42}
	if !bytes.Equal(out, want) {
		t.Fatalf("predictor output mismatch: got %v want %v", out, want)
	}
}

func TestPNGPredictorUpAndPaeth(t *testing.T) {
	rows := []byte{
		0, 5, 6, 7, // None
		2, 1, 1, 1, // Up
		4, 1, 1, 1, // Paeth
	}
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, rows), predictorParams(15, 1, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{5, 6, 7, 6, 7, 8, 7, 8, 9}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestTIFFPredictor(t *testing.T) {
	out, err := NewFlateDecoder().Decode(context.Background(), zlibBytes(t, []byte{10, 1, 1, 20, 2, 2}), predictorParams(2, 1, 3))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	want := []byte{10, 11, 12, 20, 22, 24}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestLZWDecode(t *testing.T) {
	var buf bytes.Buffer
	w := lzw.NewWriter(&buf, true)
	input := []byte("hello hello hello hello hello")
	if _, err := w.Write(input); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	out, err := NewLZWDecoder().Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, input) {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// literal run of 3 bytes (len=2), then repeat 'A' 2 times (len=255 => count=2), then EOD 128
	data := []byte{2, 'h', 'i', '!', 255, 'A', 128}
	out, err := NewRunLengthDecoder().Decode(context.Background(), data, nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hi!AA" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD_*#4DfTZ)+T~>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "Hello, World!" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("68 656c6c6f20776f726c6>"), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello worl`" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPipelineChainsFilters(t *testing.T) {
	inner := zlibBytes(t, []byte("chained"))
	hexed := []byte{}
	for _, b := range inner {
		hexed = append(hexed, "0123456789abcdef"[b>>4], "0123456789abcdef"[b&15])
	}
	hexed = append(hexed, '>')

	s := raw.NewStream(raw.Dict(), hexed)
	s.Dict.Put("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("FlateDecode")))
	out, err := DecodeStream(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "chained" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestImageDataStopsAtImageCodec(t *testing.T) {
	s := raw.NewStream(raw.Dict(), []byte("ffd8ff>"))
	s.Dict.Put("Filter", raw.NewArray(raw.NameLiteral("ASCIIHexDecode"), raw.NameLiteral("DCTDecode")))
	data, codec, _, err := ImageData(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("image data: %v", err)
	}
	if codec != "DCTDecode" || !bytes.Equal(data, []byte{0xff, 0xd8, 0xff}) {
		t.Fatalf("unexpected result codec=%q data=%v", codec, data)
	}
	if _, err := DecodeStream(context.Background(), s, nil); !errors.Is(err, ErrImageFilter) {
		t.Fatalf("expected ErrImageFilter, got %v", err)
	}
}

func TestUnknownFilter(t *testing.T) {
	p := NewDefaultPipeline(Limits{})
	if _, err := p.Decode(context.Background(), []byte("x"), []string{"Bogus"}, nil); err == nil {
		t.Fatalf("expected error for unknown filter")
	}
}

func TestDecompressedSizeLimit(t *testing.T) {
	p := NewDefaultPipeline(Limits{MaxDecompressedSize: 10})
	_, err := p.Decode(context.Background(), zlibBytes(t, bytes.Repeat([]byte{'a'}, 100)), []string{"FlateDecode"}, nil)
	if err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestFlateEncodeRoundTrip(t *testing.T) {
	enc, err := FlateEncode([]byte("round trip"), 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewFlateDecoder().Decode(context.Background(), enc, nil)
	if err != nil || string(out) != "round trip" {
		t.Fatalf("decode = %q, %v", out, err)
	}
}

func TestPNGPredictRoundTrip(t *testing.T) {
	const columns, colors = 7, 3
	data := make([]byte, columns*colors*5)
	for i := range data {
		data[i] = byte(i*i/3 + i%7)
	}
	enc := PNGPredict(data, columns, colors)
	if len(enc) != len(data)+5 {
		t.Fatalf("encoded length %d, want %d", len(enc), len(data)+5)
	}
	comp, err := FlateEncode(enc, 0)
	if err != nil {
		t.Fatal(err)
	}
	out, err := NewFlateDecoder().Decode(context.Background(), comp, predictorParams(15, colors, columns))
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("round trip mismatch")
	}
}
