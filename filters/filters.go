package filters

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"context"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hhrutter/lzw"

	"github.com/sfdeloach/pdf-tools/ir/raw"
)

type Decoder interface {
	Name() string
	Decode(ctx context.Context, input []byte, params raw.Dictionary) ([]byte, error)
}

// ErrImageFilter reports that decoding stopped at an image codec. The data
// returned alongside it is the encoded image.
var ErrImageFilter = errors.New("image filter")

// imageFilters are codecs whose output is a picture rather than bytes; they
// are decoded by the renderer, not by the pipeline.
var imageFilters = map[string]bool{
	"DCTDecode":      true,
	"CCITTFaxDecode": true,
	"JBIG2Decode":    true,
	"JPXDecode":      true,
}

// IsImageFilter reports whether name is an image codec.
func IsImageFilter(name string) bool { return imageFilters[name] }

type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

// NewPipeline constructs a pipeline with provided decoders and limits.
func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// NewDefaultPipeline returns a pipeline with every supported decoder.
func NewDefaultPipeline(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		NewFlateDecoder(),
		NewLZWDecoder(),
		NewASCII85Decoder(),
		NewASCIIHexDecoder(),
		NewRunLengthDecoder(),
	}, limits)
}

type Limits struct {
	MaxDecompressedSize int64
	MaxDecodeTime       time.Duration
}

// DefaultLimits guards against decompression bombs.
func DefaultLimits() Limits {
	return Limits{MaxDecompressedSize: 512 << 20, MaxDecodeTime: 30 * time.Second}
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

// Decode applies filterNames in order. When an image filter is reached the
// data decoded so far is returned together with ErrImageFilter.
func (p *Pipeline) Decode(ctx context.Context, input []byte, filterNames []string, params []raw.Dictionary) ([]byte, error) {
	if p.limits.MaxDecodeTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.limits.MaxDecodeTime)
		defer cancel()
	}
	data := input
	for i, name := range filterNames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if IsImageFilter(name) {
			return data, fmt.Errorf("%w: %s", ErrImageFilter, name)
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, errors.New("unknown filter: " + name)
		}
		var param raw.Dictionary
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(ctx, data, param)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

type Registry struct{ decoders map[string]Decoder }

func (r *Registry) Register(d Decoder) {
	if r.decoders == nil {
		r.decoders = make(map[string]Decoder)
	}
	r.decoders[d.Name()] = d
}
func (r *Registry) Get(name string) (Decoder, bool) { d, ok := r.decoders[name]; return d, ok }

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func NewFlateDecoder() Decoder    { return flateDecoder{} }

// Decode inflates zlib data. Raw deflate data without the zlib header and
// truncated streams are accepted; whatever could be inflated is returned.
func (flateDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var r io.ReadCloser
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		r = flate.NewReader(bytes.NewReader(in))
	} else {
		r = zr
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && !tolerable(err) {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

// tolerable lists the read errors that damaged but partially readable data
// produces. Checksum mismatches are ignored as well.
func tolerable(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, zlib.ErrChecksum)
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func (lzwDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	earlyChange := intParam(params, "EarlyChange", 1)
	rc := lzw.NewReader(bytes.NewReader(in), earlyChange == 1)
	defer rc.Close()

	var out bytes.Buffer
	if _, err := io.Copy(&out, rc); err != nil && !tolerable(err) {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}
func NewLZWDecoder() Decoder { return lzwDecoder{} }

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	trimmed = bytes.TrimPrefix(trimmed, []byte("<~"))
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, 4*len(trimmed)+4)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}
func NewASCII85Decoder() Decoder { return ascii85Decoder{} }

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	digits := make([]byte, 0, len(in))
	for _, c := range in {
		if c == '>' {
			break
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == 0 {
			continue
		}
		digits = append(digits, c)
	}
	// odd length: the final digit is followed by an implicit 0
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	result := make([]byte, hex.DecodedLen(len(digits)))
	n, err := hex.Decode(result, digits)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}
func NewASCIIHexDecoder() Decoder { return asciiHexDecoder{} }

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(ctx context.Context, in []byte, params raw.Dictionary) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		n := int(in[i])
		i++
		switch {
		case n == 128:
			return out.Bytes(), nil
		case n < 128:
			end := i + n + 1
			if end > len(in) {
				end = len(in)
			}
			out.Write(in[i:end])
			i = end
		default:
			if i >= len(in) {
				return out.Bytes(), nil
			}
			out.Write(bytes.Repeat(in[i:i+1], 257-n))
			i++
		}
	}
	return out.Bytes(), nil
}
func NewRunLengthDecoder() Decoder { return runLengthDecoder{} }
