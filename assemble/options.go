// Package assemble turns one or more source documents into a single output
// document under one of three policies: merge, rasterize or stamp. Batch
// drivers apply a policy to many files and report per-file results.
package assemble

import (
	"fmt"
	"math"
	"runtime"

	"github.com/sfdeloach/pdf-tools/ir/raw"
	"github.com/sfdeloach/pdf-tools/observability"
	"github.com/sfdeloach/pdf-tools/raster"
	"github.com/sfdeloach/pdf-tools/security"
)

// DefaultDPI is the rasterization resolution used when Options.DPI is zero.
const DefaultDPI = 100

// Options configures every policy. Fields a policy does not use are
// ignored.
type Options struct {
	// Rasterize
	DPI         float64
	ColorSpace  raster.ColorSpace
	Compression raster.Compression
	// NoiseLevel is the standard deviation of the Gaussian noise added to
	// every sample of a rendered page.
	NoiseLevel float64
	// Filter replaces the noise filter when set.
	Filter raster.Filter

	// Stamp
	Watermark      string
	Footer         string
	AddPageNumbers bool
	Keywords       string
	// Password enables encryption of the stamped document with this user
	// password.
	Password      string
	OwnerPassword string
	KeyLength     int
	Cipher        security.Cipher

	// InputPassword opens encrypted sources.
	InputPassword string
	// Workers bounds the number of pages, or of files in a batch, processed
	// at once. Zero means GOMAXPROCS.
	Workers int

	Logger   observability.Logger
	Recorder observability.Recorder
}

// DefaultOptions returns grayscale lossless rasterization at DefaultDPI
// without noise and 128-bit RC4 for encryption.
func DefaultOptions() Options {
	return Options{
		DPI:         DefaultDPI,
		ColorSpace:  raster.Gray,
		Compression: raster.CompressionPNG,
		KeyLength:   128,
		Cipher:      security.CipherRC4,
	}
}

// OptionError reports an Options field with an unusable value.
type OptionError struct {
	Field string
	Value float64
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("assemble: invalid %s %v", e.Field, e.Value)
}

// validate checks the rasterization settings.
func (o Options) validate() error {
	if o.DPI < 0 || math.IsNaN(o.DPI) || math.IsInf(o.DPI, 0) {
		return &OptionError{Field: "DPI", Value: o.DPI}
	}
	if o.NoiseLevel < 0 || math.IsNaN(o.NoiseLevel) || math.IsInf(o.NoiseLevel, 0) {
		return &OptionError{Field: "NoiseLevel", Value: o.NoiseLevel}
	}
	return nil
}

func (o Options) logger() observability.Logger { return observability.OrNop(o.Logger) }

func (o Options) recorder() observability.Recorder {
	if o.Recorder == nil {
		return observability.NopRecorder{}
	}
	return o.Recorder
}

func (o Options) dpi() float64 {
	if o.DPI == 0 {
		return DefaultDPI
	}
	return o.DPI
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (o Options) filter() raster.Filter {
	if o.Filter != nil {
		return o.Filter
	}
	return raster.NoiseFilter{Sigma: o.NoiseLevel}
}

// encryption returns the security settings for stamped output, or nil when
// no password was given.
func (o Options) encryption() *security.Config {
	if o.Password == "" {
		return nil
	}
	return &security.Config{
		UserPassword:  o.Password,
		OwnerPassword: o.OwnerPassword,
		KeyLength:     o.KeyLength,
		Cipher:        o.Cipher,
		Permissions:   raw.AllPermissions(),
	}
}
