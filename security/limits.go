package security

import "time"

// Limits defines security boundaries for parsing and processing PDFs.
// These limits help prevent resource exhaustion (zip bombs, stack overflows).
type Limits struct {
	// Maximum decompressed stream size. Default: 256 MB.
	MaxDecompressedSize int64

	// Maximum indirect reference depth. Default: 100.
	MaxIndirectDepth int

	// Maximum XRef chain depth (Prev entries). Default: 50.
	MaxXRefDepth int

	// Maximum form XObject nesting while rendering. Default: 20.
	MaxXObjectDepth int

	// Maximum width*height of a rendered page, in pixels. Default: 2^27.
	MaxPixels int64

	// Maximum string length (bytes). Default: 10 MB.
	MaxStringLength int64

	// Maximum raw stream length (bytes). Default: 256 MB.
	MaxStreamLength int64

	// Maximum decode time per stream. Default: 30s.
	MaxDecodeTime time.Duration

	// Maximum total parse time. Default: 5m.
	MaxParseTime time.Duration
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDecompressedSize: 256 * 1024 * 1024,
		MaxIndirectDepth:    100,
		MaxXRefDepth:        50,
		MaxXObjectDepth:     20,
		MaxPixels:           1 << 27,
		MaxStringLength:     10 * 1024 * 1024,
		MaxStreamLength:     256 * 1024 * 1024,
		MaxDecodeTime:       30 * time.Second,
		MaxParseTime:        5 * time.Minute,
	}
}
