package raster

import (
	"math"
	"math/rand/v2"
)

// Filter post-processes a rendered page before it is embedded.
type Filter interface {
	Apply(b *PixelBuffer) *PixelBuffer
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(*PixelBuffer) *PixelBuffer

func (f FilterFunc) Apply(b *PixelBuffer) *PixelBuffer { return f(b) }

// Identity returns its input.
var Identity Filter = FilterFunc(func(b *PixelBuffer) *PixelBuffer { return b })

// NoiseFilter adds independent Gaussian noise N(0, Sigma) to every sample
// and clamps the result to [0, 255]. A zero Sigma returns the input
// unchanged. A zero Seed draws a random seed per call.
type NoiseFilter struct {
	Sigma float64
	Seed  uint64
}

func (f NoiseFilter) Apply(b *PixelBuffer) *PixelBuffer {
	if f.Sigma == 0 {
		return b
	}
	seed := f.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := b.Clone()
	for i, v := range out.Pix {
		n := float64(v) + rng.NormFloat64()*f.Sigma
		out.Pix[i] = uint8(math.Round(min(255, max(0, n))))
	}
	return out
}

// Chain applies filters in order.
type Chain []Filter

func (c Chain) Apply(b *PixelBuffer) *PixelBuffer {
	for _, f := range c {
		b = f.Apply(b)
	}
	return b
}
