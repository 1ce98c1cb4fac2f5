// Package signal generates the synthetic source signals used to build
// and validate blended records: tapered random signals, Ricker
// wavelets, and FFT-based convolution to shape them.
package signal

import (
	"fmt"
	"math"
	"math/rand"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Generator produces deterministic random signals from a seeded source.
// Successive calls advance the same random stream, so one generator
// yields mutually independent signals.
type Generator struct {
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed sets the deterministic random seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed))
	}
}

// NewGenerator creates a configured signal generator (default seed 1).
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{rng: rand.New(rand.NewSource(1))}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Uniform generates uniform random samples in [-amplitude, amplitude].
func (g *Generator) Uniform(amplitude float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("signal: samples must be > 0: %d", samples)
	}
	if amplitude < 0 {
		return nil, fmt.Errorf("signal: amplitude must be >= 0: %f", amplitude)
	}
	out := make([]float64, samples)
	for i := range out {
		out[i] = (g.rng.Float64()*2 - 1) * amplitude
	}
	return out, nil
}

// Gaussian generates zero-mean normal random samples with the given
// standard deviation.
func (g *Generator) Gaussian(sigma float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("signal: samples must be > 0: %d", samples)
	}
	if sigma < 0 {
		return nil, fmt.Errorf("signal: sigma must be >= 0: %f", sigma)
	}
	out := make([]float64, samples)
	for i := range out {
		out[i] = g.rng.NormFloat64() * sigma
	}
	return out, nil
}

// TaperedUniform generates uniform random samples with a raised-cosine
// taper applied over the given fraction of each end.
func (g *Generator) TaperedUniform(amplitude float64, samples int, fraction float64) ([]float64, error) {
	out, err := g.Uniform(amplitude, samples)
	if err != nil {
		return nil, err
	}
	if err := Taper(out, fraction); err != nil {
		return nil, err
	}
	return out, nil
}

// TaperedGaussian generates normal random samples with a raised-cosine
// taper applied over the given fraction of each end.
func (g *Generator) TaperedGaussian(sigma float64, samples int, fraction float64) ([]float64, error) {
	out, err := g.Gaussian(sigma, samples)
	if err != nil {
		return nil, err
	}
	if err := Taper(out, fraction); err != nil {
		return nil, err
	}
	return out, nil
}

// Taper applies a raised-cosine (Tukey) taper in place over the given
// fraction of each end of the signal. fraction 0 leaves the signal
// untouched; fraction 1 shades the whole signal.
func Taper(data []float64, fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("signal: taper fraction must be in [0, 1]: %f", fraction)
	}
	n := len(data)
	edge := int(fraction * float64(n) / 2)
	if edge == 0 {
		return nil
	}

	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	for i := 0; i < edge; i++ {
		w := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(edge)))
		coeffs[i] = w
		coeffs[n-1-i] = w
	}

	vecmath.MulBlockInPlace(data, coeffs)
	return nil
}

// Ricker generates a Ricker wavelet with the given peak frequency,
// centered in a buffer of the given length.
func Ricker(peakFreq, sampleRate float64, samples int) ([]float64, error) {
	if samples <= 0 {
		return nil, fmt.Errorf("signal: samples must be > 0: %d", samples)
	}
	if peakFreq <= 0 {
		return nil, fmt.Errorf("signal: peak frequency must be > 0: %f", peakFreq)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("signal: sample rate must be > 0: %f", sampleRate)
	}

	out := make([]float64, samples)
	center := float64(samples-1) / 2
	for i := range out {
		t := (float64(i) - center) / sampleRate
		a := math.Pi * math.Pi * peakFreq * peakFreq * t * t
		out[i] = (1 - 2*a) * math.Exp(-a)
	}
	return out, nil
}

// Convolve returns the full linear convolution of x and kernel
// (length len(x)+len(kernel)-1), computed via FFT.
func Convolve(x, kernel []float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("signal: empty input")
	}
	if len(kernel) == 0 {
		return nil, fmt.Errorf("signal: empty kernel")
	}

	outLen := len(x) + len(kernel) - 1
	fftSize := nextPowerOf2(outLen)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("signal: failed to create FFT plan: %w", err)
	}

	xPadded := make([]complex128, fftSize)
	for i, v := range x {
		xPadded[i] = complex(v, 0)
	}
	kPadded := make([]complex128, fftSize)
	for i, v := range kernel {
		kPadded[i] = complex(v, 0)
	}

	if err := plan.Forward(xPadded, xPadded); err != nil {
		return nil, fmt.Errorf("signal: forward FFT failed: %w", err)
	}
	if err := plan.Forward(kPadded, kPadded); err != nil {
		return nil, fmt.Errorf("signal: forward FFT failed: %w", err)
	}

	for i := range xPadded {
		xPadded[i] *= kPadded[i]
	}

	if err := plan.Inverse(xPadded, xPadded); err != nil {
		return nil, fmt.Errorf("signal: inverse FFT failed: %w", err)
	}

	out := make([]float64, outLen)
	for i := range out {
		out[i] = real(xPadded[i])
	}
	return out, nil
}

// nextPowerOf2 returns the smallest power of two >= n.
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
