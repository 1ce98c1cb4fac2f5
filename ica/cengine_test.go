package ica

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-ica/internal/testutil"
)

// cRefMixing is the reference 3-sensor / 2-source complex geometry
// used by the narrowband separation tests.
var cRefMixing = [][]complex128{
	{complex(1.0, 0.2), complex(0.4, -0.3)},
	{complex(0.2, -0.5), complex(1.0, 0.1)},
	{complex(0.7, 0.4), complex(0.3, 0.6)},
}

// makeComplexRecord synthesizes constant-modulus random-phase sources
// and blends them through the given complex mixing matrix.
func makeComplexRecord(t *testing.T, a [][]complex128, samples int, seed int64) (mixture, sources [][]complex128) {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	nsrc := len(a[0])
	sources = make([][]complex128, nsrc)
	for c := range sources {
		sources[c] = make([]complex128, samples)
		for i := range sources[c] {
			phase := rng.Float64() * 2 * math.Pi
			sources[c][i] = cmplx.Rect(1, phase)
		}
	}

	mixture = make([][]complex128, len(a))
	for r := range mixture {
		mixture[r] = make([]complex128, samples)
		for i := 0; i < samples; i++ {
			var sum complex128
			for c := 0; c < nsrc; c++ {
				sum += a[r][c] * sources[c][i]
			}
			mixture[r][i] = sum
		}
	}
	return mixture, sources
}

func TestCEngineSeparatesNarrowbandRecord(t *testing.T) {
	mixture, _ := makeComplexRecord(t, cRefMixing, 2000, 42)

	e, err := NewComplex(mixture, 2, WithSeed(7))
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	if err := e.SetKnownMixing(cRefMixing); err != nil {
		t.Fatalf("SetKnownMixing failed: %v", err)
	}

	res, err := e.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Converged {
		t.Error("expected convergence")
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 deblended sources, got %d", len(res.Sources))
	}
	for c, src := range res.Sources {
		if len(src) != 2000 {
			t.Errorf("source %d: expected 2000 samples, got %d", c, len(src))
		}
		for i, v := range src {
			if cmplx.IsNaN(v) || cmplx.IsInf(v) {
				t.Fatalf("source %d sample %d: non-finite value %v", c, i, v)
			}
		}
	}

	if len(res.UnmixingError) != 1 {
		t.Fatalf("expected 1 per-bin score, got %d", len(res.UnmixingError))
	}
	if res.UnmixingError[0] > 0.3 {
		t.Errorf("separation error %v too large", res.UnmixingError[0])
	}
}

func TestCEngineMultipleBins(t *testing.T) {
	const bins = 3
	mixture, _ := makeComplexRecord(t, cRefMixing, 3000, 19)

	e, err := NewComplex(mixture, 2, WithBins(bins), WithSeed(5))
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	if err := e.SetKnownMixing(cRefMixing); err != nil {
		t.Fatalf("SetKnownMixing failed: %v", err)
	}

	res, err := e.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.Unmixing) != bins || len(res.UnmixingError) != bins {
		t.Fatalf("expected %d per-bin outputs, got %d/%d", bins, len(res.Unmixing), len(res.UnmixingError))
	}
	for b, score := range res.UnmixingError {
		if score > 0.3 {
			t.Errorf("bin %d: separation error %v too large", b, score)
		}
	}
}

func TestCEngineRestoresMixture(t *testing.T) {
	mixture, _ := makeComplexRecord(t, cRefMixing, 600, 3)
	original := make([][]complex128, len(mixture))
	for r := range mixture {
		original[r] = make([]complex128, len(mixture[r]))
		copy(original[r], mixture[r])
	}

	e, err := NewComplex(mixture, 2, WithBins(2))
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for r := range mixture {
		for i := range mixture[r] {
			if cmplx.Abs(mixture[r][i]-original[r][i]) > 1e-12 {
				t.Fatalf("sensor %d sample %d: mixture not restored", r, i)
			}
		}
	}
}

func TestCEngineWhitenedDataHasUnitCovariance(t *testing.T) {
	mixture, _ := makeComplexRecord(t, cRefMixing, 1200, 9)

	e, err := NewComplex(mixture, 2)
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	e.removeMean()
	if err := e.whiten(); err != nil {
		t.Fatalf("whiten failed: %v", err)
	}

	xw := e.xw[0]
	n := float64(len(xw[0]))
	cov := make([][]complex128, 2)
	for i := range xw {
		cov[i] = make([]complex128, 2)
		for j := range xw {
			var sum complex128
			for t := range xw[i] {
				sum += xw[i][t] * cmplx.Conj(xw[j][t])
			}
			cov[i][j] = sum / complex(n, 0)
		}
	}
	testutil.RequireCIdentity(t, cov, 1e-9)
}

func TestCEngineDegenerateMixture(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	row := make([]complex128, 300)
	for i := range row {
		row[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	dup := make([]complex128, len(row))
	copy(dup, row)
	mixture := [][]complex128{row, dup}

	e, err := NewComplex(mixture, 2)
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	if _, err := e.Run(); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("expected ErrDegenerate for rank-deficient mixture, got %v", err)
	}
}

func TestNewComplexValidation(t *testing.T) {
	valid := [][]complex128{{1, 2, 3, 4}, {5, 6, 7, 8}}

	tests := []struct {
		name    string
		mixture [][]complex128
		sources int
		opts    []Option
	}{
		{"empty mixture", nil, 1, nil},
		{"ragged rows", [][]complex128{{1, 2}, {3}}, 1, nil},
		{"too many sources", valid, 3, nil},
		{"bins too fine", valid, 1, []Option{WithBins(3)}},
		{"magic sensor out of range", valid, 1, []Option{WithMagicSensor(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewComplex(tt.mixture, tt.sources, tt.opts...); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestCEngineReportsNonConvergence(t *testing.T) {
	mixture, _ := makeComplexRecord(t, cRefMixing, 2000, 42)

	e, err := NewComplex(mixture, 2, WithMaxIterations(1), WithTolerance(0), WithSeed(7))
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}
	if err := e.SetKnownMixing(cRefMixing); err != nil {
		t.Fatalf("SetKnownMixing failed: %v", err)
	}

	res, err := e.Run()
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Converged {
		t.Error("expected Converged=false at the iteration cap")
	}
	if res.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", res.Iterations)
	}
	if len(res.Sources) != 2 {
		t.Fatalf("expected 2 deblended sources, got %d", len(res.Sources))
	}
	for c, src := range res.Sources {
		for i, v := range src {
			if cmplx.IsNaN(v) || cmplx.IsInf(v) {
				t.Fatalf("source %d sample %d: non-finite value %v", c, i, v)
			}
		}
	}
	if len(res.UnmixingError) != 1 {
		t.Fatalf("expected 1 per-bin score, got %d", len(res.UnmixingError))
	}
	testutil.RequireFinite(t, res.UnmixingError)
}

func TestCEngineSetInitialUnmixing(t *testing.T) {
	mixture, _ := makeComplexRecord(t, cRefMixing, 800, 21)

	e, err := NewComplex(mixture, 2)
	if err != nil {
		t.Fatalf("NewComplex failed: %v", err)
	}

	if err := e.SetInitialUnmixing([][]complex128{{1, 0}}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for wrong shape, got %v", err)
	}
	if err := e.SetInitialUnmixing([][]complex128{{1, 0}, {1, 0}}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero column, got %v", err)
	}

	init := [][]complex128{{complex(1, 1), complex(0, 1)}, {complex(-1, 0), complex(2, 0)}}
	if err := e.SetInitialUnmixing(init); err != nil {
		t.Fatalf("SetInitialUnmixing failed: %v", err)
	}
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}
