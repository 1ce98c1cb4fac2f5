// Package testutil provides shared assertion helpers for the
// algo-ica test suites.
package testutil

import (
	"math"
	"math/cmplx"
	"testing"
)

// RequireSliceNearlyEqual fails t if got and want differ in length or
// if any element pair exceeds eps (absolute tolerance).
func RequireSliceNearlyEqual(t *testing.T, got, want []float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		diff := math.Abs(got[i] - want[i])
		if diff > eps {
			t.Fatalf("index %d: got %v, want %v (diff %v > eps %v)", i, got[i], want[i], diff, eps)
		}
	}
}

// RequireMatrixNearlyEqual fails t if got and want differ in shape or
// if any entry pair exceeds eps.
func RequireMatrixNearlyEqual(t *testing.T, got, want [][]float64, eps float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("row count mismatch: got %d, want %d", len(got), len(want))
	}
	for r := range got {
		if len(got[r]) != len(want[r]) {
			t.Fatalf("row %d length mismatch: got %d, want %d", r, len(got[r]), len(want[r]))
		}
		for c := range got[r] {
			diff := math.Abs(got[r][c] - want[r][c])
			if diff > eps {
				t.Fatalf("entry [%d][%d]: got %v, want %v (diff %v > eps %v)", r, c, got[r][c], want[r][c], diff, eps)
			}
		}
	}
}

// RequireIdentity fails t if m is not the identity matrix within eps.
func RequireIdentity(t *testing.T, m [][]float64, eps float64) {
	t.Helper()
	for r := range m {
		for c := range m[r] {
			want := 0.0
			if r == c {
				want = 1
			}
			if math.Abs(m[r][c]-want) > eps {
				t.Fatalf("entry [%d][%d]: got %v, want %v (eps %v)", r, c, m[r][c], want, eps)
			}
		}
	}
}

// RequireCIdentity fails t if the complex matrix m is not the identity
// within eps.
func RequireCIdentity(t *testing.T, m [][]complex128, eps float64) {
	t.Helper()
	for r := range m {
		for c := range m[r] {
			want := complex(0, 0)
			if r == c {
				want = 1
			}
			if cmplx.Abs(m[r][c]-want) > eps {
				t.Fatalf("entry [%d][%d]: got %v, want %v (eps %v)", r, c, m[r][c], want, eps)
			}
		}
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// MaxAbsDiff returns the maximum absolute difference between two
// equally long slices.
func MaxAbsDiff(a, b []float64) float64 {
	maxDiff := 0.0
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > maxDiff {
			maxDiff = d
		}
	}
	return maxDiff
}
