package linalg

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
)

// randomHermitian builds B·Bᴴ for a random complex B, which is
// Hermitian positive semidefinite (and almost surely definite).
func randomHermitian(n int, rng *rand.Rand) [][]complex128 {
	b := NewCMatrix(n, n)
	for r := range b {
		for c := range b[r] {
			b[r][c] = complex(rng.NormFloat64(), rng.NormFloat64())
		}
	}

	h := NewCMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += b[r][k] * cmplx.Conj(b[c][k])
			}
			h[r][c] = sum
		}
	}
	return h
}

func TestCEigHermDesc_Reconstruction(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	h := randomHermitian(4, rng)

	vals, p, err := CEigHermDesc(h)
	if err != nil {
		t.Fatalf("CEigHermDesc: %v", err)
	}

	for k := 1; k < len(vals); k++ {
		if vals[k] > vals[k-1]+eps {
			t.Fatalf("eigenvalues not descending: %v", vals)
		}
	}

	// H·p_k = v_k·p_k for every eigenpair.
	n := len(h)
	for k := 0; k < n; k++ {
		for r := 0; r < n; r++ {
			var got complex128
			for c := 0; c < n; c++ {
				got += h[r][c] * p[c][k]
			}
			want := complex(vals[k], 0) * p[r][k]
			if cmplx.Abs(got-want) > 1e-8 {
				t.Fatalf("eigenpair %d row %d: H·p = %v, want %v", k, r, got, want)
			}
		}
	}

	// Eigenvector matrix must be unitary.
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for r := 0; r < n; r++ {
				sum += cmplx.Conj(p[r][i]) * p[r][j]
			}
			want := complex(0, 0)
			if i == j {
				want = 1
			}
			if cmplx.Abs(sum-want) > 1e-10 {
				t.Fatalf("PᴴP[%d][%d] = %v, want %v", i, j, sum, want)
			}
		}
	}
}

func TestCEigHermDesc_RealInput(t *testing.T) {
	// A real symmetric matrix is Hermitian; results must match the
	// real-path solver.
	a := [][]float64{{2, 1}, {1, 2}}
	ca := [][]complex128{{2, 1}, {1, 2}}

	rvals, _, err := EigSymDesc(a)
	if err != nil {
		t.Fatalf("EigSymDesc: %v", err)
	}

	cvals, _, err := CEigHermDesc(ca)
	if err != nil {
		t.Fatalf("CEigHermDesc: %v", err)
	}

	for k := range rvals {
		if math.Abs(rvals[k]-cvals[k]) > 1e-10 {
			t.Fatalf("eigenvalue %d: real %g vs complex %g", k, rvals[k], cvals[k])
		}
	}
}

func TestCInverse_RoundTrip(t *testing.T) {
	a := [][]complex128{
		{complex(2, 1), complex(0, -1)},
		{complex(1, 0), complex(3, 2)},
	}

	inv, err := CInverse(a)
	if err != nil {
		t.Fatalf("CInverse: %v", err)
	}

	n := len(a)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += a[r][k] * inv[k][c]
			}
			want := complex(0, 0)
			if r == c {
				want = 1
			}
			if cmplx.Abs(sum-want) > eps {
				t.Fatalf("(A·A⁻¹)[%d][%d] = %v, want %v", r, c, sum, want)
			}
		}
	}
}

func TestCInverse_Singular(t *testing.T) {
	a := [][]complex128{
		{complex(1, 1), complex(2, 2)},
		{complex(2, 2), complex(4, 4)},
	}

	_, err := CInverse(a)
	if !errors.Is(err, ErrSingular) {
		t.Fatalf("err = %v, want ErrSingular", err)
	}
}

func TestCInvSqrt_Property(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := randomHermitian(3, rng)

	s, err := CInvSqrt(h)
	if err != nil {
		t.Fatalf("CInvSqrt: %v", err)
	}

	n := len(h)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum complex128
			for k := 0; k < n; k++ {
				for l := 0; l < n; l++ {
					sum += s[r][k] * h[k][l] * s[l][c]
				}
			}
			want := complex(0, 0)
			if r == c {
				want = 1
			}
			if cmplx.Abs(sum-want) > 1e-8 {
				t.Fatalf("S·H·S[%d][%d] = %v, want %v", r, c, sum, want)
			}
		}
	}
}
