package ica

import (
	"math/cmplx"

	"github.com/cwbudde/algo-ica/internal/linalg"
)

// decorrelate replaces w with w·(wᵀw)^(-1/2), forcing orthonormal
// columns (symmetric decorrelation). scratch must match the shape of w
// and is clobbered.
func decorrelate(w, scratch [][]float64) error {
	n := len(w)

	gram := linalg.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			var sum float64
			for r := 0; r < n; r++ {
				sum += w[r][i] * w[r][j]
			}
			gram[i][j] = sum
			gram[j][i] = sum
		}
	}

	gi, err := linalg.InvSqrt(gram)
	if err != nil {
		return err
	}

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += w[r][k] * gi[k][c]
			}
			scratch[r][c] = sum
		}
	}
	for r := 0; r < n; r++ {
		copy(w[r], scratch[r])
	}

	return nil
}

// cdecorrelate is the complex-mode counterpart: w ← w·(wᴴw)^(-1/2).
func cdecorrelate(w, scratch [][]complex128) error {
	n := len(w)

	gram := linalg.NewCMatrix(n, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for r := 0; r < n; r++ {
				sum += cmplx.Conj(w[r][i]) * w[r][j]
			}
			gram[i][j] = sum
		}
	}

	gi, err := linalg.CInvSqrt(gram)
	if err != nil {
		return err
	}

	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += w[r][k] * gi[k][c]
			}
			scratch[r][c] = sum
		}
	}
	for r := 0; r < n; r++ {
		copy(w[r], scratch[r])
	}

	return nil
}
