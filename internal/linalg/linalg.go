// Package linalg provides the small dense linear-algebra kernels the
// ICA engine needs: eigendecomposition with eigenvalues sorted in
// descending order, matrix inversion, and the inverse matrix square
// root, in real and complex variants.
//
// Matrices are row-major [][]float64 / [][]complex128 slices. The real
// variants delegate to gonum; the complex variants are implemented
// here because gonum's mat package has no Hermitian eigensolver or
// complex inverse.
package linalg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrSingular indicates a singular or numerically rank-deficient matrix.
	ErrSingular = errors.New("linalg: singular matrix")
	// ErrNoConvergence indicates the iterative eigensolver did not converge.
	ErrNoConvergence = errors.New("linalg: eigensolver did not converge")
	// ErrNotSquare indicates a non-square input where a square matrix is required.
	ErrNotSquare = errors.New("linalg: matrix is not square")
)

// Eigenvalues below maxEigenvalue*rankTol are treated as zero.
const rankTol = 1e-12

// NewMatrix allocates a rows×cols matrix backed by one contiguous slice.
func NewMatrix(rows, cols int) [][]float64 {
	backing := make([]float64, rows*cols)
	out := make([][]float64, rows)
	for r := range out {
		out[r] = backing[r*cols : (r+1)*cols]
	}
	return out
}

// CloneMatrix returns a deep copy of a.
func CloneMatrix(a [][]float64) [][]float64 {
	out := NewMatrix(len(a), len(a[0]))
	for r := range a {
		copy(out[r], a[r])
	}
	return out
}

// EigSymDesc computes the eigendecomposition of the symmetric matrix a.
// It returns the eigenvalues sorted in descending order and the matrix
// whose columns are the corresponding eigenvectors.
func EigSymDesc(a [][]float64) ([]float64, [][]float64, error) {
	n := len(a)
	if n == 0 || len(a[0]) != n {
		return nil, nil, ErrNotSquare
	}

	flat := make([]float64, n*n)
	for r := range a {
		copy(flat[r*n:], a[r])
	}

	var es mat.EigenSym
	if !es.Factorize(mat.NewSymDense(n, flat), true) {
		return nil, nil, ErrNoConvergence
	}

	asc := es.Values(nil)

	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// gonum returns eigenvalues in ascending order; reverse both.
	vals := make([]float64, n)
	p := NewMatrix(n, n)
	for k := 0; k < n; k++ {
		src := n - 1 - k
		vals[k] = asc[src]
		for r := 0; r < n; r++ {
			p[r][k] = vecs.At(r, src)
		}
	}

	return vals, p, nil
}

// Inverse computes the inverse of the square matrix a.
func Inverse(a [][]float64) ([][]float64, error) {
	n := len(a)
	if n == 0 || len(a[0]) != n {
		return nil, ErrNotSquare
	}

	flat := make([]float64, n*n)
	for r := range a {
		copy(flat[r*n:], a[r])
	}

	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(n, n, flat)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := NewMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			out[r][c] = inv.At(r, c)
		}
	}

	return out, nil
}

// InvSqrt computes a^(-1/2) for a symmetric positive definite matrix
// via its eigendecomposition. Returns ErrSingular if any eigenvalue is
// zero or negative within the rank tolerance.
func InvSqrt(a [][]float64) ([][]float64, error) {
	vals, p, err := EigSymDesc(a)
	if err != nil {
		return nil, err
	}

	n := len(vals)
	floor := vals[0] * rankTol
	for _, v := range vals {
		if v <= 0 || v <= floor {
			return nil, fmt.Errorf("%w: eigenvalue %g", ErrSingular, v)
		}
	}

	// a^(-1/2) = P diag(1/sqrt(v)) P'
	scaled := NewMatrix(n, n)
	for r := 0; r < n; r++ {
		for k := 0; k < n; k++ {
			scaled[r][k] = p[r][k] / math.Sqrt(vals[k])
		}
	}

	out := NewMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum float64
			for k := 0; k < n; k++ {
				sum += scaled[r][k] * p[c][k]
			}
			out[r][c] = sum
		}
	}

	return out, nil
}
