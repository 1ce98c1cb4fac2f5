package linalg

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Jacobi sweep budget per matrix dimension squared.
const jacobiIterPerDim = 30

// NewCMatrix allocates a rows×cols complex matrix backed by one
// contiguous slice.
func NewCMatrix(rows, cols int) [][]complex128 {
	backing := make([]complex128, rows*cols)
	out := make([][]complex128, rows)
	for r := range out {
		out[r] = backing[r*cols : (r+1)*cols]
	}
	return out
}

// CloneCMatrix returns a deep copy of a.
func CloneCMatrix(a [][]complex128) [][]complex128 {
	out := NewCMatrix(len(a), len(a[0]))
	for r := range a {
		copy(out[r], a[r])
	}
	return out
}

// CEigHermDesc computes the eigendecomposition of the Hermitian matrix
// a using cyclic Jacobi rotations with the pivot phase factored out.
// Eigenvalues (always real) are returned sorted in descending order
// together with the unitary matrix of eigenvectors (as columns).
func CEigHermDesc(a [][]complex128) ([]float64, [][]complex128, error) {
	n := len(a)
	if n == 0 || len(a[0]) != n {
		return nil, nil, ErrNotSquare
	}

	work := CloneCMatrix(a)
	q := NewCMatrix(n, n)
	for i := 0; i < n; i++ {
		q[i][i] = 1
	}

	// Convergence threshold relative to the matrix scale.
	scale := 0.0
	for r := range work {
		for c := range work[r] {
			if m := cmplx.Abs(work[r][c]); m > scale {
				scale = m
			}
		}
	}
	tol := scale * 1e-14
	if tol == 0 {
		tol = 1e-300
	}

	maxIter := jacobiIterPerDim * n * n
	converged := n < 2

	for iter := 0; iter < maxIter; iter++ {
		// Largest off-diagonal pivot.
		p, pc := 0, 1
		maxOff := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if m := cmplx.Abs(work[i][j]); m > maxOff {
					maxOff = m
					p, pc = i, j
				}
			}
		}
		if maxOff <= tol {
			converged = true
			break
		}

		app := real(work[p][p])
		aqq := real(work[pc][pc])
		apq := work[p][pc]
		b := cmplx.Abs(apq)
		u := apq / complex(b, 0) // pivot phase

		theta := (aqq - app) / (2 * b)
		t := math.Copysign(1/(math.Abs(theta)+math.Sqrt(theta*theta+1)), theta)
		cs := 1 / math.Sqrt(t*t+1)
		sn := t * cs

		// Unitary rotation Z on columns (p, pc):
		//   Z[:,p] = (cs, -sn*conj(u)), Z[:,pc] = (sn, cs*conj(u)).
		zpp := complex(cs, 0)
		zqp := complex(-sn, 0) * cmplx.Conj(u)
		zpq := complex(sn, 0)
		zqq := complex(cs, 0) * cmplx.Conj(u)

		// work <- Z^H * work * Z
		for i := 0; i < n; i++ {
			aip, aiq := work[i][p], work[i][pc]
			work[i][p] = aip*zpp + aiq*zqp
			work[i][pc] = aip*zpq + aiq*zqq
		}
		for j := 0; j < n; j++ {
			apj, aqj := work[p][j], work[pc][j]
			work[p][j] = cmplx.Conj(zpp)*apj + cmplx.Conj(zqp)*aqj
			work[pc][j] = cmplx.Conj(zpq)*apj + cmplx.Conj(zqq)*aqj
		}
		for i := 0; i < n; i++ {
			qip, qiq := q[i][p], q[i][pc]
			q[i][p] = qip*zpp + qiq*zqp
			q[i][pc] = qip*zpq + qiq*zqq
		}
	}

	if !converged {
		return nil, nil, ErrNoConvergence
	}

	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = real(work[i][i])
	}

	// Sort eigenpairs descending.
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := 0; i < n; i++ {
		best := i
		for j := i + 1; j < n; j++ {
			if vals[order[j]] > vals[order[best]] {
				best = j
			}
		}
		order[i], order[best] = order[best], order[i]
	}

	sorted := make([]float64, n)
	vecs := NewCMatrix(n, n)
	for k, src := range order {
		sorted[k] = vals[src]
		for r := 0; r < n; r++ {
			vecs[r][k] = q[r][src]
		}
	}

	return sorted, vecs, nil
}

// CInverse computes the inverse of the square complex matrix a by
// Gauss-Jordan elimination with partial pivoting.
func CInverse(a [][]complex128) ([][]complex128, error) {
	n := len(a)
	if n == 0 || len(a[0]) != n {
		return nil, ErrNotSquare
	}

	work := CloneCMatrix(a)
	out := NewCMatrix(n, n)
	for i := 0; i < n; i++ {
		out[i][i] = 1
	}

	for col := 0; col < n; col++ {
		piv := col
		maxAbs := cmplx.Abs(work[col][col])
		for r := col + 1; r < n; r++ {
			if m := cmplx.Abs(work[r][col]); m > maxAbs {
				maxAbs = m
				piv = r
			}
		}
		if maxAbs == 0 {
			return nil, fmt.Errorf("%w: zero pivot in column %d", ErrSingular, col)
		}
		work[col], work[piv] = work[piv], work[col]
		out[col], out[piv] = out[piv], out[col]

		d := work[col][col]
		for c := 0; c < n; c++ {
			work[col][c] /= d
			out[col][c] /= d
		}
		for r := 0; r < n; r++ {
			if r == col || work[r][col] == 0 {
				continue
			}
			f := work[r][col]
			for c := 0; c < n; c++ {
				work[r][c] -= f * work[col][c]
				out[r][c] -= f * out[col][c]
			}
		}
	}

	return out, nil
}

// CInvSqrt computes a^(-1/2) for a Hermitian positive definite matrix.
// Returns ErrSingular if any eigenvalue is zero or negative within the
// rank tolerance.
func CInvSqrt(a [][]complex128) ([][]complex128, error) {
	vals, p, err := CEigHermDesc(a)
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

	scaled := NewCMatrix(n, n)
	for r := 0; r < n; r++ {
		for k := 0; k < n; k++ {
			scaled[r][k] = p[r][k] / complex(math.Sqrt(vals[k]), 0)
		}
	}

	out := NewCMatrix(n, n)
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += scaled[r][k] * cmplx.Conj(p[c][k])
			}
			out[r][c] = sum
		}
	}

	return out, nil
}
