package ica

import (
	"fmt"
	"math"
	"math/cmplx"
)

// SeparationError measures how far the product of an estimated
// demixing matrix m (sources×sensors) and a reference mixing matrix a
// (sensors×sources) is from a column-scaled permutation. Every column
// of K = |m·a| is normalized by its maximum-magnitude entry and the
// remaining entries are summed; the total is zero iff the unmixing
// recovered the mixing exactly up to the inherent permutation and
// per-column scaling.
func SeparationError(m, a [][]float64) (float64, error) {
	rows, inner, cols, err := productShape(len(m), rowLen(m), len(a), rowLen(a))
	if err != nil {
		return 0, err
	}

	total := 0.0
	for c := 0; c < cols; c++ {
		col := make([]float64, rows)
		maxAbs := 0.0
		for r := 0; r < rows; r++ {
			var sum float64
			for k := 0; k < inner; k++ {
				sum += m[r][k] * a[k][c]
			}
			col[r] = math.Abs(sum)
			if col[r] > maxAbs {
				maxAbs = col[r]
			}
		}
		if maxAbs == 0 {
			return 0, fmt.Errorf("%w: zero column %d in demixing product", ErrDegenerate, c)
		}
		for r := 0; r < rows; r++ {
			total += col[r] / maxAbs
		}
		total-- // the dominant entry itself does not count
	}

	return total, nil
}

// CSeparationError is the complex-mode counterpart of SeparationError.
func CSeparationError(m, a [][]complex128) (float64, error) {
	rows, inner, cols, err := productShape(len(m), rowLenC(m), len(a), rowLenC(a))
	if err != nil {
		return 0, err
	}

	total := 0.0
	for c := 0; c < cols; c++ {
		col := make([]float64, rows)
		maxAbs := 0.0
		for r := 0; r < rows; r++ {
			var sum complex128
			for k := 0; k < inner; k++ {
				sum += m[r][k] * a[k][c]
			}
			col[r] = cmplx.Abs(sum)
			if col[r] > maxAbs {
				maxAbs = col[r]
			}
		}
		if maxAbs == 0 {
			return 0, fmt.Errorf("%w: zero column %d in demixing product", ErrDegenerate, c)
		}
		for r := 0; r < rows; r++ {
			total += col[r] / maxAbs
		}
		total--
	}

	return total, nil
}

func productShape(mRows, mCols, aRows, aCols int) (rows, inner, cols int, err error) {
	if mRows == 0 || mCols == 0 || aRows == 0 || aCols == 0 {
		return 0, 0, 0, fmt.Errorf("%w: empty matrix in separation score", ErrInvalidConfig)
	}
	if mCols != aRows {
		return 0, 0, 0, fmt.Errorf("%w: separation score shapes %dx%d · %dx%d", ErrInvalidConfig, mRows, mCols, aRows, aCols)
	}
	return mRows, mCols, aCols, nil
}

func rowLen(m [][]float64) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

func rowLenC(m [][]complex128) int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}
