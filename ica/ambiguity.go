package ica

import (
	"fmt"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-ica/internal/linalg"
)

// ICA recovers sources only up to permutation and scaling. The two
// fixups below run once after the iteration terminates: columns are
// ordered by non-Gaussianity so that runs and bins agree on source
// order, and each column is rescaled so that the corresponding source
// has unit gain at the magic sensor (minimum-distortion convention).

// fixPermutation reorders the unmixing columns of every bin by the
// bin-average of G(s) per source, descending. Only the unmixing
// matrices are touched. Applying it twice is a no-op: the second pass
// stable-sorts an already sorted sequence.
func (e *Engine) fixPermutation() [][]float64 {
	nongauss := make([][]float64, len(e.bins))
	order := make([]int, e.sources)

	for b, bin := range e.bins {
		ns := bin.hi - bin.lo
		meas := make([]float64, e.sources)
		for c := 0; c < e.sources; c++ {
			e.deblendBinColumn(b, c, e.sbuf[:ns])
			gaussContrast(e.sbuf[:ns], e.cbuf[:ns], e.gbuf[:ns], e.dgbuf[:ns])
			meas[c] = floats.Sum(e.cbuf[:ns]) / float64(ns)
		}

		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return meas[order[i]] > meas[order[j]]
		})

		w := e.w[b]
		for r := 0; r < e.sources; r++ {
			for k, src := range order {
				e.wscratch[r][k] = w[r][src]
			}
			copy(w[r], e.wscratch[r])
		}

		sorted := make([]float64, e.sources)
		for k, src := range order {
			sorted[k] = meas[src]
		}
		nongauss[b] = sorted
	}

	return nongauss
}

// fixScaling rescales every unmixing column so that the estimated
// mixing matrix (the right inverse of Wᵀ·Qᵀ) has unit gain at the
// magic-sensor row. Back-mixing the deblended output then reproduces
// the original scale at that sensor.
func (e *Engine) fixScaling() error {
	for b := range e.bins {
		m := e.demixingMatrix(b)

		mm := linalg.NewMatrix(e.sources, e.sources)
		for i := 0; i < e.sources; i++ {
			for j := 0; j <= i; j++ {
				var sum float64
				for r := 0; r < e.sensors; r++ {
					sum += m[i][r] * m[j][r]
				}
				mm[i][j] = sum
				mm[j][i] = sum
			}
		}

		inv, err := linalg.Inverse(mm)
		if err != nil {
			return fmt.Errorf("%w: scaling fixup in bin %d: %v", ErrDegenerate, b, err)
		}

		w := e.w[b]
		for c := 0; c < e.sources; c++ {
			// Magic-sensor entry of the estimated mixing column c.
			var alpha float64
			for i := 0; i < e.sources; i++ {
				alpha += m[i][e.magic] * inv[i][c]
			}
			if alpha == 0 {
				return fmt.Errorf("%w: source %d has zero gain at sensor %d in bin %d", ErrDegenerate, c, e.magic, b)
			}
			for r := 0; r < e.sources; r++ {
				w[r][c] *= alpha
			}
		}
	}

	return nil
}

// fixPermutation is the complex-mode counterpart; the sort key is the
// bin-average of the log contrast.
func (e *CEngine) fixPermutation() [][]float64 {
	nongauss := make([][]float64, len(e.bins))
	order := make([]int, e.sources)

	for b, bin := range e.bins {
		ns := bin.hi - bin.lo
		meas := make([]float64, e.sources)
		for c := 0; c < e.sources; c++ {
			e.deblendBinColumn(b, c, e.sbuf[:ns])
			logContrast(e.sbuf[:ns], e.cbuf[:ns], e.gbuf[:ns], e.dgbuf[:ns])
			meas[c] = floats.Sum(e.cbuf[:ns]) / float64(ns)
		}

		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return meas[order[i]] > meas[order[j]]
		})

		w := e.w[b]
		for r := 0; r < e.sources; r++ {
			for k, src := range order {
				e.wscratch[r][k] = w[r][src]
			}
			copy(w[r], e.wscratch[r])
		}

		sorted := make([]float64, e.sources)
		for k, src := range order {
			sorted[k] = meas[src]
		}
		nongauss[b] = sorted
	}

	return nongauss
}

// fixScaling is the complex-mode counterpart: columns are scaled by the
// conjugate of the magic-sensor gain, which fixes phase as well as
// magnitude.
func (e *CEngine) fixScaling() error {
	for b := range e.bins {
		m := e.demixingMatrix(b)

		mm := linalg.NewCMatrix(e.sources, e.sources)
		for i := 0; i < e.sources; i++ {
			for j := 0; j < e.sources; j++ {
				var sum complex128
				for r := 0; r < e.sensors; r++ {
					sum += m[i][r] * cmplx.Conj(m[j][r])
				}
				mm[i][j] = sum
			}
		}

		inv, err := linalg.CInverse(mm)
		if err != nil {
			return fmt.Errorf("%w: scaling fixup in bin %d: %v", ErrDegenerate, b, err)
		}

		w := e.w[b]
		for c := 0; c < e.sources; c++ {
			var alpha complex128
			for i := 0; i < e.sources; i++ {
				alpha += cmplx.Conj(m[i][e.magic]) * inv[i][c]
			}
			if alpha == 0 {
				return fmt.Errorf("%w: source %d has zero gain at sensor %d in bin %d", ErrDegenerate, c, e.magic, b)
			}
			scale := cmplx.Conj(alpha)
			for r := 0; r < e.sources; r++ {
				w[r][c] *= scale
			}
		}
	}

	return nil
}
