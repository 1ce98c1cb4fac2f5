// Package blend models fixed-spread blended acquisition: several
// simultaneous sources recorded by a common set of stationary sensors.
// It validates receiver geometry and synthesizes blended records by
// applying a mixing matrix to the source signals.
package blend

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmptyInput indicates an empty mixing matrix or source set.
	ErrEmptyInput = errors.New("blend: empty input")

	// ErrShapeMismatch indicates inconsistent matrix and source
	// dimensions.
	ErrShapeMismatch = errors.New("blend: shape mismatch between mixing matrix and sources")

	// ErrNotFixedSpread indicates that receiver positions move between
	// shots beyond the allowed tolerance.
	ErrNotFixedSpread = errors.New("blend: receiver spread is not fixed across shots")
)

// Layout describes the acquisition geometry: one row of receiver
// positions per shot.
type Layout struct {
	// Positions[s][r] is the coordinate of receiver r during shot s.
	Positions [][]float64
}

// FixedSpread reports whether every receiver stays within tol of its
// position in the first shot. The blending model assumes a fixed
// spread; a moving spread makes the mixing matrix time-dependent.
func (l Layout) FixedSpread(tol float64) bool {
	if len(l.Positions) == 0 {
		return true
	}
	ref := l.Positions[0]
	for _, row := range l.Positions[1:] {
		if len(row) != len(ref) {
			return false
		}
		for r, pos := range row {
			if math.Abs(pos-ref[r]) > tol {
				return false
			}
		}
	}
	return true
}

// Validate returns ErrNotFixedSpread if the layout violates the
// fixed-spread assumption.
func (l Layout) Validate(tol float64) error {
	if !l.FixedSpread(tol) {
		return ErrNotFixedSpread
	}
	return nil
}

// Mix applies the mixing matrix a (sensors x sources) to the source
// signals (sources x samples) and returns the blended record
// (sensors x samples).
func Mix(a [][]float64, sources [][]float64) ([][]float64, error) {
	sensors, nsrc, err := matrixShape(a)
	if err != nil {
		return nil, err
	}
	rows, samples, err := matrixShape(sources)
	if err != nil {
		return nil, err
	}
	if rows != nsrc {
		return nil, fmt.Errorf("%w: matrix has %d columns, sources have %d rows", ErrShapeMismatch, nsrc, rows)
	}

	am := mat.NewDense(sensors, nsrc, nil)
	for i, row := range a {
		am.SetRow(i, row)
	}
	sm := mat.NewDense(nsrc, samples, nil)
	for i, row := range sources {
		sm.SetRow(i, row)
	}

	var prod mat.Dense
	prod.Mul(am, sm)

	out := make([][]float64, sensors)
	for i := range out {
		out[i] = prod.RawRowView(i)
	}
	return out, nil
}

// CMix is the complex-valued counterpart of Mix, for narrowband
// frequency-domain records.
func CMix(a [][]complex128, sources [][]complex128) ([][]complex128, error) {
	sensors, nsrc, err := cmatrixShape(a)
	if err != nil {
		return nil, err
	}
	rows, samples, err := cmatrixShape(sources)
	if err != nil {
		return nil, err
	}
	if rows != nsrc {
		return nil, fmt.Errorf("%w: matrix has %d columns, sources have %d rows", ErrShapeMismatch, nsrc, rows)
	}

	out := make([][]complex128, sensors)
	for i := range out {
		out[i] = make([]complex128, samples)
		for t := 0; t < samples; t++ {
			var sum complex128
			for k := 0; k < nsrc; k++ {
				sum += a[i][k] * sources[k][t]
			}
			out[i][t] = sum
		}
	}
	return out, nil
}

func matrixShape(m [][]float64) (rows, cols int, err error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return 0, 0, ErrEmptyInput
	}
	cols = len(m[0])
	for _, row := range m {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("%w: ragged rows", ErrShapeMismatch)
		}
	}
	return len(m), cols, nil
}

func cmatrixShape(m [][]complex128) (rows, cols int, err error) {
	if len(m) == 0 || len(m[0]) == 0 {
		return 0, 0, ErrEmptyInput
	}
	cols = len(m[0])
	for _, row := range m {
		if len(row) != cols {
			return 0, 0, fmt.Errorf("%w: ragged rows", ErrShapeMismatch)
		}
	}
	return len(m), cols, nil
}
