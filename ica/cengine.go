package ica

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/cwbudde/algo-ica/internal/linalg"
)

// CResult carries the output of one complex-mode deblending run.
type CResult struct {
	// Sources is the deblended estimate, sources×samples, with per-bin
	// segments concatenated along the time axis.
	Sources [][]complex128

	// Unmixing holds the final unmixing matrix per bin, sources×sources.
	Unmixing [][][]complex128

	// Whitening holds the whitening matrix per bin, sensors×sources.
	Whitening [][][]complex128

	// NonGaussianity holds the per-bin contrast average per source,
	// in the output source order (descending).
	NonGaussianity [][]float64

	// UnmixingError holds the per-bin separation error against the
	// known mixing matrix; nil unless SetKnownMixing was called.
	UnmixingError []float64

	// Converged reports whether the tolerance was met before the
	// iteration cap.
	Converged bool

	// Iterations is the number of fixed-point iterations performed.
	Iterations int
}

// CEngine separates complex-valued blended records. It mirrors Engine
// with the complex-mode contrast and update rule; one engine owns the
// full per-bin state of a run and is not safe for concurrent use.
type CEngine struct {
	cfg     Config
	mixture [][]complex128
	sensors int
	sources int
	samples int
	bins    []span
	magic   int
	rng     *rand.Rand

	means [][]complex128   // per bin per sensor, valid between mean removal and restoration
	q     [][][]complex128 // whitening matrix per bin, sensors×sources
	xw    [][][]complex128 // whitened data per bin, sources×binLen
	w     [][][]complex128 // unmixing matrix per bin, sources×sources

	known [][]complex128 // optional reference mixing matrix, sensors×sources

	// scratch
	sbuf              []complex128
	cbuf, gbuf, dgbuf []float64
	wn, wscratch      [][]complex128

	ran bool
}

// NewComplex creates a complex-mode engine for the given mixture
// (sensors×samples, caller-owned; mutated in place during preprocessing
// but restored before Run returns). The unmixing matrices are
// initialized randomly per bin from the configured seed and
// column-normalized.
func NewComplex(mixture [][]complex128, sources int, opts ...Option) (*CEngine, error) {
	cfg := ApplyOptions(opts...)

	sensors := len(mixture)
	if sensors == 0 {
		return nil, fmt.Errorf("%w: empty mixture", ErrInvalidConfig)
	}
	samples := len(mixture[0])
	for r, row := range mixture {
		if len(row) != samples {
			return nil, fmt.Errorf("%w: ragged mixture row %d: %d != %d", ErrInvalidConfig, r, len(row), samples)
		}
	}
	if samples < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", ErrInvalidConfig, samples)
	}
	if sources < 1 || sources > sensors {
		return nil, fmt.Errorf("%w: sources must be in [1, %d], got %d", ErrInvalidConfig, sensors, sources)
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("%w: max iterations must be >= 1, got %d", ErrInvalidConfig, cfg.MaxIterations)
	}
	if cfg.Tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must be >= 0, got %g", ErrInvalidConfig, cfg.Tolerance)
	}
	if cfg.Bins < 1 || samples/cfg.Bins < 2 {
		return nil, fmt.Errorf("%w: %d bins do not fit %d samples", ErrInvalidConfig, cfg.Bins, samples)
	}
	if cfg.MagicSensor < 0 || cfg.MagicSensor >= sensors {
		return nil, fmt.Errorf("%w: magic sensor %d out of range [0, %d)", ErrInvalidConfig, cfg.MagicSensor, sensors)
	}

	e := &CEngine{
		cfg:     cfg,
		mixture: mixture,
		sensors: sensors,
		sources: sources,
		samples: samples,
		bins:    makeBins(samples, cfg.Bins),
		magic:   cfg.MagicSensor,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}

	maxLen := 0
	for _, bin := range e.bins {
		if n := bin.hi - bin.lo; n > maxLen {
			maxLen = n
		}
	}
	e.sbuf = make([]complex128, maxLen)
	e.cbuf = make([]float64, maxLen)
	e.gbuf = make([]float64, maxLen)
	e.dgbuf = make([]float64, maxLen)
	e.wn = linalg.NewCMatrix(sources, sources)
	e.wscratch = linalg.NewCMatrix(sources, sources)

	e.w = make([][][]complex128, cfg.Bins)
	e.Reinit()

	return e, nil
}

// Reinit redraws the random unmixing matrices, making the engine ready
// for a fresh run; whitening and configuration are untouched.
func (e *CEngine) Reinit() {
	for b := range e.w {
		w := linalg.NewCMatrix(e.sources, e.sources)
		for r := range w {
			for c := range w[r] {
				w[r][c] = complex(e.rng.NormFloat64(), e.rng.NormFloat64())
			}
		}
		cnormalizeColumns(w)
		e.w[b] = w
	}
	e.ran = false
}

// SetInitialUnmixing replaces the random initialization with the given
// sources×sources matrix, column-normalized and applied to every bin.
func (e *CEngine) SetInitialUnmixing(w [][]complex128) error {
	if len(w) != e.sources {
		return fmt.Errorf("%w: initial unmixing must be %d×%d", ErrInvalidConfig, e.sources, e.sources)
	}
	for _, row := range w {
		if len(row) != e.sources {
			return fmt.Errorf("%w: initial unmixing must be %d×%d", ErrInvalidConfig, e.sources, e.sources)
		}
	}

	norm := linalg.CloneCMatrix(w)
	if !ccolumnsNonZero(norm) {
		return fmt.Errorf("%w: initial unmixing has a zero column", ErrInvalidConfig)
	}
	cnormalizeColumns(norm)

	for b := range e.w {
		e.w[b] = linalg.CloneCMatrix(norm)
	}
	e.ran = false

	return nil
}

// SetKnownMixing supplies a reference mixing matrix (sensors×sources);
// subsequent runs report the per-bin separation error against it.
func (e *CEngine) SetKnownMixing(a [][]complex128) error {
	if len(a) != e.sensors {
		return fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
	}
	for _, row := range a {
		if len(row) != e.sources {
			return fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
		}
	}
	e.known = linalg.CloneCMatrix(a)
	return nil
}

// SetMagicSensor changes the reference sensor used by the scaling fixup
// of subsequent runs.
func (e *CEngine) SetMagicSensor(index int) error {
	if index < 0 || index >= e.sensors {
		return fmt.Errorf("%w: magic sensor %d out of range [0, %d)", ErrInvalidConfig, index, e.sensors)
	}
	e.magic = index
	return nil
}

// Run executes one full deblending pass; see Engine.Run.
func (e *CEngine) Run() (*CResult, error) {
	e.removeMean()
	err := e.whiten()
	if rerr := e.restoreMean(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return nil, err
	}

	iterations := 0
	converged := false
	for iterations < e.cfg.MaxIterations {
		iterations++

		worst := 0.0
		for b := range e.bins {
			delta, err := e.iterateBin(b)
			if err != nil {
				return nil, err
			}
			if delta > worst {
				worst = delta
			}
		}

		if worst < e.cfg.Tolerance {
			converged = true
			break
		}
	}

	nongauss := e.fixPermutation()
	if err := e.fixScaling(); err != nil {
		return nil, err
	}

	res := &CResult{
		Sources:        e.deblendAll(),
		Unmixing:       make([][][]complex128, len(e.bins)),
		Whitening:      make([][][]complex128, len(e.bins)),
		NonGaussianity: nongauss,
		Converged:      converged,
		Iterations:     iterations,
	}
	for b := range e.bins {
		res.Unmixing[b] = linalg.CloneCMatrix(e.w[b])
		res.Whitening[b] = linalg.CloneCMatrix(e.q[b])
	}

	e.ran = true

	if e.known != nil {
		scores, err := e.UnmixingError(e.known)
		if err != nil {
			return nil, err
		}
		res.UnmixingError = scores
	}

	return res, nil
}

// removeMean subtracts the per-bin per-sensor mean from the mixture in
// place, retaining the means for later restoration.
func (e *CEngine) removeMean() {
	e.means = linalg.NewCMatrix(len(e.bins), e.sensors)
	for b, bin := range e.bins {
		n := complex(float64(bin.hi-bin.lo), 0)
		for r := 0; r < e.sensors; r++ {
			seg := e.mixture[r][bin.lo:bin.hi]
			var sum complex128
			for _, v := range seg {
				sum += v
			}
			m := sum / n
			e.means[b][r] = m
			for t := range seg {
				seg[t] -= m
			}
		}
	}
}

// restoreMean adds the stored means back onto the mixture, leaving the
// caller's buffer exactly as supplied, and clears the stored means.
func (e *CEngine) restoreMean() error {
	if len(e.means) != len(e.bins) {
		return fmt.Errorf("%w: mean restoration shape mismatch: %d bins, %d stored", ErrInvalidConfig, len(e.bins), len(e.means))
	}
	for b, bin := range e.bins {
		if len(e.means[b]) != e.sensors {
			return fmt.Errorf("%w: mean restoration shape mismatch in bin %d", ErrInvalidConfig, b)
		}
		for r := 0; r < e.sensors; r++ {
			seg := e.mixture[r][bin.lo:bin.hi]
			m := e.means[b][r]
			for t := range seg {
				seg[t] += m
			}
		}
	}
	e.means = nil
	return nil
}

// whiten builds the per-bin Hermitian sample covariance of the
// mean-removed mixture, eigendecomposes it, and keeps the top `sources`
// eigenpairs to form the whitening matrix Q and the whitened data Qᴴ·X.
func (e *CEngine) whiten() error {
	e.q = make([][][]complex128, len(e.bins))
	e.xw = make([][][]complex128, len(e.bins))

	for b, bin := range e.bins {
		ns := bin.hi - bin.lo
		n := complex(float64(ns), 0)

		cov := linalg.NewCMatrix(e.sensors, e.sensors)
		for i := 0; i < e.sensors; i++ {
			si := e.mixture[i][bin.lo:bin.hi]
			for j := 0; j <= i; j++ {
				sj := e.mixture[j][bin.lo:bin.hi]
				var sum complex128
				for t := 0; t < ns; t++ {
					sum += si[t] * cmplx.Conj(sj[t])
				}
				v := sum / n
				cov[i][j] = v
				cov[j][i] = cmplx.Conj(v)
			}
		}

		vals, p, err := linalg.CEigHermDesc(cov)
		if err != nil {
			return fmt.Errorf("%w: covariance eigendecomposition in bin %d: %v", ErrDegenerate, b, err)
		}

		floor := vals[0] * 1e-12
		for k := 0; k < e.sources; k++ {
			if vals[k] <= 0 || vals[k] <= floor {
				return fmt.Errorf("%w: zero-variance direction in bin %d (eigenvalue %g)", ErrDegenerate, b, vals[k])
			}
		}

		q := linalg.NewCMatrix(e.sensors, e.sources)
		for r := 0; r < e.sensors; r++ {
			for k := 0; k < e.sources; k++ {
				q[r][k] = p[r][k] / complex(math.Sqrt(vals[k]), 0)
			}
		}

		xw := linalg.NewCMatrix(e.sources, ns)
		for k := 0; k < e.sources; k++ {
			for r := 0; r < e.sensors; r++ {
				a := cmplx.Conj(q[r][k])
				if a == 0 {
					continue
				}
				seg := e.mixture[r][bin.lo:bin.hi]
				row := xw[k]
				for t := 0; t < ns; t++ {
					row[t] += a * seg[t]
				}
			}
		}

		e.q[b] = q
		e.xw[b] = xw
	}

	return nil
}

// deblendBinColumn writes the current estimate of source c in bin b
// into dst: s_c = (W column c)ᴴ · whitened data.
func (e *CEngine) deblendBinColumn(b, c int, dst []complex128) {
	w := e.w[b]
	xw := e.xw[b]
	ns := len(xw[0])

	for t := 0; t < ns; t++ {
		dst[t] = 0
	}
	for r := 0; r < e.sources; r++ {
		a := cmplx.Conj(w[r][c])
		row := xw[r]
		for t := 0; t < ns; t++ {
			dst[t] += a * row[t]
		}
	}
}

// iterateBin performs one fixed-point update on bin b with the
// complex-mode update rule and returns the convergence delta.
func (e *CEngine) iterateBin(b int) (float64, error) {
	w := e.w[b]
	xw := e.xw[b]
	ns := len(xw[0])
	n := float64(ns)

	for c := 0; c < e.sources; c++ {
		s := e.sbuf[:ns]
		e.deblendBinColumn(b, c, s)
		logContrast(s, e.cbuf[:ns], e.gbuf[:ns], e.dgbuf[:ns])

		// beta = mean(g + |s|²·g'), real by construction.
		var betaSum float64
		for t := 0; t < ns; t++ {
			a2 := real(s[t])*real(s[t]) + imag(s[t])*imag(s[t])
			betaSum += e.gbuf[t] + a2*e.dgbuf[t]
		}
		beta := complex(betaSum/n, 0)

		for r := 0; r < e.sources; r++ {
			var sum complex128
			row := xw[r]
			for t := 0; t < ns; t++ {
				sum += row[t] * cmplx.Conj(s[t]) * complex(e.gbuf[t], 0)
			}
			e.wn[r][c] = sum/complex(n, 0) - beta*w[r][c]
		}
	}

	if err := cdecorrelate(e.wn, e.wscratch); err != nil {
		return 0, fmt.Errorf("%w: decorrelation in bin %d: %v", ErrDegenerate, b, err)
	}

	// Column change, invariant to the inherent per-column sign flip.
	delta := 0.0
	for c := 0; c < e.sources; c++ {
		plus, minus := 0.0, 0.0
		for r := 0; r < e.sources; r++ {
			plus += cmplx.Abs(e.wn[r][c] - w[r][c])
			minus += cmplx.Abs(e.wn[r][c] + w[r][c])
		}
		if minus < plus {
			plus = minus
		}
		if plus > delta {
			delta = plus
		}
	}

	for r := range w {
		copy(w[r], e.wn[r])
	}

	return delta, nil
}

// deblendAll computes the final deblended estimate for every bin and
// concatenates the segments along the time axis.
func (e *CEngine) deblendAll() [][]complex128 {
	out := linalg.NewCMatrix(e.sources, e.samples)
	for b, bin := range e.bins {
		ns := bin.hi - bin.lo
		for c := 0; c < e.sources; c++ {
			e.deblendBinColumn(b, c, e.sbuf[:ns])
			copy(out[c][bin.lo:bin.hi], e.sbuf[:ns])
		}
	}
	return out
}

// UnmixingError scores the estimated per-bin unmixing against a known
// mixing matrix (sensors×sources); see CSeparationError for the metric.
// It requires a completed run.
func (e *CEngine) UnmixingError(a [][]complex128) ([]float64, error) {
	if !e.ran {
		return nil, fmt.Errorf("%w: unmixing error requires a completed run", ErrInvalidConfig)
	}
	if len(a) != e.sensors {
		return nil, fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
	}
	for _, row := range a {
		if len(row) != e.sources {
			return nil, fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
		}
	}

	scores := make([]float64, len(e.bins))
	for b := range e.bins {
		m := e.demixingMatrix(b)
		score, err := CSeparationError(m, a)
		if err != nil {
			return nil, err
		}
		scores[b] = score
	}

	return scores, nil
}

// demixingMatrix returns Wᴴ·Qᴴ for bin b, the composed map from raw
// mean-removed sensor data to separated sources (sources×sensors).
func (e *CEngine) demixingMatrix(b int) [][]complex128 {
	w := e.w[b]
	q := e.q[b]

	m := linalg.NewCMatrix(e.sources, e.sensors)
	for i := 0; i < e.sources; i++ {
		for j := 0; j < e.sensors; j++ {
			var sum complex128
			for k := 0; k < e.sources; k++ {
				sum += cmplx.Conj(w[k][i]) * cmplx.Conj(q[j][k])
			}
			m[i][j] = sum
		}
	}
	return m
}

// cnormalizeColumns scales every column of w to unit Euclidean norm.
func cnormalizeColumns(w [][]complex128) {
	rows := len(w)
	cols := len(w[0])
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += real(w[r][c])*real(w[r][c]) + imag(w[r][c])*imag(w[r][c])
		}
		norm := complex(math.Sqrt(sum), 0)
		for r := 0; r < rows; r++ {
			w[r][c] /= norm
		}
	}
}

// ccolumnsNonZero reports whether every column of w has a nonzero norm.
func ccolumnsNonZero(w [][]complex128) bool {
	rows := len(w)
	cols := len(w[0])
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += real(w[r][c])*real(w[r][c]) + imag(w[r][c])*imag(w[r][c])
		}
		if sum == 0 {
			return false
		}
	}
	return true
}
