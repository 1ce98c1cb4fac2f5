package ica

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/algo-ica/internal/linalg"
)

// span is a half-open [lo, hi) range of sample indices forming one bin.
type span struct {
	lo, hi int
}

// makeBins partitions the sample axis into nbins disjoint, contiguous,
// exhaustive ranges.
func makeBins(samples, nbins int) []span {
	bins := make([]span, nbins)
	for b := range bins {
		bins[b] = span{
			lo: b * samples / nbins,
			hi: (b + 1) * samples / nbins,
		}
	}
	return bins
}

// Result carries the output of one real-mode deblending run.
type Result struct {
	// Sources is the deblended estimate, sources×samples, with per-bin
	// segments concatenated along the time axis.
	Sources [][]float64

	// Unmixing holds the final unmixing matrix per bin, sources×sources.
	Unmixing [][][]float64

	// Whitening holds the whitening matrix per bin, sensors×sources.
	Whitening [][][]float64

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

// Engine separates real-valued blended records. One engine owns the
// full per-bin state of a run; it is not safe for concurrent use.
type Engine struct {
	cfg     Config
	mixture [][]float64
	sensors int
	sources int
	samples int
	bins    []span
	magic   int
	rng     *rand.Rand

	means [][]float64   // per bin per sensor, valid between mean removal and restoration
	q     [][][]float64 // whitening matrix per bin, sensors×sources
	xw    [][][]float64 // whitened data per bin, sources×binLen
	w     [][][]float64 // unmixing matrix per bin, sources×sources

	known [][]float64 // optional reference mixing matrix, sensors×sources

	// scratch
	sbuf, gbuf, dgbuf, cbuf []float64
	wn, wscratch            [][]float64

	ran bool
}

// New creates a real-mode engine for the given mixture (sensors×samples,
// caller-owned; mutated in place during preprocessing but restored
// before Run returns). The unmixing matrices are initialized randomly
// per bin from the configured seed and column-normalized.
func New(mixture [][]float64, sources int, opts ...Option) (*Engine, error) {
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

	e := &Engine{
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
	e.sbuf = make([]float64, maxLen)
	e.gbuf = make([]float64, maxLen)
	e.dgbuf = make([]float64, maxLen)
	e.cbuf = make([]float64, maxLen)
	e.wn = linalg.NewMatrix(sources, sources)
	e.wscratch = linalg.NewMatrix(sources, sources)

	e.w = make([][][]float64, cfg.Bins)
	e.Reinit()

	return e, nil
}

// Reinit redraws the random unmixing matrices, making the engine ready
// for a fresh run; whitening and configuration are untouched.
func (e *Engine) Reinit() {
	for b := range e.w {
		w := linalg.NewMatrix(e.sources, e.sources)
		for r := range w {
			for c := range w[r] {
				w[r][c] = e.rng.NormFloat64()
			}
		}
		normalizeColumns(w)
		e.w[b] = w
	}
	e.ran = false
}

// SetInitialUnmixing replaces the random initialization with the given
// sources×sources matrix, column-normalized and applied to every bin.
func (e *Engine) SetInitialUnmixing(w [][]float64) error {
	if len(w) != e.sources {
		return fmt.Errorf("%w: initial unmixing must be %d×%d", ErrInvalidConfig, e.sources, e.sources)
	}
	for _, row := range w {
		if len(row) != e.sources {
			return fmt.Errorf("%w: initial unmixing must be %d×%d", ErrInvalidConfig, e.sources, e.sources)
		}
	}

	norm := linalg.CloneMatrix(w)
	if !columnsNonZero(norm) {
		return fmt.Errorf("%w: initial unmixing has a zero column", ErrInvalidConfig)
	}
	normalizeColumns(norm)

	for b := range e.w {
		e.w[b] = linalg.CloneMatrix(norm)
	}
	e.ran = false

	return nil
}

// SetKnownMixing supplies a reference mixing matrix (sensors×sources);
// subsequent runs report the per-bin separation error against it.
func (e *Engine) SetKnownMixing(a [][]float64) error {
	if len(a) != e.sensors {
		return fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
	}
	for _, row := range a {
		if len(row) != e.sources {
			return fmt.Errorf("%w: known mixing must be %d×%d", ErrInvalidConfig, e.sensors, e.sources)
		}
	}
	e.known = linalg.CloneMatrix(a)
	return nil
}

// SetMagicSensor changes the reference sensor used by the scaling fixup
// of subsequent runs.
func (e *Engine) SetMagicSensor(index int) error {
	if index < 0 || index >= e.sensors {
		return fmt.Errorf("%w: magic sensor %d out of range [0, %d)", ErrInvalidConfig, index, e.sensors)
	}
	e.magic = index
	return nil
}

// Run executes one full deblending pass: preprocessing, the fixed-point
// iteration up to the cap, ambiguity resolution, and the final deblend.
// Reaching the cap without convergence is reported through the result,
// not as an error.
func (e *Engine) Run() (*Result, error) {
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

	res := &Result{
		Sources:        e.deblendAll(),
		Unmixing:       make([][][]float64, len(e.bins)),
		Whitening:      make([][][]float64, len(e.bins)),
		NonGaussianity: nongauss,
		Converged:      converged,
		Iterations:     iterations,
	}
	for b := range e.bins {
		res.Unmixing[b] = linalg.CloneMatrix(e.w[b])
		res.Whitening[b] = linalg.CloneMatrix(e.q[b])
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
func (e *Engine) removeMean() {
	e.means = linalg.NewMatrix(len(e.bins), e.sensors)
	for b, bin := range e.bins {
		n := float64(bin.hi - bin.lo)
		for r := 0; r < e.sensors; r++ {
			seg := e.mixture[r][bin.lo:bin.hi]
			m := floats.Sum(seg) / n
			e.means[b][r] = m
			for t := range seg {
				seg[t] -= m
			}
		}
	}
}

// restoreMean adds the stored means back onto the mixture, leaving the
// caller's buffer exactly as supplied, and clears the stored means.
func (e *Engine) restoreMean() error {
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

// whiten builds the per-bin sample covariance of the mean-removed
// mixture, eigendecomposes it, and keeps the top `sources` eigenpairs
// to form the whitening matrix Q and the whitened data Qᵀ·X.
func (e *Engine) whiten() error {
	e.q = make([][][]float64, len(e.bins))
	e.xw = make([][][]float64, len(e.bins))

	for b, bin := range e.bins {
		ns := bin.hi - bin.lo
		n := float64(ns)

		cov := linalg.NewMatrix(e.sensors, e.sensors)
		for i := 0; i < e.sensors; i++ {
			si := e.mixture[i][bin.lo:bin.hi]
			for j := 0; j <= i; j++ {
				v := floats.Dot(si, e.mixture[j][bin.lo:bin.hi]) / n
				cov[i][j] = v
				cov[j][i] = v
			}
		}

		vals, p, err := linalg.EigSymDesc(cov)
		if err != nil {
			return fmt.Errorf("%w: covariance eigendecomposition in bin %d: %v", ErrDegenerate, b, err)
		}

		floor := vals[0] * 1e-12
		for k := 0; k < e.sources; k++ {
			if vals[k] <= 0 || vals[k] <= floor {
				return fmt.Errorf("%w: zero-variance direction in bin %d (eigenvalue %g)", ErrDegenerate, b, vals[k])
			}
		}

		q := linalg.NewMatrix(e.sensors, e.sources)
		for r := 0; r < e.sensors; r++ {
			for k := 0; k < e.sources; k++ {
				q[r][k] = p[r][k] / math.Sqrt(vals[k])
			}
		}

		xw := linalg.NewMatrix(e.sources, ns)
		for k := 0; k < e.sources; k++ {
			for r := 0; r < e.sensors; r++ {
				if q[r][k] == 0 {
					continue
				}
				floats.AddScaled(xw[k], q[r][k], e.mixture[r][bin.lo:bin.hi])
			}
		}

		e.q[b] = q
		e.xw[b] = xw
	}

	return nil
}

// deblendBinColumn writes the current estimate of source c in bin b
// into dst: s_c = (W column c)ᵀ · whitened data.
func (e *Engine) deblendBinColumn(b, c int, dst []float64) {
	w := e.w[b]
	xw := e.xw[b]
	ns := len(xw[0])

	for t := 0; t < ns; t++ {
		dst[t] = 0
	}
	for r := 0; r < e.sources; r++ {
		floats.AddScaled(dst, w[r][c], xw[r])
	}
}

// iterateBin performs one fixed-point update on bin b: deblend with the
// current unmixing matrix, evaluate the contrast statistics, apply the
// update rule to every column, decorrelate, and return the convergence
// delta against the previous matrix.
func (e *Engine) iterateBin(b int) (float64, error) {
	w := e.w[b]
	xw := e.xw[b]
	ns := len(xw[0])
	n := float64(ns)

	for c := 0; c < e.sources; c++ {
		s := e.sbuf[:ns]
		e.deblendBinColumn(b, c, s)
		gaussContrast(s, e.cbuf[:ns], e.gbuf[:ns], e.dgbuf[:ns])

		beta := floats.Sum(e.dgbuf[:ns]) / n
		for r := 0; r < e.sources; r++ {
			e.wn[r][c] = floats.Dot(xw[r], e.gbuf[:ns])/n - beta*w[r][c]
		}
	}

	if err := decorrelate(e.wn, e.wscratch); err != nil {
		return 0, fmt.Errorf("%w: decorrelation in bin %d: %v", ErrDegenerate, b, err)
	}

	// Column change, invariant to the inherent per-column sign flip.
	delta := 0.0
	for c := 0; c < e.sources; c++ {
		plus, minus := 0.0, 0.0
		for r := 0; r < e.sources; r++ {
			plus += math.Abs(e.wn[r][c] - w[r][c])
			minus += math.Abs(e.wn[r][c] + w[r][c])
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
func (e *Engine) deblendAll() [][]float64 {
	out := linalg.NewMatrix(e.sources, e.samples)
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
// mixing matrix (sensors×sources); see SeparationError for the metric.
// It requires a completed run.
func (e *Engine) UnmixingError(a [][]float64) ([]float64, error) {
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
		score, err := SeparationError(m, a)
		if err != nil {
			return nil, err
		}
		scores[b] = score
	}

	return scores, nil
}

// demixingMatrix returns Wᵀ·Qᵀ for bin b, the composed map from raw
// mean-removed sensor data to separated sources (sources×sensors).
func (e *Engine) demixingMatrix(b int) [][]float64 {
	w := e.w[b]
	q := e.q[b]

	m := linalg.NewMatrix(e.sources, e.sensors)
	for i := 0; i < e.sources; i++ {
		for j := 0; j < e.sensors; j++ {
			var sum float64
			for k := 0; k < e.sources; k++ {
				sum += w[k][i] * q[j][k]
			}
			m[i][j] = sum
		}
	}
	return m
}

// normalizeColumns scales every column of w to unit Euclidean norm.
func normalizeColumns(w [][]float64) {
	rows := len(w)
	cols := len(w[0])
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += w[r][c] * w[r][c]
		}
		norm := math.Sqrt(sum)
		for r := 0; r < rows; r++ {
			w[r][c] /= norm
		}
	}
}

// columnsNonZero reports whether every column of w has a nonzero norm.
func columnsNonZero(w [][]float64) bool {
	rows := len(w)
	cols := len(w[0])
	for c := 0; c < cols; c++ {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += w[r][c] * w[r][c]
		}
		if sum == 0 {
			return false
		}
	}
	return true
}
