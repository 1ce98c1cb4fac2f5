package ica

// Config holds the scalar configuration of an engine. Values are
// validated at construction; out-of-range settings surface as
// ErrInvalidConfig from New or NewComplex.
type Config struct {
	// MaxIterations caps the fixed-point iteration. Reaching the cap
	// without convergence is reported, not an error.
	MaxIterations int

	// Tolerance is the per-bin column-change threshold below which the
	// iteration is considered converged.
	Tolerance float64

	// Bins partitions the sample axis into this many contiguous,
	// disjoint ranges, each with its own whitening and unmixing matrix.
	Bins int

	// MagicSensor designates the reference sensor used by the scaling
	// fixup: every separated source is scaled to unit gain at this
	// sensor.
	MagicSensor int

	// Seed drives the deterministic random initialization of the
	// unmixing matrices.
	Seed int64
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 1000,
		Tolerance:     1e-6,
		Bins:          1,
		MagicSensor:   0,
		Seed:          1,
	}
}

// WithMaxIterations sets the iteration cap.
func WithMaxIterations(n int) Option {
	return func(cfg *Config) {
		cfg.MaxIterations = n
	}
}

// WithTolerance sets the convergence tolerance.
func WithTolerance(tol float64) Option {
	return func(cfg *Config) {
		cfg.Tolerance = tol
	}
}

// WithBins sets the number of stationary time bins.
func WithBins(n int) Option {
	return func(cfg *Config) {
		cfg.Bins = n
	}
}

// WithMagicSensor sets the reference sensor index for the scaling
// fixup.
func WithMagicSensor(index int) Option {
	return func(cfg *Config) {
		cfg.MagicSensor = index
	}
}

// WithSeed sets the deterministic random seed for unmixing-matrix
// initialization.
func WithSeed(seed int64) Option {
	return func(cfg *Config) {
		cfg.Seed = seed
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return cfg
}
