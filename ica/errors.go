package ica

import "errors"

// Errors returned by the ICA engine. Detail is attached via wrapping,
// so callers can match the class with errors.Is.
var (
	// ErrInvalidConfig indicates malformed construction parameters or
	// mis-shaped caller-supplied matrices. Always fatal to the call.
	ErrInvalidConfig = errors.New("ica: invalid configuration")

	// ErrDegenerate indicates a numerically degenerate input: a
	// zero-variance direction during whitening, a singular Gram matrix
	// during decorrelation, or zero gain at the reference sensor during
	// the scaling fixup. The engine applies no silent regularization;
	// callers must supply better-conditioned input.
	ErrDegenerate = errors.New("ica: numerical degeneracy")
)
