// Package ica separates statistically independent source signals from
// blended multi-sensor records using the FastICA fixed-point algorithm
// (Hyvärinen & Oja, 2000).
//
// The observed mixture is a sensors×samples matrix. The sample axis can
// be partitioned into contiguous bins, each treated as one stationary
// mixing instance with its own whitening and unmixing matrix, so that
// piecewise-stationary acquisitions deblend with a single engine run.
//
// Each run performs mean removal, eigendecomposition-based whitening,
// the fixed-point unmixing iteration with symmetric decorrelation and a
// per-bin convergence test, and finally resolves the inherent ICA
// ambiguities: sources are ordered by non-Gaussianity and rescaled so
// that each source has unit gain at a designated reference sensor
// (minimum-distortion convention).
//
// Real-valued records use [Engine] with a Gaussian contrast function;
// complex-valued records use [CEngine] with a stabilised logarithmic
// contrast. Reaching the iteration cap without meeting the tolerance is
// not an error: the result carries the best-effort separation together
// with Result.Converged == false.
package ica
