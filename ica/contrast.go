package ica

import "math"

// logEpsilon stabilises the complex log contrast near zero magnitude.
const logEpsilon = 0.1

// gaussContrast evaluates the real-mode Gaussian contrast on the
// current source estimate s: G = exp(-s²/2), g = s·G, g' = G·(1-s²).
// The evaluation is pure and elementwise; all outputs are recomputed
// from scratch on every call.
func gaussContrast(s, bigG, g, dg []float64) {
	for t, v := range s {
		e := math.Exp(-v * v / 2)
		bigG[t] = e
		g[t] = v * e
		dg[t] = e * (1 - v*v)
	}
}

// logContrast evaluates the complex-mode contrast on the current source
// estimate s: G = log(ε+|s|²), g = 1/(ε+|s|²), g' = -1/(ε+|s|²)².
// All three outputs are real-valued.
func logContrast(s []complex128, bigG, g, dg []float64) {
	for t, v := range s {
		d := logEpsilon + real(v)*real(v) + imag(v)*imag(v)
		bigG[t] = math.Log(d)
		g[t] = 1 / d
		dg[t] = -1 / (d * d)
	}
}
