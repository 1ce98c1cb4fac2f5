package ica

import (
	"math/rand"
	"strconv"
	"testing"
)

func benchMixture(samples int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	sources := [][]float64{make([]float64, samples), make([]float64, samples)}
	for i := 0; i < samples; i++ {
		sources[0][i] = (rng.Float64()*2 - 1) * 2
		sources[1][i] = rng.NormFloat64()
	}

	mixture := make([][]float64, len(refMixing))
	for r := range mixture {
		mixture[r] = make([]float64, samples)
		for i := 0; i < samples; i++ {
			mixture[r][i] = refMixing[r][0]*sources[0][i] + refMixing[r][1]*sources[1][i]
		}
	}
	return mixture
}

func BenchmarkEngineRun(b *testing.B) {
	sizes := []int{1000, 4000, 16000}
	for _, n := range sizes {
		b.Run(strconv.Itoa(n), func(b *testing.B) {
			mixture := benchMixture(n)
			e, err := New(mixture, 2)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				e.Reinit()
				if _, err := e.Run(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEngineIterateBin(b *testing.B) {
	mixture := benchMixture(4000)
	e, err := New(mixture, 2)
	if err != nil {
		b.Fatal(err)
	}
	e.removeMean()
	if err := e.whiten(); err != nil {
		b.Fatal(err)
	}
	defer func() {
		if err := e.restoreMean(); err != nil {
			b.Fatal(err)
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.iterateBin(0); err != nil {
			b.Fatal(err)
		}
	}
}
