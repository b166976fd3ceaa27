// Package classifiertest provides a deterministic intake-like feature corpus
// for tests that need a fitted classifier.
package classifiertest

import (
	"math"
	"math/rand/v2"
)

// Corpus returns n (amount, categories) rows. Most rows are small requests
// around 150.00 with one to five categories; every twentieth row is a large
// six-category request around 5000.00. The same n always yields the same rows.
func Corpus(n int) [][]float64 {
	r := rand.New(rand.NewPCG(7, 11))
	out := make([][]float64, 0, n)
	for i := 1; i <= n; i++ {
		if i%20 == 0 {
			out = append(out, []float64{5000 + r.NormFloat64()*1000, 6})
			continue
		}
		count := math.Max(1, math.Min(5, math.Round(3+r.NormFloat64())))
		out = append(out, []float64{math.Round((150+r.NormFloat64()*50)*100) / 100, count})
	}
	return out
}
