// Package regression implements the weighted least-squares line fit shared
// by PredictiveOptimizer's MSPT trend detector and MemoryTrendDetector's
// heap-slope detector (spec.md §4.4, §4.10). Factoring the fit into one
// generic implementation mirrors the teacher's habit of sharing small
// numeric helpers (e.g. randUint4 in server/world/tick.go) across call
// sites rather than duplicating them.
package regression

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Fit computes the ordinary least-squares line y = a + b*x over the given
// points. It returns a, b = 0, 0 if fewer than two points are supplied.
func Fit[T constraints.Float](xs, ys []T) (a, b T) {
	return FitWeighted(xs, ys, nil)
}

// FitWeighted computes the weighted least-squares line y = a + b*x. A nil or
// empty weights slice is treated as uniform weight 1 for every point. len(xs)
// must equal len(ys) and, if non-nil, len(weights).
func FitWeighted[T constraints.Float](xs, ys, weights []T) (a, b T) {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return 0, 0
	}
	if weights != nil && len(weights) != n {
		return 0, 0
	}

	var sw, swx, swy, swxx, swxy T
	for i := 0; i < n; i++ {
		w := T(1)
		if weights != nil {
			w = weights[i]
		}
		x, y := xs[i], ys[i]
		sw += w
		swx += w * x
		swy += w * y
		swxx += w * x * x
		swxy += w * x * y
	}
	if sw == 0 {
		return 0, 0
	}
	denom := sw*swxx - swx*swx
	if denom == 0 {
		// Degenerate (all x identical): fall back to the weighted mean as a
		// flat line.
		return swy / sw, 0
	}
	b = (sw*swxy - swx*swy) / denom
	a = (swy - b*swx) / sw
	return a, b
}

// ExponentialWeights returns n weights w_i = exp(ln(3)/(n-1) * i) so the
// final sample is weighted roughly 3x the first, as required by
// PredictiveOptimizer's trend detector (spec.md §4.10).
func ExponentialWeights[T constraints.Float](n int) []T {
	if n <= 0 {
		return nil
	}
	weights := make([]T, n)
	if n == 1 {
		weights[0] = 1
		return weights
	}
	lnThree := math.Log(3)
	step := lnThree / float64(n-1)
	for i := 0; i < n; i++ {
		weights[i] = T(math.Exp(step * float64(i)))
	}
	return weights
}
