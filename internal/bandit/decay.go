package bandit

import "math"

// fitExponentialDecay fits E(t) = e0 * exp(-lambda*t) to a series of
// positive deltas via least squares on ln(E) = ln(e0) - lambda*t. Returns
// ok=false when there are too few points or the data isn't well-described
// by a decaying exponential (non-positive deltas, or a fit with lambda
// <= 0), in which case the caller falls back to a fixed-count rotation
// rule (§4.4).
func fitExponentialDecay(deltas []float64) (lambda, e0 float64, ok bool) {
	if len(deltas) < 3 {
		return 0, 0, false
	}

	var xs, ys []float64
	for i, d := range deltas {
		if d <= 0 {
			continue
		}
		xs = append(xs, float64(i))
		ys = append(ys, math.Log(d))
	}
	if len(xs) < 3 {
		return 0, 0, false
	}

	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0, false
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	lambda = -slope
	if lambda <= 0 {
		return 0, 0, false
	}
	e0 = math.Exp(intercept)
	return lambda, e0, true
}

func expNeg(x float64) float64 {
	return math.Exp(-x)
}
