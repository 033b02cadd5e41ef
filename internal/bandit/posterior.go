package bandit

import (
	"math"
	"math/rand"
)

// Posterior is a Beta(alpha, beta) distribution tracking one
// (attractor-kind, strategy-kind) pair's success history (§4.4).
type Posterior struct {
	Alpha float64
	Beta  float64
}

// NewPosterior starts from an uninformative Beta(1, 1) prior.
func NewPosterior() *Posterior {
	return &Posterior{Alpha: 1, Beta: 1}
}

// Sample draws from the posterior using Marsaglia-Tsang gamma sampling:
// if X ~ Gamma(alpha, 1) and Y ~ Gamma(beta, 1) independently, X/(X+Y) ~
// Beta(alpha, beta).
func (p *Posterior) Sample(rng *rand.Rand) float64 {
	x := sampleGamma(rng, p.Alpha)
	y := sampleGamma(rng, p.Beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// Mean returns the posterior's expected value, used when a deterministic
// estimate is preferred over a stochastic draw (e.g. for display/debugging).
func (p *Posterior) Mean() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

// sampleGamma draws from Gamma(shape, 1) via Marsaglia & Tsang's method,
// boosting shape < 1 by one and correcting with a uniform draw.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9*d)
	for {
		var v, x float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
