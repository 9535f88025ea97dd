// Package random provides the stochastic draws used to generate merchants.
// A Generator is owned by exactly one merchant; it is not safe for
// concurrent use.
package random

import (
	"math"
	"math/rand/v2"
)

const (
	// MaxRandomDeviation bounds normal draws to mean ± k·std.
	MaxRandomDeviation = 3.0
	// NoVolatility is returned by Random when the generator is deterministic.
	NoVolatility = 1.0
)

// Generator draws bounded-normal, ratio and uniform values.
type Generator struct {
	rnd           *rand.Rand
	deterministic bool
}

// New returns a seeded generator. stream separates independent sequences
// sharing the same seed, typically the merchant index.
func New(seed, stream uint64) *Generator {
	return &Generator{rnd: rand.New(rand.NewPCG(seed, stream))}
}

// NewDeterministic returns a generator that always yields the distribution
// centre: means, ratios of 1 and NoVolatility.
func NewDeterministic() *Generator {
	return &Generator{deterministic: true}
}

// Deterministic reports whether randomness is disabled.
func (g *Generator) Deterministic() bool {
	return g == nil || g.deterministic
}

// Random returns a uniform draw in [0,1), or NoVolatility when deterministic.
func (g *Generator) Random() float64 {
	if g.Deterministic() {
		return NoVolatility
	}
	return g.rnd.Float64()
}

// Uniform returns a draw in [lo, hi), or the midpoint when deterministic.
func (g *Generator) Uniform(lo, hi float64) float64 {
	if g.Deterministic() {
		return (lo + hi) / 2
	}
	return lo + g.rnd.Float64()*(hi-lo)
}

// Normal draws N(mean, std) clipped to mean ± MaxRandomDeviation·std.
func (g *Generator) Normal(mean, std float64) float64 {
	return g.NormalBounded(mean, std, mean-MaxRandomDeviation*std, mean+MaxRandomDeviation*std)
}

// NormalBounded draws N(mean, std) clipped to [lo, hi]. Deterministic
// generators return mean (clipped to the bounds).
func (g *Generator) NormalBounded(mean, std, lo, hi float64) float64 {
	v := mean
	if !g.Deterministic() && std > 0 {
		v = mean + g.rnd.NormFloat64()*std
	}
	return math.Min(math.Max(v, lo), hi)
}

// NormalRatio returns a strictly positive multiplicative perturbation. With
// probability chancePositive it is 1+|N(0,std)|, otherwise 1/(1+|N(0,std)|);
// the deviation is capped at maxRatio·std.
func (g *Generator) NormalRatio(std, chancePositive, maxRatio float64) float64 {
	if g.Deterministic() || std <= 0 {
		return 1.0
	}
	deviation := math.Min(math.Abs(g.rnd.NormFloat64()*std), maxRatio*std)
	if g.rnd.Float64() < chancePositive {
		return 1 + deviation
	}
	return 1 / (1 + deviation)
}

// Ratio is NormalRatio with a symmetric chance and the default cap.
func (g *Generator) Ratio(std float64) float64 {
	return g.NormalRatio(std, 0.5, MaxRandomDeviation)
}
