// Package sampling provides the bounded random draws used by the cost
// calculators and the event generator.
//
// Every draw is bounded: uniform ranges, Bernoulli trials, weighted choice
// over a finite set, Beta variates in [0,1] and truncated tails. Nothing here
// can produce a non-finite value.
package sampling

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Sampler wraps a PCG stream. A Sampler is not safe for concurrent use; give
// each goroutine its own via Split.
type Sampler struct {
	rng *rand.Rand
}

// New returns a Sampler seeded deterministically from seed.
func New(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Split derives an independent child stream. Deterministic given the parent
// state.
func (s *Sampler) Split() *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(s.rng.Uint64(), s.rng.Uint64()))}
}

// Uint64 returns a raw 64-bit value.
func (s *Sampler) Uint64() uint64 {
	return s.rng.Uint64()
}

// Float64 returns a value in [0,1).
func (s *Sampler) Float64() float64 {
	return s.rng.Float64()
}

// Uniform returns a value in [lo,hi).
func (s *Sampler) Uniform(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.rng.Float64()*(hi-lo)
}

// IntN returns a value in [0,n).
func (s *Sampler) IntN(n int) int {
	return s.rng.IntN(n)
}

// Chance returns true with probability p.
func (s *Sampler) Chance(p float64) bool {
	return s.rng.Float64() < p
}

// TruncatedExponential draws from an exponential with the given mean and
// clamps the result into [lo,hi].
func (s *Sampler) TruncatedExponential(mean, lo, hi float64) float64 {
	v := s.rng.ExpFloat64() * mean
	return math.Min(hi, math.Max(lo, v))
}

// Beta draws from Beta(a,b) for small positive integer shapes, built from
// sums of exponentials. The result is in [0,1].
func (s *Sampler) Beta(a, b int) float64 {
	x := s.gammaInt(a)
	y := s.gammaInt(b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

func (s *Sampler) gammaInt(k int) float64 {
	var sum float64
	for i := 0; i < k; i++ {
		sum += s.rng.ExpFloat64()
	}
	return sum
}

// Poisson draws a Poisson variate with mean lambda using Knuth's method,
// capped at max.
func (s *Sampler) Poisson(lambda float64, max int) int {
	if lambda <= 0 {
		return 0
	}
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= s.rng.Float64()
		if p <= limit || k >= max {
			return k
		}
		k++
	}
}

// Weighted is a precomputed cumulative table for choosing among n options.
type Weighted struct {
	cumulative []float64
}

// NewWeighted builds a table from non-negative weights. The weights are
// normalized, so they need not sum to exactly one.
func NewWeighted(weights []float64) (*Weighted, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("weighted choice needs at least one option")
	}
	var total float64
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight %d is invalid: %v", i, w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("weights sum to zero")
	}
	cum := make([]float64, len(weights))
	var acc float64
	for i, w := range weights {
		acc += w / total
		cum[i] = acc
	}
	cum[len(cum)-1] = 1
	return &Weighted{cumulative: cum}, nil
}

// MustWeighted is NewWeighted for static tables; it panics on bad input.
func MustWeighted(weights []float64) *Weighted {
	w, err := NewWeighted(weights)
	if err != nil {
		panic(err)
	}
	return w
}

// Len returns the number of options.
func (w *Weighted) Len() int {
	return len(w.cumulative)
}

// Pick returns an index in [0,Len()).
func (w *Weighted) Pick(s *Sampler) int {
	u := s.rng.Float64()
	for i, c := range w.cumulative {
		if u < c {
			return i
		}
	}
	return len(w.cumulative) - 1
}
