// Package pricing produces the next simulated price of a product.
package pricing

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	// MaxChange is the largest relative move of a single step (+-5%).
	MaxChange = 0.05
	// MinPrice is the floor no generated price goes below.
	MinPrice = 1.0
)

// RandomSource yields uniform values in [0, 1).
// *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// NextPrice draws a delta uniformly from [-MaxChange, MaxChange] and applies it
// to previous. previous must be positive.
func NextPrice(previous float64, rng RandomSource) float64 {
	delta := -MaxChange + 2*MaxChange*rng.Float64()
	if delta > MaxChange {
		delta = MaxChange
	}
	return Apply(previous, delta)
}

// Apply moves previous by the relative delta, rounds to cents and clamps the
// result at MinPrice.
func Apply(previous, delta float64) float64 {
	candidate := Round(previous * (1 + delta))
	if candidate < MinPrice {
		return MinPrice
	}
	return candidate
}

// Round rounds v to two decimals, half away from zero.
func Round(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// LockedSource is a seeded RandomSource safe for concurrent use.
type LockedSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewLockedSource(seed int64) *LockedSource {
	return &LockedSource{rnd: rand.New(rand.NewSource(seed))}
}

func (s *LockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rnd.Float64()
}
