package rng

import (
	"context"
	"math/rand/v2"
)

// pcgStream is the fixed PCG stream selector; the seed alone picks the sequence
const pcgStream = 0x9e3779b97f4a7c15

// SeededAdapter implements ports.RNGPort with PCG generators.
// The operation name is informational only: two streams created with the same
// seed yield the same sequence, which is what the per-B′ reset relies on.
type SeededAdapter struct{}

// NewSeededAdapter creates the production RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return New(seed), nil
}

// New returns a PCG-backed generator for seed
func New(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), pcgStream))
}
