package rng

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededStream_ResetReproducesSequence(t *testing.T) {
	adapter := NewSeededAdapter()
	ctx := context.Background()

	first, err := adapter.SeededStream(ctx, "b_prime_500", 7)
	require.NoError(t, err)
	second, err := adapter.SeededStream(ctx, "b_prime_1000", 7)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		assert.Equal(t, first.Float64(), second.Float64(), "draw %d differs", i)
	}
}

func TestSeededStream_DifferentSeedsDiverge(t *testing.T) {
	a := New(7)
	b := New(8)

	same := 0
	for i := 0; i < 50; i++ {
		if a.Uint64() == b.Uint64() {
			same++
		}
	}
	assert.Less(t, same, 50)
}

func TestSeededStream_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSeededAdapter().SeededStream(ctx, "check", 1)
	assert.Error(t, err)
}
