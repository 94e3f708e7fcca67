package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestDecide_SteadyStateAllow(t *testing.T) {
	cfg := BucketConfig{Capacity: 10, RefillRate: 1}
	prior := BucketState{Tokens: 10, LastRefill: unixMilli(0)}

	result, next := Decide(cfg, prior, 1, unixMilli(1000))

	assert.True(t, result.Allowed)
	assert.Equal(t, 9, result.Remaining)
	assert.Equal(t, 10, result.Limit)
	assert.Equal(t, float64(9), next.Tokens)
	assert.Equal(t, unixMilli(1000), next.LastRefill)
}

func TestDecide_BurstExhaustion(t *testing.T) {
	cfg := BucketConfig{Capacity: 10, RefillRate: 1}
	state := BucketState{Tokens: 10, LastRefill: unixMilli(0)}

	wantRemaining := []int{9, 8, 7, 6, 5}
	for i, want := range wantRemaining {
		result, next := Decide(cfg, state, 1, unixMilli(0))
		require.Truef(t, result.Allowed, "request %d should be allowed", i)
		assert.Equal(t, want, result.Remaining)
		state = next
	}
	assert.Equal(t, float64(5), state.Tokens)
}

func TestDecide_DenialThenRecovery(t *testing.T) {
	cfg := BucketConfig{Capacity: 2, RefillRate: 1}
	state := BucketState{Tokens: 0, LastRefill: unixMilli(1000)}

	result, next := Decide(cfg, state, 1, unixMilli(1500))
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Equal(t, int64(1), result.RetryAfter)

	result, _ = Decide(cfg, next, 1, unixMilli(2000))
	assert.True(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
}

func TestDecide_Oversize(t *testing.T) {
	cfg := BucketConfig{Capacity: 5, RefillRate: 1}
	state := BucketState{Tokens: 5, LastRefill: unixMilli(0)}

	result, next := Decide(cfg, state, 10, unixMilli(0))
	assert.False(t, result.Allowed)
	assert.Equal(t, int64(5), result.RetryAfter)
	assert.Equal(t, unixMilli(0), next.LastRefill)
}

func TestDecide_ZeroCostAlwaysAllowed(t *testing.T) {
	cfg := BucketConfig{Capacity: 5, RefillRate: 1}
	state := BucketState{Tokens: 0, LastRefill: unixMilli(0)}

	result, next := Decide(cfg, state, 0, unixMilli(0))
	assert.True(t, result.Allowed)
	assert.Equal(t, float64(0), next.Tokens)
}

func TestDecide_ClockRegressionClampsToZero(t *testing.T) {
	cfg := BucketConfig{Capacity: 5, RefillRate: 1}
	state := BucketState{Tokens: 2, LastRefill: unixMilli(5000)}

	result, next := Decide(cfg, state, 1, unixMilli(1000))
	assert.True(t, result.Allowed)
	assert.Equal(t, float64(1), next.Tokens)
	assert.Equal(t, unixMilli(1000), next.LastRefill)
}

func TestDecide_CapacityBoundInvariant(t *testing.T) {
	cfg := BucketConfig{Capacity: 3, RefillRate: 2}
	state := NewBucketState(cfg, unixMilli(0))

	now := int64(0)
	for i := 0; i < 50; i++ {
		now += 250
		_, next := Decide(cfg, state, 0.5, unixMilli(now))
		require.GreaterOrEqual(t, next.Tokens, float64(0))
		require.LessOrEqual(t, next.Tokens, cfg.Capacity)
		state = next
	}
}

func TestDecide_MonotonicRefill(t *testing.T) {
	cfg := BucketConfig{Capacity: 10, RefillRate: 1}
	state := BucketState{Tokens: 0, LastRefill: unixMilli(0)}

	_, next1 := Decide(cfg, state, 0, unixMilli(1000))
	_, next2 := Decide(cfg, state, 0, unixMilli(2000))
	assert.GreaterOrEqual(t, next2.Tokens, next1.Tokens)
}

func TestDecide_ConservationUnderAllow(t *testing.T) {
	cfg := BucketConfig{Capacity: 4, RefillRate: 2}
	state := BucketState{Tokens: 1, LastRefill: unixMilli(0)}

	result, next := Decide(cfg, state, 2, unixMilli(1000))
	require.True(t, result.Allowed)
	want := minFloat(cfg.Capacity, state.Tokens+1*cfg.RefillRate) - 2
	assert.InDelta(t, want, next.Tokens, 1e-9)
}

func TestDecide_NoDecrementUnderDeny(t *testing.T) {
	cfg := BucketConfig{Capacity: 4, RefillRate: 1}
	state := BucketState{Tokens: 0, LastRefill: unixMilli(0)}

	result, next := Decide(cfg, state, 3, unixMilli(1000))
	require.False(t, result.Allowed)
	want := minFloat(cfg.Capacity, state.Tokens+1*cfg.RefillRate)
	assert.InDelta(t, want, next.Tokens, 1e-9)
}

func TestDecide_PanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() {
		Decide(BucketConfig{Capacity: 0, RefillRate: 1}, BucketState{}, 1, time.Now())
	})
	assert.Panics(t, func() {
		Decide(BucketConfig{Capacity: 1, RefillRate: 0}, BucketState{}, 1, time.Now())
	})
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
