// Package core implements the token-bucket decision algorithm.
//
// Decide is a pure function: given a bucket configuration, the prior
// observed state, a request cost, and the current time, it computes
// whether the request is allowed and the next state to persist. It
// performs no I/O and never blocks.
package core

import (
	"fmt"
	"math"
	"time"
)

// BucketConfig describes the static parameters of a resource class.
type BucketConfig struct {
	// Capacity is the maximum burst size, in tokens.
	Capacity float64
	// RefillRate is the number of tokens added per second.
	RefillRate float64
}

// Validate checks that the configuration can be used by Decide.
func (c BucketConfig) Validate() error {
	if c.Capacity < 1 {
		return fmt.Errorf("core: capacity must be >= 1, got %v", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("core: refill rate must be positive, got %v", c.RefillRate)
	}
	return nil
}

// BucketState is the durable per-(clientId,resource) state.
type BucketState struct {
	Tokens     float64
	LastRefill time.Time
}

// NewBucketState returns a freshly initialized, full bucket.
func NewBucketState(cfg BucketConfig, now time.Time) BucketState {
	return BucketState{Tokens: cfg.Capacity, LastRefill: now}
}

// CheckResult is the outcome of a single decision.
type CheckResult struct {
	Allowed    bool
	Remaining  int
	Limit      int
	ResetAt    int64 // unix seconds
	RetryAfter int64 // seconds, 0 if allowed
}

// QuotaResult is the GetQuota view of a zero-cost Check: how much of the
// bucket is currently consumed, derived as limit - remaining.
type QuotaResult struct {
	CurrentUsage int
	Limit        int
}

// Decide computes the decision and next state for a single request.
//
// It panics if cfg is invalid; callers validate configuration once at
// wiring time so this never fires on the request path. cost must be
// finite and non-negative; callers validate that at the transport/service
// boundary (see the service package) before calling Decide.
func Decide(cfg BucketConfig, prior BucketState, cost float64, now time.Time) (CheckResult, BucketState) {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	elapsedSec := now.Sub(prior.LastRefill).Seconds()
	if elapsedSec < 0 {
		elapsedSec = 0
	}

	refilled := math.Min(cfg.Capacity, prior.Tokens+elapsedSec*cfg.RefillRate)

	if refilled >= cost {
		next := BucketState{Tokens: refilled - cost, LastRefill: now}
		return CheckResult{
			Allowed:    true,
			Remaining:  max(int(next.Tokens), 0),
			Limit:      int(math.Floor(cfg.Capacity)),
			ResetAt:    resetAt(now, cfg, next),
			RetryAfter: 0,
		}, next
	}

	next := BucketState{Tokens: refilled, LastRefill: now}
	return CheckResult{
		Allowed:    false,
		Remaining:  0,
		Limit:      int(math.Floor(cfg.Capacity)),
		ResetAt:    resetAt(now, cfg, next),
		RetryAfter: int64(math.Ceil((cost - refilled) / cfg.RefillRate)),
	}, next
}

// resetAt computes the unix-seconds timestamp at which the bucket would be
// back at full capacity.
func resetAt(now time.Time, cfg BucketConfig, next BucketState) int64 {
	if next.Tokens >= cfg.Capacity {
		return now.Unix()
	}
	secondsToFull := (cfg.Capacity - next.Tokens) / cfg.RefillRate
	return now.Add(time.Duration(secondsToFull * float64(time.Second))).Unix()
}
