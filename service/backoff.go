package service

import (
	"math/rand/v2"
	"time"
)

// retryShiftMask bounds the exponential shift applied per attempt so the
// delay can't grow unboundedly across a long attempt loop.
const retryShiftMask = 8

// nextDelay produces a sawtooth-like backoff delay for a failed
// CompareAndSet attempt, given how long the just-failed attempt took
// (feedback). Adapted from the teacher's CAS-contention backoff helper,
// simplified for this service's much smaller CASMaxAttempts bound.
func nextDelay(attempt int, feedback time.Duration) time.Duration {
	feedback = min(max(feedback, 30*time.Nanosecond), 10*time.Second)

	shift := attempt % retryShiftMask
	mult := time.Duration(attempt + 1)
	delay := (feedback * mult) << shift

	half := delay / 2
	if half <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Int64N(int64(half)))
	return half + jitter
}
