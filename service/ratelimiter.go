// Package service implements the rate-limit service (C5): it owns the
// distributed check protocol described in spec.md §4.5, orchestrating
// the token-bucket core, the storage port, the metrics port, and the
// audit port for every request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pallabcodes/distributed-ratelimiter/audit"
	"github.com/pallabcodes/distributed-ratelimiter/core"
	"github.com/pallabcodes/distributed-ratelimiter/metrics"
	"github.com/pallabcodes/distributed-ratelimiter/storage"
	"github.com/pallabcodes/distributed-ratelimiter/utils"
)

// sleepThreshold is the SleepOrWait cutoff below which a retry backoff
// sleeps unconditionally rather than selecting on ctx.Done(); the CAS
// loop's deadline is already enforced per-attempt via ctx, so only
// longer backoffs need the extra cancellation check.
const sleepThreshold = 2 * time.Millisecond

// ResourceResolver resolves a resource class name to its BucketConfig,
// applying whatever unknown-resource policy the caller configured
// (config.Resolver implements this).
type ResourceResolver interface {
	Resolve(resource string) (core.BucketConfig, error)
}

// Options configures a RateLimiter.
type Options struct {
	Resolver        ResourceResolver
	Storage         storage.Store
	Audit           audit.Publisher
	Metrics         metrics.Recorder
	FailOpen        bool
	RequestDeadline time.Duration
	CASMaxAttempts  int
	AuditQueueSize  int
	AuditWorkers    int
}

// RateLimiter implements the distributed check protocol. It holds no
// per-request state across calls: the only shared mutable resource is
// the bucket value in storage, per spec.md §5.
type RateLimiter struct {
	resolver ResourceResolver
	storage  storage.Store
	metrics  metrics.Recorder
	fanout   *auditFanout

	failOpen        bool
	requestDeadline time.Duration
	casMaxAttempts  int
}

// New wires a RateLimiter from its ports.
func New(opts Options) *RateLimiter {
	deadline := opts.RequestDeadline
	if deadline <= 0 {
		deadline = 100 * time.Millisecond
	}
	attempts := opts.CASMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	return &RateLimiter{
		resolver:        opts.Resolver,
		storage:         opts.Storage,
		metrics:         opts.Metrics,
		fanout:          newAuditFanout(opts.Audit, opts.Metrics, opts.AuditQueueSize, opts.AuditWorkers),
		failOpen:        opts.FailOpen,
		requestDeadline: deadline,
		casMaxAttempts:  attempts,
	}
}

// Check implements the protocol in spec.md §4.5: validate, resolve the
// bucket config, run the bounded Get→Decide→CompareAndSet attempt loop,
// increment metrics synchronously, and enqueue an audit event
// asynchronously. The returned error is non-nil only for validation
// failures (including an unknown resource under strict mode); every
// storage failure is absorbed into a valid CheckResult via the
// fail-open/fail-closed policy (see DESIGN.md for why this differs from
// a literal reading of spec.md §5's "return an error to transport"
// phrasing).
func (s *RateLimiter) Check(ctx context.Context, clientID, resource string, cost float64) (core.CheckResult, error) {
	if err := validateKeyPart(clientID, "clientId"); err != nil {
		return core.CheckResult{}, err
	}
	if err := validateKeyPart(resource, "resource"); err != nil {
		return core.CheckResult{}, err
	}
	if cost < 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return core.CheckResult{}, fmt.Errorf("%w: cost must be a non-negative finite number", ErrValidation)
	}

	cfg, err := s.resolver.Resolve(resource)
	if err != nil {
		return core.CheckResult{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestDeadline)
	defer cancel()

	key := composeKey(clientID, resource)

	for attempt := 0; attempt < s.casMaxAttempts; attempt++ {
		attemptStart := time.Now()
		now := attemptStart

		priorState, existed, err := s.loadPrior(ctx, key, cfg, now)
		if err != nil {
			s.logTransient(key, err)
			return s.failPolicy(cfg, clientID, resource, cost), nil
		}

		result, next := core.Decide(cfg, priorState, cost, now)

		applied, err := s.storage.CompareAndSet(
			ctx, key,
			storage.State{Tokens: priorState.Tokens, LastRefill: priorState.LastRefill}, existed,
			storage.State{Tokens: next.Tokens, LastRefill: next.LastRefill},
			storage.TTL,
		)
		if err != nil {
			s.logTransient(key, err)
			return s.failPolicy(cfg, clientID, resource, cost), nil
		}
		if applied {
			s.recordDecision(clientID, resource, cost, result)
			return result, nil
		}

		// Lost the race: another replica won this key. Back off briefly,
		// bounded by the request deadline via ctx, and retry.
		delay := nextDelay(attempt, time.Since(attemptStart))
		if err := utils.SleepOrWait(ctx, delay, sleepThreshold); err != nil {
			s.logTransient(key, err)
			return s.failPolicy(cfg, clientID, resource, cost), nil
		}
	}

	s.logTransient(key, errors.New("compare-and-set attempts exhausted"))
	return s.failPolicy(cfg, clientID, resource, cost), nil
}

// GetQuota performs a real zero-cost Check and reshapes the result into
// the QuotaResult view (SPEC_FULL.md §9, Open Question #2, resolved:
// the source's hard-coded {0, 100} stub is replaced with real behavior).
func (s *RateLimiter) GetQuota(ctx context.Context, clientID, resource string) (core.QuotaResult, error) {
	result, err := s.Check(ctx, clientID, resource, 0)
	if err != nil {
		return core.QuotaResult{}, err
	}
	return core.QuotaResult{
		CurrentUsage: result.Limit - result.Remaining,
		Limit:        result.Limit,
	}, nil
}

func (s *RateLimiter) loadPrior(ctx context.Context, key string, cfg core.BucketConfig, now time.Time) (core.BucketState, bool, error) {
	state, ok, err := s.storage.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrPermanent) {
			// StoragePermanent: treat the key as absent and let the next
			// write repair the record (spec.md §7).
			return core.NewBucketState(cfg, now), false, nil
		}
		return core.BucketState{}, false, err
	}
	if !ok {
		return core.NewBucketState(cfg, now), false, nil
	}
	return core.BucketState{Tokens: state.Tokens, LastRefill: state.LastRefill}, true, nil
}

// logTransient records a storage failure as StorageTransient (spec.md
// §7) before the policy decision in failPolicy is applied.
func (s *RateLimiter) logTransient(key string, err error) {
	slog.Warn("storage transient failure", "key", key, "error", fmt.Errorf("%w: %v", ErrStorageTransient, err))
}

// failPolicy applies the configured fail-open/fail-closed policy after a
// StorageTransient failure (including CAS-attempt-loop exhaustion and
// deadline expiry, both treated as StorageTransient per spec.md §7).
func (s *RateLimiter) failPolicy(cfg core.BucketConfig, clientID, resource string, cost float64) core.CheckResult {
	limit := int(cfg.Capacity)
	now := time.Now()

	var result core.CheckResult
	if s.failOpen {
		result = core.CheckResult{Allowed: true, Remaining: limit, Limit: limit, ResetAt: now.Unix(), RetryAfter: 0}
	} else {
		result = core.CheckResult{Allowed: false, Remaining: 0, Limit: limit, ResetAt: now.Unix(), RetryAfter: 1}
	}

	s.metrics.IncrementCheck(clientID, "timeout")
	s.fanout.enqueue(audit.Event{
		EventID:    uuid.NewString(),
		ClientID:   clientID,
		Resource:   resource,
		Allowed:    result.Allowed,
		Cost:       cost,
		Remaining:  result.Remaining,
		OccurredAt: now,
	})
	return result
}

func (s *RateLimiter) recordDecision(clientID, resource string, cost float64, result core.CheckResult) {
	status := "blocked"
	if result.Allowed {
		status = "allowed"
	}
	s.metrics.IncrementCheck(clientID, status)

	s.fanout.enqueue(audit.Event{
		EventID:    uuid.NewString(),
		ClientID:   clientID,
		Resource:   resource,
		Allowed:    result.Allowed,
		Cost:       cost,
		Remaining:  result.Remaining,
		OccurredAt: time.Now(),
	})
}

// Close stops the audit fanout workers and closes the audit publisher.
func (s *RateLimiter) Close() error {
	return s.fanout.close()
}
