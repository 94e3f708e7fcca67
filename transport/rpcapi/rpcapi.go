// Package rpcapi implements the binary RPC transport surface (C6) over
// the standard library's net/rpc and encoding/gob. No example in the
// retrieval pack wires a real protobuf/gRPC service of its own (only
// transitive/unused dependencies on grpc appear in a couple of go.sum
// files), so the RPC surface here follows the one fully wire-compatible
// path the standard library provides — see DESIGN.md for the full
// justification.
package rpcapi

import (
	"context"
	"time"

	"github.com/pallabcodes/distributed-ratelimiter/core"
)

// CheckReq mirrors spec.md §6's CheckReq wire shape. net/rpc/gob have no
// field-renaming mechanism analogous to protobuf field numbers or JSON
// tags, so Go-idiomatic exported field names stand in directly for the
// spec's client_id/reset_at wire names.
type CheckReq struct {
	ClientID string
	Resource string
	Cost     int32
}

// CheckResp mirrors spec.md §6's CheckResp.
type CheckResp struct {
	Allowed    bool
	Remaining  int32
	Limit      int32
	ResetAt    int64
	RetryAfter int32
}

// QuotaReq mirrors spec.md §6's QuotaReq.
type QuotaReq struct {
	ClientID string
	Resource string
}

// QuotaResp mirrors spec.md §6's QuotaResp. Unlike the source's
// hard-coded {0, 100} stub, this is backed by a real zero-cost Check
// (SPEC_FULL.md §9).
type QuotaResp struct {
	CurrentUsage int32
	Limit        int32
}

// RateLimiter is the subset of service.RateLimiter the RPC surface
// depends on.
type RateLimiter interface {
	Check(ctx context.Context, clientID, resource string, cost float64) (core.CheckResult, error)
	GetQuota(ctx context.Context, clientID, resource string) (core.QuotaResult, error)
}

// RateLimiterService is registered with net/rpc under the name
// "RateLimiterService", matching spec.md §6's service name. Every method
// is exported, takes exactly two arguments (request, *response), and
// returns error, per net/rpc's calling convention.
type RateLimiterService struct {
	limiter        RateLimiter
	requestTimeout time.Duration
}

// NewRateLimiterService constructs the RPC receiver.
func NewRateLimiterService(limiter RateLimiter, requestTimeout time.Duration) *RateLimiterService {
	if requestTimeout <= 0 {
		requestTimeout = 100 * time.Millisecond
	}
	return &RateLimiterService{limiter: limiter, requestTimeout: requestTimeout}
}

// Check implements the RPC method. Like the HTTP surface, internal
// errors degrade to a zero-value CheckResp rather than propagating an
// RPC-level error, preserving wire compatibility with the source
// (spec.md §7).
func (s *RateLimiterService) Check(req CheckReq, resp *CheckResp) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	result, err := s.limiter.Check(ctx, req.ClientID, req.Resource, float64(req.Cost))
	if err != nil {
		*resp = CheckResp{}
		return nil
	}

	*resp = CheckResp{
		Allowed:    result.Allowed,
		Remaining:  int32(result.Remaining),
		Limit:      int32(result.Limit),
		ResetAt:    result.ResetAt,
		RetryAfter: int32(result.RetryAfter),
	}
	return nil
}

// GetQuota implements the RPC method as a real zero-cost check.
func (s *RateLimiterService) GetQuota(req QuotaReq, resp *QuotaResp) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
	defer cancel()

	result, err := s.limiter.GetQuota(ctx, req.ClientID, req.Resource)
	if err != nil {
		*resp = QuotaResp{}
		return nil
	}

	*resp = QuotaResp{
		CurrentUsage: int32(result.CurrentUsage),
		Limit:        int32(result.Limit),
	}
	return nil
}
