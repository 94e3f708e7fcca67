package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pallabcodes/distributed-ratelimiter/core"
	"github.com/pallabcodes/distributed-ratelimiter/service"
)

// RateLimiter is the subset of service.RateLimiter the HTTP surface
// depends on, so handlers can be tested against a fake.
type RateLimiter interface {
	Check(ctx context.Context, clientID, resource string, cost float64) (core.CheckResult, error)
}

type checkRequest struct {
	ClientID string   `json:"clientId"`
	Resource string   `json:"resource"`
	Cost     *float64 `json:"cost"`
}

type checkResponse struct {
	Allowed    bool  `json:"allowed"`
	Remaining  int   `json:"remaining"`
	Limit      int   `json:"limit"`
	ResetAt    int64 `json:"resetAt"`
	RetryAfter int64 `json:"retryAfter"`
}

// zeroCheckResponse is the wire-compat "deny-and-zero" shape returned for
// validation errors, matching spec.md §4.6/§7: the source always returns
// a valid CheckResp, so malformed input degrades to this instead of an
// HTTP error status.
var zeroCheckResponse = checkResponse{}

func checkResultToResponse(r core.CheckResult) checkResponse {
	return checkResponse{
		Allowed:    r.Allowed,
		Remaining:  r.Remaining,
		Limit:      r.Limit,
		ResetAt:    r.ResetAt,
		RetryAfter: r.RetryAfter,
	}
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		loggerFrom(r).Warn("check: malformed request body", "error", err)
		writeJSON(w, http.StatusOK, zeroCheckResponse)
		return
	}

	cost := 1.0
	if req.Cost != nil {
		cost = *req.Cost
	}

	result, err := s.limiter.Check(r.Context(), req.ClientID, req.Resource, cost)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			loggerFrom(r).Warn("check: validation error", "error", err)
			writeJSON(w, http.StatusOK, zeroCheckResponse)
			return
		}
		loggerFrom(r).Error("check: unexpected error", "error", err)
		writeJSON(w, http.StatusOK, zeroCheckResponse)
		return
	}

	writeJSON(w, http.StatusOK, checkResultToResponse(result))
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    int64  `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    int64(time.Since(s.startedAt).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
