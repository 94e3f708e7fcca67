package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pallabcodes/distributed-ratelimiter/core"
	"github.com/pallabcodes/distributed-ratelimiter/service"
)

type fakeLimiter struct {
	result core.CheckResult
	err    error
}

func (f fakeLimiter) Check(ctx context.Context, clientID, resource string, cost float64) (core.CheckResult, error) {
	return f.result, f.err
}

func TestHandleCheck_AllowedDecision(t *testing.T) {
	srv := NewServer(fakeLimiter{result: core.CheckResult{Allowed: true, Remaining: 9, Limit: 10, ResetAt: 100, RetryAfter: 0}})
	router := srv.Router(time.Second)

	body, _ := json.Marshal(map[string]any{"clientId": "c1", "resource": "search", "cost": 1})
	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Allowed)
	assert.Equal(t, 9, resp.Remaining)
}

func TestHandleCheck_ValidationErrorReturnsZeroShape(t *testing.T) {
	srv := NewServer(fakeLimiter{err: service.ErrValidation})
	router := srv.Router(time.Second)

	body, _ := json.Marshal(map[string]any{"clientId": "", "resource": "search"})
	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, zeroCheckResponse, resp)
}

func TestHandleCheck_MalformedBodyReturnsZeroShape(t *testing.T) {
	srv := NewServer(fakeLimiter{})
	router := srv.Router(time.Second)

	req := httptest.NewRequest(http.MethodPost, "/check", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp checkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, zeroCheckResponse, resp)
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(fakeLimiter{})
	router := srv.Router(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleHealthLive(t *testing.T) {
	srv := NewServer(fakeLimiter{})
	router := srv.Router(time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alive", resp.Status)
}
