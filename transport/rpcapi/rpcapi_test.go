package rpcapi

import (
	"context"
	"net/rpc"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pallabcodes/distributed-ratelimiter/core"
)

type fakeLimiter struct {
	checkResult core.CheckResult
	checkErr    error
	quotaResult core.QuotaResult
	quotaErr    error
}

func (f fakeLimiter) Check(ctx context.Context, clientID, resource string, cost float64) (core.CheckResult, error) {
	return f.checkResult, f.checkErr
}

func (f fakeLimiter) GetQuota(ctx context.Context, clientID, resource string) (core.QuotaResult, error) {
	return f.quotaResult, f.quotaErr
}

func startTestServer(t *testing.T, limiter RateLimiter) *rpc.Client {
	t.Helper()
	svc := NewRateLimiterService(limiter, time.Second)
	srv, err := Listen("127.0.0.1:0", svc)
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() { _ = srv.Close() })

	client, err := rpc.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRPC_Check(t *testing.T) {
	client := startTestServer(t, fakeLimiter{
		checkResult: core.CheckResult{Allowed: true, Remaining: 9, Limit: 10, ResetAt: 100, RetryAfter: 0},
	})

	var resp CheckResp
	err := client.Call("RateLimiterService.Check", CheckReq{ClientID: "c1", Resource: "search", Cost: 1}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Equal(t, int32(9), resp.Remaining)
	assert.Equal(t, int32(10), resp.Limit)
}

func TestRPC_GetQuota(t *testing.T) {
	client := startTestServer(t, fakeLimiter{
		quotaResult: core.QuotaResult{CurrentUsage: 4, Limit: 10},
	})

	var resp QuotaResp
	err := client.Call("RateLimiterService.GetQuota", QuotaReq{ClientID: "c1", Resource: "search"}, &resp)
	require.NoError(t, err)
	assert.Equal(t, int32(4), resp.CurrentUsage)
	assert.Equal(t, int32(10), resp.Limit)
}

func TestRPC_ErrorDegradesToZeroResponse(t *testing.T) {
	client := startTestServer(t, fakeLimiter{checkErr: assertErr{}})

	var resp CheckResp
	err := client.Call("RateLimiterService.Check", CheckReq{ClientID: "", Resource: ""}, &resp)
	require.NoError(t, err)
	assert.Equal(t, CheckResp{}, resp)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
