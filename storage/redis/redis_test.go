package redis

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pallabcodes/distributed-ratelimiter/storage"
)

func setupRedisTest(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	s, err := New(Config{Addr: addr})
	if err != nil {
		t.Skip("redis not available, skipping")
	}

	t.Cleanup(func() {
		_ = s.client.FlushAll(t.Context()).Err()
		_ = s.Close()
	})
	return s
}

func TestStore_GetMissingKey(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	_, ok, err := s.Get(ctx, "missing-key")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_CompareAndSetCreatesWhenAbsent(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	next := storage.State{Tokens: 5, LastRefill: time.Unix(100, 0)}
	applied, err := s.CompareAndSet(ctx, "new-key", storage.State{}, false, next, time.Minute)
	require.NoError(t, err)
	require.True(t, applied)

	got, ok, err := s.Get(ctx, "new-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next.Tokens, got.Tokens)
}

func TestStore_CompareAndSetFailsOnAlreadyExists(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	first := storage.State{Tokens: 5, LastRefill: time.Unix(100, 0)}
	applied, err := s.CompareAndSet(ctx, "dup-key", storage.State{}, false, first, time.Minute)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = s.CompareAndSet(ctx, "dup-key", storage.State{}, false, first, time.Minute)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_CompareAndSetRejectsStaleExpected(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	first := storage.State{Tokens: 5, LastRefill: time.Unix(100, 0)}
	_, err := s.CompareAndSet(ctx, "cas-key", storage.State{}, false, first, time.Minute)
	require.NoError(t, err)

	stale := storage.State{Tokens: 4, LastRefill: time.Unix(99, 0)}
	next := storage.State{Tokens: 3, LastRefill: time.Unix(200, 0)}
	applied, err := s.CompareAndSet(ctx, "cas-key", stale, true, next, time.Minute)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestStore_CompareAndSetSucceedsOnMatch(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	first := storage.State{Tokens: 5, LastRefill: time.Unix(100, 0)}
	_, err := s.CompareAndSet(ctx, "match-key", storage.State{}, false, first, time.Minute)
	require.NoError(t, err)

	next := storage.State{Tokens: 3, LastRefill: time.Unix(200, 0)}
	applied, err := s.CompareAndSet(ctx, "match-key", first, true, next, time.Minute)
	require.NoError(t, err)
	require.True(t, applied)

	got, ok, err := s.Get(ctx, "match-key")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, next.Tokens, got.Tokens)
}

func TestStore_ScriptReloadAfterFlush(t *testing.T) {
	s := setupRedisTest(t)
	ctx := t.Context()

	require.NoError(t, s.client.ScriptFlush(ctx).Err())

	next := storage.State{Tokens: 1, LastRefill: time.Unix(1, 0)}
	applied, err := s.CompareAndSet(ctx, "reload-key", storage.State{}, false, next, time.Minute)
	require.NoError(t, err)
	require.True(t, applied)
}
