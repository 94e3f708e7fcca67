// Package redis implements the storage port (C2) against a shared Redis
// instance, using a Lua script to make compare-and-set atomic across
// concurrent replicas.
package redis

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pallabcodes/distributed-ratelimiter/storage"
)

// absentSentinel is passed as ARGV[1] to check_and_set.lua when the caller
// expects the key not to exist yet.
const absentSentinel = "\x00absent"

//go:embed check_and_set.lua
var checkAndSetScript string

// Config configures the Redis storage adapter.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// RedisURL, if set, is parsed first; any non-zero Addr, Password, DB
	// or PoolSize above then overrides the value taken from the URL.
	RedisURL string
	// ConnErrorStrings overrides the default connectivity-error patterns
	// used to distinguish a HealthError from an operational error.
	ConnErrorStrings []string
}

// Store is a storage.Store backed by Redis.
type Store struct {
	client           redis.UniversalClient
	connErrorStrings []string

	mu  sync.Mutex
	sha string
}

// New connects to Redis and loads the compare-and-set script.
func New(cfg Config) (*Store, error) {
	var client redis.UniversalClient

	if cfg.RedisURL != "" {
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url: %w", err)
		}
		if cfg.Addr != "" {
			options.Addr = cfg.Addr
		}
		if cfg.Password != "" {
			options.Password = cfg.Password
		}
		if cfg.DB != 0 {
			options.DB = cfg.DB
		}
		if cfg.PoolSize != 0 {
			options.PoolSize = cfg.PoolSize
		}
		client = redis.NewClient(options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			PoolSize: cfg.PoolSize,
		})
	}

	patterns := cfg.ConnErrorStrings
	if patterns == nil {
		patterns = connErrorStrings
	}

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, storage.NewHealthError("redis:Ping", err)
	}

	s := &Store{client: client, connErrorStrings: patterns}
	if err := s.loadScript(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithClient wraps an already-connected client, used by tests against
// miniredis or a shared test instance.
func NewWithClient(client redis.UniversalClient) (*Store, error) {
	s := &Store{client: client, connErrorStrings: connErrorStrings}
	if err := s.loadScript(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) loadScript(ctx context.Context) error {
	sha, err := s.client.ScriptLoad(ctx, checkAndSetScript).Result()
	if err != nil {
		return s.maybeConnError("redis:ScriptLoad", err)
	}
	s.mu.Lock()
	s.sha = sha
	s.mu.Unlock()
	return nil
}

func (s *Store) currentSHA() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sha
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, key string) (storage.State, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return storage.State{}, false, nil
	}
	if err != nil {
		return storage.State{}, false, s.maybeConnError("redis:Get", err)
	}
	state, ok := storage.DecodeState(val)
	if !ok {
		return storage.State{}, false, storage.ErrPermanent
	}
	return state, true, nil
}

// CompareAndSet implements storage.Store via an atomic Lua script.
func (s *Store) CompareAndSet(ctx context.Context, key string, expected storage.State, expectedOK bool, next storage.State, ttl time.Duration) (bool, error) {
	expectedStr := absentSentinel
	if expectedOK {
		expectedStr = storage.EncodeState(expected)
	}
	nextStr := storage.EncodeState(next)

	expMs := "0"
	if ttl > 0 {
		expMs = fmt.Sprintf("%d", ttl.Milliseconds())
	}

	applied, err := s.evalCheckAndSet(ctx, key, expectedStr, nextStr, expMs)
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) evalCheckAndSet(ctx context.Context, key, expected, next, expMs string) (bool, error) {
	result, err := s.client.EvalSha(ctx, s.currentSHA(), []string{key}, expected, next, expMs).Result()
	if err != nil {
		if strings.Contains(err.Error(), "NOSCRIPT") {
			if loadErr := s.loadScript(ctx); loadErr != nil {
				return false, loadErr
			}
			result, err = s.client.EvalSha(ctx, s.currentSHA(), []string{key}, expected, next, expMs).Result()
		}
		if err != nil {
			return false, s.maybeConnError("redis:EvalSha", err)
		}
	}

	applied, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("redis: unexpected script result type %T", result)
	}
	return applied == 1, nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}

func (s *Store) maybeConnError(op string, err error) error {
	return storage.MaybeConnError(op, err, s.connErrorStrings)
}

// connErrorStrings are the default patterns used to recognize connectivity
// failures as opposed to operational errors (e.g. a malformed script call).
var connErrorStrings = []string{
	"connection refused",
	"connection timeout",
	"connection reset",
	"network is unreachable",
	"no such host",
	"timeout",
	"i/o timeout",
	"broken pipe",
	"connection pool exhausted",
}
