// Package config defines environment-driven configuration for the
// rate-limiter daemon, including the static resource-class to
// BucketConfig mapping described in spec.md §4.7.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/pallabcodes/distributed-ratelimiter/core"
)

// Config holds all daemon configuration parsed from environment
// variables.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	RPCAddr  string `env:"RPC_ADDR" envDefault:":8081"`

	StorageBackend string   `env:"STORAGE_BACKEND" envDefault:"memory"` // memory|redis|postgres
	RedisAddr      string   `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string   `env:"REDIS_PASSWORD"`
	RedisDB        int      `env:"REDIS_DB" envDefault:"0"`
	PostgresDSN    string   `env:"POSTGRES_DSN"`
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic     string   `env:"KAFKA_TOPIC" envDefault:"rate-limit.audit"`
	AuditBackend   string   `env:"AUDIT_BACKEND" envDefault:"memory"` // memory|kafka

	// DefaultCapacity/DefaultRefillRate apply to any resource not listed
	// in ResourceConfigs when StrictResources is false; under
	// StrictResources such resources are rejected instead.
	DefaultCapacity   float64 `env:"DEFAULT_CAPACITY" envDefault:"100"`
	DefaultRefillRate float64 `env:"DEFAULT_REFILL_RATE" envDefault:"1.6667"`

	// ResourceConfigs is a "resource:capacity:refillRate" CSV, e.g.
	// "login:5:0.1,search:50:5". Parsed into a map by ParseResourceConfigs.
	ResourceConfigs string `env:"RESOURCE_CONFIGS"`

	// StrictResources, when true, rejects requests for resources absent
	// from ResourceConfigs instead of falling back to the default class
	// (spec.md §9, Open Question #1, resolved as Policy A by default).
	StrictResources bool `env:"STRICT_RESOURCES" envDefault:"false"`

	// FailOpen selects the storage-failure policy (spec.md §7). When
	// true, a StorageTransient failure (a storage error, an expired
	// deadline, or exhausted CAS retries) returns allowed=true with
	// remaining=limit; when false, it denies.
	FailOpen bool `env:"FAIL_OPEN" envDefault:"true"`

	// RequestDeadline bounds a single Check call (spec.md §5).
	RequestDeadline time.Duration `env:"REQUEST_DEADLINE" envDefault:"100ms"`

	// CASMaxAttempts bounds the storage.Get/Decide/CompareAndSet retry
	// loop (spec.md §4.5 step 3).
	CASMaxAttempts int `env:"CAS_MAX_ATTEMPTS" envDefault:"3"`

	// AuditQueueSize bounds the in-process backpressure queue in front of
	// the audit publisher (spec.md §5).
	AuditQueueSize int `env:"AUDIT_QUEUE_SIZE" envDefault:"1024"`
	// AuditWorkers is the size of the fixed worker pool draining the
	// audit queue.
	AuditWorkers int `env:"AUDIT_WORKERS" envDefault:"4"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the daemon is running in development mode.
func (c Config) IsDev() bool { return strings.EqualFold(c.AppEnv, "dev") }

// DefaultBucketConfig returns the global fallback bucket, matching
// spec.md §4.7's default class (capacity=100, refillRate≈1.6667/s).
func (c Config) DefaultBucketConfig() core.BucketConfig {
	return core.BucketConfig{Capacity: c.DefaultCapacity, RefillRate: c.DefaultRefillRate}
}

// ParseResourceConfigs parses the ResourceConfigs CSV into a map of
// resource name to BucketConfig. A malformed entry is an error rather
// than a silently ignored one, since a typo'd resource class would
// otherwise fall back to the default without any signal.
func (c Config) ParseResourceConfigs() (map[string]core.BucketConfig, error) {
	out := make(map[string]core.BucketConfig)
	raw := strings.TrimSpace(c.ResourceConfigs)
	if raw == "" {
		return out, nil
	}

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: malformed resource config entry %q", entry)
		}
		name := strings.TrimSpace(parts[0])
		capacity, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("config: resource %q: invalid capacity: %w", name, err)
		}
		refillRate, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("config: resource %q: invalid refill rate: %w", name, err)
		}
		cfg := core.BucketConfig{Capacity: capacity, RefillRate: refillRate}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("config: resource %q: %w", name, err)
		}
		out[name] = cfg
	}
	return out, nil
}
