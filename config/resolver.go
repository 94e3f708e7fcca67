package config

import (
	"fmt"

	"github.com/pallabcodes/distributed-ratelimiter/core"
)

// ErrUnknownResource is returned by Resolver.Resolve when StrictResources
// is enabled and resource has no entry in ResourceConfigs.
var ErrUnknownResource = fmt.Errorf("config: unknown resource class")

// Resolver resolves a resource class name to its BucketConfig, applying
// the unknown-resource policy decided in SPEC_FULL.md §9 (Policy A:
// fall back to the default class, unless StrictResources is set).
type Resolver struct {
	byResource map[string]core.BucketConfig
	defaultCfg core.BucketConfig
	strict     bool
}

// NewResolver builds a Resolver from a parsed Config.
func NewResolver(cfg Config) (*Resolver, error) {
	byResource, err := cfg.ParseResourceConfigs()
	if err != nil {
		return nil, err
	}
	def := cfg.DefaultBucketConfig()
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("config: default bucket config: %w", err)
	}
	return &Resolver{byResource: byResource, defaultCfg: def, strict: cfg.StrictResources}, nil
}

// Resolve returns the BucketConfig for resource.
func (r *Resolver) Resolve(resource string) (core.BucketConfig, error) {
	if cfg, ok := r.byResource[resource]; ok {
		return cfg, nil
	}
	if r.strict {
		return core.BucketConfig{}, fmt.Errorf("%w: %s", ErrUnknownResource, resource)
	}
	return r.defaultCfg, nil
}
