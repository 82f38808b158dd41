package config

import (
	"context"
	"sync/atomic"
)

// Source of policy configuration.
//
// The pipeline calls Config once per processed activity, so implementations should be cheap. The returned value must not be modified by callers.
type Provider interface {
	Config(ctx context.Context) (*Config, error)
}

// Provider holding an in-process configuration value, which can be replaced at any time (eg, by an operator through an admin API, or by a file watcher).
//
// Safe for concurrent use.
type Store struct {
	current atomic.Pointer[Config]
}

var _ Provider = (*Store)(nil)

// Creates a store with the given initial configuration. A nil config means defaults.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{}
	s.current.Store(cfg)
	return s
}

func (s *Store) Config(ctx context.Context) (*Config, error) {
	return s.current.Load(), nil
}

// Validates and publishes new configuration. Pipeline runs which already started keep the configuration they fetched.
func (s *Store) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Provider which always returns the same configuration. Mostly useful in tests and one-shot CLI commands.
type StaticProvider struct {
	Cfg *Config
}

func (p StaticProvider) Config(ctx context.Context) (*Config, error) {
	if p.Cfg == nil {
		return Default(), nil
	}
	return p.Cfg, nil
}
