package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fedimod/mrf/mrf/pattern"

	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid MRF configuration")

// Full set of policy configuration, namespaced per policy.
//
// A *Config is treated as immutable once published through a Provider: concurrent pipeline runs share the same value.
type Config struct {
	Keyword KeywordConfig `json:"mrf_keyword" yaml:"mrf_keyword"`
	NSFWAPI NSFWAPIConfig `json:"mrf_nsfw_api" yaml:"mrf_nsfw_api"`
}

type KeywordConfig struct {
	// Patterns which result in the activity being rejected.
	Reject []pattern.Pattern `json:"reject" yaml:"reject"`
	// Patterns which result in public activities being rewritten to unlisted.
	FederatedTimelineRemoval []pattern.Pattern `json:"federated_timeline_removal" yaml:"federated_timeline_removal"`
	// Applied in order to content, summary and name.
	Replace []Replacement `json:"replace" yaml:"replace"`
}

type Replacement struct {
	Pattern     pattern.Pattern `json:"pattern" yaml:"pattern"`
	Replacement string          `json:"replacement" yaml:"replacement"`
}

type NSFWAPIConfig struct {
	// Base URL of the classifier service.
	URL string `json:"url" yaml:"url"`
	// Lowest score (0 to 1) which is considered NSFW.
	Threshold     float64  `json:"threshold" yaml:"threshold"`
	MarkSensitive bool     `json:"mark_sensitive" yaml:"mark_sensitive"`
	Unlist        bool     `json:"unlist" yaml:"unlist"`
	Reject        bool     `json:"reject" yaml:"reject"`
	Timeout       Duration `json:"timeout" yaml:"timeout"`
}

var (
	DefaultNSFWAPIURL       = "http://127.0.0.1:5000/"
	DefaultNSFWAPIThreshold = 0.7
	DefaultNSFWAPITimeout   = 10 * time.Second
)

// Returns configuration with every option at its default value.
func Default() *Config {
	return &Config{
		Keyword: KeywordConfig{
			Reject:                   []pattern.Pattern{},
			FederatedTimelineRemoval: []pattern.Pattern{},
			Replace:                  []Replacement{},
		},
		NSFWAPI: NSFWAPIConfig{
			URL:           DefaultNSFWAPIURL,
			Threshold:     DefaultNSFWAPIThreshold,
			MarkSensitive: true,
			Timeout:       Duration(DefaultNSFWAPITimeout),
		},
	}
}

func (c *Config) Validate() error {
	nc := c.NSFWAPI
	if math.IsNaN(nc.Threshold) || nc.Threshold < 0 || nc.Threshold > 1 {
		return fmt.Errorf("%w: mrf_nsfw_api.threshold must be between 0 and 1, got %v", ErrInvalidConfig, nc.Threshold)
	}
	u, err := url.Parse(nc.URL)
	if err != nil {
		return fmt.Errorf("%w: mrf_nsfw_api.url: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: mrf_nsfw_api.url must be an http(s) URL: %q", ErrInvalidConfig, nc.URL)
	}
	if nc.Timeout <= 0 {
		return fmt.Errorf("%w: mrf_nsfw_api.timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// Parses JSON configuration on top of defaults, and validates the result.
func ParseJSON(b []byte) (*Config, error) {
	cfg := Default()
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parses YAML configuration on top of defaults, and validates the result.
func ParseYAML(b []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Loads configuration from a file; ".json" files are parsed as JSON, everything else as YAML.
func LoadFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseFile(path, b)
}

func parseFile(path string, b []byte) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(b)
	}
	return ParseYAML(b)
}

// time.Duration which encodes as a string ("10s", "1m30s") in both JSON and YAML.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
