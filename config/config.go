// Package config loads the storage configuration file.
//
// The file is YAML:
//
//	defaultScheme: file
//	backends:
//	  file:
//	    root: /var/lib/warehouse
//	  s3:
//	    region: eu-west-1
//	    overwrite: "false"
//
// Each key under backends names a scheme; its values become that backend's
// interfaces.BackendConfig.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

var (
	// ErrNoBackends is returned by Validate when no backend is configured.
	ErrNoBackends = errors.New("no backends configured")
	// ErrDefaultNotConfigured is returned by Validate when the default scheme has no backend.
	ErrDefaultNotConfigured = errors.New("default scheme has no configured backend")
	// ErrInvalidScheme is returned by Validate for a malformed scheme name.
	ErrInvalidScheme = errors.New("invalid scheme")
)

// Config is the storage configuration.
type Config struct {
	// DefaultScheme serves locations without a scheme. Empty means "file".
	DefaultScheme string `yaml:"defaultScheme"`

	// Backends maps a scheme to its backend settings.
	Backends map[string]map[string]string `yaml:"backends"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with only the local backend.
func Default() *Config {
	return &Config{
		DefaultScheme: "file",
		Backends: map[string]map[string]string{
			"file": {},
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if len(c.Backends) == 0 {
		return ErrNoBackends
	}
	for scheme := range c.Backends {
		if !validScheme(scheme) {
			return fmt.Errorf("%w: %q", ErrInvalidScheme, scheme)
		}
	}
	if _, ok := c.Backends[c.defaultScheme()]; !ok {
		return fmt.Errorf("%w: %s", ErrDefaultNotConfigured, c.defaultScheme())
	}
	return nil
}

// Schemes returns the configured schemes in sorted order.
func (c *Config) Schemes() []string {
	schemes := make([]string, 0, len(c.Backends))
	for scheme := range c.Backends {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// BackendConfig returns the settings for scheme. Unconfigured schemes get
// an empty config.
func (c *Config) BackendConfig(scheme string) interfaces.BackendConfig {
	return interfaces.NewBackendConfig(c.Backends[strings.ToLower(scheme)])
}

// SetBackendOption sets one backend key, adding the backend if needed.
func (c *Config) SetBackendOption(scheme, key, value string) {
	scheme = strings.ToLower(scheme)
	if c.Backends == nil {
		c.Backends = make(map[string]map[string]string)
	}
	if c.Backends[scheme] == nil {
		c.Backends[scheme] = make(map[string]string)
	}
	c.Backends[scheme][key] = value
}

func (c *Config) defaultScheme() string {
	if c.DefaultScheme == "" {
		return "file"
	}
	return c.DefaultScheme
}

// normalize lower-cases schemes since they are matched case-insensitively.
func (c *Config) normalize() {
	c.DefaultScheme = strings.ToLower(strings.TrimSpace(c.DefaultScheme))
	if c.DefaultScheme == "" {
		c.DefaultScheme = "file"
	}

	backends := make(map[string]map[string]string, len(c.Backends))
	for scheme, values := range c.Backends {
		if values == nil {
			values = map[string]string{}
		}
		backends[strings.ToLower(scheme)] = values
	}
	c.Backends = backends
}

// validScheme follows the RFC 3986 scheme grammar.
func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
