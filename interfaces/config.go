package interfaces

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Well-known BackendConfig keys shared by all backends.
const (
	// ConfigOverwrite controls whether closing an output handle replaces an
	// existing object. Defaults to true.
	ConfigOverwrite = "overwrite"

	// ConfigTimeout bounds every call of the backend's client.
	ConfigTimeout = "timeout"
)

// BackendConfig holds immutable settings attached to one backend instance.
// The zero value is an empty configuration.
type BackendConfig struct {
	values map[string]string
}

// NewBackendConfig copies values into a new configuration.
func NewBackendConfig(values map[string]string) BackendConfig {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return BackendConfig{values: cp}
}

// Get returns the value for key, or "" when unset.
func (c BackendConfig) Get(key string) string {
	return c.values[key]
}

// Lookup returns the value for key and whether it is set.
func (c BackendConfig) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// GetDefault returns the value for key, or def when unset or empty.
func (c BackendConfig) GetDefault(key, def string) string {
	if v := c.values[key]; v != "" {
		return v
	}
	return def
}

// Bool returns the boolean value for key, or def when unset.
// "true", "1" and "yes" are true; "false", "0" and "no" are false.
func (c BackendConfig) Bool(key string, def bool) (bool, error) {
	v, ok := c.values[key]
	if !ok || v == "" {
		return def, nil
	}
	switch v {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return def, fmt.Errorf("config %q: invalid boolean %q", key, v)
}

// Int returns the integer value for key, or def when unset.
func (c BackendConfig) Int(key string, def int) (int, error) {
	v, ok := c.values[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("config %q: %w", key, err)
	}
	return n, nil
}

// Duration returns the duration value for key, or def when unset.
func (c BackendConfig) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := c.values[key]
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("config %q: %w", key, err)
	}
	return d, nil
}

// Keys returns the configured keys in sorted order.
func (c BackendConfig) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy, safe to hand to another goroutine or process.
func (c BackendConfig) Clone() BackendConfig {
	return NewBackendConfig(c.values)
}

// Len returns the number of configured keys.
func (c BackendConfig) Len() int {
	return len(c.values)
}
