package storage

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

var (
	errSchemeMismatch = errors.New("scheme is not served by this backend")
	errEmptyPath      = errors.New("location has no path")
	errEmptyAuthority = errors.New("location has no authority")
)

// DefaultScheme serves locations without a scheme.
const DefaultScheme = "file"

const (
	defaultTimeout      = 30 * time.Second
	defaultMkdirRetries = 3

	configMkdirRetries = "mkdir_retries"
)

// locator validates locations against the schemes one backend serves.
type locator struct {
	schemes       []string
	acceptBare    bool
	needAuthority bool
	tr            *ErrorTranslator
}

// resolve parses location for op and checks it belongs to this backend.
func (l locator) resolve(op, location string) (ResolvedLocation, error) {
	loc, err := Resolve(location)
	if err != nil {
		return loc, l.tr.Translate(op, location, err)
	}

	switch {
	case loc.Scheme == "" && !l.acceptBare:
		return loc, l.tr.Failure(interfaces.KindUnsupportedBackend, op, location, errSchemeMismatch)
	case loc.Scheme != "" && !slices.Contains(l.schemes, loc.Scheme):
		return loc, l.tr.Failure(interfaces.KindUnsupportedBackend, op, location,
			fmt.Errorf("%w: %s", errSchemeMismatch, loc.Scheme))
	case l.needAuthority && loc.Authority == "":
		return loc, l.tr.Failure(interfaces.KindInvalidLocation, op, location, errEmptyAuthority)
	case loc.Key() == "":
		return loc, l.tr.Failure(interfaces.KindInvalidLocation, op, location, errEmptyPath)
	}
	return loc, nil
}

// commonSettings are the BackendConfig keys every backend understands.
type commonSettings struct {
	overwrite bool
	timeout   time.Duration
}

func parseCommonSettings(cfg interfaces.BackendConfig) (commonSettings, error) {
	overwrite, err := cfg.Bool(interfaces.ConfigOverwrite, true)
	if err != nil {
		return commonSettings{}, err
	}
	timeout, err := cfg.Duration(interfaces.ConfigTimeout, defaultTimeout)
	if err != nil {
		return commonSettings{}, err
	}
	return commonSettings{overwrite: overwrite, timeout: timeout}, nil
}

// parseMkdirRetries reads mkdir_retries, which must not be negative.
func parseMkdirRetries(cfg interfaces.BackendConfig) (int, error) {
	retries, err := cfg.Int(configMkdirRetries, defaultMkdirRetries)
	if err != nil {
		return 0, err
	}
	if retries < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %d", configMkdirRetries, retries)
	}
	return retries, nil
}

// splitList splits a comma separated config value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
