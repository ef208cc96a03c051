package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

var (
	errRegistrySealed    = errors.New("registry is sealed")
	errRegistryNotSealed = errors.New("registry is not sealed yet")
	errNoBackend         = errors.New("no backend registered for scheme")
)

// Registry maps location schemes to FileIO backends.
//
// Backends are registered once at startup and the registry is then sealed.
// After Seal the scheme map is never written again, so BackendFor reads it
// without locking from any number of goroutines.
type Registry struct {
	log           *slog.Logger
	defaultScheme string
	backends      map[string]interfaces.FileIO
	order         []interfaces.FileIO
	sealed        atomic.Bool
}

// NewRegistry creates an empty registry. Locations without a scheme resolve
// to defaultScheme; an empty defaultScheme means DefaultScheme.
func NewRegistry(defaultScheme string, log *slog.Logger) *Registry {
	if defaultScheme == "" {
		defaultScheme = DefaultScheme
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:           log,
		defaultScheme: strings.ToLower(defaultScheme),
		backends:      make(map[string]interfaces.FileIO),
	}
}

// Register serves the given schemes with fio. Without explicit schemes the
// backend's own Properties().Schemes are used. Registering after Seal or
// registering a scheme twice fails.
func (r *Registry) Register(fio interfaces.FileIO, schemes ...string) error {
	if r.sealed.Load() {
		return errRegistrySealed
	}
	if len(schemes) == 0 {
		schemes = fio.Properties().Schemes
	}
	if len(schemes) == 0 {
		return fmt.Errorf("backend %s declares no schemes", fio.Properties().Name)
	}

	for _, scheme := range schemes {
		scheme = strings.ToLower(scheme)
		if existing, ok := r.backends[scheme]; ok {
			return fmt.Errorf("scheme %q already served by backend %s", scheme, existing.Properties().Name)
		}
	}
	for _, scheme := range schemes {
		r.backends[strings.ToLower(scheme)] = fio
		r.log.Debug("Registered storage backend",
			slog.String("scheme", scheme),
			slog.String("backend", fio.Properties().Name),
			slog.String("deleteMissing", fio.Properties().DeleteMissing.String()))
	}
	r.order = append(r.order, fio)
	return nil
}

// Seal ends registration. It is safe to call more than once.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether registration has ended.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// BackendFor returns the backend serving location's scheme.
func (r *Registry) BackendFor(location string) (interfaces.FileIO, error) {
	if !r.sealed.Load() {
		return nil, interfaces.NewFailure(interfaces.KindUnsupportedBackend, "lookup", location, errRegistryNotSealed)
	}

	loc, err := Resolve(location)
	if err != nil {
		return nil, err
	}

	scheme := loc.Scheme
	if scheme == "" {
		scheme = r.defaultScheme
	}

	fio, ok := r.backends[scheme]
	if !ok {
		return nil, interfaces.NewFailure(interfaces.KindUnsupportedBackend, "lookup", location,
			fmt.Errorf("%w: %q", errNoBackend, scheme))
	}
	return fio, nil
}

// Schemes returns the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	schemes := make([]string, 0, len(r.backends))
	for scheme := range r.backends {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// Backends returns each registered backend once, in registration order.
func (r *Registry) Backends() []interfaces.FileIO {
	return append([]interfaces.FileIO(nil), r.order...)
}

// SchemeInfo describes the backend serving one scheme.
type SchemeInfo struct {
	Scheme     string
	Default    bool
	Properties interfaces.BackendProperties
}

// Describe lists every registered scheme in sorted order.
func (r *Registry) Describe() []SchemeInfo {
	schemes := r.Schemes()
	infos := make([]SchemeInfo, 0, len(schemes))
	for _, scheme := range schemes {
		infos = append(infos, SchemeInfo{
			Scheme:     scheme,
			Default:    scheme == r.defaultScheme,
			Properties: r.backends[scheme].Properties(),
		})
	}
	return infos
}

// DefaultScheme returns the scheme used for locations without one.
func (r *Registry) DefaultScheme() string {
	return r.defaultScheme
}

// Close releases backends holding client connections.
func (r *Registry) Close() error {
	var err error
	for _, fio := range r.order {
		if c, ok := fio.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}
