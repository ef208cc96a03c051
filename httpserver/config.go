package httpserver

import (
	"log/slog"
	"time"
)

// HTTPServerConfig configures the storage gateway.
type HTTPServerConfig struct {
	// ListenAddr is the API listen address.
	ListenAddr string

	// MetricsAddr serves Prometheus metrics. Empty disables the metrics server.
	MetricsAddr string

	// EnablePprof mounts the pprof handlers under /debug.
	EnablePprof bool

	Log *slog.Logger

	// MaxBodySize caps PUT bodies in bytes. Zero means no limit.
	MaxBodySize int64

	// DrainDuration is how long Shutdown waits after marking the server not
	// ready, so load balancers stop routing to it.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds waiting for in-flight requests.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}
