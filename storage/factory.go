package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.uber.org/multierr"

	"github.com/shawnding/incubator-iceberg/config"
	"github.com/shawnding/incubator-iceberg/interfaces"
)

var errUnknownScheme = errors.New("no backend implementation for scheme")

// BackendFactory creates FileIO backends by scheme.
type BackendFactory struct {
	log *slog.Logger
}

// NewBackendFactory creates a factory whose backends log to logger.
func NewBackendFactory(logger *slog.Logger) *BackendFactory {
	return &BackendFactory{log: logger}
}

// BackendFor creates the backend implementing scheme.
//
// Supported schemes:
//   - file - local filesystem (LocalFileIO)
//   - hdfs - HDFS (HDFSFileIO)
//   - s3, s3a, s3n - Amazon S3 or a compatible service (S3FileIO)
//   - gs, mem - gocloud blob buckets (BlobFileIO)
//   - ipfs - IPFS mutable filesystem (IPFSFileIO)
//   - vault - Vault KV v2 (VaultFileIO)
func (f *BackendFactory) BackendFor(scheme string, cfg interfaces.BackendConfig) (interfaces.FileIO, error) {
	scheme = strings.ToLower(scheme)
	log := f.log.With(slog.String("scheme", scheme))

	log.Debug("Creating storage backend", slog.Any("keys", cfg.Keys()))

	switch scheme {
	case "file":
		return NewLocalFileIO(cfg, log)
	case "hdfs":
		return NewHDFSFileIO(cfg, log)
	case "s3", "s3a", "s3n":
		return NewS3FileIO(cfg, log)
	case "gs", "mem":
		return NewBlobFileIO([]string{scheme}, cfg, log)
	case "ipfs":
		return NewIPFSFileIO(cfg, log)
	case "vault":
		return NewVaultFileIO(cfg, log)
	default:
		return nil, interfaces.NewFailure(interfaces.KindUnsupportedBackend, "configure", scheme+"://",
			fmt.Errorf("%w: %s", errUnknownScheme, scheme))
	}
}

// BuildRegistry creates every backend in cfg, registers each under its
// scheme and seals the registry. With non-nil metrics every backend is
// instrumented. On failure the backends created so far are closed.
func (f *BackendFactory) BuildRegistry(ctx context.Context, cfg *config.Config, metrics *Metrics) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := NewRegistry(cfg.DefaultScheme, f.log)
	for _, scheme := range cfg.Schemes() {
		if err := ctx.Err(); err != nil {
			return nil, multierr.Append(err, registry.Close())
		}

		fio, err := f.BackendFor(scheme, cfg.BackendConfig(scheme))
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("backend %s: %w", scheme, err), registry.Close())
		}
		if metrics != nil {
			fio = metrics.Instrument(fio)
		}
		if err := registry.Register(fio, scheme); err != nil {
			return nil, multierr.Append(err, registry.Close())
		}
	}
	registry.Seal()

	f.log.Info("Storage registry ready",
		slog.Any("schemes", registry.Schemes()),
		slog.String("defaultScheme", registry.DefaultScheme()))
	return registry, nil
}
