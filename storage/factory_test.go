package storage

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawnding/incubator-iceberg/config"
	"github.com/shawnding/incubator-iceberg/interfaces"
)

const factoryConfig = `
defaultScheme: file
backends:
  file:
    root: %ROOT%
  mem:
    overwrite: "false"
  ipfs:
    api: localhost:5001
`

func TestBackendFactoryBackendFor(t *testing.T) {
	factory := NewBackendFactory(testLogger())

	tests := []struct {
		scheme string
		cfg    map[string]string
		want   string
	}{
		{"file", map[string]string{"root": t.TempDir()}, "*storage.LocalFileIO"},
		{"S3", map[string]string{"region": "eu-west-1"}, "*storage.S3FileIO"},
		{"s3a", nil, "*storage.S3FileIO"},
		{"mem", nil, "*storage.BlobFileIO"},
		{"ipfs", nil, "*storage.IPFSFileIO"},
		{"vault", map[string]string{"address": "http://127.0.0.1:8200", "token": "root"}, "*storage.VaultFileIO"},
	}

	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			fio, err := factory.BackendFor(tt.scheme, interfaces.NewBackendConfig(tt.cfg))
			require.NoError(t, err)
			assert.Equal(t, tt.want, fmt.Sprintf("%T", fio))
			assert.Contains(t, fio.Properties().Schemes, strings.ToLower(tt.scheme))
		})
	}
}

func TestBackendFactoryUnknownScheme(t *testing.T) {
	_, err := NewBackendFactory(testLogger()).BackendFor("ftp", interfaces.NewBackendConfig(nil))
	assert.ErrorIs(t, err, interfaces.ErrUnsupportedBackend)
	assert.ErrorIs(t, err, errUnknownScheme)
}

func TestBuildRegistry(t *testing.T) {
	ctx := context.Background()

	cfg, err := config.Parse(strings.NewReader(strings.ReplaceAll(factoryConfig, "%ROOT%", t.TempDir())))
	require.NoError(t, err)

	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	registry, err := NewBackendFactory(testLogger()).BuildRegistry(ctx, cfg, metrics)
	require.NoError(t, err)
	defer registry.Close()

	assert.True(t, registry.Sealed())
	assert.Equal(t, []string{"file", "ipfs", "mem"}, registry.Schemes())
	assert.Equal(t, "file", registry.DefaultScheme())

	fio := NewResolvingFileIO(registry, testLogger())
	require.NoError(t, writeFile(t, fio, "mem://bucket/a", []byte("blob")))
	assert.ErrorIs(t, writeFile(t, fio, "mem://bucket/a", []byte("again")), interfaces.ErrAlreadyExists)

	require.NoError(t, writeFile(t, fio, "/tables/a", []byte("local")))
	data, err := readFile(t, fio, "file:///tables/a")
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
}

func TestBuildRegistryFailures(t *testing.T) {
	factory := NewBackendFactory(testLogger())

	t.Run("unknown scheme", func(t *testing.T) {
		cfg := config.Default()
		cfg.SetBackendOption("ftp", "host", "example.com")

		_, err := factory.BuildRegistry(context.Background(), cfg, nil)
		assert.ErrorIs(t, err, interfaces.ErrUnsupportedBackend)
	})

	t.Run("invalid backend config", func(t *testing.T) {
		cfg := config.Default()
		cfg.SetBackendOption("mem", interfaces.ConfigTimeout, "forever")

		_, err := factory.BuildRegistry(context.Background(), cfg, nil)
		assert.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := factory.BuildRegistry(ctx, config.Default(), nil)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := factory.BuildRegistry(context.Background(), &config.Config{DefaultScheme: "s3"}, nil)
		assert.ErrorIs(t, err, config.ErrNoBackends)
	})
}
