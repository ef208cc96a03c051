package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"syscall"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// VaultLogical is the subset of the Vault logical API used by VaultFileIO.
// *api.Logical satisfies it.
type VaultLogical interface {
	ReadWithContext(ctx context.Context, path string) (*api.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*api.Secret, error)
	DeleteWithContext(ctx context.Context, path string) (*api.Secret, error)
	ListWithContext(ctx context.Context, path string) (*api.Secret, error)
}

const vaultDirMarker = ".keep"

var errMalformedSecret = errors.New("secret does not hold file content")

// VaultFileIO implements FileIO on a Vault KV v2 secrets engine. Location
// vault://mount/a/b stores the file base64 encoded under the "content" field
// of secret a/b in the mount.
//
// Deleting a missing file is a no-op: metadata deletes are idempotent.
// Directories are emulated with a "<path>/.keep" marker secret and detected
// by listing.
type VaultFileIO struct {
	logical   VaultLogical
	address   string
	overwrite bool
	log       *slog.Logger
	tr        *ErrorTranslator
	loc       locator
}

// NewVaultFileIO creates a Vault backend.
//
// Config keys: address, token, ca_cert, client_cert, client_key, timeout,
// overwrite. Unset keys fall back to the VAULT_* environment variables.
func NewVaultFileIO(cfg interfaces.BackendConfig, log *slog.Logger) (*VaultFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	vaultCfg := api.DefaultConfig()
	if vaultCfg.Error != nil {
		return nil, fmt.Errorf("failed to read Vault environment: %w", vaultCfg.Error)
	}
	if address := cfg.Get("address"); address != "" {
		vaultCfg.Address = address
	}
	vaultCfg.Timeout = settings.timeout

	tlsCfg := &api.TLSConfig{
		CACert:     cfg.Get("ca_cert"),
		ClientCert: cfg.Get("client_cert"),
		ClientKey:  cfg.Get("client_key"),
	}
	if tlsCfg.CACert != "" || tlsCfg.ClientCert != "" {
		if err := vaultCfg.ConfigureTLS(tlsCfg); err != nil {
			return nil, fmt.Errorf("failed to configure Vault TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if token := cfg.Get("token"); token != "" {
		client.SetToken(token)
	}

	b, err := NewVaultFileIOWithClient(client.Logical(), cfg, log)
	if err != nil {
		return nil, err
	}
	b.address = vaultCfg.Address
	return b, nil
}

// NewVaultFileIOWithClient creates a Vault backend around an existing client.
func NewVaultFileIOWithClient(logical VaultLogical, cfg interfaces.BackendConfig, log *slog.Logger) (*VaultFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	tr := NewErrorTranslator("vault", ClassifyVaultError, ClassifyOSError)
	return &VaultFileIO{
		logical:   logical,
		address:   cfg.Get("address"),
		overwrite: settings.overwrite,
		log:       log,
		tr:        tr,
		loc: locator{
			schemes:       []string{"vault"},
			needAuthority: true,
			tr:            tr,
		},
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *VaultFileIO) Properties() interfaces.BackendProperties {
	return interfaces.BackendProperties{
		Name:          "vault",
		Schemes:       []string{"vault"},
		DeleteMissing: interfaces.DeleteMissingIgnored,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *VaultFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}

	open := func(ctx context.Context) (io.ReadCloser, error) {
		data, err := b.read(ctx, loc)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	size := func(ctx context.Context) (int64, error) {
		data, err := b.read(ctx, loc)
		if err != nil {
			return 0, err
		}
		return int64(len(data)), nil
	}

	return newInputFile(ctx, location, open, size, b.tr), nil
}

// NewOutputFile implements interfaces.FileIO. With overwrite disabled the
// write carries cas=0, so Vault itself rejects an existing secret.
func (b *VaultFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}

	commit := func(ctx context.Context, data []byte) error {
		start := time.Now()

		isDir, err := b.isDir(ctx, loc)
		if err != nil {
			return err
		}
		if isDir {
			return b.tr.Failure(interfaces.KindIOFailure, "commit", location, syscall.EISDIR)
		}

		if err := b.write(ctx, loc.Authority, loc.Key(), data, !b.overwrite); err != nil {
			if b.tr.Kind(err) != interfaces.KindAlreadyExists {
				b.log.Error("Failed to write to Vault",
					slog.String("location", location),
					"err", err)
			}
			return err
		}

		b.log.Debug("Stored file in Vault",
			slog.String("location", location),
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))
		return nil
	}

	return newOutputFile(ctx, location, bufferedStage(commit), b.tr), nil
}

// DeleteFile implements interfaces.FileIO. All versions of the secret are
// removed. Directories are never removed.
func (b *VaultFileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}

	isDir, err := b.isDir(ctx, loc)
	if err != nil {
		return b.tr.Translate("delete", location, err)
	}
	if isDir {
		return b.tr.Failure(interfaces.KindIOFailure, "delete", location, syscall.EISDIR)
	}

	if _, err := b.logical.DeleteWithContext(ctx, metadataPath(loc.Authority, loc.Key())); err != nil {
		if b.tr.Kind(err) == interfaces.KindNotFound {
			return nil
		}
		b.log.Error("Failed to delete from Vault", slog.String("location", location), "err", err)
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted file from Vault", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO.
func (b *VaultFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}

	isDir, err := b.isDir(ctx, loc)
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if isDir {
		return false, nil
	}

	secret, err := b.logical.ReadWithContext(ctx, dataPath(loc.Authority, loc.Key()))
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if secret != nil && secret.Data["data"] != nil {
		return false, b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist)
	}

	if err := b.write(ctx, loc.Authority, loc.Key()+"/"+vaultDirMarker, nil, false); err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	b.log.Debug("Created Vault directory marker", slog.String("location", location))
	return true, nil
}

func (b *VaultFileIO) read(ctx context.Context, loc ResolvedLocation) ([]byte, error) {
	p := dataPath(loc.Authority, loc.Key())
	secret, err := b.logical.ReadWithContext(ctx, p)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data["data"] == nil {
		isDir, err := b.isDir(ctx, loc)
		if err != nil {
			return nil, err
		}
		if isDir {
			return nil, &fs.PathError{Op: "read", Path: p, Err: syscall.EISDIR}
		}
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	}

	fields, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMalformedSecret, p)
	}
	encoded, ok := fields["content"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMalformedSecret, p)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", errMalformedSecret, p, err)
	}
	return data, nil
}

func (b *VaultFileIO) write(ctx context.Context, mount, key string, data []byte, createOnly bool) error {
	body := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}
	if createOnly {
		body["options"] = map[string]interface{}{"cas": 0}
	}
	_, err := b.logical.WriteWithContext(ctx, dataPath(mount, key), body)
	return err
}

// isDir reports whether any secret lives below loc.
func (b *VaultFileIO) isDir(ctx context.Context, loc ResolvedLocation) (bool, error) {
	secret, err := b.logical.ListWithContext(ctx, metadataPath(loc.Authority, loc.Key()))
	if err != nil {
		if b.tr.Kind(err) == interfaces.KindNotFound {
			return false, nil
		}
		return false, err
	}
	if secret == nil {
		return false, nil
	}
	keys, _ := secret.Data["keys"].([]interface{})
	return len(keys) > 0, nil
}

func dataPath(mount, key string) string {
	return fmt.Sprintf("%s/data/%s", mount, key)
}

func metadataPath(mount, key string) string {
	return fmt.Sprintf("%s/metadata/%s", mount, key)
}
