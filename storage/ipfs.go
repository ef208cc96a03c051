package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	shell "github.com/ipfs/go-ipfs-api"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// IPFSClient is the subset of the IPFS MFS API used by IPFSFileIO.
// *shell.Shell satisfies it.
type IPFSClient interface {
	FilesRead(ctx context.Context, path string, options ...shell.FilesOpt) (io.ReadCloser, error)
	FilesWrite(ctx context.Context, path string, data io.Reader, options ...shell.FilesOpt) error
	FilesStat(ctx context.Context, path string, options ...shell.FilesOpt) (*shell.FilesStatObject, error)
	FilesMkdir(ctx context.Context, path string, options ...shell.FilesOpt) error
	FilesMv(ctx context.Context, src string, dest string) error
	FilesRm(ctx context.Context, path string, force bool) error
}

const ipfsDirectoryType = "directory"

// IPFSFileIO implements FileIO on the mutable filesystem (MFS) of an IPFS
// node. Location ipfs://authority/a/b maps to the MFS path /authority/a/b;
// ipfs:///a/b maps to /a/b.
//
// Deleting a missing file fails with ErrNotFound.
// Output is buffered, written to a hidden MFS path and moved into place on Close.
type IPFSFileIO struct {
	client       IPFSClient
	api          string
	overwrite    bool
	mkdirRetries int
	log          *slog.Logger
	tr           *ErrorTranslator
	loc          locator
}

// NewIPFSFileIO connects to the IPFS HTTP API.
//
// Config keys: api (default localhost:5001), timeout, mkdir_retries, overwrite.
func NewIPFSFileIO(cfg interfaces.BackendConfig, log *slog.Logger) (*IPFSFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	api := cfg.GetDefault("api", "localhost:5001")
	sh := shell.NewShellWithClient(api, &http.Client{Timeout: settings.timeout})

	b, err := NewIPFSFileIOWithClient(sh, cfg, log)
	if err != nil {
		return nil, err
	}
	b.api = api
	return b, nil
}

// NewIPFSFileIOWithClient creates an IPFS backend around an existing client.
func NewIPFSFileIOWithClient(client IPFSClient, cfg interfaces.BackendConfig, log *slog.Logger) (*IPFSFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}
	retries, err := parseMkdirRetries(cfg)
	if err != nil {
		return nil, err
	}

	tr := NewErrorTranslator("ipfs", ClassifyIPFSError)
	return &IPFSFileIO{
		client:       client,
		api:          cfg.GetDefault("api", "localhost:5001"),
		overwrite:    settings.overwrite,
		mkdirRetries: retries,
		log:          log,
		tr:           tr,
		loc: locator{
			schemes: []string{"ipfs"},
			tr:      tr,
		},
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *IPFSFileIO) Properties() interfaces.BackendProperties {
	return interfaces.BackendProperties{
		Name:          fmt.Sprintf("ipfs-%s", b.api),
		Schemes:       []string{"ipfs"},
		DeleteMissing: interfaces.DeleteMissingFails,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *IPFSFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}
	name := mfsPath(loc)

	open := func(ctx context.Context) (io.ReadCloser, error) {
		st, err := b.client.FilesStat(ctx, name)
		if err != nil {
			return nil, err
		}
		if st.Type == ipfsDirectoryType {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
		}
		return b.client.FilesRead(ctx, name)
	}
	size := func(ctx context.Context) (int64, error) {
		st, err := b.client.FilesStat(ctx, name)
		if err != nil {
			return 0, err
		}
		if st.Type == ipfsDirectoryType {
			return 0, &fs.PathError{Op: "stat", Path: name, Err: syscall.EISDIR}
		}
		return int64(st.Size), nil
	}

	return newInputFile(ctx, location, open, size, b.tr), nil
}

// NewOutputFile implements interfaces.FileIO.
func (b *IPFSFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}
	name := mfsPath(loc)

	commit := func(ctx context.Context, data []byte) error {
		start := time.Now()

		dir, base := path.Split(name)
		tmp := path.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))

		err := b.client.FilesWrite(ctx, tmp, bytes.NewReader(data),
			shell.FilesWrite.Create(true),
			shell.FilesWrite.Parents(true),
			shell.FilesWrite.Truncate(true))
		if err != nil {
			return err
		}

		if err := b.publish(ctx, location, tmp, name); err != nil {
			if rmErr := b.client.FilesRm(ctx, tmp, true); rmErr != nil {
				b.log.Warn("Failed to remove staged IPFS file", slog.String("path", tmp), "err", rmErr)
			}
			return err
		}

		b.log.Debug("Stored file in IPFS MFS",
			slog.String("location", location),
			slog.Int("size", len(data)),
			slog.Duration("duration", time.Since(start)))
		return nil
	}

	return newOutputFile(ctx, location, bufferedStage(commit), b.tr), nil
}

// publish moves the staged file over the target. MFS has no atomic
// replace, so an existing target is removed first.
func (b *IPFSFileIO) publish(ctx context.Context, location, tmp, name string) error {
	st, err := b.client.FilesStat(ctx, name)
	switch {
	case err == nil && st.Type == ipfsDirectoryType:
		return b.tr.Failure(interfaces.KindIOFailure, "commit", location, syscall.EISDIR)
	case err == nil && !b.overwrite:
		return b.tr.Failure(interfaces.KindAlreadyExists, "commit", location, fs.ErrExist)
	case err == nil:
		if err := b.client.FilesRm(ctx, name, false); err != nil {
			return err
		}
	case b.tr.Kind(err) != interfaces.KindNotFound:
		return err
	}

	if err := b.client.FilesMv(ctx, tmp, name); err != nil {
		b.log.Error("Failed to move IPFS file into place",
			slog.String("location", location),
			"err", err)
		return err
	}
	return nil
}

// DeleteFile implements interfaces.FileIO. Directories are never removed.
func (b *IPFSFileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}
	name := mfsPath(loc)

	st, err := b.client.FilesStat(ctx, name)
	if err != nil {
		return b.tr.Translate("delete", location, err)
	}
	if st.Type == ipfsDirectoryType {
		return b.tr.Failure(interfaces.KindIOFailure, "delete", location, syscall.EISDIR)
	}

	if err := b.client.FilesRm(ctx, name, false); err != nil {
		b.log.Error("Failed to delete IPFS file", slog.String("location", location), "err", err)
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted IPFS file", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO. Transient failures are retried since
// creating a directory is idempotent.
func (b *IPFSFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}
	name := mfsPath(loc)

	var created bool
	op := func() error {
		st, err := b.client.FilesStat(ctx, name)
		switch {
		case err == nil && st.Type == ipfsDirectoryType:
			return nil
		case err == nil:
			return backoff.Permanent(b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist))
		case b.tr.Kind(err) != interfaces.KindNotFound:
			return b.retryable(location, err)
		}

		if err := b.client.FilesMkdir(ctx, name, shell.FilesMkdir.Parents(true)); err != nil {
			return b.retryable(location, err)
		}
		created = true
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.mkdirRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	if created {
		b.log.Debug("Created IPFS directory", slog.String("location", location))
	}
	return created, nil
}

func (b *IPFSFileIO) retryable(location string, err error) error {
	translated := b.tr.Translate("mkdir", location, err)
	if b.tr.Kind(translated) != interfaces.KindIOFailure {
		return backoff.Permanent(translated)
	}
	b.log.Debug("Retrying IPFS mkdir", slog.String("location", location), "err", err)
	return translated
}

func mfsPath(loc ResolvedLocation) string {
	return path.Join("/", loc.Authority, loc.Key())
}
