package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/colinmarc/hdfs/v2"
	"github.com/google/uuid"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// HDFSClient is the subset of the HDFS client used by HDFSFileIO.
type HDFSClient interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Stat(name string) (os.FileInfo, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	MkdirAll(dirname string, perm os.FileMode) error
	Close() error
}

// nativeHDFS adapts *hdfs.Client to HDFSClient.
type nativeHDFS struct {
	c *hdfs.Client
}

func (n nativeHDFS) Open(name string) (io.ReadCloser, error)    { return n.c.Open(name) }
func (n nativeHDFS) Create(name string) (io.WriteCloser, error) { return n.c.Create(name) }
func (n nativeHDFS) Stat(name string) (os.FileInfo, error)      { return n.c.Stat(name) }
func (n nativeHDFS) Rename(oldpath, newpath string) error       { return n.c.Rename(oldpath, newpath) }
func (n nativeHDFS) Remove(name string) error                   { return n.c.Remove(name) }
func (n nativeHDFS) MkdirAll(dirname string, perm os.FileMode) error {
	return n.c.MkdirAll(dirname, perm)
}
func (n nativeHDFS) Close() error { return n.c.Close() }

// HDFSFileIO implements FileIO on HDFS. Locations are hdfs://authority/path;
// the authority is informational and requests always go to the namenodes
// from the backend config.
//
// Deleting a missing file is a no-op, matching Hadoop's FileSystem.delete.
// Output is written to a hidden temporary file and renamed on Close.
type HDFSFileIO struct {
	client       HDFSClient
	overwrite    bool
	mkdirRetries int
	log          *slog.Logger
	tr           *ErrorTranslator
	loc          locator
}

// NewHDFSFileIO connects to the namenodes in the "namenode" config key.
//
// Config keys: namenode (comma separated, required), user,
// use_datanode_hostname, timeout, mkdir_retries, overwrite.
func NewHDFSFileIO(cfg interfaces.BackendConfig, log *slog.Logger) (*HDFSFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	addresses := splitList(cfg.Get("namenode"))
	if len(addresses) == 0 {
		return nil, errors.New("hdfs backend requires the namenode config key")
	}

	useDatanodeHostname, err := cfg.Bool("use_datanode_hostname", false)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: settings.timeout}
	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses:           addresses,
		User:                cfg.Get("user"),
		UseDatanodeHostname: useDatanodeHostname,
		NamenodeDialFunc:    dialer.DialContext,
		DatanodeDialFunc:    dialer.DialContext,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HDFS client: %w", err)
	}

	log.Debug("Connected HDFS client", slog.Any("namenodes", addresses))
	return NewHDFSFileIOWithClient(nativeHDFS{c: client}, cfg, log)
}

// NewHDFSFileIOWithClient creates an HDFS backend around an existing client.
func NewHDFSFileIOWithClient(client HDFSClient, cfg interfaces.BackendConfig, log *slog.Logger) (*HDFSFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}
	retries, err := parseMkdirRetries(cfg)
	if err != nil {
		return nil, err
	}

	tr := NewErrorTranslator("hdfs", ClassifyOSError)
	return &HDFSFileIO{
		client:       client,
		overwrite:    settings.overwrite,
		mkdirRetries: retries,
		log:          log,
		tr:           tr,
		loc: locator{
			schemes: []string{"hdfs"},
			tr:      tr,
		},
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *HDFSFileIO) Properties() interfaces.BackendProperties {
	return interfaces.BackendProperties{
		Name:          "hdfs",
		Schemes:       []string{"hdfs"},
		DeleteMissing: interfaces.DeleteMissingIgnored,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *HDFSFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}
	name := hdfsPath(loc)

	open := func(context.Context) (io.ReadCloser, error) {
		fi, err := b.client.Stat(name)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
		}
		return b.client.Open(name)
	}
	size := func(context.Context) (int64, error) {
		fi, err := b.client.Stat(name)
		if err != nil {
			return 0, err
		}
		if fi.IsDir() {
			return 0, &fs.PathError{Op: "stat", Path: name, Err: syscall.EISDIR}
		}
		return fi.Size(), nil
	}

	return newInputFile(ctx, location, open, size, b.tr), nil
}

// NewOutputFile implements interfaces.FileIO.
func (b *HDFSFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}
	name := hdfsPath(loc)

	stage := func(context.Context) (stagedWriter, error) {
		dir, base := path.Split(name)
		if err := b.client.MkdirAll(dir, defaultDirPerm); err != nil {
			return nil, err
		}

		tmp := path.Join(dir, fmt.Sprintf(".%s.%s.tmp", base, uuid.NewString()))
		w, err := b.client.Create(tmp)
		if err != nil {
			return nil, err
		}

		return &tempFileWriter{
			w:       w,
			publish: func() error { return b.publish(location, tmp, name) },
			remove:  func() error { return b.client.Remove(tmp) },
		}, nil
	}

	return newOutputFile(ctx, location, stage, b.tr), nil
}

func (b *HDFSFileIO) publish(location, tmp, name string) error {
	start := time.Now()

	if fi, err := b.client.Stat(name); err == nil {
		if fi.IsDir() {
			return b.tr.Failure(interfaces.KindIOFailure, "commit", location, syscall.EISDIR)
		}
		if !b.overwrite {
			return b.tr.Failure(interfaces.KindAlreadyExists, "commit", location, fs.ErrExist)
		}
	}

	if err := b.client.Rename(tmp, name); err != nil {
		b.log.Error("Failed to rename HDFS file into place",
			slog.String("location", location),
			"err", err)
		return err
	}

	b.log.Debug("Committed HDFS file",
		slog.String("location", location),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// DeleteFile implements interfaces.FileIO. Directories are never removed.
func (b *HDFSFileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}
	name := hdfsPath(loc)

	fi, err := b.client.Stat(name)
	if err != nil {
		if isNotExist(err) {
			return nil
		}
		return b.tr.Translate("delete", location, err)
	}
	if fi.IsDir() {
		return b.tr.Failure(interfaces.KindIOFailure, "delete", location, syscall.EISDIR)
	}

	if err := b.client.Remove(name); err != nil && !isNotExist(err) {
		b.log.Error("Failed to delete HDFS file", slog.String("location", location), "err", err)
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted HDFS file", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO. Transient failures are retried since
// creating a directory is idempotent.
func (b *HDFSFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}
	name := hdfsPath(loc)

	var created bool
	op := func() error {
		fi, err := b.client.Stat(name)
		switch {
		case err == nil && fi.IsDir():
			return nil
		case err == nil:
			return backoff.Permanent(b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist))
		case !isNotExist(err):
			return b.retryable("mkdir", location, err)
		}

		if err := b.client.MkdirAll(name, defaultDirPerm); err != nil {
			if isNotDir(err) {
				return backoff.Permanent(b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, err))
			}
			return b.retryable("mkdir", location, err)
		}
		created = true
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(b.mkdirRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	if created {
		b.log.Debug("Created HDFS directory", slog.String("location", location))
	}
	return created, nil
}

// Close closes the HDFS client.
func (b *HDFSFileIO) Close() error {
	return b.client.Close()
}

// retryable translates err and marks anything but an IOFailure as permanent.
func (b *HDFSFileIO) retryable(op, location string, err error) error {
	translated := b.tr.Translate(op, location, err)
	if b.tr.Kind(translated) != interfaces.KindIOFailure {
		return backoff.Permanent(translated)
	}
	b.log.Debug("Retrying HDFS operation", slog.String("op", op), slog.String("location", location), "err", err)
	return translated
}

func hdfsPath(loc ResolvedLocation) string {
	return "/" + loc.Key()
}
