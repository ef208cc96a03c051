package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

const (
	defaultDirPerm  os.FileMode = 0o755
	defaultFilePerm os.FileMode = 0o644
)

// LocalFileIO implements FileIO on a local filesystem through afero.
// When the "root" config key is set every path is confined below it.
//
// Deleting a missing file fails with ErrNotFound.
type LocalFileIO struct {
	fs        afero.Fs
	root      string
	dirPerm   os.FileMode
	overwrite bool
	log       *slog.Logger
	tr        *ErrorTranslator
	loc       locator
}

// NewLocalFileIO creates a local backend on the OS filesystem.
//
// Config keys: root, dir_perm (octal), overwrite.
func NewLocalFileIO(cfg interfaces.BackendConfig, log *slog.Logger) (*LocalFileIO, error) {
	var fsys afero.Fs = afero.NewOsFs()

	root := cfg.Get("root")
	if root != "" {
		if err := fsys.MkdirAll(root, defaultDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create root directory: %w", err)
		}
		fsys = afero.NewBasePathFs(fsys, root)
	}

	return NewLocalFileIOWithFs(fsys, cfg, log)
}

// NewLocalFileIOWithFs creates a local backend on an arbitrary afero filesystem.
func NewLocalFileIOWithFs(fsys afero.Fs, cfg interfaces.BackendConfig, log *slog.Logger) (*LocalFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}

	dirPerm := defaultDirPerm
	if v := cfg.Get("dir_perm"); v != "" {
		perm, err := strconv.ParseUint(v, 8, 32)
		if err != nil {
			return nil, fmt.Errorf("config %q: %w", "dir_perm", err)
		}
		dirPerm = os.FileMode(perm)
	}

	tr := NewErrorTranslator("file", ClassifyOSError)
	return &LocalFileIO{
		fs:        fsys,
		root:      cfg.Get("root"),
		dirPerm:   dirPerm,
		overwrite: settings.overwrite,
		log:       log,
		tr:        tr,
		loc: locator{
			schemes:    []string{"file"},
			acceptBare: true,
			tr:         tr,
		},
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *LocalFileIO) Properties() interfaces.BackendProperties {
	name := "file"
	if b.root != "" {
		name = fmt.Sprintf("file-%s", filepath.Base(b.root))
	}
	return interfaces.BackendProperties{
		Name:          name,
		Schemes:       []string{"file"},
		DeleteMissing: interfaces.DeleteMissingFails,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *LocalFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}
	name := b.fsPath(loc)

	open := func(context.Context) (io.ReadCloser, error) {
		fi, err := b.fs.Stat(name)
		if err != nil {
			return nil, err
		}
		if fi.IsDir() {
			return nil, &fs.PathError{Op: "open", Path: name, Err: syscall.EISDIR}
		}
		return b.fs.Open(name)
	}
	size := func(context.Context) (int64, error) {
		fi, err := b.fs.Stat(name)
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

// NewOutputFile implements interfaces.FileIO. Content is written to a hidden
// temporary file in the target directory and renamed into place on Close.
func (b *LocalFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}
	name := b.fsPath(loc)

	stage := func(context.Context) (stagedWriter, error) {
		dir := filepath.Dir(name)
		if err := b.fs.MkdirAll(dir, b.dirPerm); err != nil {
			return nil, err
		}

		tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(name), uuid.NewString()))
		f, err := b.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
		if err != nil {
			return nil, err
		}

		return &tempFileWriter{
			w:       f,
			publish: func() error { return b.publish(location, tmp, name) },
			remove:  func() error { return b.fs.Remove(tmp) },
		}, nil
	}

	return newOutputFile(ctx, location, stage, b.tr), nil
}

// publish renames the staged file over the target.
// TODO: use link(2) on OsFs so the no-overwrite check and the rename are one atomic step.
func (b *LocalFileIO) publish(location, tmp, name string) error {
	start := time.Now()

	if fi, err := b.fs.Stat(name); err == nil {
		if fi.IsDir() {
			return b.tr.Failure(interfaces.KindIOFailure, "commit", location, syscall.EISDIR)
		}
		if !b.overwrite {
			return b.tr.Failure(interfaces.KindAlreadyExists, "commit", location, fs.ErrExist)
		}
	}

	if err := b.fs.Rename(tmp, name); err != nil {
		return err
	}

	b.log.Debug("Committed local file",
		slog.String("location", location),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// DeleteFile implements interfaces.FileIO. Directories are never removed.
func (b *LocalFileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}
	name := b.fsPath(loc)

	fi, err := b.fs.Stat(name)
	if err != nil {
		return b.tr.Translate("delete", location, err)
	}
	if fi.IsDir() {
		return b.tr.Failure(interfaces.KindIOFailure, "delete", location, syscall.EISDIR)
	}

	if err := b.fs.Remove(name); err != nil {
		b.log.Error("Failed to delete local file", slog.String("location", location), "err", err)
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted local file", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO.
func (b *LocalFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}
	name := b.fsPath(loc)

	fi, err := b.fs.Stat(name)
	switch {
	case err == nil && fi.IsDir():
		return false, nil
	case err == nil:
		return false, b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist)
	case !isNotExist(err):
		return false, b.tr.Translate("mkdir", location, err)
	}

	if err := b.fs.MkdirAll(name, b.dirPerm); err != nil {
		// An ancestor exists as a plain file.
		if isNotDir(err) {
			return false, b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, err)
		}
		return false, b.tr.Translate("mkdir", location, err)
	}

	b.log.Debug("Created local directory", slog.String("location", location))
	return true, nil
}

// fsPath maps a resolved location onto the afero filesystem.
func (b *LocalFileIO) fsPath(loc ResolvedLocation) string {
	return filepath.FromSlash(loc.Path)
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR) || errors.Is(err, fs.ErrExist)
}
