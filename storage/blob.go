package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // registers gs://
	_ "gocloud.dev/blob/memblob" // registers mem://

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// BlobSchemes are the location schemes served by BlobFileIO by default.
var BlobSchemes = []string{"gs", "mem"}

// BucketOpener opens a bucket from a scheme://authority URL.
type BucketOpener func(ctx context.Context, bucketURL string) (*blob.Bucket, error)

// BlobFileIO implements FileIO on any gocloud.dev/blob bucket. Locations are
// scheme://bucket/key; buckets are opened on first use and cached.
//
// Deleting a missing object fails with ErrNotFound.
// Directories are emulated with zero-byte "key/" marker objects. As with
// S3FileIO, Mkdir does not look at ancestors, so a plain object at an
// ancestor key does not make it fail.
type BlobFileIO struct {
	open      BucketOpener
	schemes   []string
	overwrite bool
	timeout   time.Duration
	log       *slog.Logger
	tr        *ErrorTranslator
	loc       locator

	mu      sync.Mutex
	buckets map[string]*blob.Bucket
}

// NewBlobFileIO creates a blob backend for the given schemes using gocloud's
// default URL mux. Credentials come from the environment as gocloud resolves them.
//
// Config keys: timeout, overwrite.
func NewBlobFileIO(schemes []string, cfg interfaces.BackendConfig, log *slog.Logger) (*BlobFileIO, error) {
	return NewBlobFileIOWithOpener(blob.OpenBucket, schemes, cfg, log)
}

// NewBlobFileIOWithOpener creates a blob backend with a custom bucket opener.
func NewBlobFileIOWithOpener(open BucketOpener, schemes []string, cfg interfaces.BackendConfig, log *slog.Logger) (*BlobFileIO, error) {
	settings, err := parseCommonSettings(cfg)
	if err != nil {
		return nil, err
	}
	if len(schemes) == 0 {
		schemes = BlobSchemes
	}

	tr := NewErrorTranslator("blob", ClassifyBlobError)
	return &BlobFileIO{
		open:      open,
		schemes:   schemes,
		overwrite: settings.overwrite,
		timeout:   settings.timeout,
		log:       log,
		tr:        tr,
		loc: locator{
			schemes:       schemes,
			needAuthority: true,
			tr:            tr,
		},
		buckets: make(map[string]*blob.Bucket),
	}, nil
}

// Properties implements interfaces.FileIO.
func (b *BlobFileIO) Properties() interfaces.BackendProperties {
	return interfaces.BackendProperties{
		Name:          fmt.Sprintf("blob-%s", b.schemes[0]),
		Schemes:       b.schemes,
		DeleteMissing: interfaces.DeleteMissingFails,
		Overwrite:     b.overwrite,
	}
}

// NewInputFile implements interfaces.FileIO.
func (b *BlobFileIO) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	loc, err := b.loc.resolve("open", location)
	if err != nil {
		return nil, err
	}
	key := loc.Key()

	open := func(ctx context.Context) (io.ReadCloser, error) {
		bucket, err := b.bucketFor(ctx, loc)
		if err != nil {
			return nil, err
		}
		return bucket.NewReader(ctx, key, nil)
	}
	size := func(ctx context.Context) (int64, error) {
		bucket, err := b.bucketFor(ctx, loc)
		if err != nil {
			return 0, err
		}
		ctx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		attrs, err := bucket.Attributes(ctx, key)
		if err != nil {
			return 0, err
		}
		return attrs.Size, nil
	}

	return newInputFile(ctx, location, open, size, b.tr), nil
}

// NewOutputFile implements interfaces.FileIO. A blob.Writer only publishes
// the object when closed, and canceling its context aborts the upload.
func (b *BlobFileIO) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	loc, err := b.loc.resolve("create", location)
	if err != nil {
		return nil, err
	}
	key := loc.Key()

	stage := func(ctx context.Context) (stagedWriter, error) {
		bucket, err := b.bucketFor(ctx, loc)
		if err != nil {
			return nil, err
		}

		wctx, cancel := context.WithCancel(ctx)
		w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "application/octet-stream"})
		if err != nil {
			cancel()
			return nil, err
		}

		return &blobWriter{
			w:      w,
			cancel: cancel,
			precommit: func() error {
				if b.overwrite {
					return nil
				}
				exists, err := b.exists(ctx, bucket, key)
				if err != nil {
					return err
				}
				if exists {
					return b.tr.Failure(interfaces.KindAlreadyExists, "commit", location, fs.ErrExist)
				}
				return nil
			},
		}, nil
	}

	return newOutputFile(ctx, location, stage, b.tr), nil
}

// DeleteFile implements interfaces.FileIO.
func (b *BlobFileIO) DeleteFile(ctx context.Context, location string) error {
	loc, err := b.loc.resolve("delete", location)
	if err != nil {
		return err
	}

	bucket, err := b.bucketFor(ctx, loc)
	if err != nil {
		return b.tr.Translate("delete", location, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := bucket.Delete(ctx, loc.Key()); err != nil {
		return b.tr.Translate("delete", location, err)
	}

	b.log.Debug("Deleted blob", slog.String("location", location))
	return nil
}

// Mkdir implements interfaces.FileIO by writing a "key/" marker.
func (b *BlobFileIO) Mkdir(ctx context.Context, location string) (bool, error) {
	loc, err := b.loc.resolve("mkdir", location)
	if err != nil {
		return false, err
	}
	key := loc.Key()

	bucket, err := b.bucketFor(ctx, loc)
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	isDir, err := b.exists(ctx, bucket, key+"/")
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if isDir {
		return false, nil
	}

	isFile, err := b.exists(ctx, bucket, key)
	if err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}
	if isFile {
		return false, b.tr.Failure(interfaces.KindAlreadyExists, "mkdir", location, fs.ErrExist)
	}

	wctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if err := bucket.WriteAll(wctx, key+"/", nil, nil); err != nil {
		return false, b.tr.Translate("mkdir", location, err)
	}

	b.log.Debug("Created blob directory marker", slog.String("location", location))
	return true, nil
}

// Close closes every opened bucket.
func (b *BlobFileIO) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	for url, bucket := range b.buckets {
		err = multierr.Append(err, bucket.Close())
		delete(b.buckets, url)
	}
	return err
}

func (b *BlobFileIO) bucketFor(ctx context.Context, loc ResolvedLocation) (*blob.Bucket, error) {
	bucketURL := fmt.Sprintf("%s://%s", loc.Scheme, loc.Authority)

	b.mu.Lock()
	defer b.mu.Unlock()

	if bucket, ok := b.buckets[bucketURL]; ok {
		return bucket, nil
	}

	bucket, err := b.open(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	b.buckets[bucketURL] = bucket

	b.log.Debug("Opened blob bucket", slog.String("bucket", bucketURL))
	return bucket, nil
}

func (b *BlobFileIO) exists(ctx context.Context, bucket *blob.Bucket, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return bucket.Exists(ctx, key)
}

// blobWriter stages content in a blob.Writer.
type blobWriter struct {
	w         *blob.Writer
	cancel    context.CancelFunc
	precommit func() error
	closed    bool
}

func (w *blobWriter) Write(p []byte) (int, error) {
	return w.w.Write(p)
}

func (w *blobWriter) Commit() error {
	if err := w.precommit(); err != nil {
		return err
	}
	w.closed = true
	defer w.cancel()
	return w.w.Close()
}

func (w *blobWriter) Discard() error {
	if w.closed {
		return nil
	}
	w.closed = true
	// Closing after cancel aborts the upload; the resulting error is expected.
	w.cancel()
	_ = w.w.Close()
	return nil
}
