package storage

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"sync"

	"go.uber.org/multierr"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// opener opens an object's content stream.
type opener func(ctx context.Context) (io.ReadCloser, error)

// sizer fetches an object's size.
type sizer func(ctx context.Context) (int64, error)

// inputFile is the InputFile shared by all backends. The stream is opened on
// the first Read and metadata is fetched on the first Length or Exists.
type inputFile struct {
	ctx      context.Context
	location string
	open     opener
	size     sizer
	tr       *ErrorTranslator

	rc      io.ReadCloser
	drained bool
	closed  bool
	length  int64
	sized   bool
}

var _ interfaces.InputFile = (*inputFile)(nil)

func newInputFile(ctx context.Context, location string, open opener, size sizer, tr *ErrorTranslator) *inputFile {
	return &inputFile{
		ctx:      ctx,
		location: location,
		open:     open,
		size:     size,
		tr:       tr,
	}
}

func (f *inputFile) Location() string {
	return f.location
}

func (f *inputFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, f.tr.Failure(interfaces.KindIOFailure, "read", f.location, fs.ErrClosed)
	}

	if f.drained {
		return 0, io.EOF
	}

	if f.rc == nil {
		rc, err := f.open(f.ctx)
		if err != nil {
			return 0, f.tr.Translate("read", f.location, err)
		}
		f.rc = rc
	}

	n, err := f.rc.Read(p)
	if err == io.EOF {
		// The stream is released as soon as it is exhausted.
		f.drained = true
		rc := f.rc
		f.rc = nil
		if closeErr := rc.Close(); closeErr != nil {
			return n, f.tr.Translate("close", f.location, closeErr)
		}
		return n, io.EOF
	}
	if err != nil {
		return n, f.tr.Translate("read", f.location, err)
	}
	return n, nil
}

func (f *inputFile) Length() (int64, error) {
	if f.sized {
		return f.length, nil
	}

	n, err := f.size(f.ctx)
	if err != nil {
		return 0, f.tr.Translate("length", f.location, err)
	}

	f.length, f.sized = n, true
	return n, nil
}

func (f *inputFile) Exists() (bool, error) {
	_, err := f.Length()
	if err == nil {
		return true, nil
	}
	if interfaces.IsKind(err, interfaces.KindNotFound) {
		return false, nil
	}
	return false, err
}

func (f *inputFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if f.rc == nil {
		return nil
	}
	return f.tr.Translate("close", f.location, f.rc.Close())
}

// stagedWriter holds an output handle's content until it is committed.
type stagedWriter interface {
	io.Writer

	// Commit publishes the staged content at the target location.
	Commit() error

	// Discard drops the staged content. It is safe after a failed Commit.
	Discard() error
}

// stager creates the staging area for one output handle.
type stager func(ctx context.Context) (stagedWriter, error)

type outputState int

const (
	outputOpen outputState = iota
	outputClosed
	outputAborted
)

// outputFile is the OutputFile shared by all backends. Staging starts on
// the first Write, or on Close for an empty object.
type outputFile struct {
	mu       sync.Mutex
	ctx      context.Context
	location string
	stage    stager
	tr       *ErrorTranslator

	w        stagedWriter
	state    outputState
	closeErr error
}

var _ interfaces.OutputFile = (*outputFile)(nil)

func newOutputFile(ctx context.Context, location string, stage stager, tr *ErrorTranslator) *outputFile {
	return &outputFile{
		ctx:      ctx,
		location: location,
		stage:    stage,
		tr:       tr,
	}
}

func (f *outputFile) Location() string {
	return f.location
}

func (f *outputFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != outputOpen {
		return 0, f.tr.Failure(interfaces.KindIOFailure, "write", f.location, fs.ErrClosed)
	}

	if err := f.ensureStaged(); err != nil {
		return 0, err
	}

	n, err := f.w.Write(p)
	if err != nil {
		return n, f.tr.Translate("write", f.location, err)
	}
	return n, nil
}

func (f *outputFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.state {
	case outputClosed:
		return f.closeErr
	case outputAborted:
		return nil
	}
	f.state = outputClosed

	if err := f.ensureStaged(); err != nil {
		f.closeErr = err
		return err
	}

	if err := f.w.Commit(); err != nil {
		f.closeErr = f.tr.Translate("commit", f.location, multierr.Append(err, f.w.Discard()))
		return f.closeErr
	}
	return nil
}

func (f *outputFile) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != outputOpen {
		return nil
	}
	f.state = outputAborted

	if f.w == nil {
		return nil
	}
	return f.tr.Translate("abort", f.location, f.w.Discard())
}

func (f *outputFile) ensureStaged() error {
	if f.w != nil {
		return nil
	}
	w, err := f.stage(f.ctx)
	if err != nil {
		return f.tr.Translate("create", f.location, err)
	}
	f.w = w
	return nil
}

// bufferedWriter stages content in memory and hands it to commit on Close.
// Used by backends whose clients upload whole objects.
type bufferedWriter struct {
	ctx    context.Context
	buf    bytes.Buffer
	commit func(ctx context.Context, data []byte) error
}

func bufferedStage(commit func(ctx context.Context, data []byte) error) stager {
	return func(ctx context.Context) (stagedWriter, error) {
		return &bufferedWriter{ctx: ctx, commit: commit}, nil
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	return b.buf.Write(p)
}

func (b *bufferedWriter) Commit() error {
	return b.commit(b.ctx, b.buf.Bytes())
}

func (b *bufferedWriter) Discard() error {
	b.buf.Reset()
	return nil
}

// tempFileWriter stages content in a temporary file next to the target and
// renames it into place on Commit.
type tempFileWriter struct {
	w       io.WriteCloser
	wClosed bool
	removed bool
	publish func() error
	remove  func() error
}

func (t *tempFileWriter) Write(p []byte) (int, error) {
	return t.w.Write(p)
}

func (t *tempFileWriter) Commit() error {
	t.wClosed = true
	if err := t.w.Close(); err != nil {
		return err
	}
	if err := t.publish(); err != nil {
		return err
	}
	t.removed = true
	return nil
}

func (t *tempFileWriter) Discard() error {
	var err error
	if !t.wClosed {
		t.wClosed = true
		err = t.w.Close()
	}
	if !t.removed {
		t.removed = true
		if rmErr := t.remove(); rmErr != nil && !isNotExist(rmErr) {
			err = multierr.Append(err, rmErr)
		}
	}
	return err
}

func isNotExist(err error) bool {
	kind, _ := ClassifyOSError(err)
	return kind == interfaces.KindNotFound
}

// NewStreamInputFile returns an InputFile that calls open on the first Read
// and size on the first Length or Exists. Errors are translated by tr.
func NewStreamInputFile(ctx context.Context, location string, open func(ctx context.Context) (io.ReadCloser, error), size func(ctx context.Context) (int64, error), tr *ErrorTranslator) interfaces.InputFile {
	return newInputFile(ctx, location, open, size, tr)
}

// NewBufferedOutputFile returns an OutputFile that buffers writes in memory
// and passes the whole content to commit on Close.
func NewBufferedOutputFile(ctx context.Context, location string, commit func(ctx context.Context, data []byte) error, tr *ErrorTranslator) interfaces.OutputFile {
	return newOutputFile(ctx, location, bufferedStage(commit), tr)
}
