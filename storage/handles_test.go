package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// recordingWriter is a stagedWriter that counts commits and discards.
type recordingWriter struct {
	buf       bytes.Buffer
	commitErr error
	commits   int
	discards  int
}

func (r *recordingWriter) Write(p []byte) (int, error) { return r.buf.Write(p) }

func (r *recordingWriter) Commit() error {
	r.commits++
	return r.commitErr
}

func (r *recordingWriter) Discard() error {
	r.discards++
	return nil
}

func recordingStage(w *recordingWriter, stages *int) stager {
	return func(context.Context) (stagedWriter, error) {
		*stages++
		return w, nil
	}
}

func TestOutputFileCommitsOnce(t *testing.T) {
	w := &recordingWriter{}
	stages := 0
	out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test"))

	assert.Equal(t, "mem://b/k", out.Location())

	_, err := out.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = out.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 1, stages)

	require.NoError(t, out.Close())
	require.NoError(t, out.Close())
	assert.Equal(t, 1, w.commits)
	assert.Equal(t, "abcdef", w.buf.String())

	_, err = out.Write([]byte("x"))
	assert.ErrorIs(t, err, interfaces.ErrIOFailure)
	assert.ErrorIs(t, err, fs.ErrClosed)
}

func TestOutputFileCachesCommitError(t *testing.T) {
	w := &recordingWriter{commitErr: fs.ErrExist}
	stages := 0
	out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test", ClassifyOSError))

	first := out.Close()
	assert.ErrorIs(t, first, interfaces.ErrAlreadyExists)
	assert.Equal(t, 1, w.discards)

	second := out.Close()
	assert.Same(t, first, second)
	assert.Equal(t, 1, w.commits)
}

func TestOutputFileEmptyCommit(t *testing.T) {
	w := &recordingWriter{}
	stages := 0
	out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test"))

	require.NoError(t, out.Close())
	assert.Equal(t, 1, stages)
	assert.Equal(t, 1, w.commits)
	assert.Zero(t, w.buf.Len())
}

func TestOutputFileAbort(t *testing.T) {
	t.Run("after write", func(t *testing.T) {
		w := &recordingWriter{}
		stages := 0
		out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test"))

		_, err := out.Write([]byte("abc"))
		require.NoError(t, err)

		require.NoError(t, out.Abort())
		require.NoError(t, out.Abort())
		require.NoError(t, out.Close())
		assert.Equal(t, 1, w.discards)
		assert.Zero(t, w.commits)

		_, err = out.Write([]byte("x"))
		assert.ErrorIs(t, err, interfaces.ErrIOFailure)
	})

	t.Run("before write", func(t *testing.T) {
		w := &recordingWriter{}
		stages := 0
		out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test"))

		require.NoError(t, out.Abort())
		require.NoError(t, out.Close())
		assert.Zero(t, stages)
	})

	t.Run("after close", func(t *testing.T) {
		w := &recordingWriter{}
		stages := 0
		out := newOutputFile(context.Background(), "mem://b/k", recordingStage(w, &stages), NewErrorTranslator("test"))

		require.NoError(t, out.Close())
		require.NoError(t, out.Abort())
		assert.Zero(t, w.discards)
	})
}

func TestOutputFileStageFailure(t *testing.T) {
	stage := func(context.Context) (stagedWriter, error) {
		return nil, &fs.PathError{Op: "mkdir", Path: "/x", Err: fs.ErrPermission}
	}
	out := newOutputFile(context.Background(), "/x/y", stage, NewErrorTranslator("file", ClassifyOSError))

	_, err := out.Write([]byte("abc"))
	assert.ErrorIs(t, err, interfaces.ErrIOFailure)
	assert.ErrorIs(t, err, fs.ErrPermission)
}

func TestInputFileLazyOpen(t *testing.T) {
	opens, sizes := 0, 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		return io.NopCloser(bytes.NewReader([]byte("hello"))), nil
	}
	size := func(context.Context) (int64, error) {
		sizes++
		return 5, nil
	}
	in := newInputFile(context.Background(), "mem://b/k", open, size, NewErrorTranslator("test"))
	assert.Zero(t, opens)

	n, err := in.Length()
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	ok, err := in.Exists()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, sizes)

	data, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, opens)

	buf := make([]byte, 1)
	_, err = in.Read(buf)
	assert.Equal(t, io.EOF, err)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, err = in.Read(buf)
	assert.ErrorIs(t, err, interfaces.ErrIOFailure)
}

type countingReadCloser struct {
	io.Reader
	closes   int
	closeErr error
}

func (c *countingReadCloser) Close() error {
	c.closes++
	return c.closeErr
}

func TestInputFileReleasesStreamAtEOF(t *testing.T) {
	rc := &countingReadCloser{Reader: strings.NewReader("hello")}
	opens := 0
	open := func(context.Context) (io.ReadCloser, error) {
		opens++
		return rc, nil
	}
	in := newInputFile(context.Background(), "hdfs://nn/f", open, nil, NewErrorTranslator("test"))

	data, err := io.ReadAll(in)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.Equal(t, 1, rc.closes, "stream closed once drained")

	_, err = in.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 1, opens, "drained stream is not reopened")

	require.NoError(t, in.Close())
	assert.Equal(t, 1, rc.closes)
}

func TestInputFileCloseFailureAtEOF(t *testing.T) {
	boom := errors.New("connection reset")
	rc := &countingReadCloser{Reader: strings.NewReader(""), closeErr: boom}
	open := func(context.Context) (io.ReadCloser, error) { return rc, nil }
	in := newInputFile(context.Background(), "s3://b/k", open, nil, NewErrorTranslator("s3"))

	_, err := in.Read(make([]byte, 8))
	assert.ErrorIs(t, err, interfaces.ErrIOFailure)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, in.Close())
}

func TestInputFileMissing(t *testing.T) {
	notFound := &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}
	open := func(context.Context) (io.ReadCloser, error) { return nil, notFound }
	size := func(context.Context) (int64, error) { return 0, notFound }
	in := newInputFile(context.Background(), "/x", open, size, NewErrorTranslator("file", ClassifyOSError))

	ok, err := in.Exists()
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = in.Length()
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = in.Read(make([]byte, 8))
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, in.Close())
}

func TestInputFileExistsPropagatesFailures(t *testing.T) {
	boom := errors.New("connection refused")
	size := func(context.Context) (int64, error) { return 0, boom }
	in := newInputFile(context.Background(), "s3://b/k", nil, size, NewErrorTranslator("s3"))

	ok, err := in.Exists()
	assert.False(t, ok)
	assert.ErrorIs(t, err, interfaces.ErrIOFailure)
	assert.ErrorIs(t, err, boom)
}

func TestTempFileWriterDiscardAfterCommit(t *testing.T) {
	removes := 0
	w := &tempFileWriter{
		w:       nopWriteCloser{Writer: io.Discard},
		publish: func() error { return nil },
		remove: func() error {
			removes++
			return nil
		},
	}

	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())
	require.NoError(t, w.Discard())
	assert.Zero(t, removes)
}

func TestTempFileWriterDiscardIgnoresMissingTemp(t *testing.T) {
	w := &tempFileWriter{
		w:       nopWriteCloser{Writer: io.Discard},
		publish: func() error { return fs.ErrExist },
		remove:  func() error { return &fs.PathError{Op: "remove", Path: "/tmp", Err: fs.ErrNotExist} },
	}

	assert.ErrorIs(t, w.Commit(), fs.ErrExist)
	assert.NoError(t, w.Discard())
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
