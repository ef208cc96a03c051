package interfaces

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailureErrorMatching(t *testing.T) {
	tests := []struct {
		kind     ErrorKind
		sentinel error
		name     string
	}{
		{KindIOFailure, ErrIOFailure, "IOFailure"},
		{KindInvalidLocation, ErrInvalidLocation, "InvalidLocation"},
		{KindUnsupportedBackend, ErrUnsupportedBackend, "UnsupportedBackend"},
		{KindNotFound, ErrNotFound, "NotFound"},
		{KindAlreadyExists, ErrAlreadyExists, "AlreadyExists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewFailure(tt.kind, "open", "s3://bucket/key", fs.ErrPermission)

			assert.Equal(t, tt.name, tt.kind.String())
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, fs.ErrPermission)
			assert.True(t, IsKind(err, tt.kind))

			parsed, ok := ParseErrorKind(tt.name)
			require.True(t, ok)
			assert.Equal(t, tt.kind, parsed)

			for _, other := range tests {
				if other.kind != tt.kind {
					assert.NotErrorIs(t, err, other.sentinel)
				}
			}
		})
	}
}

func TestFailureErrorMessage(t *testing.T) {
	err := NewFailure(KindNotFound, "open", "s3://bucket/key", errors.New("NoSuchKey"))
	assert.Equal(t, `open "s3://bucket/key": not found: NoSuchKey`, err.Error())

	err.Backend = "s3-us-east-1"
	assert.Equal(t, `s3-us-east-1: open "s3://bucket/key": not found: NoSuchKey`, err.Error())

	noCause := NewFailure(KindInvalidLocation, "resolve", "", nil)
	assert.Equal(t, `resolve "": invalid location`, noCause.Error())
	assert.ErrorIs(t, noCause, ErrInvalidLocation)
}

func TestKindOfWrapped(t *testing.T) {
	inner := NewFailure(KindAlreadyExists, "commit", "/tmp/x", fs.ErrExist)
	wrapped := fmt.Errorf("put failed: %w", inner)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindAlreadyExists, kind)

	var fe *FailureError
	require.ErrorAs(t, wrapped, &fe)
	assert.Equal(t, "/tmp/x", fe.Location)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsKind(nil, KindIOFailure))
}
