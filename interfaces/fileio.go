package interfaces

import (
	"context"
	"fmt"
	"io"
)

// FileIO is the capability contract every storage backend satisfies.
// Implementations are safe for concurrent use; the handles they return are not.
type FileIO interface {
	// NewInputFile binds a read handle to location. No I/O happens here:
	// a missing object surfaces ErrNotFound from the first Read.
	NewInputFile(ctx context.Context, location string) (InputFile, error)

	// NewOutputFile binds a write handle to location. Nothing becomes visible
	// at location until the handle is closed successfully.
	NewOutputFile(ctx context.Context, location string) (OutputFile, error)

	// DeleteFile removes exactly the named object, never a directory.
	// Deleting a missing object follows Properties().DeleteMissing.
	DeleteFile(ctx context.Context, location string) error

	// Mkdir creates the directory and any missing ancestors. It reports true
	// when the directory was created and false when it already existed.
	Mkdir(ctx context.Context, location string) (bool, error)

	// Properties describes the backend's declared semantics.
	Properties() BackendProperties
}

// InputFile is a read session against one location.
type InputFile interface {
	io.ReadCloser

	// Location returns the location the handle was created for.
	Location() string

	// Length returns the object size in bytes, fetching metadata on first use.
	Length() (int64, error)

	// Exists reports whether the object exists.
	Exists() (bool, error)
}

// OutputFile is a write session against one location.
//
// Close commits the written content and is idempotent: further calls return
// the first result without committing again. Abort discards everything
// written so far; the target location is left untouched.
type OutputFile interface {
	io.WriteCloser

	// Location returns the location the handle was created for.
	Location() string

	// Abort discards staged content. Close after Abort is a no-op.
	Abort() error
}

// DeleteMissingPolicy declares what DeleteFile does for a missing object.
type DeleteMissingPolicy int

const (
	// DeleteMissingIgnored makes deleting a missing object a no-op.
	DeleteMissingIgnored DeleteMissingPolicy = iota
	// DeleteMissingFails makes deleting a missing object fail with ErrNotFound.
	DeleteMissingFails
)

// String returns the policy name.
func (p DeleteMissingPolicy) String() string {
	switch p {
	case DeleteMissingIgnored:
		return "ignored"
	case DeleteMissingFails:
		return "fails"
	default:
		return "unknown"
	}
}

// ParseDeleteMissingPolicy is the inverse of DeleteMissingPolicy.String.
func ParseDeleteMissingPolicy(s string) (DeleteMissingPolicy, error) {
	switch s {
	case "ignored":
		return DeleteMissingIgnored, nil
	case "fails":
		return DeleteMissingFails, nil
	}
	return DeleteMissingFails, fmt.Errorf("unknown delete-missing policy %q", s)
}

// BackendProperties describes a backend instance.
type BackendProperties struct {
	// Name identifies the backend in logs and metrics.
	Name string

	// Schemes lists the location schemes the backend serves.
	Schemes []string

	// DeleteMissing is the declared delete-of-missing-object behavior.
	DeleteMissing DeleteMissingPolicy

	// Overwrite reports whether closing an output handle replaces an existing object.
	Overwrite bool
}
