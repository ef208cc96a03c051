package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure surfaced by a FileIO.
type ErrorKind int

const (
	// KindIOFailure is an underlying backend failure not otherwise classified.
	KindIOFailure ErrorKind = iota
	// KindInvalidLocation is a malformed or empty location.
	KindInvalidLocation
	// KindUnsupportedBackend means no backend serves the location's scheme.
	KindUnsupportedBackend
	// KindNotFound means the referenced object or directory does not exist.
	KindNotFound
	// KindAlreadyExists means the target exists and collision is disallowed.
	KindAlreadyExists
)

var (
	// ErrInvalidLocation is matched by failures of kind KindInvalidLocation.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrUnsupportedBackend is matched by failures of kind KindUnsupportedBackend.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrNotFound is matched by failures of kind KindNotFound.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is matched by failures of kind KindAlreadyExists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrIOFailure is matched by failures of kind KindIOFailure.
	ErrIOFailure = errors.New("i/o failure")
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidLocation:
		return "InvalidLocation"
	case KindUnsupportedBackend:
		return "UnsupportedBackend"
	case KindNotFound:
		return "NotFound"
	case KindAlreadyExists:
		return "AlreadyExists"
	default:
		return "IOFailure"
	}
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) (ErrorKind, bool) {
	for _, k := range []ErrorKind{KindIOFailure, KindInvalidLocation, KindUnsupportedBackend, KindNotFound, KindAlreadyExists} {
		if k.String() == s {
			return k, true
		}
	}
	return KindIOFailure, false
}

// Sentinel returns the sentinel error matched by failures of this kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindInvalidLocation:
		return ErrInvalidLocation
	case KindUnsupportedBackend:
		return ErrUnsupportedBackend
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyExists:
		return ErrAlreadyExists
	default:
		return ErrIOFailure
	}
}

// FailureError is the failure record returned by every FileIO operation.
// The backend-native cause is kept in Err for diagnostics.
type FailureError struct {
	Kind     ErrorKind
	Op       string
	Location string
	Backend  string
	Err      error
}

// NewFailure creates a failure record.
func NewFailure(kind ErrorKind, op, location string, cause error) *FailureError {
	return &FailureError{
		Kind:     kind,
		Op:       op,
		Location: location,
		Err:      cause,
	}
}

// Error renders "op location: kind: cause".
func (e *FailureError) Error() string {
	msg := fmt.Sprintf("%s %q: %s", e.Op, e.Location, e.Kind.Sentinel())
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the native cause, so errors.Is
// matches either.
func (e *FailureError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.Sentinel()}
	}
	return []error{e.Kind.Sentinel(), e.Err}
}

// KindOf returns the kind of the first FailureError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return KindIOFailure, false
}

// IsKind reports whether err carries a failure of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
