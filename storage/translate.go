package storage

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/hashicorp/vault/api"
	shell "github.com/ipfs/go-ipfs-api"
	"gocloud.dev/gcerrors"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

// Classifier maps one family of backend-native errors to a failure kind.
// It reports false for errors it does not recognize.
type Classifier func(err error) (interfaces.ErrorKind, bool)

// ErrorTranslator converts backend-native errors into *interfaces.FailureError
// at the adapter edge. Translation is pure: the same native error always
// yields the same kind, and anything unrecognized is an IOFailure.
type ErrorTranslator struct {
	backend     string
	classifiers []Classifier
}

// NewErrorTranslator creates a translator for the named backend. Classifiers
// are consulted in order; the first match wins.
func NewErrorTranslator(backend string, classifiers ...Classifier) *ErrorTranslator {
	return &ErrorTranslator{
		backend:     backend,
		classifiers: classifiers,
	}
}

// Kind classifies err without wrapping it.
func (t *ErrorTranslator) Kind(err error) interfaces.ErrorKind {
	if kind, ok := interfaces.KindOf(err); ok {
		return kind
	}
	for _, classify := range t.classifiers {
		if kind, ok := classify(err); ok {
			return kind
		}
	}
	return interfaces.KindIOFailure
}

// Translate wraps err in a failure record for op on location. Errors that
// already are failure records pass through unchanged apart from gaining the
// backend name. A nil err translates to nil.
func (t *ErrorTranslator) Translate(op, location string, err error) error {
	if err == nil {
		return nil
	}

	var fe *interfaces.FailureError
	if errors.As(err, &fe) {
		if fe.Backend == "" {
			cp := *fe
			cp.Backend = t.backend
			return &cp
		}
		return fe
	}

	return t.Failure(t.Kind(err), op, location, err)
}

// Failure builds a failure record of an explicit kind.
func (t *ErrorTranslator) Failure(kind interfaces.ErrorKind, op, location string, cause error) error {
	fe := interfaces.NewFailure(kind, op, location, cause)
	fe.Backend = t.backend
	return fe
}

// ClassifyOSError handles os, afero and HDFS client path errors.
func ClassifyOSError(err error) (interfaces.ErrorKind, bool) {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return interfaces.KindNotFound, true
	case errors.Is(err, fs.ErrExist):
		return interfaces.KindAlreadyExists, true
	case errors.Is(err, syscall.ENOTDIR):
		return interfaces.KindNotFound, true
	case errors.Is(err, fs.ErrInvalid):
		return interfaces.KindInvalidLocation, true
	}
	return interfaces.KindIOFailure, false
}

// ClassifyAWSError handles aws-sdk-go errors by error code, then by HTTP status.
func ClassifyAWSError(err error) (interfaces.ErrorKind, bool) {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return interfaces.KindNotFound, true
		case "PreconditionFailed":
			return interfaces.KindAlreadyExists, true
		case "InvalidBucketName", "KeyTooLongError":
			return interfaces.KindInvalidLocation, true
		}
	}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		switch reqErr.StatusCode() {
		case http.StatusNotFound:
			return interfaces.KindNotFound, true
		case http.StatusPreconditionFailed:
			return interfaces.KindAlreadyExists, true
		}
	}
	return interfaces.KindIOFailure, false
}

// ClassifyBlobError handles gocloud.dev/blob errors through gcerrors codes.
func ClassifyBlobError(err error) (interfaces.ErrorKind, bool) {
	switch gcerrors.Code(err) {
	case gcerrors.NotFound:
		return interfaces.KindNotFound, true
	case gcerrors.AlreadyExists, gcerrors.FailedPrecondition:
		return interfaces.KindAlreadyExists, true
	case gcerrors.InvalidArgument:
		return interfaces.KindInvalidLocation, true
	}
	return interfaces.KindIOFailure, false
}

// ClassifyVaultError handles Vault API response errors.
func ClassifyVaultError(err error) (interfaces.ErrorKind, bool) {
	var respErr *api.ResponseError
	if !errors.As(err, &respErr) {
		return interfaces.KindIOFailure, false
	}

	switch respErr.StatusCode {
	case http.StatusNotFound:
		return interfaces.KindNotFound, true
	case http.StatusBadRequest:
		for _, msg := range respErr.Errors {
			if strings.Contains(msg, "check-and-set") {
				return interfaces.KindAlreadyExists, true
			}
		}
	}
	return interfaces.KindIOFailure, false
}

// ClassifyIPFSError handles IPFS API errors. The API reports MFS failures
// only through messages, so matching is textual.
func ClassifyIPFSError(err error) (interfaces.ErrorKind, bool) {
	var shellErr *shell.Error
	if !errors.As(err, &shellErr) {
		return interfaces.KindIOFailure, false
	}

	msg := strings.ToLower(shellErr.Message)
	switch {
	case strings.Contains(msg, "does not exist"), strings.Contains(msg, "no link named"):
		return interfaces.KindNotFound, true
	case strings.Contains(msg, "already exists"), strings.Contains(msg, "already has entry"):
		return interfaces.KindAlreadyExists, true
	case strings.Contains(msg, "invalid path"), strings.Contains(msg, "paths must start with"):
		return interfaces.KindInvalidLocation, true
	}
	return interfaces.KindIOFailure, false
}
