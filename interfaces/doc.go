// Package interfaces defines the storage contracts shared by every backend,
// separating interface definitions from their implementations.
//
// # FileIO
//
// FileIO is the capability contract a storage backend satisfies:
//
//   - NewInputFile: bind a lazily opened read handle to a location
//   - NewOutputFile: bind a write handle whose content is committed on Close
//   - DeleteFile: remove exactly one object, never a directory
//   - Mkdir: create a directory and its ancestors, reporting whether it was created
//
// Locations are opaque strings, optionally prefixed with a scheme
// (s3://bucket/key, hdfs://namenode:8020/path, /var/lib/data/file).
//
// # Errors
//
// Every failure is a *FailureError carrying one of five kinds together with
// the offending location and the backend-native cause:
//
//   - ErrInvalidLocation: malformed or empty location
//   - ErrUnsupportedBackend: no backend for the location's scheme
//   - ErrNotFound: the object or directory does not exist
//   - ErrAlreadyExists: the target exists and collision is disallowed
//   - ErrIOFailure: any other backend failure
//
// Callers match kinds with errors.Is(err, interfaces.ErrNotFound) or KindOf.
//
// # Configuration
//
// BackendConfig is an immutable set of key/value settings handed to a
// backend at construction and shared read-only by every handle it produces.
package interfaces
