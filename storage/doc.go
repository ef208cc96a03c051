// Package storage implements interfaces.FileIO on top of concrete storage
// clients and routes locations to them by scheme.
//
// Backends:
//
//   - LocalFileIO on a local or afero filesystem (file://, bare paths)
//   - HDFSFileIO on HDFS (hdfs://)
//   - S3FileIO on Amazon S3 or a compatible service (s3://, s3a://, s3n://)
//   - BlobFileIO on gocloud blob buckets (gs://, mem://)
//   - IPFSFileIO on the IPFS mutable filesystem (ipfs://)
//   - VaultFileIO on a Vault KV v2 engine (vault://)
//
// # Locations
//
// Resolve splits a location into scheme, authority and path:
//
//	s3://warehouse/db/table/data.parquet
//	hdfs://namenode:8020/warehouse/db
//	file:///var/lib/warehouse/db
//	/var/lib/warehouse/db
//
// A Registry maps schemes to backends. It is filled at startup, sealed, and
// then read concurrently without locks. ResolvingFileIO dispatches through a
// registry so callers hold a single FileIO for every scheme.
//
// # Delete semantics
//
// Deleting a missing object is declared per backend in
// BackendProperties.DeleteMissing rather than unified:
//
//	LocalFileIO   fails with ErrNotFound
//	HDFSFileIO    no-op
//	S3FileIO      no-op
//	BlobFileIO    fails with ErrNotFound
//	IPFSFileIO    fails with ErrNotFound
//	VaultFileIO   no-op
//
// It never yields ErrIOFailure. DeleteFile never removes a directory.
//
// # Writes
//
// Output handles stage content (temporary file, memory buffer or an
// uncommitted blob.Writer) and publish it on Close, so readers never observe
// partial content. Abort drops the staged content.
//
// # Errors
//
// Each backend owns an ErrorTranslator that turns client errors into
// *interfaces.FailureError at the adapter edge. Callers match kinds with
// errors.Is against the interfaces sentinels.
package storage
