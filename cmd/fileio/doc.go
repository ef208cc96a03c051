// Package main (cmd/fileio) is a command line client for the storage layer.
// It builds the backend registry from the storage configuration, or connects
// to a running gateway with --gateway, and runs a single operation against
// one location.
//
// Example usage:
//
//	fileio --config storage.yaml put s3://warehouse/db/t/data.bin < data.bin
//	fileio --config storage.yaml cat s3://warehouse/db/t/data.bin
//	fileio --root /tmp/store mkdir a/b
//	fileio --gateway 127.0.0.1:8080 stat s3://warehouse/db/t/data.bin
//	fileio backends
package main
