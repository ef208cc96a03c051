// Package main (cmd/httpserver) runs the storage gateway: an HTTP API that
// reads, writes and deletes files and creates directories on any backend
// configured in the storage configuration file.
//
// Routes:
//
//	GET    /api/v1/file?location=<loc>   stream a file
//	HEAD   /api/v1/file?location=<loc>   report its size
//	PUT    /api/v1/file?location=<loc>   write the request body
//	DELETE /api/v1/file?location=<loc>   delete a file
//	POST   /api/v1/dir?location=<loc>    create a directory
//	GET    /api/v1/backends              list configured backends
//
// plus /livez, /readyz, /drain and /undrain. Prometheus metrics are served on
// --metrics-addr.
//
// Example:
//
//	fileio-server --config storage.yaml --listen-addr 0.0.0.0:8080 --log-json
package main
