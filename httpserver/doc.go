/*
Package httpserver implements the storage gateway: an HTTP server exposing a
FileIO, normally a storage.ResolvingFileIO over the configured backends.

# Endpoints

  - GET /api/v1/file?location=<loc> - Stream a file
  - HEAD /api/v1/file?location=<loc> - Report a file's size in Content-Length
  - PUT /api/v1/file?location=<loc> - Write the request body, visible once fully received
  - DELETE /api/v1/file?location=<loc> - Delete a file
  - POST /api/v1/dir?location=<loc> - Create a directory (201 created, 200 existed)
  - GET /api/v1/backends - List the backend serving each scheme
  - GET /livez - Liveness check
  - GET /readyz - Readiness check
  - GET /drain - Gracefully mark server as not ready
  - GET /undrain - Mark server as ready

Failures carry the failure kind both in the JSON body (api.ErrorResponse) and
in the api.ErrorKindHeader response header. StatusFor maps kinds to statuses:
InvalidLocation and UnsupportedBackend answer 400, NotFound 404,
AlreadyExists 409 and IOFailure 502. Bodies over MaxBodySize answer 413.

# Example Usage

	cfg := &httpserver.HTTPServerConfig{
		ListenAddr:               ":8080",
		MetricsAddr:              ":9090",
		Log:                      logger,
		DrainDuration:            30 * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             60 * time.Second,
	}

	handler := httpserver.NewHandler(storage.NewResolvingFileIO(registry, logger), logger)
	server, err := httpserver.New(cfg, handler, prometheus.DefaultGatherer)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	server.RunInBackground()
	defer server.Shutdown()
*/
package httpserver
