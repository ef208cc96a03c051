/*
Package api holds the wire types of the storage gateway HTTP API.

The gateway (package httpserver) exposes a FileIO over HTTP and the gateway
client (package api/clients) implements FileIO on top of it, so both sides
share the routes and JSON bodies defined here.

# Routes

	GET    /api/v1/file?location=<loc>   stream a file
	HEAD   /api/v1/file?location=<loc>   report its size in Content-Length
	PUT    /api/v1/file?location=<loc>   write the request body
	DELETE /api/v1/file?location=<loc>   delete a file
	POST   /api/v1/dir?location=<loc>    create a directory
	GET    /api/v1/backends              list configured backends

Failures answer with an ErrorResponse whose Kind is one of InvalidLocation,
UnsupportedBackend, NotFound, AlreadyExists or IOFailure.
*/
package api
