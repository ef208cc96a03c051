package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shawnding/incubator-iceberg/api"
	"github.com/shawnding/incubator-iceberg/interfaces"
	"github.com/shawnding/incubator-iceberg/storage"
)

func newTestServer(t *testing.T, cfg HTTPServerConfig) (*Server, *storage.ResolvingFileIO) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	local, err := storage.NewLocalFileIOWithFs(afero.NewMemMapFs(), interfaces.NewBackendConfig(nil), logger)
	require.NoError(t, err)
	blob, err := storage.NewBlobFileIO([]string{"mem"}, interfaces.NewBackendConfig(map[string]string{interfaces.ConfigOverwrite: "false"}), logger)
	require.NoError(t, err)

	registry := storage.NewRegistry("file", logger)
	require.NoError(t, registry.Register(local))
	require.NoError(t, registry.Register(blob))
	registry.Seal()
	t.Cleanup(func() { _ = registry.Close() })

	fio := storage.NewResolvingFileIO(registry, logger)

	cfg.Log = logger
	srv, err := New(&cfg, NewHandler(fio, logger), nil)
	require.NoError(t, err)
	return srv, fio
}

func fileURL(base, route, location string) string {
	return base + route + "?" + url.Values{api.LocationParam: {location}}.Encode()
}

func do(t *testing.T, method, target string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, target, body)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) api.ErrorResponse {
	t.Helper()
	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestFileRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t, HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := do(t, http.MethodPut, fileURL(ts.URL, "/api/v1/file", "mem://bucket/t1/data"), strings.NewReader("payload"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var written api.WriteResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&written))
	assert.Equal(t, api.WriteResponse{Location: "mem://bucket/t1/data", Size: 7}, written)

	resp = do(t, http.MethodGet, fileURL(ts.URL, "/api/v1/file", "mem://bucket/t1/data"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "7", resp.Header.Get("Content-Length"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))

	resp = do(t, http.MethodHead, fileURL(ts.URL, "/api/v1/file", "mem://bucket/t1/data"), nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(7), resp.ContentLength)

	resp = do(t, http.MethodDelete, fileURL(ts.URL, "/api/v1/file", "mem://bucket/t1/data"), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodHead, fileURL(ts.URL, "/api/v1/file", "mem://bucket/t1/data"), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFound", resp.Header.Get(api.ErrorKindHeader))
}

func TestListBackends(t *testing.T) {
	srv, _ := newTestServer(t, HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := do(t, http.MethodGet, ts.URL+api.BackendsRoute, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body api.BackendsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, api.BackendsResponse{
		DefaultScheme: "file",
		Backends: []api.BackendInfo{
			{Scheme: "file", Name: "file", DeleteMissing: "fails", Overwrite: true, Default: true},
			{Scheme: "mem", Name: "blob-mem", DeleteMissing: "fails", Overwrite: false},
		},
	}, body)
}

func TestFileErrors(t *testing.T) {
	srv, fio := newTestServer(t, HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out, err := fio.NewOutputFile(context.Background(), "mem://bucket/existing")
	require.NoError(t, err)
	require.NoError(t, out.Close())

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		kind   string
	}{
		{"missing location", http.MethodGet, ts.URL + "/api/v1/file", "", http.StatusBadRequest, "InvalidLocation"},
		{"not found", http.MethodGet, fileURL(ts.URL, "/api/v1/file", "/no/such/file"), "", http.StatusNotFound, "NotFound"},
		{"unsupported scheme", http.MethodGet, fileURL(ts.URL, "/api/v1/file", "ftp://host/file"), "", http.StatusBadRequest, "UnsupportedBackend"},
		{"invalid location", http.MethodPut, fileURL(ts.URL, "/api/v1/file", "mem:///key"), "x", http.StatusBadRequest, "InvalidLocation"},
		{"already exists", http.MethodPut, fileURL(ts.URL, "/api/v1/file", "mem://bucket/existing"), "x", http.StatusConflict, "AlreadyExists"},
		{"delete missing local", http.MethodDelete, fileURL(ts.URL, "/api/v1/file", "/no/such/file"), "", http.StatusNotFound, "NotFound"},
		{"mkdir over file", http.MethodPost, fileURL(ts.URL, "/api/v1/dir", "mem://bucket/existing"), "", http.StatusConflict, "AlreadyExists"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, tt.target, strings.NewReader(tt.body))
			require.Equal(t, tt.status, resp.StatusCode)

			body := decodeError(t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.kind, resp.Header.Get(api.ErrorKindHeader))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestMkdir(t *testing.T) {
	srv, _ := newTestServer(t, HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, want := range []struct {
		status  int
		created bool
	}{
		{http.StatusCreated, true},
		{http.StatusOK, false},
	} {
		resp := do(t, http.MethodPost, fileURL(ts.URL, "/api/v1/dir", "/warehouse/db"), nil)
		require.Equal(t, want.status, resp.StatusCode)

		var body api.MkdirResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, api.MkdirResponse{Location: "/warehouse/db", Created: want.created}, body)
	}
}

func TestMaxBodySize(t *testing.T) {
	srv, fio := newTestServer(t, HTTPServerConfig{MaxBodySize: 4})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp := do(t, http.MethodPut, fileURL(ts.URL, "/api/v1/file", "/big"), bytes.NewReader([]byte("too large")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	in, err := fio.NewInputFile(context.Background(), "/big")
	require.NoError(t, err)
	ok, err := in.Exists()
	require.NoError(t, err)
	assert.False(t, ok, "oversized upload must not be committed")

	resp = do(t, http.MethodPut, fileURL(ts.URL, "/api/v1/file", "/small"), strings.NewReader("tiny"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestReadinessAndDrain(t *testing.T) {
	srv, _ := newTestServer(t, HTTPServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	status := func(path string) (int, string) {
		resp := do(t, http.MethodGet, ts.URL+path, nil)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body["status"]
	}

	code, s := status("/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", s)

	code, _ = status("/readyz")
	assert.Equal(t, http.StatusOK, code)

	_, s = status("/drain")
	assert.Equal(t, "draining", s)
	_, s = status("/drain")
	assert.Equal(t, "already draining", s)

	code, _ = status("/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	_, s = status("/undrain")
	assert.Equal(t, "ready", s)
	code, _ = status("/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		kind   interfaces.ErrorKind
	}{
		{interfaces.NewFailure(interfaces.KindInvalidLocation, "open", "", nil), http.StatusBadRequest, interfaces.KindInvalidLocation},
		{interfaces.NewFailure(interfaces.KindUnsupportedBackend, "open", "x://", nil), http.StatusBadRequest, interfaces.KindUnsupportedBackend},
		{interfaces.NewFailure(interfaces.KindNotFound, "open", "/x", nil), http.StatusNotFound, interfaces.KindNotFound},
		{interfaces.NewFailure(interfaces.KindAlreadyExists, "commit", "/x", nil), http.StatusConflict, interfaces.KindAlreadyExists},
		{interfaces.NewFailure(interfaces.KindIOFailure, "read", "/x", nil), http.StatusBadGateway, interfaces.KindIOFailure},
		{errors.New("unclassified"), http.StatusBadGateway, interfaces.KindIOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, kind := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(&HTTPServerConfig{}, NewHandler(nil, nil), nil)
	assert.Error(t, err)
}
