package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shawnding/incubator-iceberg/api"
	"github.com/shawnding/incubator-iceberg/interfaces"
	"github.com/shawnding/incubator-iceberg/storage"
)

var errMissingLocation = errors.New("missing location query parameter")

// Handler exposes a FileIO over HTTP.
type Handler struct {
	fio interfaces.FileIO
	log *slog.Logger
}

// NewHandler creates a handler serving fio, typically a storage.ResolvingFileIO.
func NewHandler(fio interfaces.FileIO, log *slog.Logger) *Handler {
	return &Handler{
		fio: fio,
		log: log,
	}
}

// HandleGetFile streams the object at ?location=.
//
// URL format: GET /api/v1/file?location=s3://bucket/key
func (h *Handler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	in, err := h.fio.NewInputFile(r.Context(), location)
	if err != nil {
		h.writeError(w, location, err)
		return
	}
	defer in.Close()

	size, err := in.Length()
	if err != nil {
		h.writeError(w, location, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, in); err != nil {
		// Headers are already sent; the client sees a short body.
		h.log.Error("Failed to stream file", slog.String("location", location), "err", err)
	}
}

// HandleHeadFile reports the size of the object at ?location=.
//
// URL format: HEAD /api/v1/file?location=s3://bucket/key
func (h *Handler) HandleHeadFile(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	in, err := h.fio.NewInputFile(r.Context(), location)
	if err != nil {
		h.writeStatus(w, location, err)
		return
	}
	defer in.Close()

	size, err := in.Length()
	if err != nil {
		h.writeStatus(w, location, err)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
}

// HandlePutFile writes the request body to ?location=. The object becomes
// visible only once the whole body has been received.
//
// URL format: PUT /api/v1/file?location=s3://bucket/key
func (h *Handler) HandlePutFile(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	out, err := h.fio.NewOutputFile(r.Context(), location)
	if err != nil {
		h.writeError(w, location, err)
		return
	}

	n, err := io.Copy(out, r.Body)
	if err != nil {
		if abortErr := out.Abort(); abortErr != nil {
			h.log.Warn("Failed to abort output file", slog.String("location", location), "err", abortErr)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.Header().Set(api.ErrorKindHeader, interfaces.KindIOFailure.String())
			writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
				Kind:     interfaces.KindIOFailure.String(),
				Location: location,
				Error:    err.Error(),
			})
			return
		}
		h.writeError(w, location, err)
		return
	}

	if err := out.Close(); err != nil {
		h.writeError(w, location, err)
		return
	}

	h.log.Debug("Stored file", slog.String("location", location), slog.Int64("size", n))
	writeJSON(w, http.StatusCreated, api.WriteResponse{Location: location, Size: n})
}

// HandleDeleteFile deletes the object at ?location=.
//
// URL format: DELETE /api/v1/file?location=s3://bucket/key
func (h *Handler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	if err := h.fio.DeleteFile(r.Context(), location); err != nil {
		h.writeError(w, location, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMkdir creates the directory at ?location=. It answers 201 when the
// directory was created and 200 when it already existed.
//
// URL format: POST /api/v1/dir?location=hdfs://nn/warehouse/db
func (h *Handler) HandleMkdir(w http.ResponseWriter, r *http.Request) {
	location, ok := h.location(w, r)
	if !ok {
		return
	}

	created, err := h.fio.Mkdir(r.Context(), location)
	if err != nil {
		h.writeError(w, location, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, api.MkdirResponse{Location: location, Created: created})
}

// HandleListBackends lists the backend serving each configured scheme.
//
// URL format: GET /api/v1/backends
func (h *Handler) HandleListBackends(w http.ResponseWriter, r *http.Request) {
	var resp api.BackendsResponse

	if d, ok := h.fio.(describer); ok {
		for _, info := range d.Describe() {
			if info.Default {
				resp.DefaultScheme = info.Scheme
			}
			resp.Backends = append(resp.Backends, api.NewBackendInfo(info.Scheme, info.Default, info.Properties))
		}
	} else {
		props := h.fio.Properties()
		for _, scheme := range props.Schemes {
			resp.Backends = append(resp.Backends, api.NewBackendInfo(scheme, false, props))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// describer is implemented by storage.ResolvingFileIO.
type describer interface {
	Describe() []storage.SchemeInfo
}

func (h *Handler) location(w http.ResponseWriter, r *http.Request) (string, bool) {
	location := r.URL.Query().Get(api.LocationParam)
	if location == "" {
		w.Header().Set(api.ErrorKindHeader, interfaces.KindInvalidLocation.String())
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{
			Kind:  interfaces.KindInvalidLocation.String(),
			Error: errMissingLocation.Error(),
		})
		return "", false
	}
	return location, true
}

func (h *Handler) writeError(w http.ResponseWriter, location string, err error) {
	status, kind := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("Storage request failed", slog.String("location", location), "err", err)
	} else {
		h.log.Debug("Storage request rejected", slog.String("location", location), "err", err)
	}

	w.Header().Set(api.ErrorKindHeader, kind.String())
	writeJSON(w, status, api.ErrorResponse{
		Kind:     kind.String(),
		Location: location,
		Error:    err.Error(),
	})
}

// writeStatus answers without a body, as HEAD requires.
func (h *Handler) writeStatus(w http.ResponseWriter, location string, err error) {
	status, kind := StatusFor(err)
	h.log.Debug("Storage request rejected", slog.String("location", location), "err", err)
	w.Header().Set(api.ErrorKindHeader, kind.String())
	w.WriteHeader(status)
}

// StatusFor maps a failure to its HTTP status and kind.
func StatusFor(err error) (int, interfaces.ErrorKind) {
	kind, ok := interfaces.KindOf(err)
	if !ok {
		return http.StatusBadGateway, interfaces.KindIOFailure
	}

	switch kind {
	case interfaces.KindInvalidLocation, interfaces.KindUnsupportedBackend:
		return http.StatusBadRequest, kind
	case interfaces.KindNotFound:
		return http.StatusNotFound, kind
	case interfaces.KindAlreadyExists:
		return http.StatusConflict, kind
	default:
		return http.StatusBadGateway, kind
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
