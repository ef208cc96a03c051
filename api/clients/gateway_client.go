package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/shawnding/incubator-iceberg/api"
	"github.com/shawnding/incubator-iceberg/interfaces"
	"github.com/shawnding/incubator-iceberg/storage"
)

// GatewayBackendName is the backend name carried by failures raised by the client.
const GatewayBackendName = "gateway"

// maxErrorBody bounds how much of an error response is decoded.
const maxErrorBody = 64 << 10

var errNoDefaultScheme = errors.New("gateway has no default scheme for bare paths")

// RemoteError is the cause recorded for a failure answered by the gateway.
type RemoteError struct {
	Status  int
	Message string
}

// Error renders the status and message.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway answered %d: %s", e.Status, e.Message)
}

// GatewayClient implements interfaces.FileIO against a remote storage
// gateway. Every location is forwarded as-is; the gateway resolves it.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
	tr         *storage.ErrorTranslator

	defaultScheme string
	backends      []api.BackendInfo
	props         interfaces.BackendProperties
}

var _ interfaces.FileIO = (*GatewayClient)(nil)

// NewGatewayClient connects to the gateway at addr and fetches its backend
// list, retrying transport failures until timeout elapses.
func NewGatewayClient(ctx context.Context, addr string, timeout time.Duration) (*GatewayClient, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid gateway address %q: missing host", addr)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &GatewayClient{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: timeout},
		tr:         storage.NewErrorTranslator(GatewayBackendName),
	}

	var listing api.BackendsResponse
	fetch := func() error {
		resp, err := c.do(ctx, http.MethodGet, api.BackendsRoute, "", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(c.failure("list backends", "", resp))
		}
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse backends response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	if err := backoff.Retry(fetch, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to list gateway backends: %w", err)
	}

	c.defaultScheme = listing.DefaultScheme
	c.backends = listing.Backends
	c.props = aggregate("gateway-"+u.Host, listing.Backends)
	return c, nil
}

// aggregate describes the gateway as a whole: it fails on deleting a missing
// object if any backend does, and overwrites only if every backend does.
func aggregate(name string, backends []api.BackendInfo) interfaces.BackendProperties {
	props := interfaces.BackendProperties{
		Name:          name,
		DeleteMissing: interfaces.DeleteMissingIgnored,
		Overwrite:     len(backends) > 0,
	}
	for _, b := range backends {
		props.Schemes = append(props.Schemes, b.Scheme)
		if b.DeleteMissing != interfaces.DeleteMissingIgnored.String() {
			props.DeleteMissing = interfaces.DeleteMissingFails
		}
		props.Overwrite = props.Overwrite && b.Overwrite
	}
	sort.Strings(props.Schemes)
	return props
}

// Backends returns the gateway's backend list as fetched on connect.
func (c *GatewayClient) Backends() []api.BackendInfo {
	return append([]api.BackendInfo(nil), c.backends...)
}

// Properties describes the gateway as a whole.
func (c *GatewayClient) Properties() interfaces.BackendProperties {
	return c.props
}

// PropertiesFor returns the properties of the remote backend serving location.
func (c *GatewayClient) PropertiesFor(location string) (interfaces.BackendProperties, error) {
	loc, err := storage.Resolve(location)
	if err != nil {
		return interfaces.BackendProperties{}, c.tr.Translate("lookup", location, err)
	}

	scheme := loc.Scheme
	if scheme == "" {
		if c.defaultScheme == "" {
			return interfaces.BackendProperties{}, c.tr.Failure(interfaces.KindUnsupportedBackend, "lookup", location, errNoDefaultScheme)
		}
		scheme = c.defaultScheme
	}

	for _, b := range c.backends {
		if b.Scheme == scheme {
			props, err := b.Properties()
			if err != nil {
				return interfaces.BackendProperties{}, c.tr.Translate("lookup", location, err)
			}
			return props, nil
		}
	}
	return interfaces.BackendProperties{}, c.tr.Failure(interfaces.KindUnsupportedBackend, "lookup", location,
		fmt.Errorf("gateway serves no %q backend", scheme))
}

// NewInputFile implements interfaces.FileIO. The download starts on the first Read.
func (c *GatewayClient) NewInputFile(ctx context.Context, location string) (interfaces.InputFile, error) {
	if _, err := storage.Resolve(location); err != nil {
		return nil, c.tr.Translate("open", location, err)
	}
	return storage.NewStreamInputFile(ctx, location, c.opener(location), c.sizer(location), c.tr), nil
}

// NewOutputFile implements interfaces.FileIO. Content is uploaded on Close.
func (c *GatewayClient) NewOutputFile(ctx context.Context, location string) (interfaces.OutputFile, error) {
	if _, err := storage.Resolve(location); err != nil {
		return nil, c.tr.Translate("create", location, err)
	}
	return storage.NewBufferedOutputFile(ctx, location, c.committer(location), c.tr), nil
}

// DeleteFile implements interfaces.FileIO.
func (c *GatewayClient) DeleteFile(ctx context.Context, location string) error {
	if _, err := storage.Resolve(location); err != nil {
		return c.tr.Translate("delete", location, err)
	}

	resp, err := c.do(ctx, http.MethodDelete, api.FileRoute, location, nil)
	if err != nil {
		return c.tr.Translate("delete", location, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return c.failure("delete", location, resp)
	}
	return nil
}

// Mkdir implements interfaces.FileIO.
func (c *GatewayClient) Mkdir(ctx context.Context, location string) (bool, error) {
	if _, err := storage.Resolve(location); err != nil {
		return false, c.tr.Translate("mkdir", location, err)
	}

	resp, err := c.do(ctx, http.MethodPost, api.DirRoute, location, nil)
	if err != nil {
		return false, c.tr.Translate("mkdir", location, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		return true, nil
	case http.StatusOK:
		return false, nil
	default:
		return false, c.failure("mkdir", location, resp)
	}
}

func (c *GatewayClient) opener(location string) func(ctx context.Context) (io.ReadCloser, error) {
	return func(ctx context.Context) (io.ReadCloser, error) {
		resp, err := c.do(ctx, http.MethodGet, api.FileRoute, location, nil)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, c.failure("read", location, resp)
		}
		return resp.Body, nil
	}
}

func (c *GatewayClient) sizer(location string) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		resp, err := c.do(ctx, http.MethodHead, api.FileRoute, location, nil)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return 0, c.failure("length", location, resp)
		}
		if resp.ContentLength >= 0 {
			return resp.ContentLength, nil
		}
		return strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	}
}

func (c *GatewayClient) committer(location string) func(ctx context.Context, data []byte) error {
	return func(ctx context.Context, data []byte) error {
		resp, err := c.do(ctx, http.MethodPut, api.FileRoute, location, bytes.NewReader(data))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusCreated {
			return c.failure("commit", location, resp)
		}
		return nil
	}
}

func (c *GatewayClient) do(ctx context.Context, method, route, location string, body io.Reader) (*http.Response, error) {
	target := c.baseURL + route
	if location != "" {
		target += "?" + url.Values{api.LocationParam: {location}}.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	return c.httpClient.Do(req)
}

// failure converts a non-success response into a failure record. The kind
// comes from the error body, then the kind header, then the status code.
func (c *GatewayClient) failure(op, location string, resp *http.Response) error {
	kind, known := interfaces.ParseErrorKind(resp.Header.Get(api.ErrorKindHeader))
	msg := http.StatusText(resp.StatusCode)

	var body api.ErrorResponse
	if resp.Request == nil || resp.Request.Method != http.MethodHead {
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
			if k, ok := interfaces.ParseErrorKind(body.Kind); ok {
				kind, known = k, true
			}
			if body.Error != "" {
				msg = body.Error
			}
		}
	}

	if !known {
		kind = kindForStatus(resp.StatusCode)
	}
	return c.tr.Failure(kind, op, location, &RemoteError{Status: resp.StatusCode, Message: msg})
}

func kindForStatus(status int) interfaces.ErrorKind {
	switch status {
	case http.StatusBadRequest:
		return interfaces.KindInvalidLocation
	case http.StatusNotFound:
		return interfaces.KindNotFound
	case http.StatusConflict:
		return interfaces.KindAlreadyExists
	default:
		return interfaces.KindIOFailure
	}
}
