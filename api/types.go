package api

import (
	"github.com/shawnding/incubator-iceberg/interfaces"
)

// Gateway routes. Every file and directory route takes the target in the
// LocationParam query parameter.
const (
	FileRoute     = "/api/v1/file"
	DirRoute      = "/api/v1/dir"
	BackendsRoute = "/api/v1/backends"

	LocationParam = "location"

	// ErrorKindHeader carries the failure kind, including on HEAD responses
	// which have no body.
	ErrorKindHeader = "X-Fileio-Error-Kind"
)

// ErrorResponse is the JSON body of every failed request. Kind is the
// failure kind name, such as "NotFound".
type ErrorResponse struct {
	Kind     string `json:"kind"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error"`
}

// WriteResponse is the JSON body of a successful PUT.
type WriteResponse struct {
	Location string `json:"location"`
	Size     int64  `json:"size"`
}

// MkdirResponse is the JSON body of a successful directory creation request.
type MkdirResponse struct {
	Location string `json:"location"`
	Created  bool   `json:"created"`
}

// BackendInfo describes the backend serving one scheme.
type BackendInfo struct {
	Scheme        string `json:"scheme"`
	Name          string `json:"name"`
	DeleteMissing string `json:"delete_missing"`
	Overwrite     bool   `json:"overwrite"`
	Default       bool   `json:"default,omitempty"`
}

// BackendsResponse is the JSON body of GET BackendsRoute.
type BackendsResponse struct {
	DefaultScheme string        `json:"default_scheme"`
	Backends      []BackendInfo `json:"backends"`
}

// NewBackendInfo describes props as served under scheme.
func NewBackendInfo(scheme string, isDefault bool, props interfaces.BackendProperties) BackendInfo {
	return BackendInfo{
		Scheme:        scheme,
		Name:          props.Name,
		DeleteMissing: props.DeleteMissing.String(),
		Overwrite:     props.Overwrite,
		Default:       isDefault,
	}
}

// Properties converts the description back into backend properties.
func (b BackendInfo) Properties() (interfaces.BackendProperties, error) {
	policy, err := interfaces.ParseDeleteMissingPolicy(b.DeleteMissing)
	if err != nil {
		return interfaces.BackendProperties{}, err
	}
	return interfaces.BackendProperties{
		Name:          b.Name,
		Schemes:       []string{b.Scheme},
		DeleteMissing: policy,
		Overwrite:     b.Overwrite,
	}, nil
}
