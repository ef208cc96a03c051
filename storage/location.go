package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/shawnding/incubator-iceberg/interfaces"
)

var (
	errEmptyLocation = errors.New("location is empty")
	errOpaqueURI     = errors.New("location has a scheme but no '//' authority section")
	errBadAuthority  = errors.New("authority contains whitespace or control characters")
)

// ResolvedLocation is a location split into its scheme, authority and a
// backend-addressable path.
type ResolvedLocation struct {
	// Raw is the location as given by the caller.
	Raw string
	// Scheme is lower-cased; empty for bare filesystem paths.
	Scheme string
	// Authority is host[:port], bucket or mount name.
	Authority string
	// Path is cleaned and never carries the scheme or authority.
	Path string
}

// Key returns Path without its leading slash, as object stores address keys.
func (l ResolvedLocation) Key() string {
	return strings.TrimPrefix(l.Path, "/")
}

// String renders the normalized location.
func (l ResolvedLocation) String() string {
	if l.Scheme == "" {
		return l.Path
	}
	p := l.Path
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return fmt.Sprintf("%s://%s%s", l.Scheme, l.Authority, p)
}

// WithPath returns a copy of l addressing p on the same scheme and authority.
func (l ResolvedLocation) WithPath(p string) ResolvedLocation {
	l.Path = cleanPath(p)
	l.Raw = l.String()
	return l
}

// Resolve normalizes a location string.
//
// Supported forms:
//
//	scheme://authority/path   (s3://bucket/key, hdfs://nn:8020/dir/file)
//	scheme:///path            (file:///var/lib/data, ipfs:///mfs/dir)
//	scheme:/path              (file:/var/lib/data)
//	/absolute/or/relative     (bare path, empty scheme)
//	C:\windows\path           (bare path, empty scheme)
//
// Apart from the scheme and authority a location is opaque: '?', '#' and '%'
// are ordinary path bytes and nothing is unescaped. The path is only cleaned
// of duplicate slashes and dot segments.
//
// Resolve has no side effects and is idempotent: resolving String() of a
// result yields the same scheme, authority and path.
func Resolve(location string) (ResolvedLocation, error) {
	if strings.TrimSpace(location) == "" {
		return ResolvedLocation{}, interfaces.NewFailure(interfaces.KindInvalidLocation, "resolve", location, errEmptyLocation)
	}

	if isWindowsPath(location) {
		return ResolvedLocation{
			Raw:  location,
			Path: cleanPath(strings.ReplaceAll(location, `\`, "/")),
		}, nil
	}

	scheme, rest, ok := splitScheme(location)
	if !ok {
		return ResolvedLocation{Raw: location, Path: cleanPath(location)}, nil
	}

	var authority string
	switch {
	case strings.HasPrefix(rest, "//"):
		authority, rest = rest[2:], ""
		if i := strings.IndexByte(authority, '/'); i >= 0 {
			authority, rest = authority[:i], authority[i:]
		}
	case strings.HasPrefix(rest, "/"):
	default:
		return ResolvedLocation{}, interfaces.NewFailure(interfaces.KindInvalidLocation, "resolve", location, errOpaqueURI)
	}

	if strings.ContainsFunc(authority, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) {
		return ResolvedLocation{}, interfaces.NewFailure(interfaces.KindInvalidLocation, "resolve", location,
			fmt.Errorf("%w: %q", errBadAuthority, authority))
	}

	return ResolvedLocation{
		Raw:       location,
		Scheme:    strings.ToLower(scheme),
		Authority: authority,
		Path:      cleanPath(rest),
	}, nil
}

// splitScheme splits "scheme:rest". A colon only ends a scheme when it comes
// before any slash and the prefix is a valid RFC 3986 scheme; otherwise the
// location is a bare path.
func splitScheme(location string) (scheme, rest string, ok bool) {
	i := strings.IndexByte(location, ':')
	if i <= 0 || strings.IndexByte(location[:i], '/') >= 0 {
		return "", "", false
	}
	for j := 0; j < i; j++ {
		c := location[j]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return "", "", false
		}
	}
	return location[:i], location[i+1:], true
}

// cleanPath cleans p, keeping an empty path empty.
func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return cleaned
}

// isWindowsPath matches drive-letter paths such as C:\data or c:/data.
func isWindowsPath(location string) bool {
	if len(location) < 3 || location[1] != ':' {
		return false
	}
	c := location[0]
	isLetter := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
	return isLetter && (location[2] == '\\' || location[2] == '/')
}
