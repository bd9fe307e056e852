package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// identityLength is the number of hex characters kept from the digest.
const identityLength = 32

// Request describes one upstream fetch.
type Request struct {
	Method string      // Defaults to GET
	URL    string      // http, https or file
	Header http.Header // Sent as-is; validators are added by the cache
	Vary   []string    // Header names that take part in the identity
	Source string      // Reported in errors and metrics
}

// Validators are the conditional-request tokens of a stored response.
type Validators struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// IsZero reports whether neither validator is set.
func (v Validators) IsZero() bool {
	return v.ETag == "" && v.LastModified == ""
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Identity returns the stable cache key of r: a SHA-256 over the method,
// scheme, host, path, sorted query parameters and the listed vary headers.
// Two requests that differ only in query parameter order share an identity.
func (r Request) Identity() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(r.method())
	write(strings.ToLower(u.Scheme))
	write(strings.ToLower(u.Host))
	write(u.EscapedPath())
	write(u.Query().Encode())

	vary := slices.Clone(r.Vary)
	for i := range vary {
		vary[i] = http.CanonicalHeaderKey(vary[i])
	}
	slices.Sort(vary)
	for _, name := range slices.Compact(vary) {
		write(name + "=" + strings.Join(r.Header.Values(name), ","))
	}

	return hex.EncodeToString(h.Sum(nil))[:identityLength], nil
}
