package cache

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(t *testing.T, r Request) string {
	t.Helper()
	id, err := r.Identity()
	require.NoError(t, err)
	return id
}

func TestIdentityIsStable(t *testing.T) {
	a := identity(t, Request{URL: "https://api.openaire.eu/search/projects?page=1&size=100"})
	b := identity(t, Request{URL: "https://API.openaire.eu/search/projects?size=100&page=1"})
	c := identity(t, Request{Method: "get", URL: "HTTPS://api.openaire.eu/search/projects?page=1&size=100"})

	assert.Len(t, a, identityLength)
	assert.Equal(t, a, b)
	assert.Equal(t, a, c)
}

func TestIdentityDistinguishes(t *testing.T) {
	base := Request{URL: "https://gepris.dfg.de/gepris/projekt/123"}
	ids := map[string]string{
		"base":   identity(t, base),
		"path":   identity(t, Request{URL: "https://gepris.dfg.de/gepris/projekt/124"}),
		"query":  identity(t, Request{URL: "https://gepris.dfg.de/gepris/projekt/123?language=en"}),
		"method": identity(t, Request{Method: http.MethodPost, URL: base.URL}),
		"scheme": identity(t, Request{URL: "http://gepris.dfg.de/gepris/projekt/123"}),
	}
	seen := make(map[string]string)
	for name, id := range ids {
		if other, dup := seen[id]; dup {
			t.Fatalf("%s and %s share identity %s", name, other, id)
		}
		seen[id] = name
	}
}

func TestIdentityVaryHeaders(t *testing.T) {
	en := Request{
		URL:    "https://gepris.dfg.de/gepris/projekt/123",
		Header: http.Header{"Accept-Language": {"en"}},
		Vary:   []string{"accept-language"},
	}
	de := Request{
		URL:    en.URL,
		Header: http.Header{"Accept-Language": {"de"}},
		Vary:   []string{"Accept-Language"},
	}
	unlisted := Request{
		URL:    en.URL,
		Header: http.Header{"Accept-Language": {"de"}},
	}

	assert.NotEqual(t, identity(t, en), identity(t, de))
	assert.Equal(t, identity(t, unlisted), identity(t, Request{URL: en.URL}))
}

func TestIdentityInvalidURL(t *testing.T) {
	_, err := Request{URL: "://bad"}.Identity()
	assert.Error(t, err)
}

func TestValidatorsIsZero(t *testing.T) {
	assert.True(t, Validators{}.IsZero())
	assert.False(t, Validators{ETag: `"x"`}.IsZero())
	assert.False(t, Validators{LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}.IsZero())
}
