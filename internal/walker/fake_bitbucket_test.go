package walker

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
)

const (
	apiBase  = "https://api.test/"
	tokenURL = "https://auth.test/site/oauth2/access_token"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// fakeBitbucket serves canned JSON bodies keyed by request path.
type fakeBitbucket struct {
	t *testing.T

	mu         sync.Mutex
	routes     map[string]any
	calls      map[string]int
	queries    map[string][]string
	tokenCode  int
	tokenCalls int
}

func newFakeBitbucket(t *testing.T) *fakeBitbucket {
	t.Helper()
	return &fakeBitbucket{
		t:         t,
		routes:    make(map[string]any),
		calls:     make(map[string]int),
		queries:   make(map[string][]string),
		tokenCode: http.StatusOK,
	}
}

func (f *fakeBitbucket) handle(path string, body any) {
	f.routes[path] = body
}

func (f *fakeBitbucket) callCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakeBitbucket) roundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Host == "auth.test" {
		f.tokenCalls++
		if f.tokenCode != http.StatusOK {
			return respond(f.t, f.tokenCode, map[string]any{"error": "server_error"}), nil
		}
		return respond(f.t, http.StatusOK, map[string]any{
			"access_token":  "token",
			"refresh_token": "refresh",
			"token_type":    "bearer",
			"expires_in":    7200,
		}), nil
	}

	f.calls[r.URL.Path]++
	f.queries[r.URL.Path] = append(f.queries[r.URL.Path], r.URL.RawQuery)
	body, ok := f.routes[r.URL.Path]
	if !ok {
		return respond(f.t, http.StatusNotFound, map[string]any{"type": "error"}), nil
	}
	if raw, ok := body.(string); ok {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(raw)),
		}, nil
	}
	return respond(f.t, http.StatusOK, body), nil
}

func (f *fakeBitbucket) client() *bitbucket.Client {
	f.t.Helper()
	client, err := bitbucket.NewClient(bitbucket.Config{
		ClientKey:    "key",
		ClientSecret: "secret",
		HTTPClient:   &http.Client{Transport: roundTripFunc(f.roundTrip)},
		APIBaseURL:   apiBase,
		TokenURL:     tokenURL,
	})
	require.NoError(f.t, err)
	return client
}

func respond(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	require.NoError(t, json.NewEncoder(buf).Encode(payload))
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(buf),
	}
}

func page(values ...map[string]any) map[string]any {
	if values == nil {
		values = []map[string]any{}
	}
	return map[string]any{"pagelen": len(values), "values": values}
}

func href(path string) map[string]any {
	return map[string]any{"href": apiBase + strings.TrimPrefix(path, "/")}
}

// seedWorkspace registers one project with one repository and two merged pull
// requests; PR 1 has a single commit and PR 2 has none.
func seedWorkspace(f *fakeBitbucket) {
	f.handle("/2.0/workspaces/acme", map[string]any{
		"slug": "acme",
		"name": "Acme",
		"links": map[string]any{
			"projects":     href("/2.0/workspaces/acme/projects"),
			"repositories": href("/2.0/repositories/acme"),
		},
	})
	project := map[string]any{
		"key":  "PROJ",
		"name": "Payments",
		"links": map[string]any{
			"repositories": href("/2.0/repositories/acme"),
		},
	}
	f.handle("/2.0/workspaces/acme/projects", page(project))
	f.handle("/2.0/workspaces/acme/projects/PROJ", project)
	f.handle("/2.0/repositories/acme", page(map[string]any{"slug": "web-app", "name": "web-app"}))
	f.handle("/2.0/repositories/acme/web-app/pullrequests", page(
		map[string]any{
			"id":          1,
			"title":       "PROJ-1 add checkout",
			"state":       "MERGED",
			"created_on":  "2024-02-01T10:00:00+00:00",
			"updated_on":  "2024-02-02T10:00:00+00:00",
			"author":      map[string]any{"display_name": "Ada"},
			"source":      map[string]any{"branch": map[string]any{"name": "PROJ-1-checkout"}},
			"destination": map[string]any{"branch": map[string]any{"name": "main"}},
			"links": map[string]any{
				"commits": href("/2.0/repositories/acme/web-app/pullrequests/1/commits"),
			},
		},
		map[string]any{
			"id":    2,
			"title": "chore: bump deps",
			"state": "MERGED",
			"source": map[string]any{"branch": map[string]any{"name": "PROJ-2-deps"}},
			"links": map[string]any{
				"commits": href("/2.0/repositories/acme/web-app/pullrequests/2/commits"),
			},
		},
	))
	f.handle("/2.0/repositories/acme/web-app/pullrequests/1/commits", page(map[string]any{
		"hash":    "c0ffee",
		"message": "PROJ-1 wire checkout",
		"date":    "2024-02-01T09:00:00+00:00",
		"author":  map[string]any{"raw": "Ada <ada@example.com>"},
	}))
	f.handle("/2.0/repositories/acme/web-app/pullrequests/2/commits", page())
}
