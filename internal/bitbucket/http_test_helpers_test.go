package bitbucket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testAPIBaseURL = "https://api.test/"
	testTokenURL   = "https://auth.test/site/oauth2/access_token"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestHTTPClient(fn roundTripFunc) *http.Client {
	return &http.Client{
		Transport: fn,
	}
}

func jsonHTTPResponse(statusCode int, payload any) (*http.Response, error) {
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return nil, err
	}
	return &http.Response{
		StatusCode: statusCode,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body: io.NopCloser(buf),
	}, nil
}

func textHTTPResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Header: http.Header{
			"Content-Type": []string{"application/json"},
		},
		Body: io.NopCloser(strings.NewReader(body)),
	}
}

func mustJSONResponse(t *testing.T, statusCode int, payload any) *http.Response {
	t.Helper()
	resp, err := jsonHTTPResponse(statusCode, payload)
	require.NoError(t, err, "build json response")
	return resp
}

func notFoundResponse(path string) *http.Response {
	return textHTTPResponse(http.StatusNotFound, fmt.Sprintf(`{"type":"error","error":{"message":"not found: %s"}}`, path))
}

func tokenBody(access, refresh string) map[string]any {
	return map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_in":    7200,
		"token_type":    "bearer",
		"scopes":        "pullrequest project repository",
	}
}

func isTokenRequest(r *http.Request) bool {
	return r.URL.Host == "auth.test" && r.URL.Path == "/site/oauth2/access_token"
}

func grantType(t *testing.T, r *http.Request) string {
	t.Helper()
	require.NoError(t, r.ParseForm(), "parse token request form")
	return r.PostForm.Get("grant_type")
}

func newTestClient(t *testing.T, cfg Config, fn roundTripFunc) *Client {
	t.Helper()
	if cfg.ClientKey == "" {
		cfg.ClientKey = "key"
		cfg.ClientSecret = "secret"
	}
	cfg.HTTPClient = newTestHTTPClient(fn)
	cfg.APIBaseURL = testAPIBaseURL
	cfg.TokenURL = testTokenURL

	client, err := NewClient(cfg)
	require.NoError(t, err, "NewClient")
	return client
}

// newAuthenticatedClient serves a fixed token and delegates every API call to api.
func newAuthenticatedClient(t *testing.T, api roundTripFunc) *Client {
	t.Helper()
	client := newTestClient(t, Config{}, func(r *http.Request) (*http.Response, error) {
		if isTokenRequest(r) {
			return mustJSONResponse(t, http.StatusOK, tokenBody("token-123", "refresh-123")), nil
		}
		return api(r)
	})
	require.NoError(t, client.Authenticate(context.Background()))
	return client
}

func page(values []map[string]any, next string) map[string]any {
	body := map[string]any{
		"pagelen": len(values),
		"values":  values,
	}
	if next != "" {
		body["next"] = next
	}
	return body
}
