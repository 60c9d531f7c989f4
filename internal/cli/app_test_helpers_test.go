package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
	"github.com/johnqtcg/bbreport/internal/config"
	"github.com/johnqtcg/bbreport/internal/export"
	"github.com/johnqtcg/bbreport/internal/walker"
)

type fakeLoader struct {
	cfg     config.Config
	err     error
	gotArgs []string
}

func (f *fakeLoader) Load(args []string) (config.Config, error) {
	f.gotArgs = append([]string(nil), args...)
	if f.err != nil {
		return config.Config{}, f.err
	}
	return f.cfg, nil
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// fakeClientFactory builds a real client whose transport serves routes by path.
type fakeClientFactory struct {
	t         *testing.T
	routes    map[string]any
	tokenCode int
	err       error
	gotCfg    config.Config
}

func (f *fakeClientFactory) New(cfg config.Config, logger *slog.Logger) (walker.API, error) {
	f.gotCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	client, err := bitbucket.NewClient(bitbucket.Config{
		ClientKey:    cfg.ClientKey,
		ClientSecret: cfg.ClientSecret,
		HTTPClient:   &http.Client{Transport: roundTripFunc(f.roundTrip)},
		APIBaseURL:   "https://api.test/",
		TokenURL:     "https://auth.test/site/oauth2/access_token",
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (f *fakeClientFactory) roundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Host == "auth.test" {
		if f.tokenCode != 0 && f.tokenCode != http.StatusOK {
			return jsonResponse(f.t, f.tokenCode, map[string]any{"error": "invalid_client"}), nil
		}
		return jsonResponse(f.t, http.StatusOK, map[string]any{"access_token": "token", "refresh_token": "refresh", "token_type": "bearer"}), nil
	}
	body, ok := f.routes[r.URL.Path]
	if !ok {
		return jsonResponse(f.t, http.StatusNotFound, map[string]any{"type": "error"}), nil
	}
	return jsonResponse(f.t, http.StatusOK, body), nil
}

func jsonResponse(t *testing.T, status int, payload any) *http.Response {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(buf),
	}
}

func link(path string) map[string]any {
	return map[string]any{"href": "https://api.test/" + strings.TrimPrefix(path, "/")}
}

// smallWorkspace is one project, one repository and one pull request with one commit.
func smallWorkspace() map[string]any {
	project := map[string]any{
		"key":   "PAY",
		"name":  "Payments",
		"links": map[string]any{"repositories": link("/2.0/repositories/acme")},
	}
	return map[string]any{
		"/2.0/workspaces/acme": map[string]any{
			"slug":  "acme",
			"name":  "Acme",
			"links": map[string]any{"projects": link("/2.0/workspaces/acme/projects")},
		},
		"/2.0/workspaces/acme/projects":     map[string]any{"values": []any{project}},
		"/2.0/workspaces/acme/projects/PAY": project,
		"/2.0/repositories/acme": map[string]any{"values": []any{
			map[string]any{"slug": "billing", "name": "billing"},
		}},
		"/2.0/repositories/acme/billing/pullrequests": map[string]any{"values": []any{
			map[string]any{
				"id":    7,
				"title": "PAY-7 invoices",
				"state": "MERGED",
				"links": map[string]any{"commits": link("/2.0/repositories/acme/billing/pullrequests/7/commits")},
			},
		}},
		"/2.0/repositories/acme/billing/pullrequests/7/commits": map[string]any{"values": []any{
			map[string]any{"hash": "abc123", "message": "PAY-7 add invoice"},
		}},
	}
}

type fakeWriter struct {
	err     error
	gotOpts export.Options
	got     []export.Target
}

func (f *fakeWriter) Write(opts export.Options, targets []export.Target) ([]string, error) {
	f.gotOpts = opts
	f.got = append([]export.Target(nil), targets...)
	if f.err != nil {
		return nil, f.err
	}
	var paths []string
	for _, t := range targets {
		if t.Name != "" {
			paths = append(paths, opts.Dir+"/"+t.Name)
		}
	}
	return paths, nil
}

func (f *fakeWriter) target(name string) (export.Target, error) {
	for _, t := range f.got {
		if t.Name == name {
			return t, nil
		}
	}
	return export.Target{}, errors.New("target not written: " + name)
}
