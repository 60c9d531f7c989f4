package bitbucket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	defaultPullRequestSort = "-updated_on"
	defaultCommitSort      = "-updated_on"
	maxErrorBodyBytes      = 16 * 1024
)

// Client talks to the Bitbucket Cloud 2.0 REST API on behalf of one set of OAuth2 consumer credentials.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tokens     *tokenProvider
	logger     *slog.Logger
}

type pullRequestParams struct {
	State string `url:"state,omitempty"`
	Sort  string `url:"sort,omitempty"`
	Query string `url:"q,omitempty"`
}

func newRESTClient(cfg Config, tokens *tokenProvider) (*Client, error) {
	baseTransport := cfg.HTTPClient.Transport
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: tokens,
			Base:   baseTransport,
		},
		Timeout: cfg.HTTPClient.Timeout,
	}

	parsed, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse API base URL %q: %w", cfg.APIBaseURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse API base URL %q: scheme and host are required", cfg.APIBaseURL)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    parsed,
		tokens:     tokens,
		logger:     cfg.Logger,
	}, nil
}

// Authenticate acquires the bearer token used by every later request.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.tokens.Acquire(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	return nil
}

// Token returns the token currently attached to requests.
func (c *Client) Token() (*oauth2.Token, error) {
	return c.tokens.Token()
}

// Workspace fetches one workspace by slug or UUID.
func (c *Client) Workspace(ctx context.Context, id string) (Workspace, error) {
	endpoint := c.endpoint("2.0", "workspaces", workspacePathID(id))
	raw, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return Workspace{}, fmt.Errorf("get workspace %q: %w", id, err)
	}
	return decodeWorkspace(raw)
}

// Project fetches one project of a workspace by key.
func (c *Client) Project(ctx context.Context, workspaceSlug, key string) (Project, error) {
	endpoint := c.endpoint("2.0", "workspaces", workspaceSlug, "projects", key)
	raw, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return Project{}, fmt.Errorf("get project %q: %w", key, err)
	}
	return decodeProject(raw)
}

// Projects pages through a workspace's project collection.
func (c *Client) Projects(href string) *Pager[Project] {
	return newPager(c, "projects", href, decodeProject)
}

// Repositories pages through a project's repository collection.
func (c *Client) Repositories(href string) *Pager[Repository] {
	return newPager(c, "repositories", href, decodeRepository)
}

// PullRequests pages through a repository's pull requests, newest update first.
func (c *Client) PullRequests(workspaceSlug, repoSlug string, q PullRequestQuery) *Pager[PullRequest] {
	start, err := c.pullRequestsURL(workspaceSlug, repoSlug, q)
	if err != nil {
		return failedPager[PullRequest](c, "pull requests", err)
	}
	return newPager(c, "pull requests", start, decodePullRequest)
}

// Commits pages through the commits behind a pull request's commits link.
func (c *Client) Commits(href string) *Pager[Commit] {
	start, err := withQueryParam(href, "sort", defaultCommitSort)
	if err != nil {
		return failedPager[Commit](c, "commits", err)
	}
	return newPager(c, "commits", start, decodeCommit)
}

func (c *Client) pullRequestsURL(workspaceSlug, repoSlug string, q PullRequestQuery) (string, error) {
	params := pullRequestParams{
		State: q.State,
		Sort:  q.Sort,
	}
	if params.Sort == "" {
		params.Sort = defaultPullRequestSort
	}
	if since, ok := q.UpdatedSince.Get(); ok {
		params.Query = "updated_on>" + since.Format(time.RFC3339)
	}

	values, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("encode pull request query: %w", err)
	}

	u, err := url.Parse(c.endpoint("2.0", "repositories", workspaceSlug, repoSlug, "pullrequests"))
	if err != nil {
		return "", fmt.Errorf("parse pull request endpoint: %w", err)
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

func (c *Client) endpoint(segments ...string) string {
	escaped := make([]string, 0, len(segments))
	for _, s := range segments {
		escaped = append(escaped, url.PathEscape(s))
	}
	return c.baseURL.JoinPath(escaped...).String()
}

func (c *Client) getJSON(ctx context.Context, rawURL string) (json.RawMessage, error) {
	var body json.RawMessage
	err := doWithRefresh(ctx, c.refresh, func() error {
		var getErr error
		body, getErr = c.get(ctx, rawURL)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) refresh(ctx context.Context) error {
	_, err := c.tokens.Refresh(ctx)
	return err
}

func (c *Client) get(ctx context.Context, rawURL string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("GET", "url", rawURL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &statusError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// workspacePathID wraps bare UUIDs in braces as the API expects.
func workspacePathID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "{") {
		return id
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return "{" + parsed.String() + "}"
	}
	return id
}

func withQueryParam(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
