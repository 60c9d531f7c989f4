package walker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/mo"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
	"github.com/johnqtcg/bbreport/internal/report"
)

// DefaultPullRequestState is the state filter applied when none is configured.
const DefaultPullRequestState = "MERGED"

// API is the subset of the Bitbucket client the walker drives.
type API interface {
	Authenticate(ctx context.Context) error
	Workspace(ctx context.Context, id string) (bitbucket.Workspace, error)
	Project(ctx context.Context, workspaceSlug, key string) (bitbucket.Project, error)
	Projects(href string) *bitbucket.Pager[bitbucket.Project]
	Repositories(href string) *bitbucket.Pager[bitbucket.Repository]
	PullRequests(workspaceSlug, repoSlug string, q bitbucket.PullRequestQuery) *bitbucket.Pager[bitbucket.PullRequest]
	Commits(href string) *bitbucket.Pager[bitbucket.Commit]
}

// Options configures one walk. It is read-only once passed to New.
type Options struct {
	WorkspaceID      string
	ProjectKeys      []string
	DeployRepos      []string
	UpdatedSince     mo.Option[time.Time]
	RequireIssueID   bool
	PullRequestState string
}

// WithDefaults fills the pull request state filter.
func (o Options) WithDefaults() Options {
	if o.PullRequestState == "" {
		o.PullRequestState = DefaultPullRequestState
	}
	o.ProjectKeys = dedupe(o.ProjectKeys)
	o.DeployRepos = slices.Clone(o.DeployRepos)
	return o
}

// RepositoryStats counts what one repository contributed.
type RepositoryStats struct {
	Project      string
	Repository   string
	PullRequests int
	Commits      int
}

// Stats summarizes a walk.
type Stats struct {
	AuthFailed      bool
	Projects        int
	Repositories    int
	PullRequests    int
	Commits         int
	FailedCalls     int
	SkippedEntities int
	PerRepository   []RepositoryStats
}

// Partial reports whether any call or entity was dropped.
func (s Stats) Partial() bool {
	return s.FailedCalls > 0 || s.SkippedEntities > 0
}

// Result is everything a walk produced.
type Result struct {
	Workspace  *WorkspaceNode
	Aggregator *report.Aggregator
	Stats      Stats
}

// Walker visits workspace, projects, repositories, pull requests and commits depth first.
type Walker struct {
	api        API
	opts       Options
	logger     *slog.Logger
	normalizer report.Normalizer
	agg        *report.Aggregator
	stats      Stats
}

// New builds a walker. A nil logger discards output.
func New(api API, opts Options, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	opts = opts.WithDefaults()
	return &Walker{
		api:    api,
		opts:   opts,
		logger: logger,
		normalizer: report.Normalizer{
			DeployRepos:    opts.DeployRepos,
			RequireIssueID: opts.RequireIssueID,
		},
		agg: report.NewAggregator(),
	}
}

// Walk runs the traversal. Failed calls and malformed entities are logged and
// counted; the only returned error is context cancellation.
func (w *Walker) Walk(ctx context.Context) (*Result, error) {
	result := &Result{Aggregator: w.agg}

	if err := w.api.Authenticate(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return w.finish(result), ctxErr
		}
		w.stats.AuthFailed = true
		w.logger.Error("authentication failed, continuing without a token", "error", err)
	}

	ws, err := w.api.Workspace(ctx, w.opts.WorkspaceID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return w.finish(result), ctxErr
		}
		w.callFailed("workspace", err, "workspace_id", w.opts.WorkspaceID)
		return w.finish(result), nil
	}
	result.Workspace = newWorkspaceNode(ws)
	w.logger.Info("walking workspace", "workspace", ws.Slug)

	for _, project := range w.projects(ctx, result.Workspace) {
		if err := ctx.Err(); err != nil {
			return w.finish(result), err
		}
		w.walkProject(ctx, result.Workspace, project)
	}
	return w.finish(result), ctx.Err()
}

// Project resolves key with a direct lookup, caching the node on the workspace.
func (w *Walker) Project(ctx context.Context, ws *WorkspaceNode, key string) (*ProjectNode, error) {
	if node, ok := ws.Project(key); ok {
		return node, nil
	}
	p, err := w.api.Project(ctx, ws.Workspace.Slug, key)
	if err != nil {
		return nil, err
	}
	node := ws.addProject(p)
	ws.alias(key, node)
	return node, nil
}

func (w *Walker) projects(ctx context.Context, ws *WorkspaceNode) []*ProjectNode {
	if len(w.opts.ProjectKeys) > 0 {
		nodes := make([]*ProjectNode, 0, len(w.opts.ProjectKeys))
		seen := make(map[*ProjectNode]struct{}, len(w.opts.ProjectKeys))
		for _, key := range w.opts.ProjectKeys {
			node, err := w.Project(ctx, ws, key)
			if err != nil {
				w.callFailed("project", err, "project", key)
				continue
			}
			if _, dup := seen[node]; dup {
				w.logger.Debug("project key resolves to a project already walked", "project", key, "resolved", node.Project.Key)
				continue
			}
			seen[node] = struct{}{}
			nodes = append(nodes, node)
		}
		return nodes
	}

	href, ok := ws.Workspace.ProjectsURL.Get()
	if !ok {
		w.logger.Warn("workspace has no projects link", "workspace", ws.Workspace.Slug)
		return nil
	}
	pager := w.api.Projects(href)
	for p, err := range pager.All(ctx) {
		if err != nil {
			w.entitySkipped(err)
			continue
		}
		ws.addProject(p)
	}
	if err := pager.Err(); err != nil {
		w.callFailed("projects", err, "workspace", ws.Workspace.Slug)
	}
	return ws.Projects()
}

func (w *Walker) walkProject(ctx context.Context, ws *WorkspaceNode, project *ProjectNode) {
	w.stats.Projects++
	w.loadRepositories(ctx, project)

	for _, repo := range project.Repositories() {
		if ctx.Err() != nil {
			return
		}
		lineage := report.Lineage{
			Workspace:  ws.Workspace.DisplayName(),
			Project:    project.DisplayName(),
			Repository: repo.Repository.Name,
		}
		w.walkRepository(ctx, ws, lineage, repo)
	}
}

func (w *Walker) loadRepositories(ctx context.Context, project *ProjectNode) {
	if project.loaded {
		return
	}
	project.loaded = true

	href, ok := project.Project.RepositoriesURL.Get()
	if !ok {
		w.logger.Warn("project has no repositories link", "project", project.Project.Key)
		return
	}
	pager := w.api.Repositories(href)
	for r, err := range pager.All(ctx) {
		if err != nil {
			w.entitySkipped(err)
			continue
		}
		project.addRepository(r)
	}
	if err := pager.Err(); err != nil {
		w.callFailed("repositories", err, "project", project.Project.Key)
	}
}

func (w *Walker) walkRepository(ctx context.Context, ws *WorkspaceNode, lineage report.Lineage, repo *RepositoryNode) {
	w.stats.Repositories++
	query := bitbucket.PullRequestQuery{
		State:        w.opts.PullRequestState,
		UpdatedSince: w.opts.UpdatedSince,
	}

	pager := w.api.PullRequests(ws.Workspace.Slug, repo.Repository.Slug, query)
	for pr, err := range pager.All(ctx) {
		if err != nil {
			w.entitySkipped(err)
			continue
		}
		node := repo.addPullRequest(pr)
		w.agg.AddPR(w.normalizer.PullRequest(lineage, pr))
		w.stats.PullRequests++
		w.walkCommits(ctx, lineage, node)
	}
	if err := pager.Err(); err != nil {
		w.callFailed("pull requests", err, "repository", repo.Repository.Slug)
	}

	w.stats.PerRepository = append(w.stats.PerRepository, RepositoryStats{
		Project:      lineage.Project,
		Repository:   lineage.Repository,
		PullRequests: len(repo.PullRequests),
		Commits:      repo.CommitCount(),
	})
}

func (w *Walker) walkCommits(ctx context.Context, lineage report.Lineage, node *PullRequestNode) {
	href, ok := node.PullRequest.CommitsURL.Get()
	if !ok {
		w.logger.Debug("pull request has no commits link", "pr_id", node.PullRequest.ID)
		return
	}

	pager := w.api.Commits(href)
	for c, err := range pager.All(ctx) {
		if err != nil {
			w.entitySkipped(err)
			continue
		}
		node.Commits = append(node.Commits, c)
		w.agg.AddCommit(w.normalizer.Commit(lineage, node.PullRequest, c))
		w.stats.Commits++
	}
	if err := pager.Err(); err != nil {
		w.callFailed("commits", err, "pr_id", node.PullRequest.ID)
	}
}

func (w *Walker) callFailed(what string, err error, attrs ...any) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	w.stats.FailedCalls++
	args := append([]any{"what", what, "error", err}, attrs...)
	if status, ok := bitbucket.StatusCode(err); ok {
		args = append(args, "status", status)
	}
	w.logger.Warn("request failed, treating as empty", args...)
}

func (w *Walker) entitySkipped(err error) {
	w.stats.SkippedEntities++
	args := []any{"error", err}
	var dErr *bitbucket.DecodeError
	if errors.As(err, &dErr) {
		args = append(args, "entity", dErr.Entity, "payload", string(dErr.Payload))
	}
	w.logger.Warn("skipping malformed entity", args...)
}

func (w *Walker) finish(result *Result) *Result {
	result.Stats = w.stats
	result.Stats.PerRepository = slices.Clone(w.stats.PerRepository)
	return result
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// String renders the stats on one line for logs.
func (s Stats) String() string {
	return fmt.Sprintf("projects=%d repositories=%d pull_requests=%d commits=%d failed_calls=%d skipped=%d",
		s.Projects, s.Repositories, s.PullRequests, s.Commits, s.FailedCalls, s.SkippedEntities)
}
