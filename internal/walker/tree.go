package walker

import (
	"github.com/johnqtcg/bbreport/internal/bitbucket"
)

// WorkspaceNode owns the projects visited during a walk, indexed by key.
type WorkspaceNode struct {
	Workspace bitbucket.Workspace

	projects map[string]*ProjectNode
	order    []string
}

func newWorkspaceNode(ws bitbucket.Workspace) *WorkspaceNode {
	return &WorkspaceNode{
		Workspace: ws,
		projects:  make(map[string]*ProjectNode),
	}
}

// Projects returns the project nodes in the order they were first seen.
func (w *WorkspaceNode) Projects() []*ProjectNode {
	out := make([]*ProjectNode, 0, len(w.order))
	for _, key := range w.order {
		out = append(out, w.projects[key])
	}
	return out
}

// Project returns the cached node for key.
func (w *WorkspaceNode) Project(key string) (*ProjectNode, bool) {
	node, ok := w.projects[key]
	return node, ok
}

func (w *WorkspaceNode) addProject(p bitbucket.Project) *ProjectNode {
	if node, ok := w.projects[p.Key]; ok {
		return node
	}
	node := &ProjectNode{
		WorkspaceSlug: w.Workspace.Slug,
		Project:       p,
		byName:        make(map[string]*RepositoryNode),
	}
	w.projects[p.Key] = node
	w.order = append(w.order, p.Key)
	return node
}

// alias makes node reachable under key as well, for lookups by a key spelled
// differently from the one the server returned.
func (w *WorkspaceNode) alias(key string, node *ProjectNode) {
	if _, ok := w.projects[key]; !ok {
		w.projects[key] = node
	}
}

// ProjectNode owns its repositories. The repository list is loaded at most once.
type ProjectNode struct {
	WorkspaceSlug string
	Project       bitbucket.Project

	repositories []*RepositoryNode
	byName       map[string]*RepositoryNode
	loaded       bool
}

// DisplayName returns the project name, falling back to the key.
func (p *ProjectNode) DisplayName() string {
	return p.Project.Name.OrElse(p.Project.Key)
}

// Repositories returns the repository nodes in listing order.
func (p *ProjectNode) Repositories() []*RepositoryNode {
	return p.repositories
}

// Repository looks up a repository node by name.
func (p *ProjectNode) Repository(name string) (*RepositoryNode, bool) {
	node, ok := p.byName[name]
	return node, ok
}

func (p *ProjectNode) addRepository(r bitbucket.Repository) *RepositoryNode {
	if node, ok := p.byName[r.Name]; ok {
		return node
	}
	node := &RepositoryNode{
		ProjectKey: p.Project.Key,
		Repository: r,
	}
	p.repositories = append(p.repositories, node)
	p.byName[r.Name] = node
	return node
}

// RepositoryNode owns the pull requests listed for one repository.
type RepositoryNode struct {
	ProjectKey   string
	Repository   bitbucket.Repository
	PullRequests []*PullRequestNode
}

func (r *RepositoryNode) addPullRequest(pr bitbucket.PullRequest) *PullRequestNode {
	node := &PullRequestNode{
		RepositorySlug: r.Repository.Slug,
		PullRequest:    pr,
	}
	r.PullRequests = append(r.PullRequests, node)
	return node
}

// CommitCount sums the commits of every pull request.
func (r *RepositoryNode) CommitCount() int {
	n := 0
	for _, pr := range r.PullRequests {
		n += len(pr.Commits)
	}
	return n
}

// PullRequestNode owns the commits listed for one pull request.
type PullRequestNode struct {
	RepositorySlug string
	PullRequest    bitbucket.PullRequest
	Commits        []bitbucket.Commit
}
