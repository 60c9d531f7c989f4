package bitbucket

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Workspace is the root of the hierarchy.
type Workspace struct {
	Slug            string
	Name            mo.Option[string]
	UUID            mo.Option[uuid.UUID]
	ProjectsURL     mo.Option[string]
	RepositoriesURL mo.Option[string]
}

// DisplayName returns the workspace name, falling back to the slug.
func (w Workspace) DisplayName() string {
	return w.Name.OrElse(w.Slug)
}

// Project groups repositories within a workspace.
type Project struct {
	Key             string
	Name            mo.Option[string]
	UUID            mo.Option[uuid.UUID]
	Description     mo.Option[string]
	RepositoriesURL mo.Option[string]
	AvatarURL       mo.Option[string]
}

// Repository is one git repository inside a project.
type Repository struct {
	Slug     string
	Name     string
	FullName mo.Option[string]
	UUID     mo.Option[uuid.UUID]
	URL      mo.Option[string]
}

// PullRequest is one pull request of a repository.
type PullRequest struct {
	ID                    int
	Title                 mo.Option[string]
	State                 mo.Option[string]
	Description           mo.Option[string]
	CreatedOn             mo.Option[time.Time]
	UpdatedOn             mo.Option[time.Time]
	SourceBranch          mo.Option[string]
	SourceCommitHash      mo.Option[string]
	DestinationBranch     mo.Option[string]
	DestinationCommitHash mo.Option[string]
	MergeCommitHash       mo.Option[string]
	Author                mo.Option[string]
	URL                   mo.Option[string]
	CommitsURL            mo.Option[string]
	// IssueID is taken from the title, or from the source branch name.
	IssueID mo.Option[string]
}

// Commit is one commit listed under a pull request.
type Commit struct {
	Hash    string
	Message mo.Option[string]
	Author  mo.Option[string]
	Date    mo.Option[time.Time]
	// IssueID is taken from the commit message.
	IssueID mo.Option[string]
}

// PullRequestQuery filters the pull request listing server side.
type PullRequestQuery struct {
	State        string
	Sort         string
	UpdatedSince mo.Option[time.Time]
}
