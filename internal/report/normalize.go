package report

import (
	"slices"
	"strconv"
	"time"

	"github.com/samber/mo"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
)

// DateTimeLayout is the display format for every timestamp cell. The source
// offset is kept but not printed.
const DateTimeLayout = "2006-01-02 15:04:05"

const (
	TypePullRequest = "PR"
	TypeCommit      = "Commit"
)

// Lineage names the ancestors a row is reported under.
type Lineage struct {
	Workspace  string
	Project    string
	Repository string
}

// PRRow is the flat record for one pull request.
type PRRow struct {
	PRID              int
	Message           mo.Option[string]
	Created           mo.Option[string]
	Updated           mo.Option[string]
	Project           string
	Workspace         string
	Author            mo.Option[string]
	Repo              string
	State             mo.Option[string]
	SourceBranch      mo.Option[string]
	DestinationBranch mo.Option[string]
	JiraID            mo.Option[string]
}

// CommitRow is the flat record for one commit of a pull request.
type CommitRow struct {
	Hash              string
	JiraID            mo.Option[string]
	Created           mo.Option[string]
	Message           mo.Option[string]
	Project           string
	Repo              string
	Workspace         string
	Author            mo.Option[string]
	PRID              int
	SourceBranch      mo.Option[string]
	DestinationBranch mo.Option[string]
	IsDeployRepo      bool
}

// Normalizer turns decoded entities into rows.
type Normalizer struct {
	DeployRepos    []string
	RequireIssueID bool
}

// PullRequest flattens pr. The issue ID is always reported for pull requests.
func (n Normalizer) PullRequest(l Lineage, pr bitbucket.PullRequest) PRRow {
	return PRRow{
		PRID:              pr.ID,
		Message:           pr.Title,
		Created:           FormatTime(pr.CreatedOn),
		Updated:           FormatTime(pr.UpdatedOn),
		Project:           l.Project,
		Workspace:         l.Workspace,
		Author:            pr.Author,
		Repo:              l.Repository,
		State:             pr.State,
		SourceBranch:      pr.SourceBranch,
		DestinationBranch: pr.DestinationBranch,
		JiraID:            pr.IssueID,
	}
}

// Commit flattens c, which was listed under pr. The commit issue ID is only
// reported when RequireIssueID is set.
func (n Normalizer) Commit(l Lineage, pr bitbucket.PullRequest, c bitbucket.Commit) CommitRow {
	row := CommitRow{
		Hash:              c.Hash,
		Created:           FormatTime(c.Date),
		Message:           c.Message,
		Project:           l.Project,
		Repo:              l.Repository,
		Workspace:         l.Workspace,
		Author:            c.Author,
		PRID:              pr.ID,
		SourceBranch:      pr.SourceBranch,
		DestinationBranch: pr.DestinationBranch,
		IsDeployRepo:      n.IsDeployRepo(l.Repository),
	}
	if n.RequireIssueID {
		row.JiraID = c.IssueID
	}
	return row
}

// IsDeployRepo reports whether the repository name is in the deploy list.
func (n Normalizer) IsDeployRepo(repo string) bool {
	return slices.Contains(n.DeployRepos, repo)
}

// FormatTime renders ts in DateTimeLayout, or absent.
func FormatTime(ts mo.Option[time.Time]) mo.Option[string] {
	t, ok := ts.Get()
	if !ok {
		return mo.None[string]()
	}
	return mo.Some(t.Format(DateTimeLayout))
}

// Row returns the PR row keyed by column name.
func (r PRRow) Row() Row {
	return Row{
		ColType:              mo.Some(TypePullRequest),
		ColPRID:              mo.Some(strconv.Itoa(r.PRID)),
		ColMessage:           r.Message,
		ColCreated:           r.Created,
		ColUpdated:           r.Updated,
		ColProject:           mo.Some(r.Project),
		ColWorkspace:         mo.Some(r.Workspace),
		ColAuthor:            r.Author,
		ColRepo:              mo.Some(r.Repo),
		ColState:             r.State,
		ColSourceBranch:      r.SourceBranch,
		ColDestinationBranch: r.DestinationBranch,
		ColJiraID:            r.JiraID,
	}
}

// Row returns the commit row keyed by column name.
func (r CommitRow) Row() Row {
	return Row{
		ColType:              mo.Some(TypeCommit),
		ColHash:              mo.Some(r.Hash),
		ColJiraID:            r.JiraID,
		ColCreated:           r.Created,
		ColMessage:           r.Message,
		ColProject:           mo.Some(r.Project),
		ColRepo:              mo.Some(r.Repo),
		ColWorkspace:         mo.Some(r.Workspace),
		ColAuthor:            r.Author,
		ColPRID:              mo.Some(strconv.Itoa(r.PRID)),
		ColSourceBranch:      r.SourceBranch,
		ColDestinationBranch: r.DestinationBranch,
		ColIsDeployRepo:      mo.Some(strconv.FormatBool(r.IsDeployRepo)),
	}
}
