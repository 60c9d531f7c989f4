package report

import (
	"slices"

	"github.com/samber/mo"
)

const (
	ColType              = "type"
	ColPRID              = "pr_id"
	ColHash              = "hash"
	ColMessage           = "message"
	ColCreated           = "created_datetime"
	ColUpdated           = "updated_datetime"
	ColProject           = "project"
	ColWorkspace         = "workspace"
	ColAuthor            = "author"
	ColRepo              = "repo"
	ColState             = "state"
	ColSourceBranch      = "source_branch"
	ColDestinationBranch = "destination_branch"
	ColJiraID            = "jira_id"
	ColIsDeployRepo      = "is_deploy_repo"
)

// PullRequestColumns is the column order of the pull request table.
var PullRequestColumns = []string{
	ColType, ColPRID, ColMessage, ColCreated, ColUpdated, ColProject, ColWorkspace,
	ColAuthor, ColRepo, ColState, ColSourceBranch, ColDestinationBranch, ColJiraID,
}

// CommitColumns is the column order of the commit table.
var CommitColumns = []string{
	ColType, ColHash, ColJiraID, ColCreated, ColMessage, ColProject, ColRepo, ColWorkspace,
	ColAuthor, ColPRID, ColSourceBranch, ColDestinationBranch, ColIsDeployRepo,
}

// Row maps a column to its cell. An absent cell is a null value.
type Row map[string]mo.Option[string]

// Cell returns the value under col; missing columns read as absent.
func (r Row) Cell(col string) mo.Option[string] {
	if v, ok := r[col]; ok {
		return v
	}
	return mo.None[string]()
}

// Table is an ordered set of rows sharing a column list.
type Table struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Aggregator collects rows in insertion order and materializes them as tables on demand.
type Aggregator struct {
	prs     []PRRow
	commits []CommitRow

	prTable     *Table
	commitTable *Table
	combined    *Table
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddPR appends a pull request row.
func (a *Aggregator) AddPR(row PRRow) {
	a.prs = append(a.prs, row)
	a.prTable = nil
	a.combined = nil
}

// AddCommit appends a commit row.
func (a *Aggregator) AddCommit(row CommitRow) {
	a.commits = append(a.commits, row)
	a.commitTable = nil
	a.combined = nil
}

// PullRequestsTable returns the pull request table, rebuilding it after any add.
func (a *Aggregator) PullRequestsTable() *Table {
	if a.prTable == nil {
		rows := make([]Row, 0, len(a.prs))
		for _, r := range a.prs {
			rows = append(rows, r.Row())
		}
		a.prTable = &Table{Columns: slices.Clone(PullRequestColumns), Rows: rows}
	}
	return a.prTable
}

// CommitsTable returns the commit table, rebuilding it after any add.
func (a *Aggregator) CommitsTable() *Table {
	if a.commitTable == nil {
		rows := make([]Row, 0, len(a.commits))
		for _, r := range a.commits {
			rows = append(rows, r.Row())
		}
		a.commitTable = &Table{Columns: slices.Clone(CommitColumns), Rows: rows}
	}
	return a.commitTable
}

// Combined unions the pull request and commit tables row-wise. Columns that
// only one row shape has are absent in the other.
func (a *Aggregator) Combined() *Table {
	if a.combined != nil {
		return a.combined
	}
	prs := a.PullRequestsTable()
	commits := a.CommitsTable()

	columns := slices.Clone(prs.Columns)
	for _, col := range commits.Columns {
		if !slices.Contains(columns, col) {
			columns = append(columns, col)
		}
	}

	rows := make([]Row, 0, len(prs.Rows)+len(commits.Rows))
	rows = append(rows, prs.Rows...)
	rows = append(rows, commits.Rows...)
	a.combined = &Table{Columns: columns, Rows: rows}
	return a.combined
}

// DistinctPRIDs returns every pull request id once, ascending.
func (a *Aggregator) DistinctPRIDs() []int {
	ids := make([]int, 0, len(a.prs))
	for _, r := range a.prs {
		ids = append(ids, r.PRID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
