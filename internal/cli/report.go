package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/johnqtcg/bbreport/internal/walker"
)

// RunStatus indicates the overall run outcome.
type RunStatus string

const (
	// StatusOK indicates every call and entity succeeded.
	StatusOK RunStatus = "OK"
	// StatusPartial indicates some calls or entities were dropped.
	StatusPartial RunStatus = "PARTIAL"
	// StatusAuthFailed indicates the run had no usable token.
	StatusAuthFailed RunStatus = "AUTH_FAILED"
)

// RepositoryLine is one row of the per-repository breakdown.
type RepositoryLine struct {
	Project      string
	Repository   string
	PullRequests int
	Commits      int
}

// RunSummary stores overall run counters and outputs.
type RunSummary struct {
	Workspace       string
	Status          RunStatus
	Projects        int
	Repositories    int
	PullRequests    int
	Commits         int
	FailedCalls     int
	SkippedEntities int
	DistinctPRIDs   []int
	Breakdown       []RepositoryLine
	Outputs         []string
}

// BuildSummary computes the summary of one walk and its written files.
func BuildSummary(workspace string, result *walker.Result, outputs []string) RunSummary {
	stats := result.Stats
	out := RunSummary{
		Workspace:       workspace,
		Status:          StatusOK,
		Projects:        stats.Projects,
		Repositories:    stats.Repositories,
		PullRequests:    stats.PullRequests,
		Commits:         stats.Commits,
		FailedCalls:     stats.FailedCalls,
		SkippedEntities: stats.SkippedEntities,
		Outputs:         append([]string(nil), outputs...),
	}
	if result.Aggregator != nil {
		out.DistinctPRIDs = result.Aggregator.DistinctPRIDs()
	}
	for _, r := range stats.PerRepository {
		out.Breakdown = append(out.Breakdown, RepositoryLine(r))
	}

	switch {
	case stats.AuthFailed:
		out.Status = StatusAuthFailed
	case stats.Partial():
		out.Status = StatusPartial
	}
	return out
}

// FormatSummary renders a human-readable summary with output paths.
func FormatSummary(summary RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(
		&b,
		"%s workspace=%s projects=%d repositories=%d pull_requests=%d commits=%d failed_calls=%d skipped=%d\n",
		summary.Status,
		summary.Workspace,
		summary.Projects,
		summary.Repositories,
		summary.PullRequests,
		summary.Commits,
		summary.FailedCalls,
		summary.SkippedEntities,
	)
	if len(summary.DistinctPRIDs) > 0 {
		ids := make([]string, 0, len(summary.DistinctPRIDs))
		for _, id := range summary.DistinctPRIDs {
			ids = append(ids, strconv.Itoa(id))
		}
		fmt.Fprintf(&b, "PRS ids=%s\n", strings.Join(ids, ","))
	}
	for _, path := range summary.Outputs {
		fmt.Fprintf(&b, "OUTPUT path=%s\n", path)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// RenderRepositoryTable renders the per-repository breakdown. An empty
// breakdown renders as an empty string.
func RenderRepositoryTable(summary RunSummary) (string, error) {
	if len(summary.Breakdown) == 0 {
		return "", nil
	}
	data := pterm.TableData{{"Project", "Repository", "Pull requests", "Commits"}}
	for _, line := range summary.Breakdown {
		data = append(data, []string{
			line.Project,
			line.Repository,
			strconv.Itoa(line.PullRequests),
			strconv.Itoa(line.Commits),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}
