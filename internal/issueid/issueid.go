// Package issueid extracts issue-tracker keys such as PROJ-123 from free text.
package issueid

import (
	"regexp"
	"strings"

	"github.com/samber/mo"
)

var pattern = regexp.MustCompile(`[A-Z0-9]+-[0-9]+`)

// Extract returns the first issue key found in text.
func Extract(text string) mo.Option[string] {
	if text == "" {
		return mo.None[string]()
	}
	match := pattern.FindString(text)
	return mo.EmptyableToOption(match)
}

// FromBranch matches branch names following the <KEY>-<NUMBER>-description convention.
// Only the first two dash-separated segments are considered.
func FromBranch(branch string) mo.Option[string] {
	segments := strings.SplitN(branch, "-", 3)
	if len(segments) < 2 {
		return mo.None[string]()
	}
	return Extract(segments[0] + "-" + segments[1])
}

// ForPullRequest prefers a key in the title and falls back to the source branch name.
func ForPullRequest(title, sourceBranch mo.Option[string]) mo.Option[string] {
	if t, ok := title.Get(); ok {
		if id, found := Extract(t).Get(); found {
			return mo.Some(id)
		}
	}
	if b, ok := sourceBranch.Get(); ok {
		return FromBranch(b)
	}
	return mo.None[string]()
}
