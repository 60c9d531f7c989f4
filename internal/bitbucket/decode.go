package bitbucket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/johnqtcg/bbreport/internal/issueid"
)

// MissingFieldError reports a required field absent from a payload.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// DecodeError wraps an entity that could not be constructed from its payload.
type DecodeError struct {
	Entity  string
	Payload json.RawMessage
	Err     error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("decode %s: %v", e.Entity, e.Err)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// object is a loosely typed view over one JSON object. Lookups never fail; a
// missing key or a value of the wrong type reads as absent.
type object map[string]json.RawMessage

func parseObject(raw json.RawMessage) (object, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	var obj object
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, fmt.Errorf("parse JSON object: %w", err)
	}
	return obj, nil
}

func (o object) lookup(path ...string) (json.RawMessage, bool) {
	current := o
	for i, key := range path {
		raw, ok := current[key]
		if !ok {
			return nil, false
		}
		if i == len(path)-1 {
			if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
				return nil, false
			}
			return raw, true
		}
		next, err := parseObject(raw)
		if err != nil {
			return nil, false
		}
		current = next
	}
	return nil, false
}

func (o object) str(path ...string) mo.Option[string] {
	raw, ok := o.lookup(path...)
	if !ok {
		return mo.None[string]()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return mo.None[string]()
	}
	return mo.Some(s)
}

func (o object) integer(path ...string) mo.Option[int] {
	raw, ok := o.lookup(path...)
	if !ok {
		return mo.None[int]()
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return mo.None[int]()
	}
	return mo.Some(n)
}

func (o object) uuid(path ...string) mo.Option[uuid.UUID] {
	s, ok := o.str(path...).Get()
	if !ok {
		return mo.None[uuid.UUID]()
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return mo.None[uuid.UUID]()
	}
	return mo.Some(id)
}

func (o object) timestamp(path ...string) mo.Option[time.Time] {
	s, ok := o.str(path...).Get()
	if !ok {
		return mo.None[time.Time]()
	}
	ts, err := ParseTimestamp(s)
	if err != nil {
		return mo.None[time.Time]()
	}
	return mo.Some(ts)
}

func (o object) requiredString(field string) (string, error) {
	s, ok := o.str(field).Get()
	if !ok || strings.TrimSpace(s) == "" {
		return "", &MissingFieldError{Field: field}
	}
	return s, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
}

// ParseTimestamp parses an ISO-8601 timestamp carrying a UTC offset.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, lastErr)
}

func decodeFailure(entity string, raw json.RawMessage, err error) error {
	return &DecodeError{Entity: entity, Payload: raw, Err: err}
}

func decodeWorkspace(raw json.RawMessage) (Workspace, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return Workspace{}, decodeFailure("workspace", raw, err)
	}
	slug, err := obj.requiredString("slug")
	if err != nil {
		return Workspace{}, decodeFailure("workspace", raw, err)
	}
	return Workspace{
		Slug:            slug,
		Name:            obj.str("name"),
		UUID:            obj.uuid("uuid"),
		ProjectsURL:     obj.str("links", "projects", "href"),
		RepositoriesURL: obj.str("links", "repositories", "href"),
	}, nil
}

func decodeProject(raw json.RawMessage) (Project, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return Project{}, decodeFailure("project", raw, err)
	}
	key, err := obj.requiredString("key")
	if err != nil {
		return Project{}, decodeFailure("project", raw, err)
	}
	return Project{
		Key:             key,
		Name:            obj.str("name"),
		UUID:            obj.uuid("uuid"),
		Description:     obj.str("description"),
		RepositoriesURL: obj.str("links", "repositories", "href"),
		AvatarURL:       obj.str("links", "avatar", "href"),
	}, nil
}

func decodeRepository(raw json.RawMessage) (Repository, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return Repository{}, decodeFailure("repository", raw, err)
	}
	slug, err := obj.requiredString("slug")
	if err != nil {
		return Repository{}, decodeFailure("repository", raw, err)
	}
	return Repository{
		Slug:     slug,
		Name:     obj.str("name").OrElse(slug),
		FullName: obj.str("full_name"),
		UUID:     obj.uuid("uuid"),
		URL:      obj.str("links", "self", "href"),
	}, nil
}

func decodePullRequest(raw json.RawMessage) (PullRequest, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return PullRequest{}, decodeFailure("pull request", raw, err)
	}
	id, ok := obj.integer("id").Get()
	if !ok {
		return PullRequest{}, decodeFailure("pull request", raw, &MissingFieldError{Field: "id"})
	}

	pr := PullRequest{
		ID:                    id,
		Title:                 obj.str("title"),
		State:                 obj.str("state"),
		Description:           obj.str("description"),
		CreatedOn:             obj.timestamp("created_on"),
		UpdatedOn:             obj.timestamp("updated_on"),
		SourceBranch:          obj.str("source", "branch", "name"),
		SourceCommitHash:      obj.str("source", "commit", "hash"),
		DestinationBranch:     obj.str("destination", "branch", "name"),
		DestinationCommitHash: obj.str("destination", "commit", "hash"),
		MergeCommitHash:       obj.str("merge_commit", "hash"),
		Author:                obj.str("author", "display_name"),
		URL:                   obj.str("links", "self", "href"),
		CommitsURL:            obj.str("links", "commits", "href"),
	}
	pr.IssueID = issueid.ForPullRequest(pr.Title, pr.SourceBranch)
	return pr, nil
}

func decodeCommit(raw json.RawMessage) (Commit, error) {
	obj, err := parseObject(raw)
	if err != nil {
		return Commit{}, decodeFailure("commit", raw, err)
	}
	hash, err := obj.requiredString("hash")
	if err != nil {
		return Commit{}, decodeFailure("commit", raw, err)
	}

	author := obj.str("author", "user", "display_name")
	if author.IsAbsent() {
		author = obj.str("author", "raw")
	}

	c := Commit{
		Hash:    hash,
		Message: obj.str("message"),
		Author:  author,
		Date:    obj.timestamp("date"),
	}
	if msg, ok := c.Message.Get(); ok {
		c.IssueID = issueid.Extract(msg)
	}
	return c, nil
}
