package parser

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// ErrInvalidWorkspace indicates an input is neither a workspace slug, a UUID nor a Bitbucket URL.
var ErrInvalidWorkspace = errors.New("invalid Bitbucket workspace")

// WorkspaceRef is a normalized workspace reference.
type WorkspaceRef struct {
	// ID is the value sent to the API: the slug, or the UUID in braces.
	ID         string
	Slug       string
	UUID       mo.Option[uuid.UUID]
	ProjectKey mo.Option[string]
}

// RefParser parses raw workspace input into a WorkspaceRef.
type RefParser interface {
	Parse(raw string) (WorkspaceRef, error)
}

// New creates the default workspace parser.
func New() RefParser {
	return &defaultParser{}
}

type defaultParser struct{}

func (p *defaultParser) Parse(raw string) (WorkspaceRef, error) {
	_ = p

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return WorkspaceRef{}, invalid("workspace must not be empty")
	}
	if strings.Contains(raw, "://") {
		return parseURL(raw)
	}
	return parseID(raw)
}

func parseID(raw string) (WorkspaceRef, error) {
	if id, err := uuid.Parse(raw); err == nil {
		return WorkspaceRef{
			ID:   "{" + id.String() + "}",
			UUID: mo.Some(id),
		}, nil
	}
	if strings.HasPrefix(raw, "{") {
		return WorkspaceRef{}, fmt.Errorf("parse workspace UUID %q: %w", raw, invalid("malformed UUID"))
	}
	if err := validateSlug(raw); err != nil {
		return WorkspaceRef{}, fmt.Errorf("validate workspace slug %q: %w", raw, err)
	}
	slug := strings.ToLower(raw)
	return WorkspaceRef{ID: slug, Slug: slug}, nil
}

func parseURL(raw string) (WorkspaceRef, error) {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return WorkspaceRef{}, fmt.Errorf("parse URL %q: %w", raw, err)
	}

	host := strings.ToLower(parsedURL.Hostname())
	segments := splitPathSegments(parsedURL.Path)
	switch host {
	case "bitbucket.org", "www.bitbucket.org":
	case "api.bitbucket.org":
		// /2.0/workspaces/{id}/...
		if len(segments) < 3 || segments[0] != "2.0" || segments[1] != "workspaces" {
			return WorkspaceRef{}, fmt.Errorf("parse API path %q: %w", parsedURL.Path, invalid("path must be /2.0/workspaces/{workspace}"))
		}
		segments = segments[2:]
		if len(segments) >= 3 && segments[1] == "projects" {
			segments = []string{segments[0], "workspace", "projects", segments[2]}
		}
	default:
		return WorkspaceRef{}, fmt.Errorf("validate URL host %q: %w", host, invalid("unsupported host"))
	}

	if len(segments) == 0 {
		return WorkspaceRef{}, fmt.Errorf("parse URL path %q: %w", parsedURL.Path, invalid("workspace segment missing"))
	}

	ref, err := parseID(segments[0])
	if err != nil {
		return WorkspaceRef{}, err
	}
	if len(segments) >= 4 && segments[1] == "workspace" && segments[2] == "projects" && segments[3] != "" {
		ref.ProjectKey = mo.Some(strings.ToUpper(segments[3]))
	}
	return ref, nil
}

func validateSlug(slug string) error {
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return invalid(fmt.Sprintf("unexpected character %q", r))
		}
	}
	return nil
}

func splitPathSegments(rawPath string) []string {
	trimmed := strings.Trim(rawPath, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func invalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidWorkspace, reason)
}
