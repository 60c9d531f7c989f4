package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/johnqtcg/bbreport/internal/config"
	"github.com/johnqtcg/bbreport/internal/parser"
)

// Args contains the validated walk target.
type Args struct {
	Workspace   parser.WorkspaceRef
	ProjectKeys []string
}

// ValidateArgs checks the settings a run cannot start without.
func ValidateArgs(cfg config.Config) error {
	if strings.TrimSpace(cfg.WorkspaceID) == "" {
		return config.NewValidationError("workspace", "a workspace is required (--workspace, BITBUCKET_WORKSPACE_ID or [atlassian] workspace_id)")
	}
	if cfg.ClientKey == "" || cfg.ClientSecret == "" {
		return config.NewValidationError("credentials", "OAuth consumer key and secret are required ([atlassian_oauth] or BITBUCKET_CLIENT_KEY/BITBUCKET_CLIENT_SECRET)")
	}
	if cfg.PRsFile == "" || cfg.CommitsFile == "" {
		return config.NewValidationError("output", "pull request and commit file names must not be empty")
	}
	return nil
}

func (a *App) resolveArgs(cfg config.Config) (Args, error) {
	if err := ValidateArgs(cfg); err != nil {
		return Args{}, err
	}

	ref, err := a.parser.Parse(cfg.WorkspaceID)
	if err != nil {
		return Args{}, fmt.Errorf("parse workspace: %w", err)
	}

	keys := slices.Clone(cfg.ProjectKeys)
	if cfg.ProjectsFile != "" {
		err := a.keyReader.Read(cfg.ProjectsFile, func(key string) error {
			keys = append(keys, key)
			return nil
		})
		if err != nil {
			return Args{}, fmt.Errorf("read projects file: %w", err)
		}
	}
	if key, ok := ref.ProjectKey.Get(); ok && len(keys) == 0 {
		keys = append(keys, key)
	}

	return Args{
		Workspace:   ref,
		ProjectKeys: uniqueKeys(keys),
	}, nil
}

func uniqueKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || slices.Contains(out, k) {
			continue
		}
		out = append(out, k)
	}
	return out
}
