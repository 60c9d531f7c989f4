package cli

import (
	"errors"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
	"github.com/johnqtcg/bbreport/internal/config"
	"github.com/johnqtcg/bbreport/internal/export"
	"github.com/johnqtcg/bbreport/internal/parser"
	"github.com/johnqtcg/bbreport/internal/walker"
)

const (
	// ExitOK indicates the whole hierarchy was walked and written.
	ExitOK = 0
	// ExitRuntime indicates generic runtime failure.
	ExitRuntime = 1
	// ExitInvalidArguments indicates invalid CLI arguments or configuration.
	ExitInvalidArguments = 2
	// ExitAuth indicates no token could be acquired.
	ExitAuth = 3
	// ExitPartialSuccess indicates some calls or entities were dropped.
	ExitPartialSuccess = 4
	// ExitOutputConflict indicates output file conflict without force mode.
	ExitOutputConflict = 5
)

// ResolveExitCode maps run error state and walk stats to CLI exit codes.
func ResolveExitCode(err error, stats walker.Stats) int {
	if err != nil {
		return resolveErrorCode(err)
	}
	if stats.AuthFailed {
		return ExitAuth
	}
	if stats.Partial() {
		return ExitPartialSuccess
	}
	return ExitOK
}

func resolveErrorCode(err error) int {
	if config.IsUsageError(err) {
		return ExitInvalidArguments
	}
	if errors.Is(err, parser.ErrInvalidWorkspace) {
		return ExitInvalidArguments
	}

	if errors.Is(err, export.ErrOutputConflict) {
		return ExitOutputConflict
	}

	if bitbucket.IsAuthError(err) {
		return ExitAuth
	}

	return ExitRuntime
}
