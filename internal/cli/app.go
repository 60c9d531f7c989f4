package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
	"github.com/johnqtcg/bbreport/internal/config"
	"github.com/johnqtcg/bbreport/internal/export"
	"github.com/johnqtcg/bbreport/internal/logging"
	"github.com/johnqtcg/bbreport/internal/parser"
	"github.com/johnqtcg/bbreport/internal/walker"
)

// Runner executes the CLI application flow.
type Runner interface {
	Run(ctx context.Context, args []string) int
}

// ClientFactory creates Bitbucket API clients from runtime config.
type ClientFactory interface {
	New(cfg config.Config, logger *slog.Logger) (walker.API, error)
}

// AppDeps defines dependencies for CLI app construction.
type AppDeps struct {
	Loader        config.Loader
	Parser        parser.RefParser
	ClientFactory ClientFactory
	Writer        export.Writer
	KeyReader     KeyReader
	Stdout        io.Writer
	Stderr        io.Writer
	// Logger replaces the run logger normally built from --log-level.
	Logger *slog.Logger
}

// App orchestrates one report run.
type App struct {
	loader        config.Loader
	parser        parser.RefParser
	clientFactory ClientFactory
	writer        export.Writer
	keyReader     KeyReader
	stdout        io.Writer
	stderr        io.Writer
	logger        *slog.Logger
}

// NewApp creates a CLI runner with injected dependencies.
func NewApp(deps AppDeps) Runner {
	app := &App{
		loader:        deps.Loader,
		parser:        deps.Parser,
		clientFactory: deps.ClientFactory,
		writer:        deps.Writer,
		keyReader:     deps.KeyReader,
		stdout:        deps.Stdout,
		stderr:        deps.Stderr,
		logger:        deps.Logger,
	}
	app.setDefaults()
	return app
}

func (a *App) setDefaults() {
	if a.loader == nil {
		a.loader = config.NewLoader()
	}
	if a.parser == nil {
		a.parser = parser.New()
	}
	if a.clientFactory == nil {
		a.clientFactory = defaultClientFactory{}
	}
	if a.writer == nil {
		a.writer = export.NewCSVWriter()
	}
	if a.keyReader == nil {
		a.keyReader = NewKeyFileReader()
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
}

// Run executes the report workflow and returns an exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	cfg, err := a.loader.Load(args)
	if errors.Is(err, config.ErrHelp) {
		return ExitOK
	}
	if err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, walker.Stats{})
	}

	validated, err := a.resolveArgs(cfg)
	if err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, walker.Stats{})
	}

	logger, err := a.runLogger(cfg)
	if err != nil {
		writeErrorLine(a.stderr, err)
		return ResolveExitCode(err, walker.Stats{})
	}
	logger.Info("starting report",
		"version", cfg.Version,
		"workspace", validated.Workspace.ID,
		"projects", validated.ProjectKeys,
		"state", cfg.PullRequestState,
	)

	api, err := a.clientFactory.New(cfg, logger)
	if err != nil {
		runErr := fmt.Errorf("build client: %w", err)
		writeErrorLine(a.stderr, runErr)
		return ResolveExitCode(runErr, walker.Stats{})
	}

	w := walker.New(api, walker.Options{
		WorkspaceID:      validated.Workspace.ID,
		ProjectKeys:      validated.ProjectKeys,
		DeployRepos:      cfg.DeployRepos,
		UpdatedSince:     cfg.UpdatedSince,
		RequireIssueID:   cfg.RequireIssueID,
		PullRequestState: cfg.PullRequestState,
	}, logger)

	result, err := w.Walk(ctx)
	if err != nil {
		runErr := fmt.Errorf("walk workspace %q: %w", validated.Workspace.ID, err)
		writeErrorLine(a.stderr, runErr)
		return ResolveExitCode(runErr, result.Stats)
	}
	logger.Info("walk finished", "stats", result.Stats.String())

	agg := result.Aggregator
	paths, err := a.writer.Write(export.Options{Dir: cfg.OutputDir, Force: cfg.Force}, []export.Target{
		{Name: cfg.PRsFile, Table: agg.PullRequestsTable()},
		{Name: cfg.CommitsFile, Table: agg.CommitsTable()},
		{Name: cfg.CombinedFile, Table: agg.Combined()},
	})
	if err != nil {
		runErr := fmt.Errorf("write output: %w", err)
		writeErrorLine(a.stderr, runErr)
		return ResolveExitCode(runErr, result.Stats)
	}

	summary := BuildSummary(validated.Workspace.ID, result, paths)
	if _, err := fmt.Fprintln(a.stdout, FormatSummary(summary)); err != nil {
		writeErrorLine(a.stderr, fmt.Errorf("write summary output: %w", err))
	}
	if table, err := RenderRepositoryTable(summary); err != nil {
		logger.Warn("render repository table", "error", err)
	} else if table != "" {
		_, _ = fmt.Fprintln(a.stdout, table)
	}

	return ResolveExitCode(nil, result.Stats)
}

func (a *App) runLogger(cfg config.Config) (*slog.Logger, error) {
	if a.logger != nil {
		return a.logger, nil
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, config.WrapError("validate log level", config.NewValidationError("log-level", err.Error()))
	}
	return logging.New(a.stderr, level), nil
}

type defaultClientFactory struct{}

func (f defaultClientFactory) New(cfg config.Config, logger *slog.Logger) (walker.API, error) {
	_ = f
	client, err := bitbucket.NewClient(bitbucket.Config{
		ClientKey:    cfg.ClientKey,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
		APIBaseURL:   cfg.APIBaseURL,
		TokenURL:     cfg.TokenURL,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create bitbucket client: %w", err)
	}
	return client, nil
}

func writeErrorLine(w io.Writer, err error) {
	if _, writeErr := fmt.Fprintf(w, "error: %v\n", err); writeErr != nil {
		return
	}
}
