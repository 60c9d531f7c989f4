package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/samber/mo"
	"github.com/spf13/viper"

	"github.com/johnqtcg/bbreport/internal/bitbucket"
	"github.com/johnqtcg/bbreport/internal/logging"
)

const (
	DefaultPropertiesFile       = "properties.properties"
	DefaultSecretPropertiesFile = "secretproperties.properties"
	DefaultEnvFile              = ".env"
	DefaultPullRequestState     = "MERGED"
	DefaultOutputDir            = "."
	DefaultPRsFile              = "pull_requests.csv"
	DefaultCommitsFile          = "commits.csv"
	DefaultLogLevel             = logging.DefaultLevel
)

// ErrHelp is returned when --help was requested; usage has been written.
var ErrHelp = errors.New("help requested")

// Config represents normalized runtime configuration for the CLI.
type Config struct {
	Version string

	WorkspaceID  string
	ClientKey    string
	ClientSecret string
	RefreshToken string
	APIBaseURL   string
	TokenURL     string

	ProjectKeys      []string
	ProjectsFile     string
	DeployRepos      []string
	UpdatedSince     mo.Option[time.Time]
	RequireIssueID   bool
	PullRequestState string

	OutputDir    string
	PRsFile      string
	CommitsFile  string
	CombinedFile string
	Force        bool

	LogLevel string
}

// Loader loads configuration from CLI args, environment variables and properties files.
type Loader interface {
	Load(args []string) (Config, error)
}

// LoaderOption customizes the default loader.
type LoaderOption func(*fileLoader)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) LoaderOption {
	return func(l *fileLoader) {
		l.lookupEnv = fn
	}
}

// WithHelpOutput sets where --help usage is written.
func WithHelpOutput(w io.Writer) LoaderOption {
	return func(l *fileLoader) {
		l.helpOut = w
	}
}

// NewLoader constructs the default configuration loader.
func NewLoader(opts ...LoaderOption) Loader {
	l := &fileLoader{
		lookupEnv: os.LookupEnv,
		helpOut:   os.Stdout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type fileLoader struct {
	lookupEnv func(string) (string, bool)
	helpOut   io.Writer
}

type cliFlags struct {
	Properties       []string `long:"properties" value-name:"FILE" description:"properties file (INI); repeatable, later files win"`
	SecretProperties string   `long:"secret-properties" value-name:"FILE" description:"properties file holding credentials"`
	EnvFile          string   `long:"env-file" value-name:"FILE" description:".env file read before the environment"`
	Workspace        string   `long:"workspace" value-name:"ID" description:"workspace slug, UUID or bitbucket.org URL"`
	Projects         []string `long:"project" value-name:"KEY" description:"project key to walk; repeatable"`
	ProjectsFile     string   `long:"projects-file" value-name:"FILE" description:"file with one project key per line"`
	DeployRepos      []string `long:"deploy-repo" value-name:"NAME" description:"repository flagged as deploy repo; repeatable"`
	UpdatedSince     string   `long:"updated-since" value-name:"TIME" description:"only pull requests updated after this ISO-8601 time"`
	RequireIssueID   bool     `long:"require-issue-id" description:"report issue ids found in commit messages"`
	State            string   `long:"state" value-name:"STATE" description:"pull request state filter (default MERGED)"`
	Output           string   `long:"output" short:"o" value-name:"DIR" description:"output directory"`
	PRsFile          string   `long:"prs-file" value-name:"NAME" description:"pull request CSV file name"`
	CommitsFile      string   `long:"commits-file" value-name:"NAME" description:"commit CSV file name"`
	CombinedFile     string   `long:"combined-file" value-name:"NAME" description:"combined CSV file name"`
	Force            bool     `long:"force" description:"overwrite existing output files"`
	LogLevel         string   `long:"log-level" value-name:"LEVEL" description:"debug, info, warn or error"`
}

// key names in the properties files, and the environment variables that override them.
var envBindings = []struct {
	key string
	env string
}{
	{"atlassian.workspace_id", "BITBUCKET_WORKSPACE_ID"},
	{"atlassian_oauth.key", "BITBUCKET_CLIENT_KEY"},
	{"atlassian_oauth.secret", "BITBUCKET_CLIENT_SECRET"},
	{"atlassian_oauth.refresh_token", "BITBUCKET_REFRESH_TOKEN"},
	{"atlassian.api_url", "BITBUCKET_API_URL"},
	{"atlassian.token_url", "BITBUCKET_TOKEN_URL"},
	{"general.log_level", "BBREPORT_LOG_LEVEL"},
}

func (l *fileLoader) Load(args []string) (Config, error) {
	var opts cliFlags
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "bbreport"
	positional, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			_, _ = fmt.Fprintln(l.helpOut, flagsErr.Message)
			return Config{}, ErrHelp
		}
		return Config{}, WrapError("parse flags", err)
	}
	if len(positional) > 1 {
		return Config{}, WrapError("parse flags", NewValidationError("arguments", "at most one workspace argument is accepted"))
	}
	if len(positional) == 1 {
		if opts.Workspace != "" {
			return Config{}, WrapError("validate flags", NewConflictError("--workspace", "positional workspace"))
		}
		opts.Workspace = positional[0]
	}

	v := viper.New()
	v.SetConfigType("ini")
	setDefaults(v)

	if err := l.readProperties(v, opts); err != nil {
		return Config{}, err
	}
	if err := l.overlayEnv(v, opts.EnvFile); err != nil {
		return Config{}, err
	}

	cfg, err := fromViper(v)
	if err != nil {
		return Config{}, err
	}
	if err := applyFlags(&cfg, opts); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("atlassian.api_url", bitbucket.DefaultAPIBaseURL)
	v.SetDefault("atlassian.token_url", bitbucket.DefaultTokenURL)
	v.SetDefault("atlassian.pull_request_state", DefaultPullRequestState)
	v.SetDefault("atlassian.require_jira_issue_id_in_commit_message", "false")
	v.SetDefault("general.log_level", DefaultLogLevel)
	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("output.prs_file", DefaultPRsFile)
	v.SetDefault("output.commits_file", DefaultCommitsFile)
}

// readProperties merges the properties files in order. Explicitly named files
// must exist; the default locations are optional.
func (l *fileLoader) readProperties(v *viper.Viper, opts cliFlags) error {
	type source struct {
		path     string
		required bool
	}
	var sources []source
	if len(opts.Properties) == 0 {
		sources = append(sources, source{path: DefaultPropertiesFile})
	}
	for _, p := range opts.Properties {
		sources = append(sources, source{path: p, required: true})
	}
	if opts.SecretProperties != "" {
		sources = append(sources, source{path: opts.SecretProperties, required: true})
	} else {
		sources = append(sources, source{path: DefaultSecretPropertiesFile})
	}

	for _, src := range sources {
		f, err := os.Open(src.path)
		if err != nil {
			if !src.required && errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return WrapError("open properties", err)
		}
		err = v.MergeConfig(f)
		_ = f.Close()
		if err != nil {
			return WrapError("read properties "+src.path, err)
		}
	}
	return nil
}

// overlayEnv applies environment variables, falling back to the .env file for
// variables the process environment does not set.
func (l *fileLoader) overlayEnv(v *viper.Viper, envFile string) error {
	dotenv := map[string]string{}
	path := envFile
	if path == "" {
		path = DefaultEnvFile
	}
	values, err := godotenv.Read(path)
	switch {
	case err == nil:
		dotenv = values
	case envFile == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return WrapError("read env file", err)
	}

	for _, b := range envBindings {
		if val, ok := l.lookupEnv(b.env); ok && val != "" {
			v.Set(b.key, val)
			continue
		}
		if val, ok := dotenv[b.env]; ok && val != "" {
			v.Set(b.key, val)
		}
	}
	return nil
}

func fromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Version:          v.GetString("general.version"),
		WorkspaceID:      v.GetString("atlassian.workspace_id"),
		ClientKey:        v.GetString("atlassian_oauth.key"),
		ClientSecret:     v.GetString("atlassian_oauth.secret"),
		RefreshToken:     v.GetString("atlassian_oauth.refresh_token"),
		APIBaseURL:       v.GetString("atlassian.api_url"),
		TokenURL:         v.GetString("atlassian.token_url"),
		ProjectKeys:      splitList(v.GetString("atlassian.default_project_key")),
		DeployRepos:      splitList(v.GetString("atlassian.default_deploy_repo")),
		PullRequestState: v.GetString("atlassian.pull_request_state"),
		OutputDir:        v.GetString("output.dir"),
		PRsFile:          v.GetString("output.prs_file"),
		CommitsFile:      v.GetString("output.commits_file"),
		CombinedFile:     v.GetString("output.combined_file"),
		LogLevel:         v.GetString("general.log_level"),
	}

	requireRaw := v.GetString("atlassian.require_jira_issue_id_in_commit_message")
	requireIssueID, err := strconv.ParseBool(strings.TrimSpace(requireRaw))
	if err != nil {
		return Config{}, WrapError("validate properties", NewValueError("require_jira_issue_id_in_commit_message", requireRaw, "not a boolean"))
	}
	cfg.RequireIssueID = requireIssueID

	if raw := strings.TrimSpace(v.GetString("atlassian.get_prs_updated_since_utc")); raw != "" {
		since, err := ParseSince(raw)
		if err != nil {
			return Config{}, WrapError("validate properties", NewValueError("get_prs_updated_since_utc", raw, err.Error()))
		}
		cfg.UpdatedSince = mo.Some(since)
	}
	return cfg, nil
}

func applyFlags(cfg *Config, opts cliFlags) error {
	if opts.Workspace != "" {
		cfg.WorkspaceID = opts.Workspace
	}
	if len(opts.Projects) > 0 {
		cfg.ProjectKeys = splitList(strings.Join(opts.Projects, ","))
	}
	cfg.ProjectsFile = opts.ProjectsFile
	if len(opts.DeployRepos) > 0 {
		cfg.DeployRepos = splitList(strings.Join(opts.DeployRepos, ","))
	}
	if opts.UpdatedSince != "" {
		since, err := ParseSince(opts.UpdatedSince)
		if err != nil {
			return WrapError("validate flags", NewValueError("updated-since", opts.UpdatedSince, err.Error()))
		}
		cfg.UpdatedSince = mo.Some(since)
	}
	if opts.RequireIssueID {
		cfg.RequireIssueID = true
	}
	if opts.State != "" {
		cfg.PullRequestState = opts.State
	}
	cfg.PullRequestState = strings.ToUpper(strings.TrimSpace(cfg.PullRequestState))
	if !validState(cfg.PullRequestState) {
		return WrapError("validate flags", NewValueError("state", cfg.PullRequestState, "must be one of MERGED, OPEN, DECLINED, SUPERSEDED"))
	}
	if opts.Output != "" {
		cfg.OutputDir = opts.Output
	}
	if opts.PRsFile != "" {
		cfg.PRsFile = opts.PRsFile
	}
	if opts.CommitsFile != "" {
		cfg.CommitsFile = opts.CommitsFile
	}
	if opts.CombinedFile != "" {
		cfg.CombinedFile = opts.CombinedFile
	}
	if samePath(cfg.PRsFile, cfg.CommitsFile) || samePath(cfg.PRsFile, cfg.CombinedFile) || samePath(cfg.CommitsFile, cfg.CombinedFile) {
		return WrapError("validate flags", NewConflictError("--prs-file", "--commits-file"))
	}
	cfg.Force = opts.Force
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return nil
}

// ParseSince accepts ISO-8601 timestamps with an offset, or a bare date taken as UTC midnight.
func ParseSince(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if ts, err := bitbucket.ParseTimestamp(raw); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.DateOnly, raw); err == nil {
		return ts, nil
	}
	return time.Time{}, errors.New("want an ISO-8601 timestamp with offset or a YYYY-MM-DD date")
}

func validState(state string) bool {
	switch state {
	case "MERGED", "OPEN", "DECLINED", "SUPERSEDED":
		return true
	default:
		return false
	}
}

func samePath(a, b string) bool {
	return a != "" && b != "" && a == b
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
