// Package commands implements CLI command handlers for monorel.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/config"
	"github.com/Sumatoshi-tech/monorel/pkg/gitlib"
	"github.com/Sumatoshi-tech/monorel/pkg/hosted"
	"github.com/Sumatoshi-tech/monorel/pkg/manifest"
	"github.com/Sumatoshi-tech/monorel/pkg/observability"
	"github.com/Sumatoshi-tech/monorel/pkg/release"
	"github.com/Sumatoshi-tech/monorel/pkg/report"
	"github.com/Sumatoshi-tech/monorel/pkg/version"
)

var (
	// ErrRepositoryLoad indicates a failure to open the local git repository.
	ErrRepositoryLoad = errors.New("failed to load repository")
	// ErrHostedClient indicates the hosted repository client could not be built.
	ErrHostedClient = errors.New("hosted repository client unavailable")
)

// envStepOutput names the GitHub Actions step output file.
const envStepOutput = "GITHUB_OUTPUT"

// flagBindings maps command line flags to config keys. Each command binds
// the subset it defines.
var flagBindings = map[string]string{
	"repo":            "repository.path",
	"repository":      "repository.slug",
	"log-level":       "logging.level",
	"debug-trace":     "metrics.debug_trace",
	"head":            "diff.head",
	"base":            "diff.base",
	"filter":          "diff.filter",
	"paths":           "diff.paths",
	"manifest":        "packages.manifest_file",
	"ignore-file":     "packages.ignored_files",
	"ignore-package":  "packages.ignored",
	"workers":         "packages.workers",
	"dir":             "changeset.dir",
	"commit":          "changeset.commit",
	"intent":          "changeset.intent",
	"scope":           "tag.scope",
	"tag-format":      "tag.format",
	"backend":         "tag.backend",
	"target":          "tag.target",
	"require-bump":    "tag.require_bump",
	"environment":     "deploy.environment",
	"ref":             "deploy.ref",
	"dry-run":         "dry_run",
	"pushgateway-url": "metrics.pushgateway_url",
}

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	Format     string
	LogJSON    bool
}

// Register adds the persistent flags to fs. --repo, --log-level and
// --debug-trace are read back through the config bindings.
func (g *GlobalFlags) Register(fs *pflag.FlagSet) {
	fs.StringVar(&g.ConfigPath, "config", "", "config file (default: monorel.yaml in . or .github)")
	fs.StringVarP(&g.Format, "format", "f", string(report.FormatText), "output format: text, json or yaml")
	fs.BoolVar(&g.LogJSON, "log-json", false, "log as JSON")
	fs.String("repo", config.DefaultRepositoryPath, "path to the repository checkout")
	fs.String("log-level", config.DefaultLogLevel, "log level: debug, info, warn or error")
	fs.Bool("debug-trace", false, "sample every trace")
}

type observabilityInit func(cfg observability.Config) (observability.Providers, error)

// deps are the collaborators a command needs from the outside world.
type deps struct {
	initObservability observabilityInit
	openRepo          func(path string) (*gitlib.Repository, error)
}

func defaultDeps() deps {
	return deps{initObservability: observability.Init, openRepo: gitlib.OpenRepository}
}

// session is the per-invocation state shared by the commands: loaded
// configuration, telemetry and lazily opened repository handles.
type session struct {
	cfg       *config.Config
	format    report.Format
	logger    *slog.Logger
	metrics   *observability.RunMetrics
	providers observability.Providers

	deps   deps
	repo   *gitlib.Repository
	client *hosted.Client
}

func newSession(cmd *cobra.Command, globals *GlobalFlags, d deps) (*session, error) {
	format, err := report.ParseFormat(globals.Format)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadConfig(globals.ConfigPath, config.WithFlags(cmd.Flags(), flagBindings))
	if err != nil {
		return nil, err
	}

	if globals.LogJSON {
		cfg.Logging.Format = config.LogFormatJSON
	}

	providers, err := d.initObservability(cfg.Observability(version.Version))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	metrics, err := observability.NewRunMetrics(providers.Meter)
	if err != nil {
		return nil, errors.Join(err, providers.Shutdown(context.Background()))
	}

	return &session{
		cfg:       cfg,
		format:    format,
		logger:    providers.Logger,
		metrics:   metrics,
		providers: providers,
		deps:      d,
	}, nil
}

// Close releases the repository and flushes telemetry.
func (s *session) Close() {
	if s.repo != nil {
		s.repo.Free()
	}

	shutdownErr := s.providers.Shutdown(context.Background())
	if shutdownErr != nil {
		s.logger.Warn("observability shutdown failed", "error", shutdownErr)
	}
}

func (s *session) repository() (*gitlib.Repository, error) {
	if s.repo != nil {
		return s.repo, nil
	}

	repo, err := s.deps.openRepo(s.cfg.Repository.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRepositoryLoad, err)
	}

	s.repo = repo

	return repo, nil
}

func (s *session) hostedClient() (*hosted.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	repo, err := s.cfg.Repo()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostedClient, err)
	}

	client, err := hosted.NewClient(s.cfg.Repository.Token, repo,
		hosted.WithBaseURL(s.cfg.Repository.APIURL),
		hosted.WithHTTPClient(observability.NewHTTPClient()),
		hosted.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostedClient, err)
	}

	s.client = client

	return client, nil
}

func (s *session) hostedConfigured() bool {
	return s.cfg.Repository.Token != "" && s.cfg.Repository.Slug != ""
}

// root returns the repository root the affected set is resolved against.
// A pre-supplied path list is resolved against the configured path without
// opening the repository.
func (s *session) root() (string, error) {
	if len(s.cfg.Diff.Paths) > 0 {
		return s.cfg.Repository.Path, nil
	}

	repo, err := s.repository()
	if err != nil {
		return "", err
	}

	return repo.Workdir(), nil
}

func (s *session) pathSource() (affected.PathSource, error) {
	var source affected.PathSource

	if len(s.cfg.Diff.Paths) > 0 {
		source = affected.StaticSource(s.cfg.Diff.Paths)
	} else {
		repo, err := s.repository()
		if err != nil {
			return nil, err
		}

		source = affected.DiffSource{Differ: repo, Head: s.cfg.Diff.Head, Base: s.cfg.Diff.Base}
	}

	pattern, err := s.cfg.FilterPattern()
	if err != nil {
		return nil, err
	}

	if pattern != nil {
		source = affected.FilteredSource{Source: source, Pattern: pattern}
	}

	return source, nil
}

// affectedFunc wires the path source, manifest store, resolver and builder.
func (s *session) affectedFunc() (release.AffectedFunc, error) {
	source, err := s.pathSource()
	if err != nil {
		return nil, err
	}

	root, err := s.root()
	if err != nil {
		return nil, err
	}

	store, err := manifest.NewStore(s.cfg.Packages.ManifestFile)
	if err != nil {
		return nil, err
	}

	manifests := manifest.NewCache(store, manifest.DefaultCacheEntries)

	resolver, err := affected.NewResolver(root, manifests)
	if err != nil {
		return nil, err
	}

	builder := affected.NewBuilder(resolver, affected.Options{
		IgnoredFileNames:    s.cfg.Packages.IgnoredFiles,
		IgnoredPackageNames: s.cfg.Packages.Ignored,
		Workers:             s.cfg.Packages.Workers,
		Logger:              s.logger,
	})

	return func(ctx context.Context) (*affected.Result, error) {
		result, collectErr := builder.Collect(ctx, source)

		stats := manifests.Stats()
		s.logger.DebugContext(ctx, "monorel: manifest lookups",
			"hits", stats.Hits, "misses", stats.Misses, "hit_rate", stats.HitRate())

		return result, collectErr
	}, nil
}

// intent picks the intent source: an explicit text, the hosted commit, or
// the local commit. It returns nil when no intent is needed and none is given.
func (s *session) intent(needed bool) (release.IntentSource, error) {
	if s.cfg.Changeset.Intent != "" {
		return release.StaticIntent(s.cfg.Changeset.Intent), nil
	}

	if !needed {
		return nil, nil //nolint:nilnil // ungated strategies run without intent.
	}

	if s.hostedConfigured() && s.cfg.Changeset.Commit != "" {
		client, err := s.hostedClient()
		if err != nil {
			return nil, err
		}

		return release.CommitIntent{Commits: client, Rev: s.cfg.Changeset.Commit}, nil
	}

	repo, err := s.repository()
	if err != nil {
		return nil, err
	}

	rev := s.cfg.Changeset.Commit
	if rev == "" {
		rev = config.DefaultDiffHead
	}

	return release.CommitIntent{Commits: repo, Rev: rev}, nil
}

// runStrategy runs one orchestrated release and writes its report.
func (s *session) runStrategy(cmd *cobra.Command, strategy release.Strategy, requireBump bool) error {
	ctx := cmd.Context()

	intent, err := s.intent(strategy.RequiresBump() || requireBump)
	if err != nil {
		return err
	}

	affectedFn, err := s.affectedFunc()
	if err != nil {
		return err
	}

	orchestrator := release.NewOrchestrator(strategy, intent, affectedFn, release.Options{
		RequireBump: requireBump,
		Logger:      s.logger,
		Metrics:     s.metrics,
	})

	rep, err := orchestrator.Run(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "monorel: run failed", "strategy", strategy.Name(), "error", err)

		return err
	}

	return s.emit(cmd, rep)
}

// emit writes the report and, inside a workflow, the step output.
func (s *session) emit(cmd *cobra.Command, rep *release.Report) error {
	err := report.Write(cmd.OutOrStdout(), s.format, rep)
	if err != nil {
		return err
	}

	outputPath := os.Getenv(envStepOutput)
	if outputPath == "" {
		return nil
	}

	return report.AppendStepOutput(outputPath, rep.Packages)
}

// underRoot resolves a repository-relative directory against the root.
func (s *session) underRoot(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}

	root, err := s.root()
	if err != nil {
		return "", err
	}

	return filepath.Join(root, dir), nil
}

// addDiffFlags registers the flags selecting the changed paths and packages.
func addDiffFlags(fs *pflag.FlagSet) {
	fs.String("head", config.DefaultDiffHead, "head revision of the diff")
	fs.String("base", config.DefaultDiffBase, "base revision of the diff")
	fs.String("filter", "", "regular expression changed paths must match")
	fs.StringSlice("paths", nil, "pre-computed changed paths; replaces the diff")
	fs.String("manifest", config.DefaultManifestFile, "manifest file name marking a package root")
	fs.StringSlice("ignore-file", config.DefaultIgnoredFiles, "file base names never attributed to a package")
	fs.StringSlice("ignore-package", nil, "package names excluded from the affected set")
	fs.Int("workers", config.DefaultPackagesWorkers, "parallel resolvers (0 = number of CPUs)")
}
