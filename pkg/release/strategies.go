package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/changeset"
	"github.com/Sumatoshi-tech/monorel/pkg/hosted"
)

// Strategy names.
const (
	StrategyRecord      = "changeset"
	StrategyTag         = "tag"
	StrategyPullRequest = "deploy"
)

// Sentinel errors for strategy configuration.
var (
	ErrNoHeadBranch  = errors.New("head branch is required")
	ErrNoEnvironment = errors.New("environment name is required")
	ErrNoTagTarget   = errors.New("tag target commit is required")
)

const headsPrefix = "refs/heads/"

// HeadBranch strips the refs/heads/ prefix from a ref such as GITHUB_REF.
func HeadBranch(ref string) string {
	return strings.TrimPrefix(ref, headsPrefix)
}

func loggerOr(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}

	return slog.Default()
}

// RecordWriter persists pending release records.
type RecordWriter interface {
	Write(rec changeset.Record) (string, error)
}

// RecordStrategy writes one pending release record for the whole plan.
type RecordStrategy struct {
	Writer RecordWriter
	DryRun bool
	Logger *slog.Logger
}

// Name implements Strategy.
func (s *RecordStrategy) Name() string { return StrategyRecord }

// RequiresBump implements Strategy.
func (s *RecordStrategy) RequiresBump() bool { return true }

// Apply writes the record. A write failure aborts the run.
func (s *RecordStrategy) Apply(ctx context.Context, plan Plan) ([]Outcome, error) {
	rec := changeset.Record{Summary: plan.Summary}
	for _, pkg := range plan.Packages {
		rec.Releases = append(rec.Releases, changeset.Release{Name: pkg.Name, Type: plan.Bump})
	}

	status := StatusWritten
	target := ""

	if s.DryRun {
		err := rec.Validate()
		if err != nil {
			return nil, err
		}

		status = StatusPlanned
	} else {
		path, err := s.Writer.Write(rec)
		if err != nil {
			return nil, fmt.Errorf("write pending release: %w", err)
		}

		target = path
	}

	loggerOr(s.Logger).InfoContext(ctx, "release: pending release recorded",
		"path", target, "packages", len(rec.Releases), "bump", plan.Bump, "dry_run", s.DryRun)

	if len(plan.Packages) == 0 {
		return []Outcome{{Target: target, Status: status}}, nil
	}

	outcomes := make([]Outcome, 0, len(plan.Packages))
	for _, pkg := range plan.Packages {
		outcomes = append(outcomes, Outcome{Package: pkg.Name, Target: target, Status: status, Detail: plan.Bump.String()})
	}

	return outcomes, nil
}

// TagStore checks and creates tags. CreateTag returns false without error
// when the tag already exists.
type TagStore interface {
	TagExists(ctx context.Context, tag string) (bool, error)
	CreateTag(ctx context.Context, tag, target string) (bool, error)
}

// TagStrategy creates one tag per package.
type TagStrategy struct {
	Store TagStore
	Namer TagNamer
	// Target is the commit the tags point at.
	Target  string
	DryRun  bool
	Workers int
	Logger  *slog.Logger
}

// Name implements Strategy.
func (s *TagStrategy) Name() string { return StrategyTag }

// RequiresBump implements Strategy.
func (s *TagStrategy) RequiresBump() bool { return false }

// Apply attempts every package independently.
func (s *TagStrategy) Apply(ctx context.Context, plan Plan) ([]Outcome, error) {
	if s.Target == "" {
		return nil, ErrNoTagTarget
	}

	return eachPackage(ctx, s.Workers, plan.Packages, s.tag)
}

func (s *TagStrategy) tag(ctx context.Context, pkg affected.Package) Outcome {
	logger := loggerOr(s.Logger)

	name, err := s.Namer.Name(pkg)
	if err != nil {
		logger.WarnContext(ctx, "release: cannot name tag", "package", pkg.Name, "error", err)

		return failed(pkg.Name, "", err)
	}

	exists, err := s.Store.TagExists(ctx, name)
	if err != nil {
		logger.WarnContext(ctx, "release: tag lookup failed", "tag", name, "error", err)

		return failed(pkg.Name, name, err)
	}

	if exists {
		logger.InfoContext(ctx, "release: tag already exists", "tag", name)

		return Outcome{Package: pkg.Name, Target: name, Status: StatusExists}
	}

	if s.DryRun {
		return Outcome{Package: pkg.Name, Target: name, Status: StatusPlanned}
	}

	created, err := s.Store.CreateTag(ctx, name, s.Target)
	if err != nil {
		logger.WarnContext(ctx, "release: tag creation failed", "tag", name, "error", err)

		return failed(pkg.Name, name, err)
	}

	if !created {
		logger.InfoContext(ctx, "release: tag created concurrently", "tag", name)

		return Outcome{Package: pkg.Name, Target: name, Status: StatusExists}
	}

	logger.InfoContext(ctx, "release: tag created", "tag", name, "target", s.Target)

	return Outcome{Package: pkg.Name, Target: name, Status: StatusCreated}
}

// PullRequests searches and opens pull requests.
type PullRequests interface {
	OpenPullRequestExists(ctx context.Context, head, base string) (bool, error)
	CreatePullRequest(ctx context.Context, pr hosted.PullRequest) (int, error)
}

const rootDeployDetail = "package at repository root has no deploy branch"

// PullRequestStrategy opens one deployment pull request per package. A package
// at the repository root is skipped with a warning.
type PullRequestStrategy struct {
	Client      PullRequests
	Head        string
	Environment string
	DryRun      bool
	Workers     int
	Logger      *slog.Logger
}

// Name implements Strategy.
func (s *PullRequestStrategy) Name() string { return StrategyPullRequest }

// RequiresBump implements Strategy.
func (s *PullRequestStrategy) RequiresBump() bool { return false }

// DeployBase returns the base branch for pkg: "{environment}/{package dir}".
func (s *PullRequestStrategy) DeployBase(pkg affected.Package) string {
	return s.Environment + "/" + pkg.DirName()
}

// Apply attempts every package independently.
func (s *PullRequestStrategy) Apply(ctx context.Context, plan Plan) ([]Outcome, error) {
	if s.Head == "" {
		return nil, ErrNoHeadBranch
	}

	if s.Environment == "" {
		return nil, ErrNoEnvironment
	}

	return eachPackage(ctx, s.Workers, plan.Packages, s.open)
}

func (s *PullRequestStrategy) open(ctx context.Context, pkg affected.Package) Outcome {
	logger := loggerOr(s.Logger)

	if dir := pkg.DirName(); dir == "." || dir == "/" {
		logger.WarnContext(ctx, "release: package at repository root has no deploy branch", "package", pkg.Name)

		return Outcome{Package: pkg.Name, Target: s.Head, Status: StatusSkipped, Detail: rootDeployDetail}
	}

	base := s.DeployBase(pkg)
	target := s.Head + " -> " + base

	exists, err := s.Client.OpenPullRequestExists(ctx, s.Head, base)
	if err != nil {
		logger.WarnContext(ctx, "release: pull request search failed", "head", s.Head, "base", base, "error", err)

		return failed(pkg.Name, target, err)
	}

	if exists {
		logger.InfoContext(ctx, "release: pull request already open", "head", s.Head, "base", base)

		return Outcome{Package: pkg.Name, Target: target, Status: StatusSkipped}
	}

	if s.DryRun {
		return Outcome{Package: pkg.Name, Target: target, Status: StatusPlanned}
	}

	number, err := s.Client.CreatePullRequest(ctx, hosted.PullRequest{
		Head:  s.Head,
		Base:  base,
		Title: fmt.Sprintf("Deploy %s to %s", pkg.DirName(), s.Environment),
	})
	if err != nil {
		logger.WarnContext(ctx, "release: pull request creation failed", "head", s.Head, "base", base, "error", err)

		return failed(pkg.Name, target, err)
	}

	logger.InfoContext(ctx, "release: pull request opened", "number", number, "head", s.Head, "base", base)

	return Outcome{Package: pkg.Name, Target: target, Status: StatusCreated, Detail: fmt.Sprintf("#%d", number)}
}
