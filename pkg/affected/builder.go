package affected

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"runtime"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultIgnoredFileNames are lockfiles that never attribute a change to a package.
var DefaultIgnoredFileNames = []string{"package-lock.json", "yarn.lock"}

// PathResolver resolves one changed path to its owning package.
type PathResolver interface {
	Resolve(changedPath string) (*Package, error)
}

// Options configures a Builder.
type Options struct {
	// IgnoredFileNames are file names (not paths) dropped before resolution.
	IgnoredFileNames []string
	// IgnoredPackageNames are package names dropped after resolution.
	IgnoredPackageNames []string
	// Workers bounds concurrent resolutions. Zero uses the CPU count.
	Workers int
	// Logger receives per-path warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

// Warning records a changed path that could not be resolved.
type Warning struct {
	Path    string `json:"path" yaml:"path"`
	Message string `json:"message" yaml:"message"`
}

// Result is the outcome of one Build.
type Result struct {
	// Packages is the affected set, sorted by name.
	Packages []Package
	// Warnings lists paths skipped because resolution failed.
	Warnings []Warning
	// Unowned counts paths that belong to no package.
	Unowned int
	// Ignored counts paths dropped by file name.
	Ignored int
}

// Builder turns changed paths into the affected package set.
type Builder struct {
	resolver PathResolver
	opts     Options
}

// NewBuilder creates a Builder.
func NewBuilder(resolver PathResolver, opts Options) *Builder {
	return &Builder{resolver: resolver, opts: opts}
}

func (b *Builder) logger() *slog.Logger {
	if b.opts.Logger != nil {
		return b.opts.Logger
	}

	return slog.Default()
}

func (b *Builder) workers() int {
	if b.opts.Workers > 0 {
		return b.opts.Workers
	}

	return runtime.NumCPU()
}

type resolution struct {
	pkg *Package
	err error
}

// Build resolves every path and returns the deduplicated package set.
// Per-path failures become warnings; only context cancellation is returned as an error.
func (b *Builder) Build(ctx context.Context, changedPaths []string) (*Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "monorel.affected.build",
		trace.WithAttributes(attribute.Int("affected.changed_paths", len(changedPaths))))
	defer span.End()

	result := &Result{}

	candidates := make([]string, 0, len(changedPaths))

	for _, changed := range changedPaths {
		if changed == "" {
			continue
		}

		if b.ignoredFile(changed) {
			result.Ignored++

			continue
		}

		candidates = append(candidates, changed)
	}

	resolutions := make([]resolution, len(candidates))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(b.workers())

	for i, candidate := range candidates {
		group.Go(func() error {
			ctxErr := groupCtx.Err()
			if ctxErr != nil {
				return ctxErr
			}

			pkg, err := b.resolver.Resolve(candidate)
			resolutions[i] = resolution{pkg: pkg, err: err}

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return nil, fmt.Errorf("resolve changed paths: %w", err)
	}

	byName := make(map[string]Package, len(resolutions))

	for i, res := range resolutions {
		switch {
		case res.err != nil:
			b.logger().WarnContext(ctx, "affected: skipping path", "path", candidates[i], "error", res.err)
			result.Warnings = append(result.Warnings, Warning{Path: candidates[i], Message: res.err.Error()})
		case res.pkg == nil:
			result.Unowned++
		case slices.Contains(b.opts.IgnoredPackageNames, res.pkg.Name):
			b.logger().DebugContext(ctx, "affected: ignoring package", "package", res.pkg.Name)
		default:
			b.add(ctx, byName, *res.pkg, result)
		}
	}

	result.Packages = make([]Package, 0, len(byName))
	for _, pkg := range byName {
		result.Packages = append(result.Packages, pkg)
	}

	sortPackages(result.Packages)

	span.SetAttributes(
		attribute.Int("affected.packages", len(result.Packages)),
		attribute.Int("affected.warnings", len(result.Warnings)),
	)

	return result, nil
}

// add inserts pkg keyed by name. Two roots declaring the same name keep the
// lexically smaller root so the result does not depend on input order.
func (b *Builder) add(ctx context.Context, byName map[string]Package, pkg Package, result *Result) {
	existing, ok := byName[pkg.Name]
	if !ok {
		byName[pkg.Name] = pkg

		return
	}

	if existing.RootPath == pkg.RootPath {
		return
	}

	keep, drop := existing, pkg
	if pkg.RootPath < existing.RootPath {
		keep, drop = pkg, existing
	}

	byName[pkg.Name] = keep

	msg := fmt.Sprintf("package name %q declared by both %s and %s", pkg.Name, keep.RootPath, drop.RootPath)
	if !slices.ContainsFunc(result.Warnings, func(w Warning) bool { return w.Message == msg }) {
		b.logger().WarnContext(ctx, "affected: duplicate package name", "package", pkg.Name,
			"kept", keep.RootPath, "dropped", drop.RootPath)
		result.Warnings = append(result.Warnings, Warning{Path: drop.RootPath, Message: msg})
	}
}

func (b *Builder) ignoredFile(changed string) bool {
	name := path.Base(filepath.ToSlash(changed))

	return slices.Contains(b.opts.IgnoredFileNames, name)
}

// Collect pulls the changed paths from source and builds the affected set.
// A source failure is returned wrapped in ErrPathSource.
func (b *Builder) Collect(ctx context.Context, source PathSource) (*Result, error) {
	paths, err := source.ChangedPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPathSource, err)
	}

	b.logger().InfoContext(ctx, "affected: changed paths collected", "paths", len(paths))

	return b.Build(ctx, paths)
}
