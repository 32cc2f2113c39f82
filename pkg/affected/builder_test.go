package affected_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
)

var errBoom = errors.New("boom")

func names(pkgs []affected.Package) []string {
	out := make([]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		out = append(out, pkg.Name)
	}

	return out
}

func TestBuildScenarioA(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(newResolver(t, monorepo(t, false)), affected.Options{})

	result, err := builder.Build(context.Background(), []string{
		"pkgs/a/src/x.ts",
		"pkgs/a/src/y.ts",
		"pkgs/b/index.ts",
	})
	require.NoError(t, err)

	assert.Equal(t, []affected.Package{
		{Name: "@scope/a", RootPath: "pkgs/a", Version: "1.0.0"},
		{Name: "@scope/b", RootPath: "pkgs/b", Version: "2.1.0"},
	}, result.Packages)
	assert.Empty(t, result.Warnings)
}

func TestBuildScenarioCIgnoredFile(t *testing.T) {
	t.Parallel()

	resolver := &countingResolver{}
	builder := affected.NewBuilder(resolver, affected.Options{IgnoredFileNames: []string{"lockfile.lock"}})

	result, err := builder.Build(context.Background(), []string{"lockfile.lock"})
	require.NoError(t, err)
	assert.Empty(t, result.Packages)
	assert.Equal(t, 1, result.Ignored)
	assert.Zero(t, resolver.calls.Load(), "ignored files must not be resolved")
}

func TestBuildIgnoresFileNamesInSubdirectories(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(newResolver(t, monorepo(t, false)), affected.Options{
		IgnoredFileNames: affected.DefaultIgnoredFileNames,
	})

	result, err := builder.Build(context.Background(), []string{"pkgs/a/package-lock.json", "yarn.lock", ""})
	require.NoError(t, err)
	assert.Empty(t, result.Packages)
	assert.Equal(t, 2, result.Ignored)
}

func TestBuildOrderIndependent(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(newResolver(t, monorepo(t, true)), affected.Options{Workers: 3})

	paths := []string{
		"pkgs/a/src/x.ts",
		"pkgs/a/src/y.ts",
		"pkgs/b/index.ts",
		"pkgs/b/nested/c/c.ts",
		"tools/script.sh",
		"pkgs/a/package.json",
	}

	want, err := builder.Build(context.Background(), paths)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))

	for range 20 {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, buildErr := builder.Build(context.Background(), shuffled)
		require.NoError(t, buildErr)
		assert.ElementsMatch(t, want.Packages, got.Packages)
	}
}

func TestBuildDeduplicatesPathSpellings(t *testing.T) {
	t.Parallel()

	root := monorepo(t, false)
	builder := affected.NewBuilder(newResolver(t, root), affected.Options{})

	result, err := builder.Build(context.Background(), []string{
		"pkgs/a/src/x.ts",
		"pkgs/a/./src/y.ts",
		"pkgs/b/../a/src/x.ts",
		filepath.Join(root, "pkgs", "a", "src", "x.ts"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"@scope/a"}, names(result.Packages))
}

func TestBuildIgnoredPackages(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(newResolver(t, monorepo(t, false)), affected.Options{
		IgnoredPackageNames: []string{"@scope/b"},
	})

	result, err := builder.Build(context.Background(), []string{"pkgs/a/src/x.ts", "pkgs/b/index.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{"@scope/a"}, names(result.Packages))
}

func TestBuildSkipsMalformedManifests(t *testing.T) {
	t.Parallel()

	root := monorepo(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkgs/b/package.json"), []byte(`not json`), 0o644))

	builder := affected.NewBuilder(newResolver(t, root), affected.Options{})

	result, err := builder.Build(context.Background(), []string{"pkgs/a/src/x.ts", "pkgs/b/index.ts", "tools/script.sh"})
	require.NoError(t, err)
	assert.Equal(t, []string{"@scope/a"}, names(result.Packages))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "pkgs/b/index.ts", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[0].Message, affected.ErrResolve.Error())
	assert.Equal(t, 1, result.Unowned)
}

func TestBuildDuplicateNameAcrossRoots(t *testing.T) {
	t.Parallel()

	resolver := stubResolver{
		"x/file": {Name: "dup", RootPath: "x"},
		"y/file": {Name: "dup", RootPath: "y"},
	}

	for _, order := range [][]string{{"x/file", "y/file"}, {"y/file", "x/file"}} {
		result, err := affected.NewBuilder(resolver, affected.Options{}).Build(context.Background(), order)
		require.NoError(t, err)
		require.Len(t, result.Packages, 1)
		assert.Equal(t, "x", result.Packages[0].RootPath)
		assert.Len(t, result.Warnings, 1)
	}
}

func TestBuildCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := affected.NewBuilder(&countingResolver{}, affected.Options{}).Build(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCollect(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(newResolver(t, monorepo(t, false)), affected.Options{})

	source := affected.FilteredSource{
		Source:  affected.StaticSource{"pkgs/a/src/x.ts", "pkgs/b/index.ts"},
		Pattern: regexp.MustCompile(`^pkgs/b/`),
	}

	result, err := builder.Collect(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, []string{"@scope/b"}, names(result.Packages))
	assert.Equal(t, []string{"pkgs/b"}, affected.Roots(result.Packages))
}

func TestCollectSourceFailureIsFatal(t *testing.T) {
	t.Parallel()

	builder := affected.NewBuilder(&countingResolver{}, affected.Options{})

	_, err := builder.Collect(context.Background(), affected.DiffSource{Differ: failingDiffer{}})
	require.ErrorIs(t, err, affected.ErrPathSource)
	require.ErrorIs(t, err, errBoom)
}

type countingResolver struct {
	calls atomic.Int64
}

func (r *countingResolver) Resolve(string) (*affected.Package, error) {
	r.calls.Add(1)

	return nil, nil //nolint:nilnil // Test callback.
}

type stubResolver map[string]*affected.Package

func (s stubResolver) Resolve(path string) (*affected.Package, error) {
	return s[path], nil
}

type failingDiffer struct{}

func (failingDiffer) ChangedPaths(context.Context, string, string) ([]string, error) {
	return nil, errBoom
}
