package affected_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
	"github.com/Sumatoshi-tech/monorel/pkg/manifest"
)

// monorepo lays out a small workspace:
//
//	package.json            (root, "workspace")
//	pkgs/a/package.json     ("@scope/a" 1.0.0)
//	pkgs/a/src/x.ts
//	pkgs/b/package.json     ("@scope/b" 2.1.0)
//	pkgs/b/index.ts
//	pkgs/b/nested/c/package.json ("@scope/c" 0.1.0)
func monorepo(t *testing.T, withRoot bool) string {
	t.Helper()

	root := t.TempDir()

	files := map[string]string{
		"pkgs/a/package.json":          `{"name": "@scope/a", "version": "1.0.0"}`,
		"pkgs/a/src/x.ts":              "x",
		"pkgs/a/src/y.ts":              "y",
		"pkgs/b/package.json":          `{"name": "@scope/b", "version": "2.1.0"}`,
		"pkgs/b/index.ts":              "b",
		"pkgs/b/nested/c/package.json": `{"name": "@scope/c", "version": "0.1.0"}`,
		"pkgs/b/nested/c/c.ts":         "c",
		"tools/script.sh":              "echo",
	}

	if withRoot {
		files["package.json"] = `{"name": "workspace", "private": true}`
	}

	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	return root
}

func newResolver(t *testing.T, root string) *affected.Resolver {
	t.Helper()

	store, err := manifest.NewStore("")
	require.NoError(t, err)

	resolver, err := affected.NewResolver(root, store)
	require.NoError(t, err)

	return resolver
}

func TestResolverNearestManifest(t *testing.T) {
	t.Parallel()

	resolver := newResolver(t, monorepo(t, true))

	tests := []struct {
		path     string
		wantName string
		wantRoot string
	}{
		{"pkgs/a/src/x.ts", "@scope/a", "pkgs/a"},
		{"pkgs/b/index.ts", "@scope/b", "pkgs/b"},
		{"pkgs/b/nested/c/c.ts", "@scope/c", "pkgs/b/nested/c"},
		{"pkgs/a/package.json", "@scope/a", "pkgs/a"},
		{"pkgs/a/src/deleted.ts", "@scope/a", "pkgs/a"},
		{"pkgs/gone/src/deleted.ts", "workspace", "."},
		{"pkgs/a", "@scope/a", "pkgs/a"},
		{"tools/script.sh", "workspace", "."},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			pkg, err := resolver.Resolve(tt.path)
			require.NoError(t, err)
			require.NotNil(t, pkg)
			assert.Equal(t, tt.wantName, pkg.Name)
			assert.Equal(t, tt.wantRoot, pkg.RootPath)
		})
	}
}

func TestResolverVersion(t *testing.T) {
	t.Parallel()

	pkg, err := newResolver(t, monorepo(t, false)).Resolve("pkgs/b/index.ts")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "2.1.0", pkg.Version)
	assert.Equal(t, "b", pkg.DirName())
}

func TestResolverUnowned(t *testing.T) {
	t.Parallel()

	resolver := newResolver(t, monorepo(t, false))

	for _, path := range []string{"tools/script.sh", "yarn.lock", "../outside/file.ts"} {
		pkg, err := resolver.Resolve(path)
		require.NoError(t, err, path)
		assert.Nil(t, pkg, path)
	}
}

func TestResolverStopsAtRepositoryRoot(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(parent, "package.json"), []byte(`{"name": "outer"}`), 0o644))

	root := filepath.Join(parent, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))

	pkg, err := newResolver(t, root).Resolve("src/main.ts")
	require.NoError(t, err)
	assert.Nil(t, pkg)
}

func TestResolverMalformedManifest(t *testing.T) {
	t.Parallel()

	root := monorepo(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkgs/a/package.json"), []byte(`{"name":`), 0o644))

	_, err := newResolver(t, root).Resolve("pkgs/a/src/x.ts")
	require.ErrorIs(t, err, affected.ErrResolve)
	require.ErrorIs(t, err, manifest.ErrMalformed)
}

func TestResolverSymlinkedRoot(t *testing.T) {
	t.Parallel()

	root := monorepo(t, false)
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(root, link))

	viaLink := newResolver(t, link)
	direct := newResolver(t, root)

	assert.Equal(t, direct.Root(), viaLink.Root())

	fromLink, err := viaLink.Resolve(filepath.Join(link, "pkgs/a/src/x.ts"))
	require.NoError(t, err)

	fromRoot, err := direct.Resolve(filepath.Join(root, "pkgs/a/src/x.ts"))
	require.NoError(t, err)

	assert.Equal(t, fromRoot, fromLink)
}
