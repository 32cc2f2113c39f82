package changeset_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/monorel/pkg/bump"
	"github.com/Sumatoshi-tech/monorel/pkg/changeset"
)

// parse splits a written changeset back into its frontmatter and summary.
func parse(t *testing.T, data []byte) (map[string]string, string) {
	t.Helper()

	text := string(data)
	require.True(t, strings.HasPrefix(text, "---\n"))

	front, summary, ok := strings.Cut(strings.TrimPrefix(text, "---\n"), "---\n")
	require.True(t, ok)

	releases := map[string]string{}
	require.NoError(t, yaml.Unmarshal([]byte(front), &releases))

	return releases, strings.TrimSpace(summary)
}

func TestWriterWrite(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), ".changeset")
	writer := changeset.NewWriter(dir)

	path, err := writer.Write(changeset.Record{
		Summary: "feat: add search\n",
		Releases: []changeset.Release{
			{Name: "@scope/b", Type: bump.Minor},
			{Name: "@scope/a", Type: bump.Minor},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "monorel-"))
	assert.Equal(t, ".md", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	releases, summary := parse(t, data)
	assert.Equal(t, map[string]string{"@scope/a": "minor", "@scope/b": "minor"}, releases)
	assert.Equal(t, "feat: add search", summary)
	assert.Less(t, strings.Index(string(data), "@scope/a"), strings.Index(string(data), "@scope/b"))
}

func TestWriterAppendsNewFiles(t *testing.T) {
	t.Parallel()

	writer := changeset.NewWriter(t.TempDir())
	rec := changeset.Record{Summary: "fix: x", Releases: []changeset.Release{{Name: "a", Type: bump.Patch}}}

	first, err := writer.Write(rec)
	require.NoError(t, err)

	second, err := writer.Write(rec)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestWriterRetriesOnCollision(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writer := changeset.NewWriter(dir)

	ids := []string{"same", "same", "other"}
	changeset.SetIDFunc(writer, func() string {
		id := ids[0]
		ids = ids[1:]

		return id
	})

	rec := changeset.Record{Summary: "fix: x", Releases: []changeset.Release{{Name: "a", Type: bump.Patch}}}

	_, err := writer.Write(rec)
	require.NoError(t, err)

	path, err := writer.Write(rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "monorel-other.md"), path)
}

func TestWriterEmptyReleases(t *testing.T) {
	t.Parallel()

	writer := changeset.NewWriter(t.TempDir())

	path, err := writer.Write(changeset.Record{Summary: "feat: docs only"})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "---\n---\n\nfeat: docs only\n", string(data))
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	err := changeset.Record{Releases: []changeset.Release{{Name: "a", Type: bump.None}}}.Validate()
	require.ErrorIs(t, err, changeset.ErrNoRelease)

	err = changeset.Record{Releases: []changeset.Release{
		{Name: "a", Type: bump.Patch},
		{Name: "a", Type: bump.Major},
	}}.Validate()
	require.ErrorIs(t, err, changeset.ErrDuplicateRelease)

	_, err = changeset.NewWriter(t.TempDir()).Write(changeset.Record{Releases: []changeset.Release{{Name: "a"}}})
	require.ErrorIs(t, err, changeset.ErrNoRelease)
}

func TestNewWriterDefaultDir(t *testing.T) {
	t.Parallel()

	assert.Equal(t, changeset.DefaultDir, changeset.NewWriter("").Dir())
}
