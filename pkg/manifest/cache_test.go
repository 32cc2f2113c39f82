package manifest_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/monorel/pkg/manifest"
)

var errDisk = errors.New("disk on fire")

type countingReader struct {
	mu    sync.Mutex
	reads map[string]int
	inner manifest.Reader
	fail  string
}

func (r *countingReader) Read(dir string) (*manifest.Manifest, error) {
	r.mu.Lock()
	r.reads[dir]++
	r.mu.Unlock()

	if dir == r.fail {
		return nil, errDisk
	}

	return r.inner.Read(dir)
}

func (r *countingReader) count(dir string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reads[dir]
}

func newCountingReader(t *testing.T) *countingReader {
	t.Helper()

	store, err := manifest.NewStore("")
	require.NoError(t, err)

	return &countingReader{reads: map[string]int{}, inner: store}
}

func TestCacheHitsAndNegativeEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	pkgDir := filepath.Join(root, "pkgs", "a")
	writeManifest(t, pkgDir, `{"name": "a", "version": "1.0.0"}`)

	reader := newCountingReader(t)
	cache := manifest.NewCache(reader, 0)

	for range 3 {
		m, err := cache.Read(pkgDir)
		require.NoError(t, err)
		assert.Equal(t, "a", m.Name)

		_, err = cache.Read(root)
		require.ErrorIs(t, err, manifest.ErrNotFound)
	}

	assert.Equal(t, 1, reader.count(pkgDir))
	assert.Equal(t, 1, reader.count(root))

	stats := cache.Stats()
	assert.Equal(t, int64(4), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 2, stats.Entries)
	assert.InDelta(t, 4.0/6.0, stats.HitRate(), 1e-9)
}

func TestCacheDoesNotKeepFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	reader := newCountingReader(t)
	reader.fail = dir
	cache := manifest.NewCache(reader, 0)

	for range 2 {
		_, err := cache.Read(dir)
		require.ErrorIs(t, err, errDisk)
	}

	assert.Equal(t, 2, reader.count(dir))
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dirs := []string{filepath.Join(root, "a"), filepath.Join(root, "b"), filepath.Join(root, "c")}

	reader := newCountingReader(t)
	cache := manifest.NewCache(reader, 2)

	_, _ = cache.Read(dirs[0])
	_, _ = cache.Read(dirs[1])
	_, _ = cache.Read(dirs[0])
	_, _ = cache.Read(dirs[2])

	assert.Equal(t, 2, cache.Stats().Entries)

	_, _ = cache.Read(dirs[0])
	assert.Equal(t, 1, reader.count(dirs[0]))

	_, _ = cache.Read(dirs[1])
	assert.Equal(t, 2, reader.count(dirs[1]))
}

func TestCacheConcurrentReads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeManifest(t, dir, `{"name": "shared"}`)

	cache := manifest.NewCache(newCountingReader(t), 0)

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			m, err := cache.Read(dir)
			assert.NoError(t, err)
			assert.Equal(t, "shared", m.Name)
		}()
	}

	wg.Wait()

	assert.Equal(t, int64(16), cache.Stats().Hits+cache.Stats().Misses)
}
