package manifest

import (
	"errors"
	"sync"
	"sync/atomic"
)

// DefaultCacheEntries is the default number of directories a Cache remembers.
const DefaultCacheEntries = 4096

// Reader reads the manifest located directly in a directory.
type Reader interface {
	Read(dir string) (*Manifest, error)
}

// Cache is an LRU cache of per-directory manifest lookups in front of a
// Reader. Found manifests and ErrNotFound results are cached; any other error
// is returned uncached. It is safe for concurrent use.
type Cache struct {
	reader Reader

	mu         sync.Mutex
	entries    map[string]*cacheEntry
	head       *cacheEntry // Most recently used.
	tail       *cacheEntry // Least recently used.
	maxEntries int

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	dir      string
	manifest *Manifest // nil when the directory has no manifest.
	prev     *cacheEntry
	next     *cacheEntry
}

// NewCache wraps reader with an LRU cache of maxEntries directories.
func NewCache(reader Reader, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}

	return &Cache{
		reader:     reader,
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
	}
}

// Read implements Reader.
func (c *Cache) Read(dir string) (*Manifest, error) {
	if m, ok := c.get(dir); ok {
		if m == nil {
			return nil, ErrNotFound
		}

		return m, nil
	}

	m, err := c.reader.Read(dir)

	switch {
	case err == nil:
		c.put(dir, m)
	case errors.Is(err, ErrNotFound):
		c.put(dir, nil)
	}

	return m, err
}

func (c *Cache) get(dir string) (*Manifest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[dir]
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	c.hits.Add(1)
	c.moveToFront(entry)

	return entry.manifest, true
}

func (c *Cache) put(dir string, m *Manifest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[dir]; ok {
		entry.manifest = m
		c.moveToFront(entry)

		return
	}

	for len(c.entries) >= c.maxEntries && c.tail != nil {
		c.evict(c.tail)
	}

	entry := &cacheEntry{dir: dir, manifest: m}
	c.entries[dir] = entry
	c.addToFront(entry)
}

// CacheStats holds cache counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0.0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: len(c.entries)}
}

func (c *Cache) moveToFront(entry *cacheEntry) {
	if entry == c.head {
		return
	}

	c.unlink(entry)
	c.addToFront(entry)
}

func (c *Cache) addToFront(entry *cacheEntry) {
	entry.prev = nil
	entry.next = c.head

	if c.head != nil {
		c.head.prev = entry
	}

	c.head = entry

	if c.tail == nil {
		c.tail = entry
	}
}

func (c *Cache) unlink(entry *cacheEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		c.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		c.tail = entry.prev
	}
}

func (c *Cache) evict(entry *cacheEntry) {
	c.unlink(entry)
	delete(c.entries, entry.dir)
}
