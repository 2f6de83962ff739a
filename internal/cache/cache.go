// Package cache implements the parse cache spec.md §5 describes: keyed by
// (absolute_path, content_hash, mtime), concurrent reads safe, writes
// single-writer under an entry-level lock. Grounded on
// internal/attractor/engine/cxdb_bootstrap.go's keyed-entry cache
// directory convention.
package cache

import (
	"sync"
	"time"

	"github.com/juvistr/draftspec/internal/scriptparse"
	"github.com/juvistr/draftspec/internal/specid"
)

// Key identifies one cache entry.
type Key struct {
	AbsolutePath string
	ContentHash  string
	ModTime      time.Time
}

type entry struct {
	mu     sync.Mutex
	key    Key
	result *scriptparse.Result
}

// Cache is an in-memory parse-result cache keyed by (path, content_hash,
// mtime); a content or mtime change is a different key, so stale entries
// are simply never looked up again rather than invalidated in place.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: map[string]*entry{}}
}

func keyID(k Key) string {
	return k.AbsolutePath + "\x1f" + k.ContentHash + "\x1f" + k.ModTime.Format(time.RFC3339Nano)
}

// HashContent computes the content-hash component of a Key.
func HashContent(data []byte) string {
	return specid.ContentHash(data)
}

// Get returns a cached parse result for key, if present.
func (c *Cache) Get(key Key) (*scriptparse.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[keyID(key)]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.result != nil
}

// Put stores result under key. Concurrent Puts for the same key serialize
// on that entry's lock; Puts for distinct keys proceed independently.
func (c *Cache) Put(key Key, result *scriptparse.Result) {
	id := keyID(key)
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.result = result
}

// Len reports the number of distinct cached keys, for tests and metrics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
