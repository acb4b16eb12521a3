// Package tenantcache implements the per-tenant secret cache and its
// key→id index (spec §4.2). The cache holds no opinions about upstream:
// it is pure state guarded by one mutex.
package tenantcache

import (
	"sync"
	"time"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

// Stats is a point-in-time snapshot of the cache sizes.
type Stats struct {
	SecretCount int
	KeymapCount int
}

// Cache is the per-tenant secret cache: an id→entry map and a key→id
// index, guarded by a single lock. last_sync starts 60s in the past so
// the first incremental sync always returns everything (spec §3).
type Cache struct {
	mu       sync.Mutex
	byID     map[string]secretmeta.Entry
	keyToID  map[string]string
	lastSync time.Time

	// refreshMu serializes upstream-refresh operations (a key-map-miss
	// list_all, or the background refresh loop's sync_since) for this
	// tenant, so two refreshes for the same tenant never run at once
	// (spec §4.8/§9).
	refreshMu sync.Mutex
}

// New builds an empty cache with last_sync backdated by 60s.
func New() *Cache {
	return &Cache{
		byID:     make(map[string]secretmeta.Entry),
		keyToID:  make(map[string]string),
		lastSync: time.Now().Add(-60 * time.Second),
	}
}

// LookupByID returns the cached entry for id, if present.
func (c *Cache) LookupByID(id string) (secretmeta.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[id]
	return e, ok
}

// LookupKey resolves key to an id via the key map, if present.
func (c *Cache) LookupKey(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.keyToID[key]
	return id, ok
}

// KeyMapEmpty reports whether the key index currently holds nothing,
// which CachedTenantClient uses to decide whether a key lookup needs a
// full list_all first (spec §4.8).
func (c *Cache) KeyMapEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keyToID) == 0
}

// Install writes each entry into both maps under the lock. A renamed key
// (same id, different key than previously mapped) wins; the orphaned id
// stays retrievable by id until the next Reset (spec §4.2).
func (c *Cache) Install(entries []secretmeta.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installLocked(entries)
}

func (c *Cache) installLocked(entries []secretmeta.Entry) {
	for _, e := range entries {
		c.byID[e.Meta.ID] = e
		c.keyToID[e.Meta.Key] = e.Meta.ID
	}
}

// Reset clears both maps and returns the sizes observed immediately
// before clearing. last_sync is left untouched: a reset is a local
// eviction, not a resync directive (spec §4.2, §4.5).
func (c *Cache) Reset() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{SecretCount: len(c.byID), KeymapCount: len(c.keyToID)}
	c.byID = make(map[string]secretmeta.Entry)
	c.keyToID = make(map[string]string)
	return stats
}

// Stats returns the current sizes without mutating anything.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{SecretCount: len(c.byID), KeymapCount: len(c.keyToID)}
}

// LockRefresh acquires the refresh serialization lock. Callers must
// release it with UnlockRefresh once their upstream call and any
// resulting install complete.
func (c *Cache) LockRefresh() {
	c.refreshMu.Lock()
}

// UnlockRefresh releases the refresh serialization lock.
func (c *Cache) UnlockRefresh() {
	c.refreshMu.Unlock()
}

// LastSync returns the current watermark.
func (c *Cache) LastSync() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSync
}

// ApplySync folds a refresh-loop result into the cache under one critical
// section: a non-empty change set resets then installs (conservative
// invalidation, spec §4.5); an empty one only advances the watermark.
// newWatermark must be the "now" captured before the sync_since call.
func (c *Cache) ApplySync(changes []secretmeta.Entry, newWatermark time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(changes) > 0 {
		c.byID = make(map[string]secretmeta.Entry)
		c.keyToID = make(map[string]string)
		c.installLocked(changes)
	}
	if newWatermark.After(c.lastSync) {
		c.lastSync = newWatermark
	}
}

// InstallAndResolve installs entries (e.g. from a list_all on key-map
// miss) and resolves key in the same critical section, so a concurrent
// reader never observes a populated-but-unresolved key map.
func (c *Cache) InstallAndResolve(entries []secretmeta.Entry, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.installLocked(entries)
	id, ok := c.keyToID[key]
	return id, ok
}
