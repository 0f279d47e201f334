package bus

import (
	"sync"
	"time"
)

// DedupeCache is a TTL-based set of recently seen keys. The gateway
// keys it by run ID and snapshot fingerprint so that a snapshot equal
// to the last one delivered is not broadcast again.
//
// Entries expire after TTL and are pruned lazily on each check.
type DedupeCache struct {
	mu      sync.Mutex
	entries map[string]int64 // key → unix millis
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

// NewDedupeCache creates a new dedupe cache. maxSize <= 0 means unbounded.
func NewDedupeCache(ttl time.Duration, maxSize int) *DedupeCache {
	return &DedupeCache{
		entries: make(map[string]int64, 64),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// IsDuplicate returns true if key was already seen within the TTL window.
// If not a duplicate, records the key for future checks.
func (d *DedupeCache) IsDuplicate(key string) bool {
	now := d.now().UnixMilli()
	cutoff := now - d.ttl.Milliseconds()

	d.mu.Lock()
	defer d.mu.Unlock()

	if ts, ok := d.entries[key]; ok && ts >= cutoff {
		return true
	}

	d.cleanup(cutoff)
	d.entries[key] = now
	return false
}

// Len returns the number of live entries.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Reset forgets every key.
func (d *DedupeCache) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.entries)
}

// cleanup removes expired entries and evicts the oldest while over maxSize.
// Must be called with d.mu held.
func (d *DedupeCache) cleanup(cutoff int64) {
	for k, ts := range d.entries {
		if ts < cutoff {
			delete(d.entries, k)
		}
	}

	for d.maxSize > 0 && len(d.entries) >= d.maxSize {
		oldestKey, oldest := "", int64(0)
		for k, ts := range d.entries {
			if oldestKey == "" || ts < oldest {
				oldestKey, oldest = k, ts
			}
		}
		delete(d.entries, oldestKey)
	}
}
