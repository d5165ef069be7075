package neighbor

import (
	"sync"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Cache holds neighbor entries ordered by roam score, highest first.
type Cache struct {
	mu      sync.RWMutex
	entries []Entry
}

// Insert places e before the first entry with a lower score, after any
// entries with an equal score. An existing entry for the same BSSID is
// replaced.
func (c *Cache) Insert(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.entries {
		if c.entries[i].BSSID == e.BSSID {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}

	pos := len(c.entries)
	for i := range c.entries {
		if c.entries[i].RoamScore < e.RoamScore {
			pos = i
			break
		}
	}

	c.entries = append(c.entries, Entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = e
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = nil
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns a copy of the cache in score order.
func (c *Cache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Lookup returns the cached entry for bssid.
func (c *Cache) Lookup(bssid wlan.BSSID) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.BSSID == bssid {
			return e, true
		}
	}
	return Entry{}, false
}
