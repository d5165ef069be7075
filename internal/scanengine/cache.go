package scanengine

import (
	"sync"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Cache is the BSS table, one record per BSSID in observation order.
type Cache struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	clock      clock.Clock
	records    map[wlan.BSSID]rrm.ScanRecord
	order      []wlan.BSSID
}

// NewCache returns an empty cache. A zero ttl or maxEntries disables the
// corresponding bound.
func NewCache(ttl time.Duration, maxEntries int, clk clock.Clock) *Cache {
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      clk,
		records:    make(map[wlan.BSSID]rrm.ScanRecord),
	}
}

// Add stores records, replacing earlier observations of the same BSSID.
// Records without a timestamp are stamped with the current time. It returns
// the number of records stored.
func (c *Cache) Add(records []rrm.ScanRecord) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	stored := 0
	for _, r := range records {
		if r.BSSID.IsZero() || r.BSSID == wlan.Broadcast {
			continue
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}
		if _, ok := c.records[r.BSSID]; ok {
			c.remove(r.BSSID)
		}
		c.records[r.BSSID] = r
		c.order = append(c.order, r.BSSID)
		stored++
	}
	c.prune(now)
	return stored
}

// Select returns the records passing f, oldest observation first.
func (c *Cache) Select(f rrm.Filter) []rrm.ScanRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune(c.clock.Now())
	var out []rrm.ScanRecord
	for _, b := range c.order {
		r := c.records[b]
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Flush empties the cache.
func (c *Cache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = make(map[wlan.BSSID]rrm.ScanRecord)
	c.order = nil
}

func (c *Cache) remove(b wlan.BSSID) {
	delete(c.records, b)
	for i, o := range c.order {
		if o == b {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// prune drops expired records and then the oldest ones above maxEntries.
func (c *Cache) prune(now time.Time) {
	if c.ttl > 0 {
		kept := c.order[:0]
		for _, b := range c.order {
			if now.Sub(c.records[b].Timestamp) > c.ttl {
				delete(c.records, b)
				continue
			}
			kept = append(kept, b)
		}
		c.order = kept
	}
	if c.maxEntries > 0 && len(c.order) > c.maxEntries {
		drop := len(c.order) - c.maxEntries
		for _, b := range c.order[:drop] {
			delete(c.records, b)
		}
		c.order = append([]wlan.BSSID(nil), c.order[drop:]...)
	}
}
