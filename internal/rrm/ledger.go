package rrm

import (
	"sync"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Ledger records, per requester chain, the channels already reported so a
// later session of the same chain does not report them again.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	chains   map[wlan.BSSID][]wlan.Channel
}

// NewLedger returns a Ledger holding at most capacity channels per chain.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 64
	}
	return &Ledger{
		capacity: capacity,
		chains:   make(map[wlan.BSSID][]wlan.Channel),
	}
}

// Reset forgets every channel recorded for requester.
func (l *Ledger) Reset(requester wlan.BSSID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.chains, requester)
}

// Record adds ch to the requester's chain. It returns false when the chain
// is full; a channel already present counts as recorded.
func (l *Ledger) Record(requester wlan.BSSID, ch wlan.Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	chain := l.chains[requester]
	for _, c := range chain {
		if c.Freq() == ch.Freq() {
			return true
		}
	}
	if len(chain) >= l.capacity {
		return false
	}
	l.chains[requester] = append(chain, ch)
	return true
}

// Contains reports whether ch was recorded for requester.
func (l *Ledger) Contains(requester wlan.BSSID, ch wlan.Channel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.chains[requester] {
		if c.Freq() == ch.Freq() {
			return true
		}
	}
	return false
}

// Channels returns a copy of the requester's chain.
func (l *Ledger) Channels(requester wlan.BSSID) []wlan.Channel {
	l.mu.Lock()
	defer l.mu.Unlock()
	chain := l.chains[requester]
	out := make([]wlan.Channel, len(chain))
	copy(out, chain)
	return out
}
