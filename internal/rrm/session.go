package rrm

import (
	"fmt"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// SessionState is the scan orchestration state of a session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateScanRequested
	StateScanCompleted
	StateDone
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanRequested:
		return "scan_requested"
	case StateScanCompleted:
		return "scan_completed"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one beacon report measurement in progress.
type Session struct {
	Index                 int
	ConnectionID          ConnectionID
	RequesterBSSID        wlan.BSSID
	TargetBSSID           wlan.BSSID
	TargetSSID            string
	Channels              []wlan.Channel
	Cursor                int
	Mode                  ScanMode
	Duration              time.Duration
	RandomizationInterval time.Duration
	DialogToken           uint8
	RegulatoryClass       int
	Source                MessageSource
	ActiveScanID          ScanID
	// StartedAt is the scan-start marker: records cached before it are
	// excluded unless they belong to the connected BSS.
	StartedAt time.Time
	State     SessionState

	sequence  int
	finalSent bool
	gen       uint64
	watchdog  clock.Timer
	pacer     clock.Timer
}

func (s *Session) done() bool { return s.Cursor >= len(s.Channels) }

func (s *Session) current() wlan.Channel { return s.Channels[s.Cursor] }

func (s *Session) isLast() bool { return s.Cursor >= len(s.Channels)-1 }

func (s *Session) remaining() []wlan.Channel {
	out := make([]wlan.Channel, len(s.Channels)-s.Cursor)
	copy(out, s.Channels[s.Cursor:])
	return out
}

func (s *Session) stopTimers() {
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.pacer != nil {
		s.pacer.Stop()
		s.pacer = nil
	}
}

// SessionTable is a fixed-capacity array of sessions keyed by measurement
// index. It is only touched from the dispatch loop.
type SessionTable struct {
	slots []*Session
}

// NewSessionTable returns a table with n slots.
func NewSessionTable(n int) *SessionTable {
	return &SessionTable{slots: make([]*Session, n)}
}

// Capacity returns the number of slots.
func (t *SessionTable) Capacity() int { return len(t.slots) }

// Allocate places a fresh session at index, overwriting any session already
// there. Callers cancel the previous session's scan first.
func (t *SessionTable) Allocate(index int) (*Session, error) {
	if index < 0 || index >= len(t.slots) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidSession, index, len(t.slots))
	}
	s := &Session{Index: index}
	if prev := t.slots[index]; prev != nil {
		s.gen = prev.gen + 1
	}
	t.slots[index] = s
	return s, nil
}

// Get returns the active session at index.
func (t *SessionTable) Get(index int) (*Session, bool) {
	if index < 0 || index >= len(t.slots) || t.slots[index] == nil {
		return nil, false
	}
	return t.slots[index], true
}

// Release frees the slot at index.
func (t *SessionTable) Release(index int) {
	if index >= 0 && index < len(t.slots) {
		t.slots[index] = nil
	}
}

// ByScanID finds the session waiting on id.
func (t *SessionTable) ByScanID(id ScanID) (*Session, bool) {
	if id == 0 {
		return nil, false
	}
	for _, s := range t.slots {
		if s != nil && s.ActiveScanID == id {
			return s, true
		}
	}
	return nil, false
}

// Active returns the occupied slots in index order.
func (t *SessionTable) Active() []*Session {
	var out []*Session
	for _, s := range t.slots {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
