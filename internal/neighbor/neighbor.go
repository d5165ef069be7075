// Package neighbor tracks the single outstanding neighbor report request and
// the roam-score ordered cache of candidate access points.
package neighbor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// ErrAlreadyPending is returned when a request is submitted while another
// one is still waiting for its reply.
var ErrAlreadyPending = errors.New("neighbor report request already pending")

// Status is the outcome handed to a request callback.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailure
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failure"
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "success":
		*s = StatusSuccess
	case "failure":
		*s = StatusFailure
	default:
		return fmt.Errorf("unknown neighbor status %q", text)
	}
	return nil
}

// Capabilities are the BSSID information bits of a neighbor report element.
type Capabilities struct {
	MobilityDomain    bool `json:"mobility_domain"`
	SecurityMatch     bool `json:"security"`
	KeyScope          bool `json:"key_scope"`
	RRM               bool `json:"rrm"`
	SpectrumMgmt      bool `json:"spectrum_mgmt"`
	QoS               bool `json:"qos"`
	APSD              bool `json:"apsd"`
	DelayedBlockAck   bool `json:"delayed_block_ack"`
	ImmediateBlockAck bool `json:"immediate_block_ack"`
	PreauthReachable  bool `json:"preauth_reachable"`
}

// Entry is one candidate AP.
type Entry struct {
	BSSID          wlan.BSSID   `json:"bssid"`
	Channel        int          `json:"channel"`
	OperatingClass int          `json:"operating_class"`
	PhyType        int          `json:"phy_type"`
	Capabilities   Capabilities `json:"capabilities"`
	RoamScore      int          `json:"roam_score"`
}

// Result is delivered exactly once per request.
type Result struct {
	Status         Status     `json:"status"`
	RequesterBSSID wlan.BSSID `json:"requester_bssid"`
	Entries        []Entry    `json:"entries,omitempty"`
}

// Callback receives the request outcome. It runs on the caller's execution
// context and must not block.
type Callback func(Result)

// Request asks the associated AP for its neighbor list.
type Request struct {
	RequesterBSSID wlan.BSSID
	SSID           string
	Timeout        time.Duration
	Callback       Callback
}

// Report is a received neighbor report frame, already parsed.
type Report struct {
	RequesterBSSID wlan.BSSID
	// FastTransition is set when the reporting connection is an 802.11r
	// association.
	FastTransition bool
	Entries        []Entry
}

// Scheduler arms a one-shot timer. The engine supplies one that re-enters
// the dispatch queue.
type Scheduler func(d time.Duration, fn func()) clock.Timer

// Config holds the neighbor subsystem settings.
type Config struct {
	DefaultTimeout time.Duration
	Weights        Weights
}

type pendingRequest struct {
	Request
	gen   uint64
	timer clock.Timer
}

// Subsystem owns the pending request and the cache.
type Subsystem struct {
	cfg      Config
	schedule Scheduler
	logger   *zap.SugaredLogger
	cache    Cache

	mu      sync.Mutex
	pending *pendingRequest
	gen     uint64
}

// New creates a Subsystem.
func New(cfg Config, schedule Scheduler, logger *zap.SugaredLogger) *Subsystem {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 2 * time.Second
	}
	return &Subsystem{
		cfg:      cfg,
		schedule: schedule,
		logger:   logger,
	}
}

// Cache returns the neighbor cache.
func (s *Subsystem) Cache() *Cache { return &s.cache }

// Pending reports whether a request is waiting for its reply.
func (s *Subsystem) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// SubmitRequest registers req as the outstanding request and starts its
// timeout. The cache is purged so entries from an earlier connection cannot
// leak into the reply.
func (s *Subsystem) SubmitRequest(req Request) error {
	if req.Callback == nil {
		return fmt.Errorf("neighbor request for %s: callback is required", req.RequesterBSSID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return ErrAlreadyPending
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	s.gen++
	gen := s.gen
	s.cache.Purge()
	s.pending = &pendingRequest{
		Request: req,
		gen:     gen,
		timer:   s.schedule(timeout, func() { s.expire(gen) }),
	}

	s.logger.Infow("Neighbor report requested",
		"requester", req.RequesterBSSID,
		"ssid", req.SSID,
		"timeout", timeout,
	)
	return nil
}

// OnReportReceived scores the report entries and merges the survivors into
// the cache. When a request is pending it completes: success if the cache is
// non-empty, failure otherwise. A report from another requester is dropped
// while a request is pending. It reports whether a callback was invoked.
func (s *Subsystem) OnReportReceived(rep Report) bool {
	s.mu.Lock()

	p := s.pending
	solicited := p != nil && (rep.RequesterBSSID.IsZero() || rep.RequesterBSSID == p.RequesterBSSID)
	if p != nil && !solicited {
		s.mu.Unlock()
		s.logger.Infow("Dropping neighbor report from another requester",
			"requester", rep.RequesterBSSID,
			"pending", p.RequesterBSSID,
			"received", len(rep.Entries),
		)
		return false
	}

	kept := 0
	for _, e := range rep.Entries {
		e.RoamScore = Score(e.Capabilities, rep.FastTransition, s.cfg.Weights)
		if e.RoamScore == 0 {
			s.logger.Debugw("Dropping neighbor with zero roam score", "bssid", e.BSSID)
			continue
		}
		s.cache.Insert(e)
		kept++
	}

	if !solicited {
		s.mu.Unlock()
		s.logger.Debugw("Merged unsolicited neighbor report",
			"requester", rep.RequesterBSSID,
			"received", len(rep.Entries),
			"kept", kept,
		)
		return false
	}

	s.pending = nil
	p.timer.Stop()
	result := Result{Status: StatusFailure, RequesterBSSID: p.RequesterBSSID}
	if s.cache.Len() > 0 {
		result.Status = StatusSuccess
		result.Entries = s.cache.Snapshot()
	}
	s.mu.Unlock()

	s.logger.Infow("Neighbor report completed",
		"requester", p.RequesterBSSID,
		"status", result.Status,
		"entries", len(result.Entries),
	)
	p.Callback(result)
	return true
}

// OnTimeout fails the pending request, if any.
func (s *Subsystem) OnTimeout() bool {
	s.mu.Lock()
	p := s.pending
	if p == nil {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	return s.expire(p.gen)
}

// Cancel drops the pending request without invoking its callback. Used when
// the request frame could not be transmitted and the caller already sees
// the error.
func (s *Subsystem) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.timer.Stop()
		s.pending = nil
	}
}

func (s *Subsystem) expire(gen uint64) bool {
	s.mu.Lock()
	p := s.pending
	if p == nil || p.gen != gen {
		s.mu.Unlock()
		return false
	}
	s.pending = nil
	p.timer.Stop()
	s.mu.Unlock()

	s.logger.Warnw("Neighbor report request timed out", "requester", p.RequesterBSSID)
	p.Callback(Result{Status: StatusFailure, RequesterBSSID: p.RequesterBSSID})
	return true
}
