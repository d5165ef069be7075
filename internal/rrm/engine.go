package rrm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Config holds the engine tunables.
type Config struct {
	SessionCapacity  int
	FragmentCapacity int
	DefaultIndex     int
	MinDwell         time.Duration
	MinScanSpacing   time.Duration
	ScanTimeout      time.Duration
	// CachedMaxAge bounds record age in CachedTable mode. Zero disables it.
	CachedMaxAge     time.Duration
	LedgerCapacity   int
	QueueDepth       int
}

// DefaultConfig returns the stock engine settings.
func DefaultConfig() Config {
	return Config{
		SessionCapacity:  5,
		FragmentCapacity: 4,
		DefaultIndex:     0,
		MinDwell:         20 * time.Millisecond,
		MinScanSpacing:   time.Second,
		ScanTimeout:      10 * time.Second,
		CachedMaxAge:     0,
		LedgerCapacity:   64,
		QueueDepth:       64,
	}
}

// Deps are the collaborators of the engine.
type Deps struct {
	Scanner    ScanEngine
	Conns      ConnectionManager
	Sink       ReportSink
	Regulatory Regulatory
	Clock      clock.Clock
	Logger     *zap.SugaredLogger
}

type event struct {
	fn   func(ctx context.Context)
	done chan struct{}
}

// Engine serializes every request, scan completion and timer expiry onto one
// dispatch loop. Session state is only touched from that loop.
type Engine struct {
	cfg       Config
	scanner   ScanEngine
	conns     ConnectionManager
	sink      ReportSink
	reg       Regulatory
	clock     clock.Clock
	logger    *zap.SugaredLogger
	sessions  *SessionTable
	ledger    *Ledger
	neighbors *neighbor.Subsystem

	lastScanAt time.Time
	nextScanID ScanID

	queue   chan event
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// New creates an Engine. Start must be called before use.
func New(cfg Config, ncfg neighbor.Config, deps Deps) (*Engine, error) {
	if deps.Scanner == nil || deps.Conns == nil || deps.Sink == nil || deps.Regulatory == nil {
		return nil, errors.New("rrm engine: scanner, connection manager, sink and regulatory domain are required")
	}
	if cfg.SessionCapacity <= 0 {
		return nil, fmt.Errorf("rrm engine: session capacity must be positive, got %d", cfg.SessionCapacity)
	}
	if cfg.FragmentCapacity <= 0 {
		return nil, fmt.Errorf("rrm engine: fragment capacity must be positive, got %d", cfg.FragmentCapacity)
	}
	if cfg.DefaultIndex < 0 || cfg.DefaultIndex >= cfg.SessionCapacity {
		return nil, fmt.Errorf("rrm engine: default index %d outside [0,%d)", cfg.DefaultIndex, cfg.SessionCapacity)
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:      cfg,
		scanner:  deps.Scanner,
		conns:    deps.Conns,
		sink:     deps.Sink,
		reg:      deps.Regulatory,
		clock:    deps.Clock,
		logger:   deps.Logger,
		sessions: NewSessionTable(cfg.SessionCapacity),
		ledger:   NewLedger(cfg.LedgerCapacity),
		queue:    make(chan event, cfg.QueueDepth),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.neighbors = neighbor.New(ncfg, e.schedule, deps.Logger)
	return e, nil
}

// Start runs the dispatch loop.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already running")
	}
	if e.ctx.Err() != nil {
		return ErrStopped
	}
	e.running = true
	e.wg.Add(1)
	go e.run()
	e.logger.Infow("Measurement engine started",
		"sessions", e.cfg.SessionCapacity,
		"fragment_capacity", e.cfg.FragmentCapacity,
	)
	return nil
}

// Stop aborts active sessions, fails any pending neighbor request and
// terminates the loop. The engine cannot be restarted.
func (e *Engine) Stop() {
	e.mu.RLock()
	running := e.running
	e.mu.RUnlock()
	if !running {
		return
	}

	e.logger.Info("Stopping measurement engine")
	if err := e.call(context.Background(), e.shutdown); err != nil {
		e.logger.Warnw("Shutdown event not processed", "error", err)
	}

	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
	e.logger.Info("Measurement engine stopped")
}

// IsRunning returns whether the loop is running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Engine) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev := <-e.queue:
			ev.fn(e.ctx)
			if ev.done != nil {
				close(ev.done)
			}
		}
	}
}

// post enqueues fn without waiting for it to run.
func (e *Engine) post(fn func(ctx context.Context)) error {
	select {
	case e.queue <- event{fn: fn}:
		return nil
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// call enqueues fn and waits until the loop has run it.
func (e *Engine) call(ctx context.Context, fn func(ctx context.Context)) error {
	if !e.IsRunning() {
		return ErrStopped
	}
	done := make(chan struct{})
	select {
	case e.queue <- event{fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.ctx.Done():
		return ErrStopped
	}
}

// schedule arms a timer whose expiry runs fn on the dispatch loop.
func (e *Engine) schedule(d time.Duration, fn func()) clock.Timer {
	return e.clock.AfterFunc(d, func() {
		if err := e.post(func(context.Context) { fn() }); err != nil {
			e.logger.Debugw("Timer expiry dropped", "error", err)
		}
	})
}

func (e *Engine) shutdown(ctx context.Context) {
	for _, sess := range e.sessions.Active() {
		e.teardown(ctx, sess)
	}
	e.neighbors.OnTimeout()
}

// Submit starts a beacon report measurement. It returns once the request
// has been accepted; reports are delivered to the sink as scans complete.
func (e *Engine) Submit(ctx context.Context, req BeaconRequest) error {
	var result error
	if err := e.call(ctx, func(ctx context.Context) {
		result = e.handleBeaconRequest(ctx, req)
	}); err != nil {
		return err
	}
	return result
}

// ScanCompleted is the Scan Engine completion notification. Unknown or
// stale ids are ignored.
func (e *Engine) ScanCompleted(ctx context.Context, id ScanID, success bool) error {
	return e.call(ctx, func(ctx context.Context) {
		e.handleScanCompleted(ctx, id, success)
	})
}

// Abort releases the session at index without sending a report.
func (e *Engine) Abort(ctx context.Context, index int) error {
	var result error
	if err := e.call(ctx, func(ctx context.Context) {
		sess, ok := e.sessions.Get(index)
		if !ok {
			result = fmt.Errorf("%w: no measurement at index %d", ErrInvalidSession, index)
			return
		}
		e.logger.Infow("Aborting measurement", "index", index)
		e.teardown(ctx, sess)
	}); err != nil {
		return err
	}
	return result
}

// RequestNeighborReport submits a neighbor report request and transmits it
// to the associated AP. req.Callback is invoked exactly once from the
// dispatch loop and must not call back into the engine synchronously.
func (e *Engine) RequestNeighborReport(ctx context.Context, req neighbor.Request) error {
	var result error
	if err := e.call(ctx, func(ctx context.Context) {
		result = e.handleNeighborRequest(ctx, req)
	}); err != nil {
		return err
	}
	return result
}

// NeighborReportReceived feeds a parsed neighbor report into the cache.
func (e *Engine) NeighborReportReceived(ctx context.Context, rep neighbor.Report) error {
	return e.call(ctx, func(context.Context) {
		e.neighbors.OnReportReceived(rep)
	})
}

// Neighbors returns the neighbor cache in roam score order.
func (e *Engine) Neighbors() []neighbor.Entry {
	return e.neighbors.Cache().Snapshot()
}

// PurgeNeighbors clears the neighbor cache.
func (e *Engine) PurgeNeighbors(ctx context.Context) error {
	return e.call(ctx, func(context.Context) {
		e.neighbors.Cache().Purge()
	})
}

// ReportedChannels returns the channels recorded for requester's chain.
func (e *Engine) ReportedChannels(requester wlan.BSSID) []wlan.Channel {
	return e.ledger.Channels(requester)
}

// SessionStatus describes one active session.
type SessionStatus struct {
	Index     int          `json:"index"`
	Requester wlan.BSSID   `json:"requester_bssid"`
	Mode      string       `json:"mode"`
	Source    string       `json:"source"`
	State     string       `json:"state"`
	Cursor    int          `json:"cursor"`
	Channels  int          `json:"channels"`
	ScanID    ScanID       `json:"scan_id,omitempty"`
	Current   wlan.Channel `json:"current_channel"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	Running           bool            `json:"running"`
	Sessions          []SessionStatus `json:"sessions"`
	NeighborPending   bool            `json:"neighbor_pending"`
	NeighborCacheSize int             `json:"neighbor_cache_size"`
	LastScanAt        time.Time       `json:"last_scan_at"`
}

// Status snapshots the session table from the dispatch loop.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	st := Status{Running: true}
	err := e.call(ctx, func(context.Context) {
		for _, sess := range e.sessions.Active() {
			ss := SessionStatus{
				Index:     sess.Index,
				Requester: sess.RequesterBSSID,
				Mode:      sess.Mode.String(),
				Source:    sess.Source.String(),
				State:     sess.State.String(),
				Cursor:    sess.Cursor,
				Channels:  len(sess.Channels),
				ScanID:    sess.ActiveScanID,
			}
			if !sess.done() {
				ss.Current = sess.current()
			}
			st.Sessions = append(st.Sessions, ss)
		}
		st.NeighborPending = e.neighbors.Pending()
		st.NeighborCacheSize = e.neighbors.Cache().Len()
		st.LastScanAt = e.lastScanAt
	})
	if err != nil {
		return Status{}, err
	}
	return st, nil
}
