// Package scanengine implements an in-memory Scan Engine: it holds the BSS
// cache fed by radio observations, paces scan issuance and reports scan
// completions to registered handlers.
package scanengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
)

var (
	// ErrNotRunning is returned when the scan engine has not been started.
	ErrNotRunning = errors.New("scan engine not running")
	// ErrUnknownScan is returned for a completion or cancel of an id that
	// is not outstanding.
	ErrUnknownScan = errors.New("unknown scan id")
	// ErrDuplicateScan is returned when an id is issued twice.
	ErrDuplicateScan = errors.New("scan id already outstanding")
)

// Config holds the scan engine settings.
type Config struct {
	// RateLimit is the sustained number of scans per second.
	RateLimit float64
	Burst     int
	// MaxOutstanding bounds the scans in flight at once.
	MaxOutstanding int
	// AutoComplete completes each scan after its dwell time instead of
	// waiting for an external completion.
	AutoComplete bool
	// ReducedRest is the rest time between channels of a reduced-rest scan;
	// ChannelRest applies otherwise.
	ChannelRest time.Duration
	ReducedRest time.Duration
	// CacheTTL evicts observations older than this. Zero keeps everything.
	CacheTTL   time.Duration
	MaxEntries int
}

// DefaultConfig returns the stock scan engine settings.
func DefaultConfig() Config {
	return Config{
		RateLimit:      10,
		Burst:          5,
		MaxOutstanding: 4,
		AutoComplete:   true,
		ChannelRest:    10 * time.Millisecond,
		ReducedRest:    2 * time.Millisecond,
		CacheTTL:       0,
		MaxEntries:     512,
	}
}

// CompletionHandler is notified once for every scan that completes.
type CompletionHandler func(ctx context.Context, id rrm.ScanID, success bool) error

type scan struct {
	req      rrm.ScanRequest
	issuedAt time.Time
	timer    clock.Timer
}

// ScanEngine is safe for concurrent use.
type ScanEngine struct {
	config   Config
	logger   *zap.SugaredLogger
	clock    clock.Clock
	limiter  *rate.Limiter
	cache    *Cache
	handlers []CompletionHandler

	outstanding map[rrm.ScanID]*scan
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	mu          sync.RWMutex
}

// New creates a new ScanEngine instance.
func New(cfg Config, clk clock.Clock, logger *zap.SugaredLogger) *ScanEngine {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &ScanEngine{
		config:      cfg,
		logger:      logger,
		clock:       clk,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		cache:       NewCache(cfg.CacheTTL, cfg.MaxEntries, clk),
		outstanding: make(map[rrm.ScanID]*scan),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// OnComplete registers h. Handlers must be registered before Start.
func (s *ScanEngine) OnComplete(h CompletionHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Cache returns the BSS cache.
func (s *ScanEngine) Cache() *Cache { return s.cache }

// Start accepts scans.
func (s *ScanEngine) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scan engine already running")
	}
	if s.ctx.Err() != nil {
		return ErrNotRunning
	}
	s.running = true
	s.logger.Infow("Scan engine started",
		"rate_limit", s.config.RateLimit,
		"max_outstanding", s.config.MaxOutstanding,
		"auto_complete", s.config.AutoComplete,
	)
	return nil
}

// Stop drops every outstanding scan without completing it and waits for
// in-flight completion handlers.
func (s *ScanEngine) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.logger.Info("Stopping scan engine")
	s.running = false
	for id, sc := range s.outstanding {
		if sc.timer != nil {
			sc.timer.Stop()
		}
		delete(s.outstanding, id)
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.logger.Info("Scan engine stopped")
}

// IsRunning returns whether the scan engine is currently running.
func (s *ScanEngine) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// IssueScan accepts req for execution. Over-limit requests fail with
// rrm.ErrResourceExhausted.
func (s *ScanEngine) IssueScan(_ context.Context, req rrm.ScanRequest) error {
	if len(req.Channels) == 0 {
		return fmt.Errorf("scan %d: %w", req.ID, rrm.ErrEmptyChannelSet)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}
	if _, dup := s.outstanding[req.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateScan, req.ID)
	}
	if s.config.MaxOutstanding > 0 && len(s.outstanding) >= s.config.MaxOutstanding {
		return fmt.Errorf("%w: %d scans outstanding", rrm.ErrResourceExhausted, len(s.outstanding))
	}
	now := s.clock.Now()
	if !s.limiter.AllowN(now, 1) {
		return fmt.Errorf("%w: scan rate limit reached", rrm.ErrResourceExhausted)
	}

	sc := &scan{req: req, issuedAt: now}
	s.outstanding[req.ID] = sc

	d := s.scanDuration(req)
	if s.config.AutoComplete {
		id := req.ID
		sc.timer = s.clock.AfterFunc(d, func() {
			if err := s.Complete(s.ctx, id, true); err != nil && !errors.Is(err, ErrUnknownScan) {
				s.logger.Warnw("Scan auto-completion failed", "scan_id", id, "error", err)
			}
		})
	}

	s.logger.Debugw("Scan accepted",
		"scan_id", req.ID,
		"connection_id", req.ConnectionID,
		"channels", len(req.Channels),
		"active", req.Active,
		"reduced_rest", req.ReducedRest,
		"expected_duration", d,
	)
	return nil
}

// CancelScan drops id. No completion is reported for it afterwards.
func (s *ScanEngine) CancelScan(_ context.Context, id rrm.ScanID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.outstanding[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownScan, id)
	}
	if sc.timer != nil {
		sc.timer.Stop()
	}
	delete(s.outstanding, id)
	s.logger.Debugw("Scan cancelled", "scan_id", id)
	return nil
}

// Complete finishes the outstanding scan id and notifies the handlers.
func (s *ScanEngine) Complete(ctx context.Context, id rrm.ScanID, success bool) error {
	s.mu.Lock()
	sc, ok := s.outstanding[id]
	if !ok || !s.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownScan, id)
	}
	if sc.timer != nil {
		sc.timer.Stop()
	}
	delete(s.outstanding, id)
	handlers := make([]CompletionHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	s.logger.Debugw("Scan completed",
		"scan_id", id,
		"success", success,
		"elapsed", s.clock.Now().Sub(sc.issuedAt),
	)

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, id, success); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Outstanding returns the ids of scans in flight.
func (s *ScanEngine) Outstanding() []rrm.ScanID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]rrm.ScanID, 0, len(s.outstanding))
	for id := range s.outstanding {
		ids = append(ids, id)
	}
	return ids
}

// Results returns the cached records matching f, oldest observation first.
func (s *ScanEngine) Results(_ context.Context, f rrm.Filter) ([]rrm.ScanRecord, error) {
	return s.cache.Select(f), nil
}

// AddObservations stores records seen by the radio.
func (s *ScanEngine) AddObservations(records []rrm.ScanRecord) int {
	return s.cache.Add(records)
}

func (s *ScanEngine) scanDuration(req rrm.ScanRequest) time.Duration {
	rest := s.config.ChannelRest
	if req.ReducedRest {
		rest = s.config.ReducedRest
	}
	n := time.Duration(len(req.Channels))
	return n*req.Dwell + (n-1)*rest
}
