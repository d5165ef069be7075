package rrm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

func (e *Engine) handleBeaconRequest(ctx context.Context, req BeaconRequest) error {
	connID, err := e.conns.ResolveSession(req.RequesterBSSID)
	if err != nil {
		return fmt.Errorf("%w: requester %s: %v", ErrInvalidSession, req.RequesterBSSID, err)
	}

	index := e.cfg.DefaultIndex
	if req.Source == SourceLegacy {
		index = req.Index
	}
	if index < 0 || index >= e.sessions.Capacity() {
		return fmt.Errorf("%w: measurement index %d out of range", ErrInvalidSession, index)
	}

	if prev, ok := e.sessions.Get(index); ok {
		e.logger.Infow("Measurement index reused, replacing session",
			"index", index,
			"previous_requester", prev.RequesterBSSID,
			"previous_cursor", prev.Cursor,
		)
		e.teardown(ctx, prev)
	}

	if req.ChainStart {
		e.ledger.Reset(req.RequesterBSSID)
	}

	channels, chErr := BuildChannelList(req.Channels, e.reg, e.ledger, req.RequesterBSSID, req.ChainStart, e.logger)
	if chErr != nil && req.Source == SourceLegacy {
		e.logger.Infow("Dropping legacy measurement with no channels",
			"index", index,
			"requester", req.RequesterBSSID,
		)
		return nil
	}

	sess, err := e.sessions.Allocate(index)
	if err != nil {
		return err
	}
	sess.ConnectionID = connID
	sess.RequesterBSSID = req.RequesterBSSID
	sess.TargetBSSID = req.TargetBSSID
	sess.TargetSSID = req.TargetSSID
	sess.Channels = channels
	sess.Mode = req.Mode
	sess.Duration = req.Duration
	sess.RandomizationInterval = req.RandomizationInterval
	sess.DialogToken = req.DialogToken
	sess.RegulatoryClass = req.Channels.RegulatoryClass
	sess.Source = req.Source

	if chErr != nil {
		e.logger.Infow("No channels to measure, sending empty final report",
			"index", index,
			"requester", req.RequesterBSSID,
		)
		e.finishEmpty(ctx, sess)
		return nil
	}

	e.logger.Infow("Beacon measurement started",
		"index", index,
		"requester", req.RequesterBSSID,
		"mode", sess.Mode.String(),
		"source", sess.Source.String(),
		"channels", len(channels),
	)

	if sess.Mode == ModeCachedTable {
		e.runCachedTable(ctx, sess)
		return nil
	}
	e.startScanCycle(ctx, sess)
	return nil
}

// startScanCycle issues one scan covering every remaining channel.
func (e *Engine) startScanCycle(ctx context.Context, sess *Session) {
	now := e.clock.Now()
	remaining := sess.remaining()

	dwell := sess.Duration
	if dwell < e.cfg.MinDwell {
		dwell = e.cfg.MinDwell
	}
	reducedRest := len(remaining) == 1 &&
		!e.lastScanAt.IsZero() &&
		now.Sub(e.lastScanAt) < e.cfg.MinScanSpacing

	id := e.allocScanID()
	req := ScanRequest{
		ID:           id,
		ConnectionID: sess.ConnectionID,
		Channels:     remaining,
		Active:       sess.Mode == ModeActive,
		BSSID:        sess.TargetBSSID,
		SSID:         sess.TargetSSID,
		Dwell:        dwell,
		ReducedRest:  reducedRest,
	}

	if err := e.scanner.IssueScan(ctx, req); err != nil {
		e.logger.Errorw("Scan issuance failed, closing measurement",
			"index", sess.Index,
			"scan_id", id,
			"error", err,
		)
		e.finishEmpty(ctx, sess)
		return
	}

	e.lastScanAt = now
	sess.StartedAt = now
	sess.ActiveScanID = id
	sess.State = StateScanRequested

	if e.cfg.ScanTimeout > 0 {
		gen := sess.gen
		sess.watchdog = e.schedule(e.cfg.ScanTimeout, func() {
			e.onScanTimeout(e.ctx, sess, gen, id)
		})
	}

	e.logger.Debugw("Scan issued",
		"index", sess.Index,
		"scan_id", id,
		"channels", len(remaining),
		"dwell", dwell,
		"reduced_rest", reducedRest,
	)
}

func (e *Engine) handleScanCompleted(ctx context.Context, id ScanID, success bool) {
	sess, ok := e.sessions.ByScanID(id)
	if !ok {
		e.logger.Debugw("Ignoring scan completion", "scan_id", id, "error", ErrStaleCompletion)
		return
	}

	if sess.watchdog != nil {
		sess.watchdog.Stop()
		sess.watchdog = nil
	}
	sess.ActiveScanID = 0
	sess.State = StateScanCompleted
	if !success {
		e.logger.Warnw("Scan completed unsuccessfully, reporting cached results",
			"index", sess.Index,
			"scan_id", id,
		)
	}

	e.processChannel(ctx, sess)
	if sess.done() {
		e.release(sess)
		return
	}
	sess.State = StateIdle
	e.scheduleNextCycle(ctx, sess)
}

func (e *Engine) onScanTimeout(ctx context.Context, sess *Session, gen uint64, id ScanID) {
	if !e.owns(sess, gen) || sess.ActiveScanID != id {
		return
	}
	sess.watchdog = nil
	e.logger.Warnw("Scan completion overdue, cancelling scan",
		"index", sess.Index,
		"scan_id", id,
		"timeout", e.cfg.ScanTimeout,
	)
	if err := e.scanner.CancelScan(ctx, id); err != nil {
		e.logger.Warnw("Scan cancellation failed", "scan_id", id, "error", err)
	}
	e.handleScanCompleted(ctx, id, false)
}

// scheduleNextCycle starts the next scan now, or after a random delay within
// the randomization interval.
func (e *Engine) scheduleNextCycle(ctx context.Context, sess *Session) {
	if sess.RandomizationInterval <= 0 {
		e.startScanCycle(ctx, sess)
		return
	}

	delay := time.Duration(rand.Int64N(int64(sess.RandomizationInterval) + 1))
	gen := sess.gen
	sess.pacer = e.schedule(delay, func() {
		if !e.owns(sess, gen) {
			return
		}
		sess.pacer = nil
		e.startScanCycle(e.ctx, sess)
	})
}

// runCachedTable reports every channel straight from the cache. The
// process-wide scan marker is cleared so age checks pass unless
// CachedMaxAge is set.
func (e *Engine) runCachedTable(ctx context.Context, sess *Session) {
	e.lastScanAt = time.Time{}
	sess.StartedAt = e.lastScanAt
	for !sess.done() {
		sess.State = StateScanCompleted
		e.processChannel(ctx, sess)
	}
	e.release(sess)
}

// processChannel collects and emits the report for the current channel and
// advances the cursor.
func (e *Engine) processChannel(ctx context.Context, sess *Session) {
	ch := sess.current()
	last := sess.isLast()

	records, err := e.collect(ctx, sess, []wlan.Channel{ch})
	if err != nil {
		e.logger.Warnw("Result collection failed, reporting no entries",
			"index", sess.Index,
			"channel", ch.String(),
			"error", err,
		)
		records = nil
	}

	if err := e.dispatch(ctx, sess, ch, records, last); err != nil {
		e.logger.Errorw("Report delivery failed",
			"index", sess.Index,
			"channel", ch.String(),
			"error", err,
		)
	} else if !e.ledger.Record(sess.RequesterBSSID, ch) {
		e.logger.Debugw("Channel ledger full", "requester", sess.RequesterBSSID, "channel", ch.String())
	}
	sess.Cursor++
}

// finishEmpty sends the single empty final fragment and releases sess.
func (e *Engine) finishEmpty(ctx context.Context, sess *Session) {
	var ch wlan.Channel
	if !sess.done() {
		ch = sess.current()
	}
	if err := e.dispatch(ctx, sess, ch, nil, true); err != nil {
		e.logger.Errorw("Empty final report delivery failed", "index", sess.Index, "error", err)
	}
	e.release(sess)
}

func (e *Engine) release(sess *Session) {
	sess.stopTimers()
	sess.State = StateDone
	if cur, ok := e.sessions.Get(sess.Index); ok && cur == sess {
		e.sessions.Release(sess.Index)
	}
	e.logger.Infow("Beacon measurement finished",
		"index", sess.Index,
		"requester", sess.RequesterBSSID,
		"fragments", sess.sequence,
		"final_sent", sess.finalSent,
	)
}

// teardown cancels any outstanding scan for sess and frees its slot. A late
// completion for the cancelled id no longer matches any session.
func (e *Engine) teardown(ctx context.Context, sess *Session) {
	if sess.ActiveScanID != 0 {
		if err := e.scanner.CancelScan(ctx, sess.ActiveScanID); err != nil {
			e.logger.Warnw("Scan cancellation failed",
				"index", sess.Index,
				"scan_id", sess.ActiveScanID,
				"error", err,
			)
		}
		sess.ActiveScanID = 0
	}
	sess.gen++
	sess.stopTimers()
	sess.State = StateDone
	if cur, ok := e.sessions.Get(sess.Index); ok && cur == sess {
		e.sessions.Release(sess.Index)
	}
}

func (e *Engine) owns(sess *Session, gen uint64) bool {
	cur, ok := e.sessions.Get(sess.Index)
	return ok && cur == sess && sess.gen == gen
}

func (e *Engine) allocScanID() ScanID {
	e.nextScanID++
	if e.nextScanID == 0 {
		e.nextScanID++
	}
	return e.nextScanID
}

func (e *Engine) handleNeighborRequest(ctx context.Context, req neighbor.Request) error {
	connID, err := e.conns.ResolveSession(req.RequesterBSSID)
	if err != nil {
		return fmt.Errorf("%w: requester %s: %v", ErrInvalidSession, req.RequesterBSSID, err)
	}
	if err := e.neighbors.SubmitRequest(req); err != nil {
		return err
	}
	if err := e.conns.SendNeighborRequest(ctx, connID, req.SSID); err != nil {
		e.neighbors.Cancel()
		return fmt.Errorf("transmit neighbor request to %s: %w", req.RequesterBSSID, err)
	}
	return nil
}
