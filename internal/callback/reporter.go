// Package callback delivers neighbor report results to an HTTP endpoint.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Reporter posts neighbor results to a callback URL.
type Reporter struct {
	url       string
	apiKey    string
	logger    *zap.SugaredLogger
	client    *http.Client
	sequence  int64 // Monotonic counter for idempotency
	delivered int64
}

// NeighborResult is the callback payload.
type NeighborResult struct {
	Collector      string           `json:"collector"`
	Sequence       int              `json:"sequence"`
	RequesterBSSID wlan.BSSID       `json:"requester_bssid"`
	Status         neighbor.Status  `json:"status"`
	Entries        []neighbor.Entry `json:"entries"`
	Timestamp      string           `json:"timestamp"`
}

// NewReporter creates a new callback reporter.
func NewReporter(url, apiKey string, timeout time.Duration, logger *zap.SugaredLogger) *Reporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reporter{
		url:    url,
		apiKey: apiKey,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// ReportNeighborResult sends res to the callback URL.
func (r *Reporter) ReportNeighborResult(ctx context.Context, res neighbor.Result) error {
	seq := atomic.AddInt64(&r.sequence, 1)

	entries := res.Entries
	if entries == nil {
		entries = []neighbor.Entry{}
	}
	payload := NeighborResult{
		Collector:      "rrm-engine",
		Sequence:       int(seq),
		RequesterBSSID: res.RequesterBSSID,
		Status:         res.Status,
		Entries:        entries,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}

	if err := r.sendCallback(ctx, payload); err != nil {
		return err
	}
	atomic.AddInt64(&r.delivered, 1)
	return nil
}

// Delivered returns the number of results accepted by the endpoint.
func (r *Reporter) Delivered() int {
	return int(atomic.LoadInt64(&r.delivered))
}

func (r *Reporter) sendCallback(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Warnw("Callback failed", "url", r.url, "error", err)
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		r.logger.Warnw("Callback returned error", "url", r.url, "status", resp.StatusCode)
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	r.logger.Debugw("Callback sent", "url", r.url, "status", resp.StatusCode)
	return nil
}
