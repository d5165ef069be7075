package rrm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/clock"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/regdomain"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	t0         = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	requester  = wlan.MustParseBSSID("02:11:11:11:11:01")
	connected  = wlan.MustParseBSSID("02:11:11:11:11:01")
	otherPeer  = wlan.MustParseBSSID("02:22:22:22:22:02")
	unknownReq = wlan.MustParseBSSID("02:99:99:99:99:99")
)

// -- Mock Implementations for Testing --

type fakeScanner struct {
	mu         sync.Mutex
	issued     []ScanRequest
	cancelled  []ScanID
	issueErr   error
	resultsErr error
	records    []ScanRecord
}

func (f *fakeScanner) IssueScan(_ context.Context, req ScanRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return f.issueErr
	}
	f.issued = append(f.issued, req)
	return nil
}

func (f *fakeScanner) CancelScan(_ context.Context, id ScanID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScanner) Results(_ context.Context, filter Filter) ([]ScanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	var out []ScanRecord
	for _, r := range f.records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeScanner) setRecords(records ...ScanRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
}

func (f *fakeScanner) issuedScans() []ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ScanRequest, len(f.issued))
	copy(out, f.issued)
	return out
}

func (f *fakeScanner) cancelledScans() []ScanID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ScanID, len(f.cancelled))
	copy(out, f.cancelled)
	return out
}

func (f *fakeScanner) lastScan(t *testing.T) ScanRequest {
	t.Helper()
	scans := f.issuedScans()
	require.NotEmpty(t, scans, "expected at least one issued scan")
	return scans[len(scans)-1]
}

type fakeConns struct {
	mu        sync.Mutex
	sessions  map[wlan.BSSID]ConnectionID
	connected map[ConnectionID]wlan.BSSID
	sendErr   error
	sent      []string
}

func newFakeConns() *fakeConns {
	return &fakeConns{
		sessions:  map[wlan.BSSID]ConnectionID{requester: 1, otherPeer: 2},
		connected: map[ConnectionID]wlan.BSSID{1: connected},
	}
}

func (f *fakeConns) ResolveSession(bssid wlan.BSSID) (ConnectionID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.sessions[bssid]
	if !ok {
		return 0, errors.New("no connection")
	}
	return id, nil
}

func (f *fakeConns) ConnectedBSSID(id ConnectionID) (wlan.BSSID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.connected[id]
	return b, ok
}

func (f *fakeConns) SendNeighborRequest(_ context.Context, _ ConnectionID, ssid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ssid)
	return nil
}

type fakeSink struct {
	mu       sync.Mutex
	frags    []ReportFragment
	attempts int
	fail     func(attempt int, frag ReportFragment) error
}

func (f *fakeSink) DeliverReportFragment(_ context.Context, frag ReportFragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.fail != nil {
		if err := f.fail(f.attempts, frag); err != nil {
			return err
		}
	}
	f.frags = append(f.frags, frag)
	return nil
}

func (f *fakeSink) fragments() []ReportFragment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ReportFragment, len(f.frags))
	copy(out, f.frags)
	return out
}

// -- Harness --

type harness struct {
	engine  *Engine
	scanner *fakeScanner
	conns   *fakeConns
	sink    *fakeSink
	clock   *clock.Fake
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := regdomain.New("US")
	require.NoError(t, err)

	h := &harness{
		scanner: &fakeScanner{},
		conns:   newFakeConns(),
		sink:    &fakeSink{},
		clock:   clock.NewFake(t0),
	}
	h.engine, err = New(cfg, neighbor.Config{DefaultTimeout: time.Second, Weights: neighbor.DefaultWeights()}, Deps{
		Scanner:    h.scanner,
		Conns:      h.conns,
		Sink:       h.sink,
		Regulatory: reg,
		Clock:      h.clock,
		Logger:     zap.NewNop().Sugar(),
	})
	require.NoError(t, err)
	require.NoError(t, h.engine.Start())
	t.Cleanup(h.engine.Stop)
	return h
}

// flush waits for every event queued so far to be processed.
func (h *harness) flush(t *testing.T) Status {
	t.Helper()
	st, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	return st
}

func (h *harness) complete(t *testing.T, id ScanID) {
	t.Helper()
	require.NoError(t, h.engine.ScanCompleted(context.Background(), id, true))
}

func record(bssid string, ch wlan.Channel, ts time.Time) ScanRecord {
	return ScanRecord{
		BSSID:     wlan.MustParseBSSID(bssid),
		SSID:      "corp",
		Channel:   ch,
		RSSI:      -55,
		Timestamp: ts,
	}
}
