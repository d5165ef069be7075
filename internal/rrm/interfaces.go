package rrm

import (
	"context"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// ScanEngine issues radio scans and serves the BSS cache. Completions are
// reported back through Engine.ScanCompleted, exactly once per issued id,
// and never from inside IssueScan.
type ScanEngine interface {
	IssueScan(ctx context.Context, req ScanRequest) error
	CancelScan(ctx context.Context, id ScanID) error
	Results(ctx context.Context, f Filter) ([]ScanRecord, error)
}

// ConnectionManager maps requesters to connection contexts.
type ConnectionManager interface {
	ResolveSession(bssid wlan.BSSID) (ConnectionID, error)
	ConnectedBSSID(id ConnectionID) (wlan.BSSID, bool)
	// SendNeighborRequest transmits a neighbor report request frame.
	SendNeighborRequest(ctx context.Context, id ConnectionID, ssid string) error
}

// ReportSink delivers report fragments to the requester. Each fragment is
// handed over exactly once; the engine never retries.
type ReportSink interface {
	DeliverReportFragment(ctx context.Context, frag ReportFragment) error
}

// Regulatory is the channel view of the current regulatory domain.
type Regulatory interface {
	ValidChannels() []wlan.Channel
	IsValid(ch wlan.Channel) bool
	ClassChannels(class int) ([]wlan.Channel, error)
	Resolve(number, class int) wlan.Channel
}
