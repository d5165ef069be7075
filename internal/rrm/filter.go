package rrm

import (
	"context"
	"fmt"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// collect pulls the records to report for sess on channels.
func (e *Engine) collect(ctx context.Context, sess *Session, channels []wlan.Channel) ([]ScanRecord, error) {
	f := Filter{
		BSSID:    sess.TargetBSSID,
		SSID:     sess.TargetSSID,
		Channels: channels,
	}
	if sess.Mode == ModeCachedTable {
		f.MaxAge = e.cfg.CachedMaxAge
	}

	raw, err := e.scanner.Results(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("fetch scan results for session %d: %w", sess.Index, err)
	}

	connected, _ := e.conns.ConnectedBSSID(sess.ConnectionID)
	return SelectResults(raw, f, connected, sess.StartedAt, e.clock.Now()), nil
}

// SelectResults applies f to raw and keeps, in order and once per BSSID,
// the records cached at or after marker and within f.MaxAge of now. Records
// of the connected BSS, and of any BSS sharing its multi-BSSID transmitter,
// skip the time checks: the connected AP is not re-inserted into the cache
// while associated.
func SelectResults(raw []ScanRecord, f Filter, connected wlan.BSSID, marker, now time.Time) []ScanRecord {
	transmitter := connectedTransmitter(raw, connected)

	seen := make(map[wlan.BSSID]struct{}, len(raw))
	out := make([]ScanRecord, 0, len(raw))
	for _, r := range raw {
		if !f.Match(r) {
			continue
		}
		if _, dup := seen[r.BSSID]; dup {
			continue
		}
		if !isConnectedBSS(r, connected, transmitter) {
			if r.Timestamp.Before(marker) {
				continue
			}
			if f.MaxAge > 0 && now.Sub(r.Timestamp) > f.MaxAge {
				continue
			}
		}
		seen[r.BSSID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// connectedTransmitter returns the multi-BSSID transmitter of the connected
// BSS, which is the connected BSSID itself when it is not a non-transmitted
// profile.
func connectedTransmitter(raw []ScanRecord, connected wlan.BSSID) wlan.BSSID {
	if connected.IsZero() {
		return wlan.BSSID{}
	}
	for _, r := range raw {
		if r.BSSID == connected && !r.TransmitterBSSID.IsZero() {
			return r.TransmitterBSSID
		}
	}
	return connected
}

func isConnectedBSS(r ScanRecord, connected, transmitter wlan.BSSID) bool {
	if connected.IsZero() {
		return false
	}
	if r.BSSID == connected || r.BSSID == transmitter {
		return true
	}
	return !r.TransmitterBSSID.IsZero() && r.TransmitterBSSID == transmitter
}
