package rrm

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

func makeRecords(n int, ch wlan.Channel) []ScanRecord {
	out := make([]ScanRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, record(fmt.Sprintf("02:00:00:00:%02x:%02x", ch.Number, i), ch, t0))
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		k     int
		last  bool
		sizes []int
	}{
		{name: "empty last channel", n: 0, k: 4, last: true, sizes: []int{0}},
		{name: "empty middle channel", n: 0, k: 4, last: false, sizes: nil},
		{name: "under capacity", n: 3, k: 4, sizes: []int{3}},
		{name: "exact multiple", n: 8, k: 4, sizes: []int{4, 4}},
		{name: "remainder", n: 5, k: 4, last: true, sizes: []int{4, 1}},
		{name: "non-positive capacity", n: 2, k: 0, sizes: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Partition(makeRecords(tt.n, wlan.Ch2G(1)), tt.k, tt.last)
			var sizes []int
			for _, c := range chunks {
				sizes = append(sizes, len(c))
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestPartitionKeepsOrder(t *testing.T) {
	in := makeRecords(6, wlan.Ch2G(6))
	chunks := Partition(in, 4, false)

	var flat []ScanRecord
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, in, flat)
}

func TestEncodeLegacy(t *testing.T) {
	r := record("02:00:00:00:00:01", wlan.Ch5G(36), t0)
	r.RSSI = -200
	r.PhyType = 7
	r.BeaconInterval = 100
	r.Capability = 0x0431
	r.ParentTSF = 11
	r.TSF = 22

	out := encodeLegacy([]ScanRecord{r}, 100*1024*time.Microsecond)
	assert.Equal(t, []LegacyBeaconEntry{{
		ChannelNumber:       36,
		MeasurementDuration: 100,
		PhyType:             7,
		RecvSignalPower:     -128,
		BSSID:               r.BSSID,
		ParentTSF:           11,
		TargetTSF:           22,
		BeaconInterval:      100,
		CapabilityInfo:      0x0431,
	}}, out)

	assert.Nil(t, encodeLegacy(nil, time.Second))
}

func TestSelectResults(t *testing.T) {
	now := t0.Add(10 * time.Minute)
	marker := now.Add(-time.Minute)
	ch := wlan.Ch2G(6)

	fresh := record("02:00:00:00:00:01", ch, now.Add(-time.Second))
	stale := record("02:00:00:00:00:02", ch, t0)
	assoc := record(connected.String(), ch, t0)
	otherSSID := record("02:00:00:00:00:03", ch, now)
	otherSSID.SSID = "guest"
	otherChannel := record("02:00:00:00:00:04", wlan.Ch2G(1), now)
	dup := fresh
	dup.RSSI = -80

	raw := []ScanRecord{stale, fresh, assoc, otherSSID, otherChannel, dup}

	t.Run("marker and filter", func(t *testing.T) {
		f := Filter{SSID: "corp", Channels: []wlan.Channel{ch}}
		got := SelectResults(raw, f, connected, marker, now)
		assert.Equal(t, []ScanRecord{fresh, assoc}, got)
	})

	t.Run("max age", func(t *testing.T) {
		f := Filter{Channels: []wlan.Channel{ch}, MaxAge: 500 * time.Millisecond}
		got := SelectResults(raw, f, connected, time.Time{}, now)
		assert.Equal(t, []ScanRecord{assoc, otherSSID}, got)
	})

	t.Run("not associated", func(t *testing.T) {
		f := Filter{Channels: []wlan.Channel{ch}}
		got := SelectResults(raw, f, wlan.BSSID{}, marker, now)
		assert.Equal(t, []ScanRecord{fresh, otherSSID}, got)
	})

	t.Run("target bssid", func(t *testing.T) {
		f := Filter{BSSID: fresh.BSSID}
		got := SelectResults(raw, f, connected, marker, now)
		assert.Equal(t, []ScanRecord{fresh}, got)
	})

	t.Run("broadcast bssid is wildcard", func(t *testing.T) {
		f := Filter{BSSID: wlan.Broadcast, SSID: "corp", Channels: []wlan.Channel{ch}}
		got := SelectResults(raw, f, connected, marker, now)
		assert.Equal(t, []ScanRecord{fresh, assoc}, got)
	})
}

func TestSelectResultsMultipleBSSID(t *testing.T) {
	now := t0.Add(10 * time.Minute)
	ch := wlan.Ch5G(36)
	tx := wlan.MustParseBSSID("02:00:00:00:10:00")

	// Associated to a non-transmitted profile of tx.
	assoc := record(connected.String(), ch, t0)
	assoc.TransmitterBSSID = tx
	transmitted := record(tx.String(), ch, t0)
	sibling := record("02:00:00:00:10:02", ch, t0)
	sibling.TransmitterBSSID = tx
	unrelated := record("02:00:00:00:20:00", ch, t0)

	got := SelectResults([]ScanRecord{assoc, transmitted, sibling, unrelated}, Filter{}, connected, now, now)
	assert.Equal(t, []ScanRecord{assoc, transmitted, sibling}, got)
}
