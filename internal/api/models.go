package api

import (
	"fmt"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/neighbor"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/rrm"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// timeUnit is the 802.11 time unit.
const timeUnit = 1024 * time.Microsecond

// BeaconRequest is the body of POST /api/v1/rrm/beacon. Durations are in
// time units of 1024 microseconds, as carried in the measurement frame.
type BeaconRequest struct {
	RequesterBSSID        string `json:"requester_bssid" binding:"required"`
	Index                 int    `json:"index" binding:"gte=0"`
	TargetBSSID           string `json:"target_bssid"`
	TargetSSID            string `json:"target_ssid" binding:"max=32"`
	Channels              []int  `json:"channels" binding:"dive,gte=0,lte=255"`
	AllChannels           bool   `json:"all_channels"`
	RegulatoryClass       int    `json:"regulatory_class" binding:"gte=0,lte=255"`
	Mode                  string `json:"mode" binding:"omitempty,oneof=passive active table cached beacon_table"`
	DurationTU            int    `json:"duration_tu" binding:"gte=0,lte=65535"`
	RandomizationInterval int    `json:"randomization_interval_tu" binding:"gte=0,lte=65535"`
	DialogToken           uint8  `json:"dialog_token"`
	Source                string `json:"source" binding:"omitempty,oneof=11k legacy"`
	ChainStart            bool   `json:"chain_start"`
}

func (b BeaconRequest) toRequest() (rrm.BeaconRequest, error) {
	requester, err := wlan.ParseBSSID(b.RequesterBSSID)
	if err != nil {
		return rrm.BeaconRequest{}, err
	}
	if requester.IsWildcard() {
		return rrm.BeaconRequest{}, fmt.Errorf("requester bssid %q is not a unicast address", b.RequesterBSSID)
	}
	target, err := wlan.ParseBSSID(b.TargetBSSID)
	if err != nil {
		return rrm.BeaconRequest{}, err
	}
	mode, err := rrm.ParseScanMode(b.Mode)
	if err != nil {
		return rrm.BeaconRequest{}, err
	}
	source, err := rrm.ParseMessageSource(b.Source)
	if err != nil {
		return rrm.BeaconRequest{}, err
	}
	if !b.AllChannels && len(b.Channels) == 0 {
		return rrm.BeaconRequest{}, fmt.Errorf("channels or all_channels is required")
	}

	return rrm.BeaconRequest{
		RequesterBSSID: requester,
		Index:          b.Index,
		TargetBSSID:    target,
		TargetSSID:     b.TargetSSID,
		Channels: rrm.ChannelSpec{
			All:             b.AllChannels,
			Numbers:         b.Channels,
			RegulatoryClass: b.RegulatoryClass,
		},
		Mode:                  mode,
		Duration:              time.Duration(b.DurationTU) * timeUnit,
		RandomizationInterval: time.Duration(b.RandomizationInterval) * timeUnit,
		DialogToken:           b.DialogToken,
		Source:                source,
		ChainStart:            b.ChainStart,
	}, nil
}

// NeighborRequest is the body of POST /api/v1/rrm/neighbor.
type NeighborRequest struct {
	RequesterBSSID string `json:"requester_bssid" binding:"required"`
	SSID           string `json:"ssid" binding:"max=32"`
	TimeoutMS      int    `json:"timeout_ms" binding:"gte=0"`
}

// NeighborReport is the body of POST /api/v1/rrm/neighbor/report.
type NeighborReport struct {
	RequesterBSSID string           `json:"requester_bssid"`
	FastTransition bool             `json:"fast_transition"`
	Entries        []neighbor.Entry `json:"entries"`
}

// ScanComplete is the body of POST /api/v1/scan/complete.
type ScanComplete struct {
	ScanID  rrm.ScanID `json:"scan_id" binding:"required"`
	Success *bool      `json:"success"`
}

// Observations is the body of POST /api/v1/scan/observations.
type Observations struct {
	Records []rrm.ScanRecord `json:"records" binding:"required,min=1"`
}

// RegisterConnection is the body of POST /api/v1/connections.
type RegisterConnection struct {
	PeerBSSID      string `json:"peer_bssid" binding:"required"`
	ConnectedBSSID string `json:"connected_bssid"`
	Interface      string `json:"interface"`
}
