// Package rrm implements the radio measurement scheduling engine: beacon
// report requests are resolved into channel lists, turned into scans, and
// answered with bounded report fragments; neighbor report requests are run
// through the neighbor subsystem on the same dispatch queue.
package rrm

import (
	"fmt"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// ScanMode is the 802.11k beacon request measurement mode.
type ScanMode int

const (
	ModePassive ScanMode = iota
	ModeActive
	ModeCachedTable
)

func (m ScanMode) String() string {
	switch m {
	case ModePassive:
		return "passive"
	case ModeActive:
		return "active"
	case ModeCachedTable:
		return "table"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseScanMode accepts the names produced by String.
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "passive":
		return ModePassive, nil
	case "active", "":
		return ModeActive, nil
	case "table", "cached", "beacon_table":
		return ModeCachedTable, nil
	default:
		return 0, fmt.Errorf("unknown scan mode %q", s)
	}
}

// MessageSource selects the report encoding.
type MessageSource int

const (
	// Source11k requests come from 802.11k radio measurement frames.
	Source11k MessageSource = iota
	// SourceLegacy requests come from the vendor upload extension, which
	// carries its own measurement index and a fixed per-entry layout.
	SourceLegacy
)

func (s MessageSource) String() string {
	if s == SourceLegacy {
		return "legacy"
	}
	return "11k"
}

// ParseMessageSource accepts the names produced by String.
func ParseMessageSource(s string) (MessageSource, error) {
	switch s {
	case "11k", "":
		return Source11k, nil
	case "legacy":
		return SourceLegacy, nil
	default:
		return 0, fmt.Errorf("unknown message source %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s MessageSource) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ScanID correlates an issued scan with its completion. Zero means unset.
type ScanID uint32

// ConnectionID identifies the connection context owning a requester BSSID.
type ConnectionID int

// ChannelSpec is the channel part of a beacon request.
type ChannelSpec struct {
	// All requests every channel valid in the current domain, optionally
	// narrowed by RegulatoryClass.
	All             bool
	Numbers         []int
	RegulatoryClass int
}

// BeaconRequest is a parsed beacon report request.
type BeaconRequest struct {
	RequesterBSSID wlan.BSSID
	// Index is honoured for SourceLegacy only; 11k requests use the
	// configured default index.
	Index                 int
	TargetBSSID           wlan.BSSID
	TargetSSID            string
	Channels              ChannelSpec
	Mode                  ScanMode
	Duration              time.Duration
	RandomizationInterval time.Duration
	DialogToken           uint8
	Source                MessageSource
	// ChainStart marks the first request of a requester chain and clears the
	// channels recorded for that requester.
	ChainStart bool
}

// ScanRecord is one BSS from the scan cache.
type ScanRecord struct {
	BSSID wlan.BSSID `json:"bssid"`
	// TransmitterBSSID is the transmitting BSSID of a multi-BSSID set, zero
	// when the BSS is not part of one.
	TransmitterBSSID wlan.BSSID   `json:"transmitter_bssid,omitempty"`
	SSID             string       `json:"ssid"`
	Channel          wlan.Channel `json:"channel"`
	RSSI             int          `json:"rssi"`
	RCPI             uint8        `json:"rcpi"`
	RSNI             uint8        `json:"rsni"`
	PhyType          uint8        `json:"phy_type"`
	BeaconInterval   uint16       `json:"beacon_interval"`
	Capability       uint16       `json:"capability"`
	ParentTSF        uint32       `json:"parent_tsf"`
	TSF              uint64       `json:"tsf"`
	Timestamp        time.Time    `json:"timestamp"`
	IEs              []byte       `json:"ies,omitempty"`
}

// LegacyBeaconEntry is the fixed per-entry layout of vendor extension
// reports.
type LegacyBeaconEntry struct {
	ChannelNumber       uint8      `json:"channel_number"`
	Spare               uint8      `json:"spare"`
	MeasurementDuration uint16     `json:"measurement_duration"`
	PhyType             uint8      `json:"phy_type"`
	RecvSignalPower     int8       `json:"recv_signal_power"`
	BSSID               wlan.BSSID `json:"bssid"`
	ParentTSF           uint32     `json:"parent_tsf"`
	TargetTSF           uint64     `json:"target_tsf"`
	BeaconInterval      uint16     `json:"beacon_interval"`
	CapabilityInfo      uint16     `json:"capability_info"`
}

// ReportFragment is one bounded piece of a session's report.
type ReportFragment struct {
	SessionIndex    int                 `json:"session_index"`
	ConnectionID    ConnectionID        `json:"connection_id"`
	RequesterBSSID  wlan.BSSID          `json:"requester_bssid"`
	DialogToken     uint8               `json:"dialog_token"`
	RegulatoryClass int                 `json:"regulatory_class"`
	Channel         wlan.Channel        `json:"channel"`
	Source          MessageSource       `json:"source"`
	Sequence        int                 `json:"sequence"`
	Entries         []ScanRecord        `json:"entries,omitempty"`
	Legacy          []LegacyBeaconEntry `json:"legacy_entries,omitempty"`
	IsFinal         bool                `json:"is_final"`
}

// Len returns the number of entries regardless of encoding.
func (f ReportFragment) Len() int {
	if f.Source == SourceLegacy {
		return len(f.Legacy)
	}
	return len(f.Entries)
}

// ScanRequest is handed to the Scan Engine.
type ScanRequest struct {
	ID           ScanID
	ConnectionID ConnectionID
	Channels     []wlan.Channel
	Active       bool
	BSSID        wlan.BSSID
	SSID         string
	Dwell        time.Duration
	// ReducedRest asks the Scan Engine to skip idle and rest time between
	// channels for a latency-sensitive single-channel measurement.
	ReducedRest bool
}

// Filter selects scan records.
type Filter struct {
	BSSID    wlan.BSSID
	SSID     string
	Channels []wlan.Channel
	// MaxAge bounds record age; zero disables the bound.
	MaxAge time.Duration
}

// Match reports whether r passes the BSSID, SSID and channel parts of the
// filter. Age is judged by the collector.
func (f Filter) Match(r ScanRecord) bool {
	if !f.BSSID.IsWildcard() && r.BSSID != f.BSSID {
		return false
	}
	if f.SSID != "" && r.SSID != f.SSID {
		return false
	}
	if len(f.Channels) == 0 {
		return true
	}
	freq := r.Channel.Freq()
	for _, ch := range f.Channels {
		if ch.Freq() == freq {
			return true
		}
	}
	return false
}
