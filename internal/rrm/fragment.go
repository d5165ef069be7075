package rrm

import (
	"context"
	"fmt"
	"time"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// Partition splits records into chunks of at most k. When last is set and
// there are no records, a single empty chunk is returned so the final
// marker still goes out; otherwise no records means no chunks.
func Partition(records []ScanRecord, k int, last bool) [][]ScanRecord {
	if k <= 0 {
		k = 1
	}
	if len(records) == 0 {
		if last {
			return [][]ScanRecord{nil}
		}
		return nil
	}
	chunks := make([][]ScanRecord, 0, (len(records)+k-1)/k)
	for start := 0; start < len(records); start += k {
		end := start + k
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

// dispatch emits the fragments for one channel of sess. When last is set
// the final fragment carries the completion marker. A delivery failure
// aborts the remaining fragments of this channel.
func (e *Engine) dispatch(ctx context.Context, sess *Session, ch wlan.Channel, records []ScanRecord, last bool) error {
	chunks := Partition(records, e.cfg.FragmentCapacity, last)
	for i, chunk := range chunks {
		sess.sequence++
		frag := ReportFragment{
			SessionIndex:    sess.Index,
			ConnectionID:    sess.ConnectionID,
			RequesterBSSID:  sess.RequesterBSSID,
			DialogToken:     sess.DialogToken,
			RegulatoryClass: sess.RegulatoryClass,
			Channel:         ch,
			Source:          sess.Source,
			Sequence:        sess.sequence,
			IsFinal:         last && i == len(chunks)-1,
		}
		if sess.Source == SourceLegacy {
			frag.Legacy = encodeLegacy(chunk, sess.Duration)
		} else {
			frag.Entries = chunk
		}

		if err := e.sink.DeliverReportFragment(ctx, frag); err != nil {
			return fmt.Errorf("deliver fragment %d/%d of session %d channel %s: %w",
				i+1, len(chunks), sess.Index, ch, err)
		}
		if frag.IsFinal {
			sess.finalSent = true
		}

		e.logger.Debugw("Report fragment delivered",
			"index", sess.Index,
			"channel", ch.String(),
			"sequence", frag.Sequence,
			"entries", frag.Len(),
			"final", frag.IsFinal,
		)
	}
	return nil
}

func encodeLegacy(records []ScanRecord, duration time.Duration) []LegacyBeaconEntry {
	if len(records) == 0 {
		return nil
	}
	tu := uint16(duration / (1024 * time.Microsecond))
	out := make([]LegacyBeaconEntry, 0, len(records))
	for _, r := range records {
		out = append(out, LegacyBeaconEntry{
			ChannelNumber:       uint8(r.Channel.Number),
			MeasurementDuration: tu,
			PhyType:             r.PhyType,
			RecvSignalPower:     clampInt8(r.RSSI),
			BSSID:               r.BSSID,
			ParentTSF:           r.ParentTSF,
			TargetTSF:           r.TSF,
			BeaconInterval:      r.BeaconInterval,
			CapabilityInfo:      r.Capability,
		})
	}
	return out
}

func clampInt8(v int) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}
