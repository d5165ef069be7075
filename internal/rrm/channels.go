package rrm

import (
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

// BuildChannelList resolves spec into an ordered, deduplicated list of
// channels valid in reg. Unless first is set, channels already recorded in
// the ledger for requester are removed. ErrEmptyChannelSet is returned when
// nothing remains.
func BuildChannelList(spec ChannelSpec, reg Regulatory, ledger *Ledger, requester wlan.BSSID, first bool, logger *zap.SugaredLogger) ([]wlan.Channel, error) {
	var candidates []wlan.Channel

	if spec.All {
		candidates = reg.ValidChannels()
		if spec.RegulatoryClass != 0 {
			classChannels, err := reg.ClassChannels(spec.RegulatoryClass)
			if err != nil {
				logger.Infow("Unknown regulatory class in wildcard request",
					"class", spec.RegulatoryClass,
					"error", err,
				)
			}
			candidates = intersect(candidates, classChannels)
		}
	} else {
		for _, n := range spec.Numbers {
			ch := reg.Resolve(n, spec.RegulatoryClass)
			if !reg.IsValid(ch) {
				logger.Infow("Dropping channel not valid in regulatory domain",
					"channel", ch.String(),
					"class", spec.RegulatoryClass,
				)
				continue
			}
			candidates = append(candidates, ch)
		}
	}

	seen := make(map[int]struct{}, len(candidates))
	out := make([]wlan.Channel, 0, len(candidates))
	for _, ch := range candidates {
		if _, dup := seen[ch.Freq()]; dup {
			continue
		}
		seen[ch.Freq()] = struct{}{}
		if !first && ledger.Contains(requester, ch) {
			logger.Debugw("Channel already reported in this chain",
				"channel", ch.String(),
				"requester", requester,
			)
			continue
		}
		out = append(out, ch)
	}

	if len(out) == 0 {
		return nil, ErrEmptyChannelSet
	}
	return out, nil
}

func intersect(base, allowed []wlan.Channel) []wlan.Channel {
	set := make(map[int]struct{}, len(allowed))
	for _, ch := range allowed {
		set[ch.Freq()] = struct{}{}
	}
	out := make([]wlan.Channel, 0, len(base))
	for _, ch := range base {
		if _, ok := set[ch.Freq()]; ok {
			out = append(out, ch)
		}
	}
	return out
}
