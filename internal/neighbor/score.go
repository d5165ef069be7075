package neighbor

// Weights are the per-capability roam score contributions.
type Weights struct {
	MobilityDomain    int `mapstructure:"mobility_domain"`
	Security          int `mapstructure:"security"`
	KeyScope          int `mapstructure:"key_scope"`
	RRM               int `mapstructure:"rrm"`
	SpectrumMgmt      int `mapstructure:"spectrum_mgmt"`
	QoS               int `mapstructure:"qos"`
	APSD              int `mapstructure:"apsd"`
	DelayedBlockAck   int `mapstructure:"delayed_block_ack"`
	ImmediateBlockAck int `mapstructure:"immediate_block_ack"`
	PreauthReachable  int `mapstructure:"preauth_reachable"`
	// NonFastTransition is granted to APs reported over a connection that is
	// not an 802.11r association and whose mobility domain does not match.
	NonFastTransition int `mapstructure:"non_fast_transition"`
}

// DefaultWeights returns the stock scoring table.
func DefaultWeights() Weights {
	return Weights{
		MobilityDomain:    30,
		Security:          10,
		KeyScope:          20,
		RRM:               8,
		SpectrumMgmt:      0,
		QoS:               5,
		APSD:              3,
		DelayedBlockAck:   0,
		ImmediateBlockAck: 3,
		PreauthReachable:  30,
		NonFastTransition: 30,
	}
}

// Score computes the roam score for a set of capabilities. Each gate in the
// chain mobility domain, security, key scope, RRM must hold for the next to
// count; the remaining bonuses are independent once RRM capability is present.
func Score(caps Capabilities, fastTransition bool, w Weights) int {
	if !caps.MobilityDomain {
		if !fastTransition {
			return w.NonFastTransition
		}
		return 0
	}

	score := w.MobilityDomain
	if !caps.SecurityMatch {
		return score
	}
	score += w.Security
	if !caps.KeyScope {
		return score
	}
	score += w.KeyScope
	if !caps.RRM {
		return score
	}
	score += w.RRM

	if caps.SpectrumMgmt {
		score += w.SpectrumMgmt
	}
	if caps.QoS {
		score += w.QoS
	}
	if caps.APSD {
		score += w.APSD
	}
	if caps.DelayedBlockAck {
		score += w.DelayedBlockAck
	}
	if caps.ImmediateBlockAck {
		score += w.ImmediateBlockAck
	}
	if caps.PreauthReachable {
		score += w.PreauthReachable
	}
	return score
}
