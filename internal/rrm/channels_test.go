package rrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/regdomain"
	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

func TestBuildChannelList(t *testing.T) {
	reg, err := regdomain.New("US")
	require.NoError(t, err)
	logger := zap.NewNop().Sugar()

	tests := []struct {
		name    string
		spec    ChannelSpec
		want    []wlan.Channel
		wantErr error
	}{
		{
			name: "wildcard narrowed by operating class",
			spec: ChannelSpec{All: true, RegulatoryClass: 1},
			want: []wlan.Channel{wlan.Ch5G(36), wlan.Ch5G(40), wlan.Ch5G(44), wlan.Ch5G(48)},
		},
		{
			name: "explicit list drops invalid and duplicate channels",
			spec: ChannelSpec{Numbers: []int{6, 13, 1, 6, 200}},
			want: []wlan.Channel{wlan.Ch2G(6), wlan.Ch2G(1)},
		},
		{
			name: "6 GHz class resolves band",
			spec: ChannelSpec{Numbers: []int{1, 5}, RegulatoryClass: 131},
			want: []wlan.Channel{wlan.Ch6G(1), wlan.Ch6G(5)},
		},
		{
			name:    "unknown class yields nothing",
			spec:    ChannelSpec{All: true, RegulatoryClass: 250},
			wantErr: ErrEmptyChannelSet,
		},
		{
			name:    "empty explicit list",
			spec:    ChannelSpec{},
			wantErr: ErrEmptyChannelSet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildChannelList(tt.spec, reg, NewLedger(0), requester, true, logger)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildChannelListWildcardCoversDomain(t *testing.T) {
	reg, err := regdomain.New("US")
	require.NoError(t, err)

	got, err := BuildChannelList(ChannelSpec{All: true}, reg, NewLedger(0), requester, true, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, reg.ValidChannels(), got)
}

func TestBuildChannelListSkipsLedger(t *testing.T) {
	reg, err := regdomain.New("US")
	require.NoError(t, err)
	logger := zap.NewNop().Sugar()

	ledger := NewLedger(0)
	require.True(t, ledger.Record(requester, wlan.Ch2G(6)))

	spec := ChannelSpec{Numbers: []int{1, 6, 11}}

	got, err := BuildChannelList(spec, reg, ledger, requester, false, logger)
	require.NoError(t, err)
	assert.Equal(t, []wlan.Channel{wlan.Ch2G(1), wlan.Ch2G(11)}, got)

	got, err = BuildChannelList(spec, reg, ledger, otherPeer, false, logger)
	require.NoError(t, err)
	assert.Len(t, got, 3, "ledger is per requester")

	got, err = BuildChannelList(spec, reg, ledger, requester, true, logger)
	require.NoError(t, err)
	assert.Len(t, got, 3, "the first session of a chain ignores the ledger")

	_, err = BuildChannelList(ChannelSpec{Numbers: []int{6}}, reg, ledger, requester, false, logger)
	assert.ErrorIs(t, err, ErrEmptyChannelSet)
}

func TestLedgerCapacity(t *testing.T) {
	ledger := NewLedger(2)

	assert.True(t, ledger.Record(requester, wlan.Ch2G(1)))
	assert.True(t, ledger.Record(requester, wlan.Ch2G(6)))
	assert.True(t, ledger.Record(requester, wlan.Ch2G(6)), "duplicate counts as recorded")
	assert.False(t, ledger.Record(requester, wlan.Ch2G(11)))
	assert.False(t, ledger.Contains(requester, wlan.Ch2G(11)))

	ledger.Reset(requester)
	assert.Empty(t, ledger.Channels(requester))
	assert.True(t, ledger.Record(requester, wlan.Ch2G(11)))
}
