package rrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScanMode(t *testing.T) {
	for in, want := range map[string]ScanMode{
		"":             ModeActive,
		"active":       ModeActive,
		"passive":      ModePassive,
		"table":        ModeCachedTable,
		"beacon_table": ModeCachedTable,
	} {
		got, err := ParseScanMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseScanMode("burst")
	assert.Error(t, err)

	for _, m := range []ScanMode{ModePassive, ModeActive, ModeCachedTable} {
		got, err := ParseScanMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestParseMessageSource(t *testing.T) {
	got, err := ParseMessageSource("legacy")
	require.NoError(t, err)
	assert.Equal(t, SourceLegacy, got)

	got, err = ParseMessageSource("")
	require.NoError(t, err)
	assert.Equal(t, Source11k, got)

	_, err = ParseMessageSource("ccx")
	assert.Error(t, err)
}

func TestFragmentLen(t *testing.T) {
	f := ReportFragment{Entries: make([]ScanRecord, 3)}
	assert.Equal(t, 3, f.Len())

	f = ReportFragment{Source: SourceLegacy, Legacy: make([]LegacyBeaconEntry, 2), Entries: make([]ScanRecord, 3)}
	assert.Equal(t, 2, f.Len())
}
