package regdomain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

func TestNewUnknownCountry(t *testing.T) {
	_, err := New("ZZ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCountry)
}

func TestValidChannels(t *testing.T) {
	us, err := New("us")
	require.NoError(t, err)
	assert.Equal(t, "US", us.Country())

	assert.True(t, us.IsValid(wlan.Ch2G(11)))
	assert.False(t, us.IsValid(wlan.Ch2G(13)), "channel 13 is not usable in the US")
	assert.True(t, us.IsValid(wlan.Ch5G(165)))

	eu, err := New("DE")
	require.NoError(t, err)
	assert.True(t, eu.IsValid(wlan.Ch2G(13)))
	assert.False(t, eu.IsValid(wlan.Ch5G(144)))

	chs := us.ValidChannels()
	chs[0] = wlan.Ch5G(999)
	assert.Equal(t, wlan.Ch2G(1), us.ValidChannels()[0], "ValidChannels must return a copy")
}

func TestClassChannels(t *testing.T) {
	us, err := New("US")
	require.NoError(t, err)

	t.Run("country table", func(t *testing.T) {
		chs, err := us.ClassChannels(1)
		require.NoError(t, err)
		assert.Equal(t, []wlan.Channel{wlan.Ch5G(36), wlan.Ch5G(40), wlan.Ch5G(44), wlan.Ch5G(48)}, chs)
	})

	t.Run("global fallback", func(t *testing.T) {
		chs, err := us.ClassChannels(81)
		require.NoError(t, err)
		assert.Len(t, chs, 13)
	})

	t.Run("6 GHz forces global", func(t *testing.T) {
		jp, err := New("JP")
		require.NoError(t, err)
		chs, err := jp.ClassChannels(131)
		require.NoError(t, err)
		assert.Equal(t, wlan.Band6G, chs[0].Band)
		assert.Equal(t, 233, chs[len(chs)-1].Number)
	})

	t.Run("every 6 GHz class resolves", func(t *testing.T) {
		for class := 131; class <= 137; class++ {
			require.True(t, Is6GHzClass(class))
			chs, err := us.ClassChannels(class)
			require.NoError(t, err, "class %d", class)
			require.NotEmpty(t, chs, "class %d", class)
			assert.Equal(t, wlan.Band6G, chs[0].Band)
		}
		chs, err := us.ClassChannels(136)
		require.NoError(t, err)
		assert.Equal(t, []wlan.Channel{wlan.Ch6G(2)}, chs)
		assert.False(t, Is6GHzClass(138))
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := us.ClassChannels(250)
		assert.ErrorIs(t, err, ErrUnknownClass)
	})
}

func TestResolve(t *testing.T) {
	us, err := New("US")
	require.NoError(t, err)

	assert.Equal(t, wlan.Ch2G(6), us.Resolve(6, 0))
	assert.Equal(t, wlan.Ch5G(36), us.Resolve(36, 0))
	assert.Equal(t, wlan.Ch6G(5), us.Resolve(5, 131))
	assert.Equal(t, wlan.Ch2G(1), us.Resolve(1, 81))
}
