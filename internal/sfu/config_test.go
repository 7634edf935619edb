package sfu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, DefaultAudioConfig().Validate())
	require.Less(t, DefaultAudioConfig().BufferSize, DefaultConfig().BufferSize)
}

func TestParseConfig(t *testing.T) {
	c, err := ParseConfig([]byte(`{"bufferSize": 64, "minResendIntervalMs": 40}`))
	require.NoError(t, err)
	require.Equal(t, 64, c.BufferSize)
	require.Equal(t, 40, c.MinResendInterval)
	// 未出现的字段保持默认值
	require.Equal(t, defaultMTU, c.MTU)
	require.True(t, c.DirectResendFallback)

	_, err = ParseConfig([]byte(`{"bufferSize": 40000}`))
	require.ErrorIs(t, err, errInvalidBufferSize)

	_, err = ParseConfig([]byte(`{"mtu": 8}`))
	require.ErrorIs(t, err, errInvalidMTU)

	_, err = ParseConfig([]byte(`{"rttSmoothing": 0}`))
	require.ErrorIs(t, err, errInvalidSmoothing)

	_, err = ParseConfig([]byte(`{`))
	require.Error(t, err)
}
