package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFillsDefaultsFromEmptyInput(t *testing.T) {
	c, err := New(nil)
	require.NoError(t, err)

	require.Equal(t, DefaultRTPListenAddr, c.RTPListenAddr)
	require.Equal(t, DefaultHTTPListenAddr, c.HTTPListenAddr)
	require.Equal(t, DefaultArchiveLimitSecs, c.ArchiveLimitSeconds)
	require.Equal(t, DefaultVideoSamplesPerPart, c.VideoSamplesPerPart)
	require.Equal(t, DefaultFrameRate, c.FrameRate)
}

func TestNewPreservesExplicitValues(t *testing.T) {
	yaml := []byte(`
rtpListenAddr: ":9554"
httpListenAddr: ":9080"
archiveLimit: 120
videoSamplesPerPart: 4
frameRate: 30
`)
	c, err := New(yaml)
	require.NoError(t, err)

	require.Equal(t, ":9554", c.RTPListenAddr)
	require.Equal(t, ":9080", c.HTTPListenAddr)
	require.Equal(t, 120, c.ArchiveLimitSeconds)
	require.Equal(t, 4, c.VideoSamplesPerPart)
	require.Equal(t, 30, c.FrameRate)
}

func TestNewPartiallyOverriddenFillsOnlyZeroFields(t *testing.T) {
	yaml := []byte(`
rtpListenAddr: ":1234"
`)
	c, err := New(yaml)
	require.NoError(t, err)

	require.Equal(t, ":1234", c.RTPListenAddr)
	require.Equal(t, DefaultHTTPListenAddr, c.HTTPListenAddr)
	require.Equal(t, DefaultArchiveLimitSecs, c.ArchiveLimitSeconds)
}

func TestNewRejectsInvalidYAML(t *testing.T) {
	_, err := New([]byte("not: [valid: yaml"))
	require.Error(t, err)
}
