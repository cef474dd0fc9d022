package fmp4

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/store"
)

var (
	sps720p = []byte{0x67, 0x42, 0xc0, 0x1e, 0xf8, 0x0a, 0x00, 0xb7, 0x00}
	pps720p = []byte{0x68, 0xce, 0x3c, 0x80}
)

func TestBuildVideoInitProducesWellFormedBoxTree(t *testing.T) {
	s := store.New()
	_, track, err := s.AllocateAVCTrack(sps720p, pps720p, nil)
	require.NoError(t, err)

	buf, err := BuildVideoInit(track)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	require.Equal(t, []byte("ftyp"), buf[4:8])
	require.Contains(t, string(buf), "moov")
	require.Contains(t, string(buf), "avc1")
	require.Contains(t, string(buf), "avcC")
	require.Contains(t, string(buf), "mvex")
	require.Contains(t, string(buf), "trex")
}

func TestBuildAudioInitProducesWellFormedBoxTree(t *testing.T) {
	s := store.New()
	_, track := s.AllocateAACTrack(2, 3, 2, nil)

	buf, err := BuildAudioInit(track)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	require.Equal(t, []byte("ftyp"), buf[4:8])
	require.Contains(t, string(buf), "moov")
	require.Contains(t, string(buf), "mp4a")
	require.Contains(t, string(buf), "esds")
}

func TestSamplingFrequencyTableLookup(t *testing.T) {
	require.EqualValues(t, 48000, samplingFrequency(3))
	require.EqualValues(t, 44100, samplingFrequency(4))
	require.EqualValues(t, 7350, samplingFrequency(12))
	require.EqualValues(t, 44100, samplingFrequency(99), "out-of-range index falls back to 44.1kHz")
}

func TestMaxBitrateOrUsesDeclaredValueWhenPresent(t *testing.T) {
	var declared uint32 = 500000
	require.EqualValues(t, 500000, maxBitrateOr(&declared, 1000000))
	require.EqualValues(t, 1000000, maxBitrateOr(nil, 1000000))
}

func TestAudioSpecificConfigBitLayout(t *testing.T) {
	// AAC-LC (audioObjectType=2), 48kHz (freqIndex=3), stereo (channelConfig=2):
	// byte0 = audioObjectType<<3 (0b00010000) | freqIndex>>1 (0b001) = 0x11
	// byte1 = (freqIndex&1)<<7 (0b10000000) | (channelConfig&0xf)<<3 (0b00010000) = 0x90
	config := audioSpecificConfig(2, 3, 2)
	require.Equal(t, []byte{0x11, 0x90}, config)
}
