package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

// adtsFrame is a hand-built 7-byte ADTS header (AAC-LC, 48kHz, stereo) for
// audioObjectType=2 (profile+1), freqIndex=3, channelConfig=2, followed by
// the given payload; frameLength is header+payload.
var adtsFrameHeader = []byte{0xff, 0xf1, 0x4c, 0x80, 0x01, 0x5f, 0x00}

func TestParseADTSHeaderDecodesFixedFields(t *testing.T) {
	buf := append(append([]byte(nil), adtsFrameHeader...), 0x01, 0x02, 0x03)
	hdr, frameLen, ok := parseADTSHeader(buf)
	require.True(t, ok)
	require.EqualValues(t, 2, hdr.audioObjectType)
	require.EqualValues(t, 3, hdr.freqIndex)
	require.EqualValues(t, 2, hdr.channelConfig)
	require.Equal(t, 10, frameLen)
}

func TestParseADTSHeaderRejectsBadSyncword(t *testing.T) {
	buf := append(append([]byte(nil), adtsFrameHeader...), 0x01, 0x02, 0x03)
	buf[0] = 0x00
	_, _, ok := parseADTSHeader(buf)
	require.False(t, ok)
}

func TestParseADTSHeaderRejectsShortBuffer(t *testing.T) {
	_, _, ok := parseADTSHeader(adtsFrameHeader[:6])
	require.False(t, ok)
}

// pesWithTwoADTSFrames carries a single PTS (2000), followed by two
// back-to-back ADTS frames: a 3-byte raw_data_block then a 2-byte one.
var pesWithTwoADTSFrames = []byte{
	0x00, 0x00, 0x01, 0xc0, 0x00, 0x00, 0x80, 0x80, 0x05,
	0x21, 0x00, 0x01, 0x0f, 0xa1, // PTS=2000
	0xff, 0xf1, 0x4c, 0x80, 0x01, 0x5f, 0x00, 0x01, 0x02, 0x03,
	0xff, 0xf1, 0x4c, 0x80, 0x01, 0x3f, 0x00, 0x04, 0x05,
}

func TestAACBuilderHandlePESAllocatesTrackAndSplitsFrames(t *testing.T) {
	s := store.New()
	logger := log.NewLogger()
	defer logger.Close()

	b := newAACBuilder(s, logger)
	b.handlePES(pesWithTwoADTSFrames)

	require.True(t, b.haveTrack)
	track, err := s.GetTrack(b.trackID)
	require.NoError(t, err)
	at, ok := track.(*store.AACTrack)
	require.True(t, ok)
	require.EqualValues(t, 2, at.AudioObjectType())
	require.EqualValues(t, 3, at.FrequencyIndex())
	require.EqualValues(t, 2, at.ChannelConfig())

	samples, err := at.SegmentSamples(2000)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.Equal(t, int64(2000), samples[0].Dts)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, samples[0].Data)
	require.Equal(t, int64(2000), samples[1].Dts)
	require.Equal(t, []byte{0x04, 0x05}, samples[1].Data)
}

func TestAACBuilderHandlePESIgnoresPacketWithoutPTS(t *testing.T) {
	s := store.New()
	logger := log.NewLogger()
	defer logger.Close()

	b := newAACBuilder(s, logger)
	buf := []byte{0x00, 0x00, 0x01, 0xc0, 0x00, 0x00, 0x00, 0x00, 0x00}
	b.handlePES(buf)

	require.False(t, b.haveTrack)
}
