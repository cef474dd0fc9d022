package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/h264"
	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

func TestFindStartCodesDetectsThreeAndFourByteForms(t *testing.T) {
	buf := []byte{
		0x00, 0x00, 0x00, 0x01, 0xAA, // 4-byte start code (extra leading zero)
		0x00, 0x00, 0x01, 0xBB, // 3-byte start code
	}
	starts := findStartCodes(buf)
	require.Len(t, starts, 2)
	require.Equal(t, startCode{pos: 0, len: 4}, starts[0])
	require.Equal(t, startCode{pos: 5, len: 3}, starts[1])
}

// annexBStream places a real SPS (with one harmless trailing byte appended
// so the padding-stripping pass below doesn't eat into its genuine
// rbsp_trailing_bits byte), a PPS, and an IDR slice back to back, with two
// bytes of Annex-B zero padding trailing the last NAL.
var (
	sps720pPlusOne = append(append([]byte(nil), sps720p...), 0x01)
	annexBStream   = func() []byte {
		var buf []byte
		buf = append(buf, 0x00, 0x00, 0x00, 0x01)
		buf = append(buf, sps720pPlusOne...)
		buf = append(buf, 0x00, 0x00, 0x01)
		buf = append(buf, pps720p...)
		buf = append(buf, 0x00, 0x00, 0x01)
		buf = append(buf, 0x65, 0xaa, 0xbb, 0xcc) // IDR slice
		buf = append(buf, 0x00, 0x00)             // trailing Annex-B padding
		return buf
	}()
)

func TestSplitAnnexBStripsTrailingPaddingAndStartCodes(t *testing.T) {
	nals := splitAnnexB(annexBStream)
	require.Len(t, nals, 3)
	require.Equal(t, sps720pPlusOne, nals[0])
	require.Equal(t, pps720p, nals[1])
	require.Equal(t, []byte{0x65, 0xaa, 0xbb, 0xcc}, nals[2], "trailing Annex-B zero padding must be stripped")
}

func TestParsePicTimingReturnsFalseWithoutVUI(t *testing.T) {
	var sps h264.SPS
	require.NoError(t, sps.Unmarshal(sps720p))
	require.Nil(t, sps.VUI, "fixture SPS carries no VUI, so pic_timing can never be decoded")

	_, ok := parsePicTiming([]byte{0x06, 0x01, 0x00, 0xFF}, &sps)
	require.False(t, ok)
}

// pesWithAnnexBPayload wraps annexBStream in a PES header carrying
// PTS=1000, DTS=900.
var pesWithAnnexBPayload = func() []byte {
	header := []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0xc0, 0x0a}
	pts := []byte{0x31, 0x00, 0x01, 0x07, 0xd1} // PTS=1000
	dts := []byte{0x11, 0x00, 0x01, 0x07, 0x09} // DTS=900
	var buf []byte
	buf = append(buf, header...)
	buf = append(buf, pts...)
	buf = append(buf, dts...)
	buf = append(buf, annexBStream...)
	return buf
}()

func TestH264BuilderHandlePESAllocatesTrackAndDispatchesIDR(t *testing.T) {
	s := store.New()
	logger := log.NewLogger()
	defer logger.Close()

	b := newH264Builder(s, logger)
	b.handlePES(pesWithAnnexBPayload)

	require.True(t, b.haveTrack)
	track, err := s.GetTrack(b.trackID)
	require.NoError(t, err)
	vt, ok := track.(*store.AVCTrack)
	require.True(t, ok)

	width, height := vt.Dimensions()
	require.EqualValues(t, 1280, width)
	require.EqualValues(t, 720, height)
	require.Equal(t, "avc1.42031e", vt.RFC6381Codec())

	samples, err := vt.SegmentSamples(900)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.Equal(t, int64(900), samples[0].Dts)
	require.Equal(t, int64(1000), samples[0].Pts)
	require.True(t, samples[0].IsIDR)
	require.Equal(t, []byte{0x65, 0xaa, 0xbb, 0xcc}, samples[0].Data)

	_, hasOffset := s.PTSToUTC()
	require.False(t, hasOffset, "no pic_timing SEI was present, so no wall-clock offset should be set")
}

func TestH264BuilderHandlePESDropsSlicesBeforeTrackExists(t *testing.T) {
	s := store.New()
	logger := log.NewLogger()
	defer logger.Close()

	b := newH264Builder(s, logger)

	header := []byte{0x00, 0x00, 0x01, 0xe0, 0x00, 0x00, 0x80, 0xc0, 0x0a}
	pts := []byte{0x31, 0x00, 0x01, 0x07, 0xd1}
	dts := []byte{0x11, 0x00, 0x01, 0x07, 0x09}
	idrOnly := []byte{0x00, 0x00, 0x01, 0x65, 0xaa, 0xbb, 0xcc}

	var buf []byte
	buf = append(buf, header...)
	buf = append(buf, pts...)
	buf = append(buf, dts...)
	buf = append(buf, idrOnly...)

	b.handlePES(buf)

	require.False(t, b.haveTrack)
	require.Empty(t, s.TrackList())
}
