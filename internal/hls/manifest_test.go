package hls

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/store"
)

var (
	sps720p = []byte{0x67, 0x42, 0xc0, 0x1e, 0xf8, 0x0a, 0x00, 0xb7, 0x00}
	pps720p = []byte{0x68, 0xce, 0x3c, 0x80}
)

func TestRenderMasterIncludesMediaAndStreamInf(t *testing.T) {
	s := store.New()
	_, vt, err := s.AllocateAVCTrack(sps720p, pps720p, nil)
	require.NoError(t, err)
	_, at := s.AllocateAACTrack(2, 3, 2, nil)

	got := string(RenderMaster([]store.Track{vt, at}))

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:7\n" +
		"#EXT-X-INDEPENDENT-SEGMENTS\n" +
		"#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=\"default-audio-group\",NAME=\"audio\",AUTOSELECT=YES,DEFAULT=YES,URI=\"track/2/media.m3u8\"\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=1280x720,CODECS=\"avc1.42031e,mp4a.40.2\",AUDIO=\"default-audio-group\"\n" +
		"track/1/media.m3u8\n"

	require.Equal(t, want, got)
}

func TestRenderMasterBandwidthFromDeclaredMaxBitrate(t *testing.T) {
	s := store.New()
	var maxBitrate uint32 = 2500000
	_, vt, err := s.AllocateAVCTrack(sps720p, pps720p, &maxBitrate)
	require.NoError(t, err)
	_, at := s.AllocateAACTrack(2, 3, 2, nil)

	got := string(RenderMaster([]store.Track{vt, at}))

	require.Contains(t, got, "BANDWIDTH=2500000")
	require.NotContains(t, got, "BANDWIDTH=1000000")
}

// TestRenderMediaVideoTrackWithOffsetAndParts pushes the same IDR/P-frame
// sequence used to verify segment boundaries in the store package (IDR at
// dts=1000, seven P-frames at +3600 steps, closing IDR at dts=29800), then
// hand-traces the resulting media playlist line by line.
func TestRenderMediaVideoTrackWithOffsetAndParts(t *testing.T) {
	s := store.New()
	id, vt, err := s.AllocateAVCTrack(sps720p, pps720p, nil)
	require.NoError(t, err)

	require.NoError(t, s.AddAVCSample(id, store.Sample{Dts: 1000, Pts: 1000, IsIDR: true}))
	for i := int64(1); i <= 7; i++ {
		require.NoError(t, s.AddAVCSample(id, store.Sample{Dts: 1000 + 3600*i, Pts: 1000 + 3600*i}))
	}
	require.NoError(t, s.AddAVCSample(id, store.Sample{Dts: 29800, Pts: 29800, IsIDR: true}))

	// ptsToUTC chosen so that segments[0].Dts (1000) + ptsToUTC lands
	// exactly on 2024-01-01T00:00:00.000Z at the 90kHz timescale.
	const ptsToUTC = 1704067200*90000 - 1000

	got := string(RenderMedia(vt, ptsToUTC, true))

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:7\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXT-X-PART-INF:PART-TARGET=0.320\n" +
		"#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,PART-HOLD-BACK=0.960\n" +
		"#EXT-X-MAP:URI=\"init.mp4\"\n" +
		"#EXT-X-PROGRAM-DATE-TIME:2024-01-01T00:00:00.000Z\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/0.mp4\",INDEPENDENT=YES\n" +
		"#EXTINF:0.320,\n" +
		"track/1/segment/1000/seg.mp4\n" +
		"#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"track/1/segment/29800/part/0.mp4\"\n"

	require.Equal(t, want, got)
}

// TestRenderMediaAudioTrackPartsAndPreloadHint pushes exactly one full
// segment (AACSamplesPerSegment=90 frames) and checks the six resulting
// parts (AudioFramesPerPart=15) plus the preload hint pointing past them.
func TestRenderMediaAudioTrackPartsAndPreloadHint(t *testing.T) {
	s := store.New()
	id, at := s.AllocateAACTrack(2, 3, 2, nil)

	for i := int64(0); i < 90; i++ {
		dts := 1000 + 1920*i
		require.NoError(t, s.AddAACSample(id, store.Sample{Dts: dts, Pts: dts}))
	}

	got := string(RenderMedia(at, 0, false))

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:7\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXT-X-PART-INF:PART-TARGET=0.320\n" +
		"#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,PART-HOLD-BACK=0.960\n" +
		"#EXT-X-MAP:URI=\"init.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/0.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/1.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/2.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/3.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/4.mp4\"\n" +
		"#EXT-X-PART:DURATION=0.320,URI=\"track/1/segment/1000/part/5.mp4\"\n" +
		"#EXTINF:1.920,\n" +
		"track/1/segment/1000/seg.mp4\n" +
		"#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"track/1/segment/1000/part/6.mp4\"\n"

	require.Equal(t, want, got)
}

// stubTrack is a minimal store.Track used to exercise RenderMedia branches
// that are awkward to reach through the real ring-buffer tracks: a
// MEDIA-SEQUENCE offset and a leading discontinuity.
type stubTrack struct {
	id   store.TrackID
	segs []store.SegmentInfo
	msn  uint64
}

func (s *stubTrack) ID() store.TrackID                               { return s.id }
func (s *stubTrack) Segments() []store.SegmentInfo                   { return s.segs }
func (s *stubTrack) SegmentSamples(int64) ([]store.Sample, error)    { return nil, store.ErrBadSampleTime }
func (s *stubTrack) Parts(int64) ([]store.PartInfo, error)           { return nil, store.ErrNoPartsForSegment }
func (s *stubTrack) HasParts(int64) bool                             { return false }
func (s *stubTrack) SegmentNumberFor(int64) (uint64, error)          { return 0, store.ErrBadSampleTime }
func (s *stubTrack) PartNumberFor(int64, int) (uint64, error)        { return 0, store.ErrBadSampleTime }
func (s *stubTrack) MediaSequenceNumber() uint64                     { return s.msn }
func (s *stubTrack) Watch() *store.Bus                               { return store.NewBus() }

func TestRenderMediaMediaSequenceAndDiscontinuity(t *testing.T) {
	dur0 := int64(90000)
	tr := &stubTrack{
		id:  9,
		msn: 5,
		segs: []store.SegmentInfo{
			{Dts: 5000, Seq: 3, Duration: &dur0, Continuous: false},
			{Dts: 95000, Seq: 4, Duration: nil, Continuous: true},
		},
	}

	got := string(RenderMedia(tr, 0, false))

	want := "#EXTM3U\n" +
		"#EXT-X-VERSION:7\n" +
		"#EXT-X-TARGETDURATION:2\n" +
		"#EXT-X-PART-INF:PART-TARGET=0.320\n" +
		"#EXT-X-SERVER-CONTROL:CAN-BLOCK-RELOAD=YES,PART-HOLD-BACK=0.960\n" +
		"#EXT-X-MEDIA-SEQUENCE:3\n" +
		"#EXT-X-MAP:URI=\"init.mp4\"\n" +
		"#EXT-X-DISCONTINUITY\n" +
		"#EXTINF:1.000,\n" +
		"track/9/segment/5000/seg.mp4\n" +
		"#EXT-X-PRELOAD-HINT:TYPE=PART,URI=\"track/9/segment/95000/part/0.mp4\"\n"

	require.Equal(t, want, got)
}
