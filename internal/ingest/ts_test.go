package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

// patSection is a hand-built Program Association Table naming a single
// program (number 1) whose PMT lives on PID 0x1000. The CRC32 bytes are
// never checked by handlePAT, so they're left as an obviously-fake
// placeholder.
var patSection = []byte{
	0x00, 0xB0, 0x0D, // table_id, section_length=13
	0x00, 0x01, // transport_stream_id
	0xC1, 0x00, 0x00, // version/current_next, section_number, last_section_number
	0x00, 0x01, 0xF0, 0x00, // program_number=1, PID=0x1000
	0xDE, 0xAD, 0xBE, 0xEF, // CRC32 placeholder
}

// pmtSection names a PID=0x100 H.264 stream and a PID=0x101 AAC stream,
// both with empty ES loops.
var pmtSection = []byte{
	0x02, 0xB0, 0x17, // table_id, section_length=23
	0x00, 0x01, // program_number
	0xC1, 0x00, 0x00, // version/current_next, section_number, last_section_number
	0xE1, 0x00, // PCR_PID
	0xF0, 0x00, // program_info_length=0
	0x1B, 0xE1, 0x00, 0xF0, 0x00, // stream_type=H.264, PID=0x100, ES_info_length=0
	0x0F, 0xE1, 0x01, 0xF0, 0x00, // stream_type=AAC, PID=0x101, ES_info_length=0
	0xDE, 0xAD, 0xBE, 0xEF, // CRC32 placeholder
}

// buildTSPacket assembles a TS packet header for pid/pusi/adaptationFieldControl
// followed by body. handlePacket doesn't enforce the fixed 188-byte packet
// size (only feed's chunking does), so the body here is exactly the bytes
// the test cares about rather than a fully stuffed 184-byte payload.
func buildTSPacket(pid int, pusi bool, afc byte, body []byte) []byte {
	pkt := make([]byte, 4, 4+len(body))
	pkt[0] = tsSyncByte
	pkt[1] = byte(pid >> 8 & 0x1F)
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid & 0xFF)
	pkt[3] = afc << 4
	pkt = append(pkt, body...)
	return pkt
}

func withPointerField(section []byte) []byte {
	return append([]byte{0x00}, section...)
}

func TestSectionFromPayloadStripsPointerField(t *testing.T) {
	body := append([]byte{0x02, 0xAA, 0xBB}, patSection...)
	section, ok := sectionFromPayload(true, body)
	require.True(t, ok)
	require.Equal(t, patSection, section)
}

func TestSectionFromPayloadRejectsNonPUSIOrEmptyBody(t *testing.T) {
	_, ok := sectionFromPayload(false, withPointerField(patSection))
	require.False(t, ok)

	_, ok = sectionFromPayload(true, nil)
	require.False(t, ok)
}

func TestHandlePATSetsPMTPID(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()

	d.handlePAT(true, withPointerField(patSection))

	require.True(t, d.havePMT)
	require.Equal(t, 0x1000, d.pmtPID)
}

func TestHandlePMTSetsVideoAndAudioPIDs(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()
	d.havePMT = true
	d.pmtPID = 0x1000

	d.handlePMT(true, withPointerField(pmtSection))

	require.Equal(t, 0x100, d.videoPID)
	require.NotNil(t, d.video)
	require.Equal(t, 0x101, d.audioPID)
	require.NotNil(t, d.audio)
}

func TestHandlePacketRoutesPATThenPMT(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()

	d.handlePacket(buildTSPacket(0x0000, true, 0x1, withPointerField(patSection)))
	require.True(t, d.havePMT)
	require.Equal(t, 0x1000, d.pmtPID)

	d.handlePacket(buildTSPacket(0x1000, true, 0x1, withPointerField(pmtSection)))
	require.Equal(t, 0x100, d.videoPID)
	require.Equal(t, 0x101, d.audioPID)
}

func TestHandlePacketIgnoresBadSyncByte(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()

	pkt := buildTSPacket(0x0000, true, 0x1, withPointerField(patSection))
	pkt[0] = 0x00

	d.handlePacket(pkt)
	require.False(t, d.havePMT)
}

func TestHandlePacketSkipsAdaptationFieldOnlyPayload(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()

	// adaptationFieldControl=0x2 (adaptation field only) must return
	// before ever looking at body, even though body looks like a valid PAT.
	pkt := buildTSPacket(0x0000, true, 0x2, withPointerField(patSection))

	d.handlePacket(pkt)
	require.False(t, d.havePMT)
}

func TestHandlePacketSkipsOverAdaptationFieldBeforePayload(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()

	// adaptationFieldControl=0x3: a 2-byte adaptation field (length byte
	// of 1, meaning 1 byte of adaptation data follows it) precedes the PAT
	// payload.
	body := append([]byte{0x01, 0x00}, withPointerField(patSection)...)
	pkt := buildTSPacket(0x0000, true, 0x3, body)

	d.handlePacket(pkt)
	require.True(t, d.havePMT)
	require.Equal(t, 0x1000, d.pmtPID)
}

func TestFeedPESAccumulatesUntilNextPUSIThenFlushesPrevious(t *testing.T) {
	d := newTSDemuxer(store.New(), log.NewLogger())
	defer d.logger.Close()
	r := newPESReassembler()

	a := []byte{0x00, 0x00, 0x01, 0xe0, 0xaa, 0xbb}
	b := []byte{0xcc, 0xdd}
	c := []byte{0x00, 0x00, 0x01, 0xe0, 0xee}

	pes, ok := d.feedPES(r, true, a)
	require.False(t, ok)
	require.Nil(t, pes)

	pes, ok = d.feedPES(r, false, b)
	require.False(t, ok)
	require.Nil(t, pes)

	pes, ok = d.feedPES(r, true, c)
	require.True(t, ok)
	require.Equal(t, append(append([]byte(nil), a...), b...), pes)

	// r.buf now holds c, pending the next flush.
	require.Equal(t, c, r.buf)
}

// TestTSDemuxerFullPipelineAllocatesH264AndAACTracks drives the demuxer
// through PAT, PMT, one video PES (carrying the Annex-B SPS/PPS/IDR stream
// used elsewhere in this package) and one audio PES (carrying two ADTS
// frames), confirming both elementary streams reach their builders.
func TestTSDemuxerFullPipelineAllocatesH264AndAACTracks(t *testing.T) {
	s := store.New()
	logger := log.NewLogger()
	defer logger.Close()
	d := newTSDemuxer(s, logger)

	d.handlePacket(buildTSPacket(0x0000, true, 0x1, withPointerField(patSection)))
	d.handlePacket(buildTSPacket(0x1000, true, 0x1, withPointerField(pmtSection)))

	d.handlePacket(buildTSPacket(0x100, true, 0x1, pesWithAnnexBPayload))
	d.handlePacket(buildTSPacket(0x100, true, 0x1, []byte{0x00})) // flush

	d.handlePacket(buildTSPacket(0x101, true, 0x1, pesWithTwoADTSFrames))
	d.handlePacket(buildTSPacket(0x101, true, 0x1, []byte{0x00})) // flush

	require.True(t, d.h264.haveTrack)
	vTrack, err := s.GetTrack(d.h264.trackID)
	require.NoError(t, err)
	vt, ok := vTrack.(*store.AVCTrack)
	require.True(t, ok)
	width, height := vt.Dimensions()
	require.EqualValues(t, 1280, width)
	require.EqualValues(t, 720, height)

	require.True(t, d.aac.haveTrack)
	aTrack, err := s.GetTrack(d.aac.trackID)
	require.NoError(t, err)
	at, ok := aTrack.(*store.AACTrack)
	require.True(t, ok)
	require.EqualValues(t, 2, at.ChannelConfig())

	require.Len(t, s.TrackList(), 2)
}
