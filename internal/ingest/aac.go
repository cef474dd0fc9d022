package ingest

import (
	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
	"github.com/dholroyd/lowly/internal/ts"
)

const adtsHeaderLen = 7 // protection_absent=1 assumed; no CRC

// aacBuilder turns AAC PES packets into store samples: it splits the
// elementary stream into ADTS frames by the frame length embedded in each
// ADTS header, brings up the AAC track on the first header seen, and
// stores each frame's raw_data_block (the ADTS header itself carries no
// information the fMP4 esds/AudioSpecificConfig doesn't already have).
type aacBuilder struct {
	store  *store.Store
	logger *log.Logger

	trackID   store.TrackID
	haveTrack bool

	ptsUnwrap ts.Unwrapper
}

func newAACBuilder(s *store.Store, logger *log.Logger) *aacBuilder {
	return &aacBuilder{store: s, logger: logger}
}

func (b *aacBuilder) handlePES(raw []byte) {
	pes, ok := parsePES(raw)
	if !ok || !pes.HasPTS {
		return
	}

	b.ptsUnwrap.Update(pes.PTS)
	pts := b.ptsUnwrap.Unwrap(pes.PTS)

	buf := pes.Payload
	for len(buf) >= adtsHeaderLen {
		hdr, frameLen, ok := parseADTSHeader(buf)
		if !ok || frameLen > len(buf) || frameLen <= adtsHeaderLen {
			return
		}

		if !b.haveTrack {
			trackID, _ := b.store.AllocateAACTrack(hdr.audioObjectType, hdr.freqIndex, hdr.channelConfig, nil)
			b.trackID = trackID
			b.haveTrack = true
			b.logger.Info().Src("ingest").Msgf("AAC track %d allocated: object type %d, freq index %d, channels %d",
				trackID, hdr.audioObjectType, hdr.freqIndex, hdr.channelConfig)
		}

		b.store.AddAACSample(b.trackID, store.Sample{ //nolint:errcheck
			Dts:  pts,
			Pts:  pts,
			Data: append([]byte(nil), buf[adtsHeaderLen:frameLen]...),
		})

		buf = buf[frameLen:]
	}
}

type adtsHeader struct {
	audioObjectType uint8
	freqIndex       uint8
	channelConfig   uint8
}

// parseADTSHeader parses a 7-byte ADTS fixed+variable header (ISO/IEC
// 13818-7 Annex B), returning the decoded fields and the total frame
// length (header plus payload).
func parseADTSHeader(buf []byte) (adtsHeader, int, bool) {
	if len(buf) < adtsHeaderLen {
		return adtsHeader{}, 0, false
	}
	if buf[0] != 0xFF || buf[1]&0xF0 != 0xF0 {
		return adtsHeader{}, 0, false
	}

	profile := (buf[2] >> 6) & 0x3
	freqIndex := (buf[2] >> 2) & 0xF
	channelConfig := ((buf[2] & 0x1) << 2) | (buf[3] >> 6)
	frameLength := (int(buf[3]&0x3) << 11) | (int(buf[4]) << 3) | (int(buf[5]) >> 5)

	return adtsHeader{
		audioObjectType: profile + 1,
		freqIndex:       freqIndex,
		channelConfig:   channelConfig,
	}, frameLength, true
}
