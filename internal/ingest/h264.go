package ingest

import (
	"time"

	"github.com/dholroyd/lowly/internal/h264"
	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
	"github.com/dholroyd/lowly/internal/ts"
	"github.com/dholroyd/lowly/internal/wallclock"
)

// h264Builder turns H.264 PES packets into store samples: it splits the
// Annex-B elementary stream into NAL units, brings up the AVC track on the
// first SPS+PPS pair, and feeds each slice NAL to the store after running
// its PES timestamps through the track's unwrapper pair (§4.1, §10).
type h264Builder struct {
	store  *store.Store
	logger *log.Logger

	pendingSPS []byte
	pendingPPS []byte
	parsedSPS  *h264.SPS

	trackID   store.TrackID
	haveTrack bool

	ptsUnwrap ts.Unwrapper
	dtsUnwrap ts.Unwrapper
}

func newH264Builder(s *store.Store, logger *log.Logger) *h264Builder {
	return &h264Builder{store: s, logger: logger}
}

func (b *h264Builder) handlePES(raw []byte) {
	pes, ok := parsePES(raw)
	if !ok {
		return
	}

	dts := pes.DTS
	if !pes.HasDTS {
		dts = pes.PTS
	}
	b.dtsUnwrap.Update(dts)
	unwrappedDTS := b.dtsUnwrap.Unwrap(dts)
	b.ptsUnwrap.Update(pes.PTS)
	unwrappedPTS := b.ptsUnwrap.Unwrap(pes.PTS)

	var pendingTimestamp *h264.ClockTimestamp

	for _, nal := range splitAnnexB(pes.Payload) {
		if len(nal) == 0 {
			continue
		}
		switch h264.Type(nal[0]) {
		case h264.NALUTypeSPS:
			b.pendingSPS = append([]byte(nil), nal...)
			b.maybeAllocateTrack()
		case h264.NALUTypePPS:
			b.pendingPPS = append([]byte(nil), nal...)
			b.maybeAllocateTrack()
		case h264.NALUTypeSEI:
			if b.parsedSPS != nil {
				if cts, ok := parsePicTiming(nal, b.parsedSPS); ok {
					pendingTimestamp = &cts
				}
			}
		case h264.NALUTypeIDR, h264.NALUTypeNonIDR:
			if !b.haveTrack {
				continue
			}
			isIDR := h264.Type(nal[0]) == h264.NALUTypeIDR
			b.store.AddAVCSample(b.trackID, store.Sample{ //nolint:errcheck
				Dts:   unwrappedDTS,
				Pts:   unwrappedPTS,
				Data:  append([]byte(nil), nal...),
				IsIDR: isIDR,
			})
			if pendingTimestamp != nil && !b.store.HasPTSToUTC() {
				offset := wallclock.Offset(*pendingTimestamp, unwrappedPTS, time.Now())
				b.store.SetPTSToUTC(offset)
				b.logger.Info().Src("ingest").Msgf("wall-clock offset set from pic_timing SEI: %d", offset)
				pendingTimestamp = nil
			}
		}
	}
}

func (b *h264Builder) maybeAllocateTrack() {
	if b.haveTrack || b.pendingSPS == nil || b.pendingPPS == nil {
		return
	}
	id, track, err := b.store.AllocateAVCTrack(b.pendingSPS, b.pendingPPS, nil)
	if err != nil {
		b.logger.Error().Src("ingest").Msgf("allocating AVC track: %v", err)
		return
	}
	sps := track.SPS()
	b.parsedSPS = &sps
	b.trackID = id
	b.haveTrack = true
	b.logger.Info().Src("ingest").Msgf("AVC track %d allocated: %s", id, track.RFC6381Codec())
}

func parsePicTiming(nal []byte, sps *h264.SPS) (h264.ClockTimestamp, bool) {
	// NAL header byte, then sei_message(): payloadType and payloadSize are
	// each encoded as a run of 0xFF bytes (255 each) plus a final byte.
	buf := nal[1:]
	for len(buf) > 0 {
		payloadType := 0
		for len(buf) > 0 && buf[0] == 0xFF {
			payloadType += 255
			buf = buf[1:]
		}
		if len(buf) == 0 {
			break
		}
		payloadType += int(buf[0])
		buf = buf[1:]

		payloadSize := 0
		for len(buf) > 0 && buf[0] == 0xFF {
			payloadSize += 255
			buf = buf[1:]
		}
		if len(buf) == 0 {
			break
		}
		payloadSize += int(buf[0])
		buf = buf[1:]

		if payloadSize > len(buf) {
			break
		}
		payload := buf[:payloadSize]
		buf = buf[payloadSize:]

		if payloadType == int(h264.SEIPayloadTypePicTiming) {
			cts, err := h264.ParsePicTimingSEI(payload, sps)
			if err == nil {
				return cts, true
			}
			return h264.ClockTimestamp{}, false
		}
	}
	return h264.ClockTimestamp{}, false
}

// splitAnnexB splits an Annex-B elementary stream into NAL units (header
// byte included, start codes and trailing zero padding removed).
func splitAnnexB(buf []byte) [][]byte {
	var nals [][]byte
	starts := findStartCodes(buf)
	for i, s := range starts {
		end := len(buf)
		if i+1 < len(starts) {
			end = starts[i+1].pos
		}
		nal := buf[s.pos+s.len : end]
		for len(nal) > 0 && nal[len(nal)-1] == 0 {
			nal = nal[:len(nal)-1]
		}
		if len(nal) > 0 {
			nals = append(nals, nal)
		}
	}
	return nals
}

type startCode struct {
	pos int
	len int
}

func findStartCodes(buf []byte) []startCode {
	var out []startCode
	for i := 0; i+2 < len(buf); i++ {
		if buf[i] == 0 && buf[i+1] == 0 && buf[i+2] == 1 {
			if i > 0 && buf[i-1] == 0 {
				out = append(out, startCode{pos: i - 1, len: 4})
			} else {
				out = append(out, startCode{pos: i, len: 3})
			}
		}
	}
	return out
}
