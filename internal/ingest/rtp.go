package ingest

import (
	"github.com/pion/rtp/v2"

	"github.com/dholroyd/lowly/internal/log"
)

// rtpReceiver unwraps one RTP packet per datagram and logs sequence-number
// gaps, per §5/§10: gaps are logged but never alter store semantics, since
// UDP is lossy by nature and no retransmission is attempted.
type rtpReceiver struct {
	logger  *log.Logger
	haveSeq bool
	lastSeq uint16
}

func newRTPReceiver(logger *log.Logger) *rtpReceiver {
	return &rtpReceiver{logger: logger}
}

// receive parses one RTP packet from buf and returns its payload (a whole
// number of 188-byte MPEG-TS packets). ok is false if buf did not parse as
// RTP, in which case the datagram is dropped.
func (r *rtpReceiver) receive(buf []byte) (payload []byte, ok bool) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		r.logger.Warn().Src("ingest").Msgf("malformed RTP packet: %v", err)
		return nil, false
	}

	if r.haveSeq {
		expected := r.lastSeq + 1
		if pkt.SequenceNumber != expected {
			r.logger.Warn().Src("ingest").Msgf("RTP sequence gap: expected %d, got %d", expected, pkt.SequenceNumber)
		}
	}
	r.lastSeq = pkt.SequenceNumber
	r.haveSeq = true

	return pkt.Payload, true
}
