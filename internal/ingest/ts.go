package ingest

import (
	"github.com/dholroyd/lowly/internal/log"
	"github.com/dholroyd/lowly/internal/store"
)

const tsPacketSize = 188
const tsSyncByte = 0x47

const (
	streamTypeH264 = 0x1B
	streamTypeAAC  = 0x0F
)

// tsDemuxer tracks PAT -> PMT -> elementary-stream PID mapping for one
// program and reassembles PES packets for the H.264 and AAC-ADTS streams
// named in the PMT, per §10. It is intentionally minimal: one program, no
// scrambling, no multi-program support.
type tsDemuxer struct {
	logger *log.Logger

	pmtPID   int
	havePMT  bool
	videoPID int
	audioPID int

	video *pesReassembler
	audio *pesReassembler

	h264 *h264Builder
	aac  *aacBuilder
}

func newTSDemuxer(s *store.Store, logger *log.Logger) *tsDemuxer {
	return &tsDemuxer{
		logger:   logger,
		pmtPID:   -1,
		videoPID: -1,
		audioPID: -1,
		h264:     newH264Builder(s, logger),
		aac:      newAACBuilder(s, logger),
	}
}

// feed accepts the payload of one RTP packet: a whole number of 188-byte
// MPEG-TS packets, per §10.
func (d *tsDemuxer) feed(payload []byte) {
	for len(payload) >= tsPacketSize {
		d.handlePacket(payload[:tsPacketSize])
		payload = payload[tsPacketSize:]
	}
}

func (d *tsDemuxer) handlePacket(pkt []byte) {
	if pkt[0] != tsSyncByte {
		return
	}

	pusi := pkt[1]&0x40 != 0
	pid := (int(pkt[1]&0x1F) << 8) | int(pkt[2])
	adaptationFieldControl := (pkt[3] >> 4) & 0x3

	body := pkt[4:]
	if adaptationFieldControl == 0x2 {
		return // adaptation field only, no payload
	}
	if adaptationFieldControl == 0x3 {
		if len(body) == 0 {
			return
		}
		afLen := int(body[0])
		if afLen+1 > len(body) {
			return
		}
		body = body[afLen+1:]
	}

	switch {
	case pid == 0:
		d.handlePAT(pusi, body)
	case d.havePMT && pid == d.pmtPID:
		d.handlePMT(pusi, body)
	case d.videoPID >= 0 && pid == d.videoPID:
		if pes, ok := d.feedPES(d.video, pusi, body); ok {
			d.h264.handlePES(pes)
		}
	case d.audioPID >= 0 && pid == d.audioPID:
		if pes, ok := d.feedPES(d.audio, pusi, body); ok {
			d.aac.handlePES(pes)
		}
	}
}

func (d *tsDemuxer) handlePAT(pusi bool, body []byte) {
	section, ok := sectionFromPayload(pusi, body)
	if !ok {
		return
	}
	if len(section) < 8 {
		return
	}
	sectionLength := int(section[1]&0xF)<<8 | int(section[2])
	end := 3 + sectionLength - 4 // exclude CRC32
	if end > len(section) {
		end = len(section)
	}
	for i := 8; i+4 <= end; i += 4 {
		programNumber := int(section[i])<<8 | int(section[i+1])
		pid := int(section[i+2]&0x1F)<<8 | int(section[i+3])
		if programNumber != 0 { // skip the network-PID entry
			d.pmtPID = pid
			d.havePMT = true
			return
		}
	}
}

func (d *tsDemuxer) handlePMT(pusi bool, body []byte) {
	section, ok := sectionFromPayload(pusi, body)
	if !ok {
		return
	}
	if len(section) < 12 {
		return
	}
	sectionLength := int(section[1]&0xF)<<8 | int(section[2])
	end := 3 + sectionLength - 4
	if end > len(section) {
		end = len(section)
	}
	programInfoLength := int(section[10]&0xF)<<8 | int(section[11])
	i := 12 + programInfoLength
	for i+5 <= end {
		streamType := section[i]
		pid := int(section[i+1]&0x1F)<<8 | int(section[i+2])
		esInfoLength := int(section[i+3]&0xF)<<8 | int(section[i+4])
		switch streamType {
		case streamTypeH264:
			if d.videoPID < 0 {
				d.videoPID = pid
				d.video = newPESReassembler()
			}
		case streamTypeAAC:
			if d.audioPID < 0 {
				d.audioPID = pid
				d.audio = newPESReassembler()
			}
		}
		i += 5 + esInfoLength
	}
}

// sectionFromPayload strips the pointer_field present on a PUSI packet's
// PSI payload. It does not reassemble sections split across multiple TS
// packets: PAT/PMT are small enough to fit in one packet in practice, and a
// section spanning packets is simply dropped here.
func sectionFromPayload(pusi bool, body []byte) ([]byte, bool) {
	if !pusi || len(body) == 0 {
		return nil, false
	}
	pointer := int(body[0])
	if 1+pointer >= len(body) {
		return nil, false
	}
	return body[1+pointer:], true
}

// feedPES accumulates TS payload into r, returning a complete PES packet's
// bytes once a new one starts (PUSI=1) and ending the previous one.
func (d *tsDemuxer) feedPES(r *pesReassembler, pusi bool, body []byte) ([]byte, bool) {
	if r == nil {
		return nil, false
	}
	if pusi {
		prev := r.buf
		r.buf = append([]byte(nil), body...)
		if len(prev) > 0 {
			return prev, true
		}
		return nil, false
	}
	if r.buf != nil {
		r.buf = append(r.buf, body...)
	}
	return nil, false
}

type pesReassembler struct {
	buf []byte
}

func newPESReassembler() *pesReassembler { return &pesReassembler{} }
