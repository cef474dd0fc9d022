package store

import (
	"fmt"
	"sync"

	"github.com/dholroyd/lowly/internal/h264"
)

// AVCTrack is a per-track ring buffer of H.264 samples, segmented at IDR
// boundaries. mu guards samples and firstSegNum: push (the ingest goroutine)
// and the Segments/SegmentSamples/Parts/HasParts/SegmentNumberFor/
// PartNumberFor readers (HTTP handler goroutines) all acquire it, so every
// exported accessor below takes the lock itself and the *Locked helpers
// assume it is already held -- never call an exported method from inside
// one, or it will deadlock on mu.
type AVCTrack struct {
	id TrackID

	sps      h264.SPS
	spsBytes []byte
	ppsBytes []byte

	maxBitrate *uint32

	mu          sync.Mutex
	samples     []Sample
	firstSegNum uint64

	bus *Bus
}

func newAVCTrack(id TrackID, spsBytes, ppsBytes []byte, maxBitrate *uint32) (*AVCTrack, error) {
	var sps h264.SPS
	if err := sps.Unmarshal(spsBytes); err != nil {
		return nil, fmt.Errorf("store: parsing SPS: %w", err)
	}
	return &AVCTrack{
		id:         id,
		sps:        sps,
		spsBytes:   spsBytes,
		ppsBytes:   ppsBytes,
		maxBitrate: maxBitrate,
		bus:        NewBus(),
	}, nil
}

// ID implements Track.
func (t *AVCTrack) ID() TrackID { return t.id }

// Watch implements Track.
func (t *AVCTrack) Watch() *Bus { return t.bus }

// SPS returns the parsed sequence parameter set.
func (t *AVCTrack) SPS() h264.SPS { return t.sps }

// SPSBytes returns the raw (Annex-B-free) SPS NAL bytes, as required by avcC.
func (t *AVCTrack) SPSBytes() []byte { return t.spsBytes }

// PPSBytes returns the raw PPS NAL bytes.
func (t *AVCTrack) PPSBytes() []byte { return t.ppsBytes }

// MaxBitrate returns the declared max bitrate, if any.
func (t *AVCTrack) MaxBitrate() *uint32 { return t.maxBitrate }

// Dimensions derives pixel width/height from the SPS, per §4.2.
func (t *AVCTrack) Dimensions() (width, height uint32) {
	return t.sps.Dimensions()
}

// RFC6381Codec renders the avc1.PPCCLL codec string.
func (t *AVCTrack) RFC6381Codec() string {
	return t.sps.RFC6381Codec()
}

func isIDR(s Sample) bool { return s.IsIDR }

// durationLocked assumes mu is held.
func (t *AVCTrack) durationLocked() int64 {
	if len(t.samples) < 2 {
		return 0
	}
	return t.samples[len(t.samples)-1].Dts - t.samples[0].Dts
}

func (t *AVCTrack) push(s Sample) {
	t.mu.Lock()
	t.samples = append(t.samples, s)
	for t.durationLocked() > ArchiveLimit {
		t.removeOneSegmentLocked()
	}
	t.mu.Unlock()

	segs := t.Segments()
	if len(segs) > 0 {
		last := segs[len(segs)-1]
		parts, err := t.Parts(last.Dts)
		partIdx := 0
		if err == nil && len(parts) > 0 {
			partIdx = len(parts) - 1
		}
		t.bus.Publish(TrackSequence{Seg: last.Seq, Part: uint16(partIdx)})
	}
}

// removeOneSegmentLocked assumes mu is held.
func (t *AVCTrack) removeOneSegmentLocked() {
	i := 0
	for i == 0 || !isIDR(t.samples[0]) {
		t.samples = t.samples[1:]
		i++
		if len(t.samples) == 0 {
			break
		}
	}
	t.firstSegNum++
}

// Segments implements Track.
func (t *AVCTrack) Segments() []SegmentInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.segmentsLocked()
}

// segmentsLocked assumes mu is held.
func (t *AVCTrack) segmentsLocked() []SegmentInfo {
	if len(t.samples) == 0 {
		return nil
	}

	var out []SegmentInfo
	seq := t.firstSegNum
	var lastIDRDts int64
	haveIDR := false

	for _, s := range t.samples {
		if isIDR(s) {
			if haveIDR {
				dur := s.Dts - lastIDRDts
				out = append(out, SegmentInfo{Dts: lastIDRDts, Seq: seq, Duration: &dur, Continuous: true})
				seq++
			}
			lastIDRDts = s.Dts
			haveIDR = true
		}
	}
	if haveIDR {
		out = append(out, SegmentInfo{Dts: lastIDRDts, Seq: seq, Duration: nil, Continuous: true})
	}
	return out
}

// MediaSequenceNumber implements Track.
func (t *AVCTrack) MediaSequenceNumber() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstSegNum + uint64(len(t.segmentsLocked()))
}

// SegmentSamples implements Track.
func (t *AVCTrack) SegmentSamples(dts int64) ([]Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.segmentSamplesLocked(dts)
}

// segmentSamplesLocked assumes mu is held. It copies the matched run out of
// t.samples rather than returning a sub-slice, so the caller holds data that
// survives push/removeOneSegmentLocked mutating the backing array after mu
// is released.
func (t *AVCTrack) segmentSamplesLocked(dts int64) ([]Sample, error) {
	start := -1
	for i, s := range t.samples {
		if s.Dts == dts && isIDR(s) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrBadSampleTime
	}
	end := start + 1
	for end < len(t.samples) && !isIDR(t.samples[end]) {
		end++
	}
	out := make([]Sample, end-start)
	copy(out, t.samples[start:end])
	return out, nil
}

// Parts implements Track.
func (t *AVCTrack) Parts(dts int64) ([]PartInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partsLocked(dts)
}

// partsLocked assumes mu is held.
func (t *AVCTrack) partsLocked(dts int64) ([]PartInfo, error) {
	samples, err := t.segmentSamplesLocked(dts)
	if err != nil {
		return nil, err
	}
	var out []PartInfo
	for i := 0; i+VideoSamplesPerPart <= len(samples); i += VideoSamplesPerPart {
		group := samples[i : i+VideoSamplesPerPart]
		independent := false
		for _, s := range group {
			if isIDR(s) {
				independent = true
			}
		}
		dur := int64(28800) // 0.32s at 90kHz, per §4.7 PART-TARGET
		out = append(out, PartInfo{
			PartID:      i / VideoSamplesPerPart,
			Dts:         group[0].Dts,
			Duration:    &dur,
			Continuous:  true,
			Independent: independent,
		})
	}
	return out, nil
}

// HasParts implements Track.
func (t *AVCTrack) HasParts(dts int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return false
	}
	latest := t.samples[len(t.samples)-1].Dts
	earliest := latest - SegDurationPts*3
	return dts >= earliest
}

// SegmentNumberFor implements Track.
func (t *AVCTrack) SegmentNumberFor(dts int64) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, seg := range t.segmentsLocked() {
		if seg.Dts == dts {
			return seg.Seq, nil
		}
	}
	return 0, ErrBadSampleTime
}

// PartNumberFor implements Track.
func (t *AVCTrack) PartNumberFor(dts int64, partID int) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var count uint64
	for _, seg := range t.segmentsLocked() {
		if seg.Dts > dts {
			break
		}
		limit := partID
		if seg.Dts != dts {
			limit = int(^uint(0) >> 1)
		}
		parts, err := t.partsLocked(seg.Dts)
		if err != nil {
			continue
		}
		for _, p := range parts {
			if p.PartID > limit {
				break
			}
			count++
		}
	}
	return count, nil
}
