package store

import "sync"

// AACTrack is a per-track ring buffer of AAC-ADTS samples, segmented into
// fixed groups of AACSamplesPerSegment frames. mu guards samples and
// firstSegNum the same way AVCTrack.mu does: every exported accessor locks
// it itself, and the *Locked helpers assume it is already held.
type AACTrack struct {
	id TrackID

	audioObjectType uint8
	freqIndex       uint8
	channelConfig   uint8
	maxBitrate      *uint32

	mu          sync.Mutex
	samples     []Sample
	firstSegNum uint64

	bus *Bus
}

func newAACTrack(id TrackID, audioObjectType, freqIndex, channelConfig uint8, maxBitrate *uint32) *AACTrack {
	return &AACTrack{
		id:              id,
		audioObjectType: audioObjectType,
		freqIndex:       freqIndex,
		channelConfig:   channelConfig,
		maxBitrate:      maxBitrate,
		bus:             NewBus(),
	}
}

// ID implements Track.
func (t *AACTrack) ID() TrackID { return t.id }

// Watch implements Track.
func (t *AACTrack) Watch() *Bus { return t.bus }

// AudioObjectType returns the MPEG-4 audio object type.
func (t *AACTrack) AudioObjectType() uint8 { return t.audioObjectType }

// FrequencyIndex returns the ADTS sampling-frequency index.
func (t *AACTrack) FrequencyIndex() uint8 { return t.freqIndex }

// ChannelConfig returns the ADTS channel configuration.
func (t *AACTrack) ChannelConfig() uint8 { return t.channelConfig }

// MaxBitrate returns the declared max bitrate, if any.
func (t *AACTrack) MaxBitrate() *uint32 { return t.maxBitrate }

// durationLocked assumes mu is held.
func (t *AACTrack) durationLocked() int64 {
	if len(t.samples) < 2 {
		return 0
	}
	return t.samples[len(t.samples)-1].Dts - t.samples[0].Dts
}

func (t *AACTrack) push(s Sample) {
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
func (t *AACTrack) removeOneSegmentLocked() {
	n := AACSamplesPerSegment
	if n > len(t.samples) {
		n = len(t.samples)
	}
	t.samples = t.samples[n:]
	t.firstSegNum++
}

// Segments implements Track. Unlike the video track, every group of
// AACSamplesPerSegment frames is a segment, including a trailing partial
// group that becomes the current open segment.
func (t *AACTrack) Segments() []SegmentInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.segmentsLocked()
}

// segmentsLocked assumes mu is held.
func (t *AACTrack) segmentsLocked() []SegmentInfo {
	var out []SegmentInfo
	for i := 0; i < len(t.samples); i += AACSamplesPerSegment {
		end := i + AACSamplesPerSegment
		if end > len(t.samples) {
			end = len(t.samples)
		}
		group := t.samples[i:end]
		seq := t.firstSegNum + uint64(i/AACSamplesPerSegment)
		var dur *int64
		if len(group) == AACSamplesPerSegment {
			d := int64(172800) // 1.92s at 90kHz
			dur = &d
		}
		out = append(out, SegmentInfo{
			Dts:        group[0].Dts,
			Seq:        seq,
			Duration:   dur,
			Continuous: true,
		})
	}
	return out
}

// MediaSequenceNumber implements Track.
func (t *AACTrack) MediaSequenceNumber() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.firstSegNum + uint64(len(t.segmentsLocked()))
}

// SegmentSamples implements Track.
func (t *AACTrack) SegmentSamples(dts int64) ([]Sample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.segmentSamplesLocked(dts)
}

// segmentSamplesLocked assumes mu is held. It copies the matched run out of
// t.samples rather than returning a sub-slice, so the caller holds data that
// survives push/removeOneSegmentLocked mutating the backing array after mu
// is released.
func (t *AACTrack) segmentSamplesLocked(dts int64) ([]Sample, error) {
	start := -1
	for i := 0; i < len(t.samples); i += AACSamplesPerSegment {
		if t.samples[i].Dts == dts {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrBadSampleTime
	}
	end := start + AACSamplesPerSegment
	if end > len(t.samples) {
		end = len(t.samples)
	}
	out := make([]Sample, end-start)
	copy(out, t.samples[start:end])
	return out, nil
}

// Parts implements Track.
func (t *AACTrack) Parts(dts int64) ([]PartInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.partsLocked(dts)
}

// partsLocked assumes mu is held.
func (t *AACTrack) partsLocked(dts int64) ([]PartInfo, error) {
	samples, err := t.segmentSamplesLocked(dts)
	if err != nil {
		return nil, err
	}
	var out []PartInfo
	for i := 0; i+AudioFramesPerPart <= len(samples); i += AudioFramesPerPart {
		group := samples[i : i+AudioFramesPerPart]
		dur := int64(28800) // 0.32s at 90kHz
		out = append(out, PartInfo{
			PartID:      i / AudioFramesPerPart,
			Dts:         group[0].Dts,
			Duration:    &dur,
			Continuous:  true,
			Independent: false,
		})
	}
	return out, nil
}

// HasParts implements Track.
func (t *AACTrack) HasParts(dts int64) bool {
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
func (t *AACTrack) SegmentNumberFor(dts int64) (uint64, error) {
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
func (t *AACTrack) PartNumberFor(dts int64, partID int) (uint64, error) {
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
