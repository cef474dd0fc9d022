package fmp4

import (
	"sort"

	"github.com/dholroyd/lowly/internal/mp4"
	"github.com/dholroyd/lowly/internal/store"
)

// wrapMidpoint is half of the 33-bit timestamp space; a PTS this far below
// the segment's first sample is treated as having wrapped, per §9.
const wrapMidpoint = int64(1) << 32

// wrapThreshold is the 33-bit modulus added back onto a PTS that appears to
// have wrapped within the segment.
const wrapThreshold = int64(1) << 33

// sampleFlags bit layout, ISO/IEC 14496-12 §8.8.3.1.
const (
	sampleDependsOnOthers = 1 << 24 // does depend on other samples (not sync)
	sampleDependsOnNone   = 2 << 24 // does not depend on others (sync sample)
	sampleIsNonSyncSample = 1 << 16
)

// normalizedPTS returns samples[i].Pts adjusted so that it is never more
// than wrapMidpoint behind the first sample's PTS, undoing a 33-bit wrap
// between samples of one segment. Ingest already unwraps each sample's PTS
// as well as its dts, so this only changes a PTS that still lies more than
// wrapMidpoint behind the segment's first.
func normalizedPTS(samples []store.Sample, i int) int64 {
	pts := samples[i].Pts
	first := samples[0].Pts
	if pts < first-wrapMidpoint {
		pts += wrapThreshold
	}
	return pts
}

// ptsOrder pairs a sample's wrap-adjusted PTS with its decode-order index,
// used to derive trun sample durations from the PTS-sorted sequence rather
// than from decode order.
type ptsOrder struct {
	pts int64
	idx int
}

// videoTrunEntries builds one trun entry per sample. composition_time_offset
// always comes from the (wrap-adjusted) PTS/DTS separation, but per §4.6/§9
// sample_duration is the delta between consecutive PTS-sorted timestamps,
// not the DTS delta: decode order and presentation order only coincide when
// there is no B-frame reordering, so the two are not interchangeable. The
// PTS-sorted loop never assigns a duration to the PTS-smallest sample, which
// is why its entry (decode-order index 0, absent B-frames) is unconditionally
// overwritten with the placeholder afterwards.
func videoTrunEntries(samples []store.Sample) []mp4.TrunEntry {
	entries := make([]mp4.TrunEntry, len(samples))
	order := make([]ptsOrder, len(samples))
	for i, s := range samples {
		pts := normalizedPTS(samples, i)
		entries[i] = mp4.TrunEntry{
			SampleSize:                    uint32(4 + len(s.Data)),
			SampleCompositionTimeOffsetV1: int32(pts - s.Dts),
		}
		order[i] = ptsOrder{pts: pts, idx: i}
	}
	sort.Slice(order, func(a, b int) bool { return order[a].pts < order[b].pts })
	for k := 1; k < len(order); k++ {
		entries[order[k].idx].SampleDuration = uint32(order[k].pts - order[k-1].pts)
	}
	if len(entries) > 0 {
		entries[0].SampleDuration = uint32(firstSampleDurationVideo)
	}
	return entries
}

// audioTrunEntries builds one trun entry per AAC sample. Unlike video, no
// per-sample delta is derived at all: every sample's duration is the fixed
// 1024-sample-at-48kHz placeholder, per §4.6/§9.
func audioTrunEntries(samples []store.Sample) []mp4.TrunEntry {
	entries := make([]mp4.TrunEntry, len(samples))
	for i, s := range samples {
		entries[i] = mp4.TrunEntry{
			SampleDuration: uint32(audioSampleDuration),
			SampleSize:     uint32(len(s.Data)),
		}
	}
	return entries
}

func videoMdatData(samples []store.Sample) []byte {
	total := 0
	for _, s := range samples {
		total += 4 + len(s.Data)
	}
	buf := make([]byte, total)
	w := mp4.NewWriter(buf, 0)
	for _, s := range samples {
		w.Uint32(uint32(len(s.Data)))
		w.Bytes(s.Data)
	}
	return buf
}

func audioMdatData(samples []store.Sample) []byte {
	total := 0
	for _, s := range samples {
		total += len(s.Data)
	}
	buf := make([]byte, total)
	w := mp4.NewWriter(buf, 0)
	for _, s := range samples {
		w.Bytes(s.Data)
	}
	return buf
}

// BuildVideoSegment renders one moof+mdat for a run of H.264 samples (a
// whole segment, or the subset belonging to one part), numbered with
// sequenceNumber (§4.6: the segment number for a full-segment request, the
// part number for a part request).
func BuildVideoSegment(samples []store.Sample, sequenceNumber uint64) ([]byte, error) {
	if len(samples) == 0 {
		return nil, store.ErrBuilderFailure
	}

	tfhd := &mp4.Tfhd{
		FullBox:            mp4.FullBox{Flags: tfhdDefaultSampleFlagsOnly()},
		TrackID:            trackID,
		DefaultSampleFlags: sampleDependsOnOthers | sampleIsNonSyncSample,
	}
	tfdt := &mp4.Tfdt{
		FullBox:               mp4.FullBox{Version: 1},
		BaseMediaDecodeTimeV1: uint64(samples[0].Dts),
	}

	entries := videoTrunEntries(samples)
	trun := &mp4.Trun{
		FullBox:          mp4.FullBox{Version: 1, Flags: trunFlags(true)},
		SampleCount:      uint32(len(entries)),
		FirstSampleFlags: sampleDependsOnNone,
		Entries:          entries,
	}

	return marshalMoofMdat(uint32(sequenceNumber), tfhd, tfdt, trun, videoMdatData(samples))
}

// BuildAudioSegment renders one moof+mdat for a run of AAC samples.
func BuildAudioSegment(samples []store.Sample, sequenceNumber uint64) ([]byte, error) {
	if len(samples) == 0 {
		return nil, store.ErrBuilderFailure
	}

	tfhd := &mp4.Tfhd{
		FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 0}},
		TrackID: trackID,
	}
	tfdt := &mp4.Tfdt{
		FullBox:               mp4.FullBox{Version: 1},
		BaseMediaDecodeTimeV1: uint64(samples[0].Dts),
	}

	entries := audioTrunEntries(samples)
	trun := &mp4.Trun{
		FullBox:     mp4.FullBox{Version: 0, Flags: trunFlags(false)},
		SampleCount: uint32(len(entries)),
		Entries:     entries,
	}

	return marshalMoofMdat(uint32(sequenceNumber), tfhd, tfdt, trun, audioMdatData(samples))
}

func tfhdDefaultSampleFlagsOnly() [3]byte {
	const flags = mp4.TfhdDefaultSampleFlagsPresent
	return [3]byte{0, byte(flags >> 8), byte(flags)}
}

func trunFlags(firstSampleFlagsPresent bool) [3]byte {
	flags := mp4.TrunDataOffsetPresent | mp4.TrunSampleDurationPresent |
		mp4.TrunSampleSizePresent | mp4.TrunSampleCompositionTimeOffsetPresent
	if firstSampleFlagsPresent {
		flags |= mp4.TrunFirstSampleFlagsPresent
	}
	return [3]byte{0, byte(flags >> 8), byte(flags)}
}

func marshalMoofMdat(sequenceNumber uint32, tfhd *mp4.Tfhd, tfdt *mp4.Tfdt, trun *mp4.Trun, mdatData []byte) ([]byte, error) {
	moof := mp4.Boxes{
		Box: &mp4.Moof{},
		Children: []mp4.Boxes{
			{Box: &mp4.Mfhd{SequenceNumber: sequenceNumber}},
			{
				Box: &mp4.Traf{},
				Children: []mp4.Boxes{
					{Box: tfhd},
					{Box: tfdt},
					{Box: trun},
				},
			},
		},
	}

	// trun.data_offset must point past moof+mdat header to the first mdat
	// payload byte; moof's size does not change once Entries is populated,
	// so this can be computed before the final marshal.
	trun.DataOffset = int32(moof.Size() + 8)

	mdat := mp4.Boxes{Box: &mp4.Mdat{Data: mdatData}}

	size := moof.Size() + mdat.Size()
	buf := make([]byte, size)
	pos := 0
	moof.Marshal(buf, &pos)
	mdat.Marshal(buf, &pos)

	return buf, nil
}
