// Package fmp4 builds the fragmented-MP4 initialization and media segments
// the HLS layer serves, directly from a store.Track's buffered samples. Each
// init/segment is single-track: the HTTP surface addresses one track at a
// time (§6), so there is no combined-muxer step like a classic progressive
// MP4 writer would need.
package fmp4

import (
	"fmt"

	"github.com/dholroyd/lowly/internal/mp4"
	"github.com/dholroyd/lowly/internal/store"
)

// Timescale is the media timescale used by every track's mdhd/mvex/tfdt/trun,
// matching the 90kHz domain the store keeps all sample timestamps in.
const Timescale = 90000

// trackID is always 1: every init/media segment here names exactly one
// track, so there is never a second trak/trex to disambiguate against.
const trackID = 1

// firstSampleDurationVideo overrides the PTS-sorted duration derivation for
// the video trun's first (decode-order) entry, which the sort otherwise
// leaves unset since it has no earlier PTS-sorted neighbour to delta
// against, per §4.6/§9.
//
// audioSampleDuration is not a fallback at all: every AAC trun entry gets
// this fixed 1024-sample-at-48kHz value, never a derived delta.
const (
	firstSampleDurationVideo = 3600
	audioSampleDuration      = 1920
)

func ftypBoxes() mp4.Boxes {
	return mp4.Boxes{
		Box: &mp4.Ftyp{
			MajorBrand:   [4]byte{'m', 'p', '4', '2'},
			MinorVersion: 1,
			CompatibleBrands: []mp4.CompatibleBrandElem{
				{CompatibleBrand: [4]byte{'m', 'p', '4', '1'}},
				{CompatibleBrand: [4]byte{'m', 'p', '4', '2'}},
				{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}},
				{CompatibleBrand: [4]byte{'h', 'l', 's', 'f'}},
			},
		},
	}
}

func mvhdBoxes() mp4.Boxes {
	return mp4.Boxes{
		Box: &mp4.Mvhd{
			Timescale:   1,
			Rate:        65536,
			Volume:      256,
			Matrix:      [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			NextTrackID: 2,
		},
	}
}

func dinfBoxes() mp4.Boxes {
	return mp4.Boxes{
		Box: &mp4.Dinf{},
		Children: []mp4.Boxes{
			{
				Box: &mp4.Dref{EntryCount: 1},
				Children: []mp4.Boxes{
					{Box: &mp4.Url{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}},
				},
			},
		},
	}
}

// BuildVideoInit renders the init.mp4 for an H.264 track: ftyp, moov with a
// single video trak (avc1/avcC carrying the track's SPS/PPS), and mvex/trex.
func BuildVideoInit(t *store.AVCTrack) ([]byte, error) {
	width, height := t.Dimensions()
	sps := t.SPS()
	spsBytes := t.SPSBytes()
	if len(spsBytes) < 3 {
		return nil, fmt.Errorf("fmp4: SPS too short to carry profile_compatibility")
	}

	stbl := mp4.Boxes{
		Box: &mp4.Stbl{},
		Children: []mp4.Boxes{
			{
				Box: &mp4.Stsd{EntryCount: 1},
				Children: []mp4.Boxes{
					{
						Box: &mp4.Avc1{
							SampleEntry:     mp4.SampleEntry{DataReferenceIndex: 1},
							Width:           uint16(width),
							Height:          uint16(height),
							Horizresolution: 4718592,
							Vertresolution:  4718592,
							FrameCount:      1,
							Depth:           24,
							PreDefined3:     -1,
						},
						Children: []mp4.Boxes{
							{Box: &mp4.AvcC{
								ConfigurationVersion:       1,
								Profile:                    sps.ProfileIdc,
								ProfileCompatibility:       spsBytes[2],
								Level:                      sps.LevelIdc,
								LengthSizeMinusOne:         3,
								NumOfSequenceParameterSets: 1,
								SequenceParameterSets: []mp4.AVCParameterSet{
									{Length: uint16(len(spsBytes)), NALUnit: spsBytes},
								},
								NumOfPictureParameterSets: 1,
								PictureParameterSets: []mp4.AVCParameterSet{
									{Length: uint16(len(t.PPSBytes())), NALUnit: t.PPSBytes()},
								},
							}},
							{Box: &mp4.Btrt{
								MaxBitrate: maxBitrateOr(t.MaxBitrate(), 1000000),
								AvgBitrate: maxBitrateOr(t.MaxBitrate(), 1000000),
							}},
						},
					},
				},
			},
			{Box: &mp4.Stts{}},
			{Box: &mp4.Stsc{}},
			{Box: &mp4.Stsz{}},
			{Box: &mp4.Stco{}},
		},
	}

	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: &mp4.Vmhd{FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 1}}}},
			dinfBoxes(),
			stbl,
		},
	}

	trak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox: mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID: trackID,
				Width:   width * 65536,
				Height:  height * 65536,
				Matrix:  [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{Timescale: Timescale, Language: [3]byte{'u', 'n', 'd'}}},
					{Box: &mp4.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"}},
					minf,
				},
			},
		},
	}

	mvex := mp4.Boxes{
		Box: &mp4.Mvex{},
		Children: []mp4.Boxes{
			{Box: &mp4.Trex{TrackID: trackID, DefaultSampleDescriptionIndex: 1}},
		},
	}

	moov := mp4.Boxes{
		Box:      &mp4.Moov{},
		Children: []mp4.Boxes{mvhdBoxes(), trak, mvex},
	}

	return marshalRoot(ftypBoxes(), moov), nil
}

// BuildAudioInit renders the init.mp4 for an AAC track: ftyp, moov with a
// single audio trak (mp4a/esds carrying the AudioSpecificConfig), and
// mvex/trex.
func BuildAudioInit(t *store.AACTrack) ([]byte, error) {
	config := audioSpecificConfig(t.AudioObjectType(), t.FrequencyIndex(), t.ChannelConfig())
	sampleRate := samplingFrequency(t.FrequencyIndex())
	channelCount := t.ChannelConfig()
	if channelCount == 0 {
		channelCount = 1
	}

	minf := mp4.Boxes{
		Box: &mp4.Minf{},
		Children: []mp4.Boxes{
			{Box: &mp4.Smhd{}},
			dinfBoxes(),
			{
				Box: &mp4.Stbl{},
				Children: []mp4.Boxes{
					{
						Box: &mp4.Stsd{EntryCount: 1},
						Children: []mp4.Boxes{
							{
								Box: &mp4.Mp4a{
									SampleEntry:  mp4.SampleEntry{DataReferenceIndex: 1},
									ChannelCount: uint16(channelCount),
									SampleSize:   16,
									SampleRate:   sampleRate << 16,
								},
								Children: []mp4.Boxes{
									{Box: &mp4.Esds{ESID: trackID, Config: config}},
									{Box: &mp4.Btrt{
										MaxBitrate: maxBitrateOr(t.MaxBitrate(), 128825),
										AvgBitrate: maxBitrateOr(t.MaxBitrate(), 128825),
									}},
								},
							},
						},
					},
					{Box: &mp4.Stts{}},
					{Box: &mp4.Stsc{}},
					{Box: &mp4.Stsz{}},
					{Box: &mp4.Stco{}},
				},
			},
		},
	}

	trak := mp4.Boxes{
		Box: &mp4.Trak{},
		Children: []mp4.Boxes{
			{Box: &mp4.Tkhd{
				FullBox:        mp4.FullBox{Flags: [3]byte{0, 0, 3}},
				TrackID:        trackID,
				AlternateGroup: 1,
				Volume:         256,
				Matrix:         [9]int32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000},
			}},
			{
				Box: &mp4.Mdia{},
				Children: []mp4.Boxes{
					{Box: &mp4.Mdhd{Timescale: Timescale, Language: [3]byte{'u', 'n', 'd'}}},
					{Box: &mp4.Hdlr{HandlerType: [4]byte{'s', 'o', 'u', 'n'}, Name: "SoundHandler"}},
					minf,
				},
			},
		},
	}

	mvex := mp4.Boxes{
		Box: &mp4.Mvex{},
		Children: []mp4.Boxes{
			{Box: &mp4.Trex{TrackID: trackID, DefaultSampleDescriptionIndex: 1}},
		},
	}

	moov := mp4.Boxes{
		Box:      &mp4.Moov{},
		Children: []mp4.Boxes{mvhdBoxes(), trak, mvex},
	}

	return marshalRoot(ftypBoxes(), moov), nil
}

func marshalRoot(boxes ...mp4.Boxes) []byte {
	size := 0
	for _, b := range boxes {
		size += b.Size()
	}
	buf := make([]byte, size)
	pos := 0
	for _, b := range boxes {
		b.Marshal(buf, &pos)
	}
	return buf
}

func maxBitrateOr(v *uint32, fallback uint32) uint32 {
	if v != nil {
		return *v
	}
	return fallback
}

// samplingFrequencyTable is the ADTS sampling_frequency_index table
// (ISO/IEC 13818-7 Table 1.18).
var samplingFrequencyTable = [...]uint32{
	96000, 88200, 64000, 48000, 44100, 32000,
	24000, 22050, 16000, 12000, 11025, 8000, 7350,
}

func samplingFrequency(freqIndex uint8) uint32 {
	if int(freqIndex) < len(samplingFrequencyTable) {
		return samplingFrequencyTable[freqIndex]
	}
	return 44100
}

// audioSpecificConfig builds the 2-byte MPEG-4 AudioSpecificConfig
// (ISO/IEC 14496-3 1.6.2.1): audioObjectType(5) | samplingFrequencyIndex(4) |
// channelConfiguration(4), GASpecificConfig fields left at zero.
func audioSpecificConfig(audioObjectType, freqIndex, channelConfig uint8) []byte {
	b0 := (audioObjectType << 3) | (freqIndex >> 1)
	b1 := (freqIndex&0x1)<<7 | (channelConfig&0xf)<<3
	return []byte{b0, b1}
}
