package h264

import (
	"bytes"
	"errors"

	"github.com/icza/bitio"
)

// ErrNoPicTiming is returned by ParsePicTimingSEI when the SEI message does
// not carry a clock_timestamp (clock_timestamp_flag was 0, or pic_struct
// was not signalled at all).
var ErrNoPicTiming = errors.New("h264: SEI has no pic_timing clock_timestamp")

// ClockTimestamp is one pic_timing SEI clock_timestamp(), per §4.4.
type ClockTimestamp struct {
	Hours   uint8
	Minutes uint8
	Seconds uint8
	NFrames uint8
}

// ParsePicTimingSEI extracts the first clock_timestamp from a pic_timing
// SEI message payload (the SEI NAL's payload, past the sei_type/size
// header bytes), using sps to know whether cpb_removal_delay/
// dpb_output_delay are present and how wide time_offset is. Per §4.4 this
// is opportunistic: a stream whose SPS lacks VUI/pic_struct simply never
// yields a timestamp, and #EXT-X-PROGRAM-DATE-TIME is omitted.
func ParsePicTimingSEI(payload []byte, sps *SPS) (ClockTimestamp, error) {
	if sps.VUI == nil || !sps.VUI.picStructPresentFlag {
		return ClockTimestamp{}, ErrNoPicTiming
	}

	rbsp := RemoveEmulationPrevention(payload)
	br := bitio.NewReader(bytes.NewReader(rbsp))

	if sps.VUI.cpbDpbDelaysPresent {
		h := sps.VUI.hrd
		if _, err := br.ReadBits(uint8(h.cpbRemovalDelayLengthMinus1 + 1)); err != nil {
			return ClockTimestamp{}, err
		}
		if _, err := br.ReadBits(uint8(h.dpbOutputDelayLengthMinus1 + 1)); err != nil {
			return ClockTimestamp{}, err
		}
	}

	picStruct, err := br.ReadBits(4)
	if err != nil {
		return ClockTimestamp{}, err
	}
	numClockTS := numClockTSFromPicStruct(uint8(picStruct))
	if numClockTS == 0 {
		return ClockTimestamp{}, ErrNoPicTiming
	}

	for i := 0; i < numClockTS; i++ {
		clockTimestampFlag, err := readFlag(br)
		if err != nil {
			return ClockTimestamp{}, err
		}
		if !clockTimestampFlag {
			continue
		}
		return parseClockTimestamp(br, sps)
	}
	return ClockTimestamp{}, ErrNoPicTiming
}

// numClockTSFromPicStruct implements Table D-1.
func numClockTSFromPicStruct(picStruct uint8) int {
	switch picStruct {
	case 0, 1, 2:
		return 1
	case 3, 4, 5, 6:
		return 2
	case 7, 8:
		return 3
	default:
		return 0
	}
}

func parseClockTimestamp(br *bitio.Reader, sps *SPS) (ClockTimestamp, error) {
	if _, err := br.ReadBits(2); err != nil { // ct_type
		return ClockTimestamp{}, err
	}
	if _, err := readFlag(br); err != nil { // nuit_field_based_flag
		return ClockTimestamp{}, err
	}
	if _, err := br.ReadBits(5); err != nil { // counting_type
		return ClockTimestamp{}, err
	}

	fullTimestampFlag, err := readFlag(br)
	if err != nil {
		return ClockTimestamp{}, err
	}
	if _, err := readFlag(br); err != nil { // discontinuity_flag
		return ClockTimestamp{}, err
	}
	if _, err := readFlag(br); err != nil { // cnt_dropped_flag
		return ClockTimestamp{}, err
	}
	nFrames, err := br.ReadBits(8)
	if err != nil {
		return ClockTimestamp{}, err
	}

	var ts ClockTimestamp
	ts.NFrames = uint8(nFrames)

	if fullTimestampFlag {
		seconds, err := br.ReadBits(6)
		if err != nil {
			return ClockTimestamp{}, err
		}
		minutes, err := br.ReadBits(6)
		if err != nil {
			return ClockTimestamp{}, err
		}
		hours, err := br.ReadBits(5)
		if err != nil {
			return ClockTimestamp{}, err
		}
		ts.Seconds, ts.Minutes, ts.Hours = uint8(seconds), uint8(minutes), uint8(hours)
	} else {
		secondsFlag, err := readFlag(br)
		if err != nil {
			return ClockTimestamp{}, err
		}
		if secondsFlag {
			seconds, err := br.ReadBits(6)
			if err != nil {
				return ClockTimestamp{}, err
			}
			ts.Seconds = uint8(seconds)

			minutesFlag, err := readFlag(br)
			if err != nil {
				return ClockTimestamp{}, err
			}
			if minutesFlag {
				minutes, err := br.ReadBits(6)
				if err != nil {
					return ClockTimestamp{}, err
				}
				ts.Minutes = uint8(minutes)

				hoursFlag, err := readFlag(br)
				if err != nil {
					return ClockTimestamp{}, err
				}
				if hoursFlag {
					hours, err := br.ReadBits(5)
					if err != nil {
						return ClockTimestamp{}, err
					}
					ts.Hours = uint8(hours)
				}
			}
		}
	}

	timeOffsetLength := uint8(24)
	if sps.VUI.cpbDpbDelaysPresent {
		timeOffsetLength = sps.VUI.hrd.timeOffsetLength
	}
	if timeOffsetLength > 0 {
		if _, err := br.ReadBits(timeOffsetLength); err != nil { // time_offset, unused
			return ClockTimestamp{}, err
		}
	}

	return ts, nil
}
