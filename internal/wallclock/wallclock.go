// Package wallclock derives the PROGRAM-DATE-TIME offset (§4.4) from a
// pic_timing SEI clock-timestamp: a hh:mm:ss:frames value with no date
// component, reconciled against the current UTC time-of-day to pick the
// right calendar day.
package wallclock

import (
	"time"

	"github.com/dholroyd/lowly/internal/h264"
)

// FrameRate is the frame rate used to interpret a clock-timestamp's
// n_frames field as a fraction of a second. A var, not a const, so the
// config package can override the default (§9 names it as an operator
// knob); a production implementation would otherwise derive it from SPS
// VUI timing info instead.
var FrameRate int64 = 25

// Timescale is the 90kHz media timebase the returned offset is expressed in,
// matching the store's dts/pts domain.
const Timescale = 90000

const ticksPerDay = int64(24 * 60 * 60 * Timescale)
const halfDay = ticksPerDay / 2

// ticksOfDay converts a clock-timestamp to ticks-of-day at Timescale,
// per §4.4: (((hours*60+minutes)*60+seconds)*FRAME_RATE+n_frames) scaled to
// the 90kHz domain instead of microseconds, since every other quantity this
// package deals in is already in 90kHz ticks.
func ticksOfDay(ts h264.ClockTimestamp) int64 {
	totalFrames := ((int64(ts.Hours)*60+int64(ts.Minutes))*60+int64(ts.Seconds))*FrameRate + int64(ts.NFrames)
	return totalFrames * Timescale / FrameRate
}

// Offset computes pts_to_datetime = media_ticks_for_local_datetime -
// current_pts, per §4.4: the clock-timestamp names a time-of-day with no
// date, so the date is chosen by rounding toward whichever of
// {yesterday, today, tomorrow UTC} keeps the reconstructed instant within
// half a day of now.
func Offset(ts h264.ClockTimestamp, pts int64, now time.Time) int64 {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	nowTicksOfDay := int64(now.Sub(midnight)) * Timescale / int64(time.Second)

	encoded := ticksOfDay(ts)
	timeDiff := encoded - nowTicksOfDay
	dayShift := 0
	if timeDiff > halfDay {
		dayShift = -1
	} else if timeDiff < -halfDay {
		dayShift = 1
	}

	date := midnight.AddDate(0, 0, dayShift)
	epochTicksForLocalDatetime := date.Unix()*Timescale + encoded

	return epochTicksForLocalDatetime - pts
}

// TicksToTime converts a 90kHz tick count since the Unix epoch (dts+offset,
// once the offset has been set) back to a UTC time.Time, for the manifest
// renderer's #EXT-X-PROGRAM-DATE-TIME line.
func TicksToTime(epochTicks int64) time.Time {
	secs := epochTicks / Timescale
	rem := epochTicks % Timescale
	if rem < 0 {
		rem += Timescale
		secs--
	}
	nanos := rem * int64(time.Second) / Timescale
	return time.Unix(secs, nanos).UTC()
}
