package wallclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dholroyd/lowly/internal/h264"
)

func TestOffsetAtExactMidnight(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := h264.ClockTimestamp{}

	offset := Offset(ts, 0, now)
	require.EqualValues(t, 1704067200*Timescale, offset)

	require.Equal(t, now, TicksToTime(offset))
}

func TestOffsetSubtractsCurrentPTS(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := h264.ClockTimestamp{}

	offset := Offset(ts, 90000, now) // pts one second into the stream
	require.EqualValues(t, 1704067200*Timescale-90000, offset)
}

func TestOffsetRollsForwardWhenClockTimestampIsJustAfterMidnightButNowIsJustBefore(t *testing.T) {
	now := time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)
	ts := h264.ClockTimestamp{Seconds: 1}

	offset := Offset(ts, 0, now)
	require.EqualValues(t, 1704153600*Timescale+Timescale, offset)
}

func TestTicksToTimeRoundTripsThroughOffset(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 30, 45, 0, time.UTC)
	ts := h264.ClockTimestamp{Hours: 12, Minutes: 30, Seconds: 45}
	pts := int64(5 * Timescale)

	offset := Offset(ts, pts, now)
	require.Equal(t, now, TicksToTime(offset+pts))
}

func TestTicksToTimeHandlesNegativeRemainder(t *testing.T) {
	got := TicksToTime(-1)
	require.Equal(t, time.Unix(-1, 999988888).UTC(), got)
}
