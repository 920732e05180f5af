package schedule

import (
	"fmt"
	"time"
)

const (
	// MinDurationMinutes is the shortest bookable appointment.
	MinDurationMinutes = 15

	minutesPerDay = 24 * 60
)

// Interval is a half-open [Start, End) window of minutes on a single
// calendar day. End is exclusive, so an appointment ending at 10:00 and
// another starting at 10:00 never overlap.
type Interval struct {
	Date  time.Time
	Start int
	End   int
}

func NewInterval(date time.Time, startMinute, durationMinutes int) Interval {
	return Interval{
		Date:  DateOnly(date),
		Start: startMinute,
		End:   startMinute + durationMinutes,
	}
}

// Overlaps reports whether two intervals share any minute. Intervals on
// different dates never overlap; equal boundaries never overlap.
func (iv Interval) Overlaps(other Interval) bool {
	if !iv.Date.Equal(other.Date) {
		return false
	}
	return iv.Start < other.End && other.Start < iv.End
}

// String renders "10:00 - 10:30" for conflict summaries.
func (iv Interval) String() string {
	return FormatClock(iv.Start) + " - " + FormatClock(iv.End)
}

// DateOnly truncates t to its calendar day at UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseClock converts "HH:MM" to a minute of day.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock converts a minute of day back to "HH:MM".
func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
