// Package utils provides small helpers shared by the protocol server and the
// processing pipeline: time-of-day window arithmetic and sandbox-bounded file
// cleanup.
package utils

import (
	"fmt"
	"time"
)

// ClockLayout is the layout of working-hours boundaries ("19:00").
const ClockLayout = "15:04"

// ParseClock parses an "HH:MM" time of day and returns the offset from
// midnight.
//
// Parameters:
//   - clock: Time of day in 24-hour "HH:MM" form
//
// Returns:
//   - The duration since midnight
//   - An error if clock is not a valid time of day
func ParseClock(clock string) (time.Duration, error) {
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", clock, err)
	}

	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// TimeOfDay returns the offset of t from its local midnight, with second
// precision.
func TimeOfDay(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}

// IsWithinWorkingHours reports whether now falls inside the window
// [start, end]. Both bounds are inclusive. A window whose start is after its
// end crosses midnight and matches when now >= start OR now <= end.
//
// Parameters:
//   - start: Window start, "HH:MM"
//   - end: Window end, "HH:MM"
//   - now: The instant to test, evaluated in its own location
//
// Returns:
//   - true if now is inside the window
//   - An error if either bound cannot be parsed
func IsWithinWorkingHours(start, end string, now time.Time) (bool, error) {
	from, err := ParseClock(start)
	if err != nil {
		return false, err
	}

	to, err := ParseClock(end)
	if err != nil {
		return false, err
	}

	tod := TimeOfDay(now)
	if from <= to {
		return from <= tod && tod <= to, nil
	}

	return tod >= from || tod <= to, nil
}
