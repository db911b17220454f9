package clinic

import (
	"fmt"
	"strings"
	"time"
)

const (
	wallClockLayout = "2006-01-02T15:04:05"
	dateLayout      = "2006-01-02"
)

var wallClockLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	wallClockLayout,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// FormatWallClock renders t's own wall-clock minute as YYYY-MM-DDTHH:mm:00.
// Seconds are dropped and no offset is written.
func FormatWallClock(t time.Time) string {
	return t.Format("2006-01-02T15:04") + ":00"
}

// ParseWallClock reads a wall-clock value into loc. A trailing UTC marker is
// stripped so the digits are kept as local time. Any other explicit offset is
// honoured and converted into loc.
func ParseWallClock(s string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimSuffix(raw, "Z")
	raw = strings.TrimSuffix(raw, "+00:00")

	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}

	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.In(loc), nil
	}

	return time.Time{}, fmt.Errorf("%w: unrecognised date-time %q", ErrValidation, s)
}

// InClinicZone keeps the wall-clock fields of t and moves them to loc.
func InClinicZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// DayBounds returns the first and last wall-clock instants of t's day.
func DayBounds(t time.Time) (start, end time.Time) {
	start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 0, 1).Add(-time.Millisecond)
	return start, end
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate reads YYYY-MM-DD, also accepting a full timestamp and keeping
// only its date part.
func ParseDate(s string) (time.Time, error) {
	raw := strings.TrimSpace(s)
	if len(raw) > len(dateLayout) && raw[len(dateLayout)] == 'T' {
		raw = raw[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: unrecognised date %q", ErrValidation, s)
	}
	return t, nil
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
