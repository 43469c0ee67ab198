package roomheat

import "time"

// Timestamp layouts accepted from the booking source.
const (
	TimestampLayout = "2006-01-02 15:04:05"
	DateLayout      = "2006-01-02"
)

// ParseTimestamp parses a booking-source timestamp, accepting a date-only
// form. Returns the zero time when the value cannot be parsed; callers treat
// that as a soft failure, not an error.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.ParseInLocation(TimestampLayout, s, time.Local); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.Local); err == nil {
		return t
	}
	return time.Time{}
}

// ParseTimeOfDay parses a wall-clock "15:04:05" or "15:04" string into
// minutes-plus-seconds offset from midnight. Invalid input falls back to
// 15:00, the conventional check-in hour.
func ParseTimeOfDay(s string) time.Duration {
	if t, err := time.Parse("15:04:05", s); err == nil {
		return TimeOfDay(t)
	}
	if t, err := time.Parse("15:04", s); err == nil {
		return TimeOfDay(t)
	}
	return 15 * time.Hour
}

func TimeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// AtTimeOfDay combines a date with a wall-clock offset from midnight.
func AtTimeOfDay(date time.Time, tod time.Duration) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, date.Location()).Add(tod)
}
