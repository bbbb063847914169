package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const Day = 24 * time.Hour

// ParseTime tries RFC3339, RFC3339Nano, a plain date and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseWindow parses a window id such as "15m", "1h", "7d". Days are 24h.
func ParseWindow(id string) (time.Duration, error) {
	id = strings.TrimSpace(id)
	if strings.HasSuffix(id, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(id, "d"))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid window %q", id)
		}
		return time.Duration(n) * Day, nil
	}
	d, err := time.ParseDuration(id)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", id)
	}
	return d, nil
}

// AlignDays maps the inclusive day range [from, to] onto the half-open range
// [start, end) where start is the UTC day of from and end is the day after to.
func AlignDays(from, to time.Time) (time.Time, time.Time) {
	return from.UTC().Truncate(Day), to.UTC().Truncate(Day).Add(Day)
}
