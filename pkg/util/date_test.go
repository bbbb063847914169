package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDate(t *testing.T) {
	got, ok := ParseTime("2024-10-10")
	if !ok || !got.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected %v %v", got, ok)
	}
}

func TestParseWindow(t *testing.T) {
	cases := map[string]time.Duration{
		"1h":  time.Hour,
		"24h": 24 * time.Hour,
		"7d":  7 * Day,
		"30d": 30 * Day,
		"15m": 15 * time.Minute,
	}
	for in, want := range cases {
		got, err := ParseWindow(in)
		if err != nil || got != want {
			t.Errorf("%s: got %v, %v", in, got, err)
		}
	}
	for _, bad := range []string{"", "0d", "-1h", "xd", "week"} {
		if _, err := ParseWindow(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestAlignDays(t *testing.T) {
	from := time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)
	to := time.Date(2024, 10, 12, 1, 0, 0, 0, time.UTC)
	f, e := AlignDays(from, to)
	if !f.Equal(time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from %v", f)
	}
	if !e.Equal(time.Date(2024, 10, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end %v", e)
	}

	day := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	f, e = AlignDays(day, day)
	if !f.Equal(day) || !e.Equal(day.Add(Day)) {
		t.Fatalf("single day: %v %v", f, e)
	}

	// Plain dates name whole days, so the last one is included.
	f, e = AlignDays(day, day.AddDate(0, 0, 2))
	if !f.Equal(day) || !e.Equal(day.AddDate(0, 0, 3)) {
		t.Fatalf("date range: %v %v", f, e)
	}
}

func TestShortAddress(t *testing.T) {
	if got := ShortAddress("9BB6NFEcjBCtnNLFko2FqVQBq8HHM13kCyYcdQbgpump"); got != "9BB6NF...pump" {
		t.Fatalf("got %s", got)
	}
	if got := ShortAddress("short"); got != "short" {
		t.Fatalf("got %s", got)
	}
}
