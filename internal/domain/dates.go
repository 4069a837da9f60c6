package domain

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var zonedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05-0700",
}

var naiveLayouts = []string{
	"20060102",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseFlexibleDate normalises the date shapes scrapers emit, interpreting
// naive values as UTC. The bool is false when nothing matched.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	return ParseFlexibleDateIn(raw, time.UTC)
}

// ParseFlexibleDateIn is ParseFlexibleDate with naive values placed in loc.
func ParseFlexibleDateIn(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	// Compact dates first; other bare numbers are not dates.
	if isDigits(s) {
		if len(s) != 8 {
			return time.Time{}, false
		}
		t, err := time.ParseInLocation("20060102", s, loc)
		return t, err == nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
