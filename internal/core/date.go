package core

import (
	"strings"
	"time"
)

// DraftLayout is the timestamp layout exchanged with the model and returned
// in drafts.
const DraftLayout = "2006-01-02T15:04:05"

// zoned layouts carry their own offset; naive ones are read as UTC.
var (
	zonedLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
	}
	naiveLayouts = []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02T15",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04",
		"2006-01-02",
	}
)

// ParseISO parses an ISO-8601-like timestamp. A trailing "Z" is UTC; values
// without an offset are taken as UTC. The result is always in UTC.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// NormalizeDate resolves a caller-supplied date value, in priority order:
//
//  1. absent -> now
//  2. time.Time -> as is
//  3. text with a "T" -> full timestamp, now on failure
//  4. text without a "T" -> that date at midnight UTC, now on failure
//
// Anything else resolves to now. The result is always UTC.
func NormalizeDate(v any, now time.Time) time.Time {
	var t time.Time
	switch d := v.(type) {
	case nil:
		t = now
	case time.Time:
		t = d
		if t.IsZero() {
			t = now
		}
	case *time.Time:
		if d == nil || d.IsZero() {
			t = now
		} else {
			t = *d
		}
	case string:
		t = normalizeDateText(d, now)
	default:
		t = now
	}
	return t.UTC()
}

func normalizeDateText(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	if strings.Contains(s, "T") {
		if t, err := ParseISO(s); err == nil {
			return t
		}
		return now
	}
	t, err := time.Parse(time.RFC3339, s+"T00:00:00Z")
	if err != nil {
		return now
	}
	return t
}
