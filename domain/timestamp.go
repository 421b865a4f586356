package domain

import (
	"errors"
	"strings"
	"time"
)

// TimeFormat is the naive UTC layout timestamps are stored and served in.
const TimeFormat = "2006-01-02 15:04:05"

var errEmptyTimestamp = errors.New("empty timestamp")

// NormalizeTimestamp rewrites a timestamp string into RFC 3339 form. Values
// without a zone designator are UTC by convention, so "Z" is appended to them.
// Date-only values are taken as midnight and minute-precision values get
// zero seconds.
func NormalizeTimestamp(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errEmptyTimestamp
	}
	if len(s) == len("2006-01-02") {
		s += "T00:00:00"
	}
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	if len(s) > 11 {
		clock := s[11:]
		zone := ""
		if i := strings.IndexAny(clock, "Zz+-"); i >= 0 {
			clock, zone = clock[:i], clock[i:]
		}
		if len(clock) == len("15:04") {
			s = s[:11] + clock + ":00" + zone
		}
	}
	if !hasZone(s) {
		s += "Z"
	}
	return s, nil
}

// hasZone reports whether the time portion of s carries a zone suffix.
func hasZone(s string) bool {
	if len(s) <= 11 {
		return false
	}
	return strings.ContainsAny(s[11:], "Zz+-")
}

// ParseTimestamp parses a task timestamp and returns it as a UTC instant.
func ParseTimestamp(raw string) (time.Time, error) {
	s, err := NormalizeTimestamp(raw)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatTimestamp renders t in TimeFormat after converting it to UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// CanonicalTimestamp re-renders raw in TimeFormat. Empty or unparseable input
// yields "".
func CanonicalTimestamp(raw string) string {
	t, err := ParseTimestamp(raw)
	if err != nil {
		return ""
	}
	return FormatTimestamp(t)
}
