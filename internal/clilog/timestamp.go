package clilog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// 2025-09-01T12:34:56.789012Z, optionally bracketed, zone optional (UTC)
	isoTimestamp = regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2})(?:[.,](\d+))?(Z|[+-]\d{2}:?\d{2})?\]?(?:\s+|$)`)
	// 2025-09-01 12:34:56.789, always UTC
	legacyTimestamp = regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2})(?:[.,](\d+))?\]?(?:\s+|$)`)
	// leading unix epoch in seconds (10 digits) or milliseconds (13 digits)
	epochTimestamp = regexp.MustCompile(`^\[?(\d{10}|\d{13})(?:\.(\d+))?\]?(?:\s+|$)`)
)

// ParseTimestamp reads a leading timestamp from line and returns it in unix
// milliseconds along with the rest of the line. ok is false for lines that do
// not open a record.
func ParseTimestamp(line string) (int64, string, bool) {
	line = strings.TrimLeft(line, " \t")

	if m := isoTimestamp.FindStringSubmatch(line); m != nil {
		if ms, ok := clockMillis(m[1], m[2], m[3], m[4]); ok {
			return ms, line[len(m[0]):], true
		}
		return 0, line, false
	}
	if m := legacyTimestamp.FindStringSubmatch(line); m != nil {
		if ms, ok := clockMillis(m[1], m[2], m[3], ""); ok {
			return ms, line[len(m[0]):], true
		}
		return 0, line, false
	}
	if m := epochTimestamp.FindStringSubmatch(line); m != nil {
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, line, false
		}
		if len(m[1]) == 10 {
			v = v*1000 + fractionMillis(m[2])
		}
		return v, line[len(m[0]):], true
	}
	return 0, line, false
}

func clockMillis(date, clock, fraction, zone string) (int64, bool) {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", date+"T"+clock, time.UTC)
	if err != nil {
		return 0, false
	}
	ms := t.UnixMilli() + fractionMillis(fraction)

	if zone != "" && zone != "Z" {
		sign := int64(1)
		if zone[0] == '-' {
			sign = -1
		}
		digits := strings.ReplaceAll(zone[1:], ":", "")
		hours, _ := strconv.ParseInt(digits[:2], 10, 64)
		minutes, _ := strconv.ParseInt(digits[2:], 10, 64)
		ms -= sign * (hours*60 + minutes) * 60_000
	}
	return ms, true
}

// fractionMillis turns the digits after the decimal point into milliseconds
func fractionMillis(digits string) int64 {
	if digits == "" {
		return 0
	}
	if len(digits) > 3 {
		digits = digits[:3]
	}
	for len(digits) < 3 {
		digits += "0"
	}
	v, _ := strconv.ParseInt(digits, 10, 64)
	return v
}
