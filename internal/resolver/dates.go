package resolver

import (
	"strings"
	"time"
)

// Numeric date heuristics are bounded to [1990, 2100] to reject nonsensical
// coercions of ordinary measurements.
var (
	minEpochSeconds = time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	maxEpochSeconds = time.Date(2100, 12, 31, 23, 59, 59, 0, time.UTC).Unix()

	// Spreadsheet serial dates count days from 1899-12-30.
	serialEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	minSerial   = float64(minEpochSeconds-serialEpoch.Unix()) / 86400
	maxSerial   = float64(maxEpochSeconds-serialEpoch.Unix()) / 86400
)

var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"20060102",
}

// ParseDate parses a cell into a UTC calendar date. It accepts native time
// values, ISO formats, ambiguous slashed dates (month-first, falling back to
// day-first), and bounded epoch/spreadsheet-serial numbers.
func ParseDate(v any) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		return typed.UTC(), true
	case string:
		return parseDateString(typed)
	default:
		n, ok := NumericValue(v)
		if !ok {
			return time.Time{}, false
		}
		return parseNumericDate(n)
	}
}

func parseDateString(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), true
		}
	}

	// Ambiguous slashed dates: month-first wins, day-first is the fallback
	// when the month-first construction is invalid.
	for _, layout := range []string{"01/02/2006", "02/01/2006", "01-02-2006", "02-01-2006"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.UTC(), true
		}
	}

	if n, ok := NumericValue(trimmed); ok {
		return parseNumericDate(n)
	}
	return time.Time{}, false
}

func parseNumericDate(n float64) (time.Time, bool) {
	// Epoch seconds.
	if n >= float64(minEpochSeconds) && n <= float64(maxEpochSeconds) {
		return time.Unix(int64(n), 0).UTC(), true
	}
	// Epoch milliseconds.
	ms := n / 1000
	if ms >= float64(minEpochSeconds) && ms <= float64(maxEpochSeconds) {
		return time.Unix(int64(ms), 0).UTC(), true
	}
	// Spreadsheet serial days.
	if n >= minSerial && n <= maxSerial {
		return serialEpoch.Add(time.Duration(n * float64(24*time.Hour))).UTC(), true
	}
	return time.Time{}, false
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
