package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Epoch bounds for a plausible absolute time. Anything below minEpochSeconds is
// more likely a running match minute or a counter than a timestamp.
const (
	minEpochSeconds = 1e9  // 2001-09-09
	minEpochMillis  = 1e12 // same instant in ms
	maxEpochMillis  = 1e14
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// PlausibleTimestamp converts a raw kickoff candidate into a time. Numbers are
// read as epoch seconds or epoch milliseconds by magnitude; strings may also be
// RFC 3339 or "2006-01-02 15:04:05". Small integers such as 77 are rejected.
func PlausibleTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil, bool:
		return time.Time{}, false
	case time.Time:
		return t, !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochTime(f)
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	}
	f, ok := toFloat(v)
	if !ok {
		return time.Time{}, false
	}
	return epochTime(f)
}

func epochTime(f float64) (time.Time, bool) {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return time.Time{}, false
	case f >= minEpochSeconds && f < minEpochMillis:
		return time.UnixMilli(int64(f * 1000)).UTC(), true
	case f >= minEpochMillis && f < maxEpochMillis:
		return time.UnixMilli(int64(f)).UTC(), true
	default:
		return time.Time{}, false
	}
}

// parseLine reads a betting line. Split (quarter) lines such as "-0/0.5" or
// "2.5/3" resolve to the mean of their parts, keeping the leading sign.
func parseLine(text string) (float64, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign, s = -1, s[1:]
	case '+':
		s = s[1:]
	}
	parts := strings.Split(s, "/")
	if len(parts) > 2 {
		return 0, false
	}
	var sum float64
	for _, p := range parts {
		p = strings.TrimLeft(strings.TrimSpace(p), "+-")
		f, err := strconv.ParseFloat(p, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		sum += f
	}
	v := sign * sum / float64(len(parts))
	if v == 0 {
		v = 0 // drop negative zero
	}
	return v, true
}

// formatLine renders a numeric line when the feed only sent a number.
func formatLine(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
