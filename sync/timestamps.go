// ABOUTME: Normalizes HubSpot timestamps that arrive as epoch seconds, epoch millis or date strings
// ABOUTME: Never fails; unparseable input degrades to the current time
package sync

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// secondsThreshold is 2000-01-01T00:00:00Z in epoch milliseconds. Smaller
// numbers cannot be millisecond timestamps of real activity, so they are seconds.
const secondsThreshold = 946_684_800_000

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// now is swapped in tests.
var now = time.Now

// NormalizeTimestamp converts a raw timestamp into a UTC instant.
func NormalizeTimestamp(raw string) time.Time {
	t, _ := parseTimestamp(raw)
	return t
}

// parseTimestamp is NormalizeTimestamp that also reports whether raw was
// understood; false means the result is the degraded current time.
func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now().UTC(), false
	}

	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return NormalizeEpoch(v), true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return normalizeFloat(f), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}

	return now().UTC(), false
}

// NormalizeEpoch interprets v as seconds when its magnitude is below the
// 2000-01-01 millisecond mark and as milliseconds otherwise.
func NormalizeEpoch(v int64) time.Time {
	abs := v
	if abs < 0 {
		abs = -abs
	}
	if abs < secondsThreshold {
		return time.Unix(v, 0).UTC()
	}
	return time.UnixMilli(v).UTC()
}

func normalizeFloat(f float64) time.Time {
	if math.Abs(f) < secondsThreshold {
		f *= 1000
	}
	return time.UnixMilli(int64(math.Round(f))).UTC()
}
