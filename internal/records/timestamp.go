package records

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp accepts ISO-8601 text, Hedera consensus timestamps
// ("seconds.nanos") and unix seconds or milliseconds. Unparseable input
// yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}

	secPart, nanoPart, hasDot := strings.Cut(s, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || sec < 0 {
		return time.Time{}
	}
	if hasDot {
		if len(nanoPart) > 9 {
			nanoPart = nanoPart[:9]
		}
		nanoPart += strings.Repeat("0", 9-len(nanoPart))
		nanos, err := strconv.ParseInt(nanoPart, 10, 64)
		if err != nil {
			return time.Time{}
		}
		return time.Unix(sec, nanos).UTC()
	}
	// 13+ digits is milliseconds.
	if sec >= 1e12 {
		return time.UnixMilli(sec).UTC()
	}
	return time.Unix(sec, 0).UTC()
}
