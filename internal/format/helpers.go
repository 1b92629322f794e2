package format

import (
	"fmt"
	"strings"
	"time"
)

// FmtCount formats a user count with a K suffix past four digits.
func FmtCount(n int) string {
	if n >= 10_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000.0)
	}
	return fmt.Sprintf("%d", n)
}

// FmtPercent renders a 0..1 fraction as a percentage with one decimal.
func FmtPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// FmtTimestamp renders a timestamp as RFC 3339 UTC, or "-" for the zero
// value (absent users carry no telemetry timestamps).
func FmtTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// FmtDay renders the calendar-date part of a timestamp.
func FmtDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// FmtGapDays renders a gap magnitude in days with one decimal.
func FmtGapDays(days float64) string {
	return fmt.Sprintf("%.1fd", days)
}

// Bar renders a 0..1 rate as a fixed-width fill bar: full blocks for the
// filled share, light shade for the rest. Out-of-range rates clamp.
func Bar(rate float64, w int) string {
	filled := int(rate * float64(w))
	if filled < 0 {
		filled = 0
	}
	if filled > w {
		filled = w
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", w-filled)
}
