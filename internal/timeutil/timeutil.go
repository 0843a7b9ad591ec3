package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

// ErrInvalidPeriod rejects rolling periods other than <n>d or <n>h.
var ErrInvalidPeriod = apperr.Validation("period must look like 7d or 24h")

const dateOnly = "2006-01-02"

// TimeWindow is an inclusive [Start, End] reporting range in UTC.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// ParseTimestamp accepts RFC 3339 timestamps (with or without fractional
// seconds) and bare YYYY-MM-DD dates. The result is normalized to UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, apperr.Validation("timestamp is required")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", dateOnly} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation(fmt.Sprintf("invalid ISO-8601 timestamp %q", value))
}

// NewTimeWindow validates that start does not come after end.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	start, end = start.UTC(), end.UTC()
	if start.After(end) {
		return TimeWindow{}, apperr.Validation("start_date must not be after end_date")
	}
	return TimeWindow{Start: start, End: end}, nil
}

// ParseWindow parses both bounds. A bare end date covers the whole day.
func ParseWindow(startValue, endValue string) (TimeWindow, error) {
	start, err := ParseTimestamp(startValue)
	if err != nil {
		return TimeWindow{}, err
	}
	end, err := ParseTimestamp(endValue)
	if err != nil {
		return TimeWindow{}, err
	}
	if isDateOnly(endValue) {
		end = EndOfDay(end)
	}
	return NewTimeWindow(start, end)
}

// NewWindow returns a rolling window ending at now for periods like "7d" or "24h".
func NewWindow(period string, now time.Time) (TimeWindow, error) {
	dur, err := durationFromPeriod(period)
	if err != nil {
		return TimeWindow{}, err
	}
	now = now.UTC()
	return TimeWindow{Start: now.Add(-dur), End: now}, nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Previous returns the window of equal length that ends just before Start.
func (w TimeWindow) Previous() TimeWindow {
	end := w.Start.Add(-time.Second)
	return TimeWindow{Start: end.Add(-w.Duration()), End: end}
}

// Days returns the number of calendar days touched by the window.
func (w TimeWindow) Days() int {
	first := TruncateToDay(w.Start)
	last := TruncateToDay(w.End)
	return int(last.Sub(first).Hours()/24) + 1
}

// TruncateToDay normalizes the timestamp to UTC midnight.
func TruncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last whole second of t's UTC day.
func EndOfDay(t time.Time) time.Time {
	return TruncateToDay(t).Add(24*time.Hour - time.Second)
}

func isDateOnly(value string) bool {
	_, err := time.Parse(dateOnly, strings.TrimSpace(value))
	return err == nil
}

func durationFromPeriod(period string) (time.Duration, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if len(p) < 2 {
		return 0, ErrInvalidPeriod
	}
	unit := p[len(p)-1]
	value, err := strconv.Atoi(p[:len(p)-1])
	if err != nil || value <= 0 {
		return 0, ErrInvalidPeriod
	}
	switch unit {
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(value) * time.Hour, nil
	default:
		return 0, ErrInvalidPeriod
	}
}
