// Package timeseries composes cumulative and breakdown HogQL queries over a
// bucketed date axis.
package timeseries

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
	"github.com/ncecere/insights_dashboard/internal/apperr"
)

type Interval string

const (
	Day   Interval = "day"
	Week  Interval = "week"
	Month Interval = "month"
)

// ParseInterval defaults to Day for an empty value.
func ParseInterval(value string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(value))) {
	case "", Day:
		return Day, nil
	case Week:
		return Week, nil
	case Month:
		return Month, nil
	default:
		return "", apperr.Validation(fmt.Sprintf("interval must be day, week or month, got %q", value))
	}
}

// Truncate returns the UTC start of the bucket containing t. Weeks start on Monday.
func (i Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch i {
	case Week:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Next returns the start of the bucket after the one starting at t.
func (i Interval) Next(t time.Time) time.Time {
	switch i {
	case Week:
		return t.AddDate(0, 0, 7)
	case Month:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// truncate renders the warehouse expression matching Truncate. Week and
// month starts come back as dates and are widened to match the axis.
func (i Interval) truncate(field hogql.Expr) hogql.Expr {
	switch i {
	case Week:
		return toDateTime(hogql.Call{Name: "toStartOfWeek", Args: []hogql.Expr{field, hogql.Number(1)}})
	case Month:
		return toDateTime(hogql.Call{Name: "toStartOfMonth", Args: []hogql.Expr{field}})
	default:
		return hogql.Call{Name: "toStartOfDay", Args: []hogql.Expr{field}}
	}
}

func toDateTime(e hogql.Expr) hogql.Expr {
	return hogql.Call{Name: "toDateTime", Args: []hogql.Expr{e}}
}
