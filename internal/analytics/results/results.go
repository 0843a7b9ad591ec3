// Package results decodes flat warehouse rows into typed, breakdown-bucketed
// series. Each query kind has its own decoder; malformed rows are skipped so
// a dashboard renders partially instead of failing outright.
package results

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
)

type QueryKind int

const (
	// KindCumulative rows are (dates[], running values[], breakdown).
	KindCumulative QueryKind = iota
	// KindBreakdownSeries rows are (dates[], per-bucket values[], breakdown).
	KindBreakdownSeries
	// KindBreakdownScalar rows are (breakdown, total).
	KindBreakdownScalar
	// KindEntityCount is a single (entities) row.
	KindEntityCount
)

func (k QueryKind) String() string {
	switch k {
	case KindCumulative:
		return "cumulative"
	case KindBreakdownSeries:
		return "breakdown_series"
	case KindBreakdownScalar:
		return "breakdown_scalar"
	case KindEntityCount:
		return "entity_count"
	default:
		return "unknown"
	}
}

// OtherLabel names the synthetic bucket produced by TopNWithOther.
const OtherLabel = "other"

type DataPoint struct {
	Date      time.Time `json:"date"`
	Value     float64   `json:"value"`
	Breakdown string    `json:"breakdown"`
}

type BreakdownSeries struct {
	Breakdown  string      `json:"breakdown"`
	Total      float64     `json:"total"`
	TimeSeries []DataPoint `json:"time_series,omitempty"`
}

// ParseCount reads the first cell of a KindEntityCount result. Missing or
// malformed rows count as zero.
func ParseCount(rows [][]any) int {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0
	}
	n, ok := toFloat(rows[0][0])
	if !ok || n < 0 {
		return 0
	}
	return int(n)
}

// ParseCumulative flattens cumulative rows into one point per (date, breakdown).
// Sentinel breakdowns are kept.
func ParseCumulative(rows [][]any) []DataPoint {
	points := []DataPoint{}
	for _, row := range rows {
		series, ok := decodeSeriesRow(row)
		if !ok {
			continue
		}
		points = append(points, series.TimeSeries...)
	}
	return points
}

// ParseBreakdown decodes rows of the given kind into series sorted by total
// descending with sentinel breakdowns last. Cumulative series total their
// final value; bucketed series total the sum of their buckets.
func ParseBreakdown(kind QueryKind, rows [][]any) []BreakdownSeries {
	out := []BreakdownSeries{}
	for _, row := range rows {
		var (
			s  BreakdownSeries
			ok bool
		)
		switch kind {
		case KindBreakdownScalar:
			s, ok = decodeScalarRow(row)
		case KindCumulative:
			s, ok = decodeSeriesRow(row)
			if ok && len(s.TimeSeries) > 0 {
				s.Total = s.TimeSeries[len(s.TimeSeries)-1].Value
			}
		case KindBreakdownSeries:
			s, ok = decodeSeriesRow(row)
			if ok {
				for _, p := range s.TimeSeries {
					s.Total += p.Value
				}
			}
		}
		if ok {
			out = append(out, s)
		}
	}
	sortSeries(out)
	return out
}

func decodeSeriesRow(row []any) (BreakdownSeries, bool) {
	if len(row) < 3 {
		return BreakdownSeries{}, false
	}
	dates, ok := row[0].([]any)
	if !ok {
		return BreakdownSeries{}, false
	}
	values, ok := row[1].([]any)
	if !ok || len(values) != len(dates) {
		return BreakdownSeries{}, false
	}
	breakdown := breakdownLabel(row[2])
	s := BreakdownSeries{Breakdown: breakdown, TimeSeries: make([]DataPoint, 0, len(dates))}
	for i := range dates {
		date, ok := toTime(dates[i])
		if !ok {
			return BreakdownSeries{}, false
		}
		value, ok := toFloat(values[i])
		if !ok {
			return BreakdownSeries{}, false
		}
		s.TimeSeries = append(s.TimeSeries, DataPoint{Date: date, Value: value, Breakdown: breakdown})
	}
	return s, true
}

func decodeScalarRow(row []any) (BreakdownSeries, bool) {
	if len(row) < 2 {
		return BreakdownSeries{}, false
	}
	total, ok := toFloat(row[1])
	if !ok {
		return BreakdownSeries{}, false
	}
	return BreakdownSeries{Breakdown: breakdownLabel(row[0]), Total: total}, true
}

func breakdownLabel(v any) string {
	switch b := v.(type) {
	case nil:
		return hogql.NullBreakdown
	case string:
		return b
	default:
		if f, ok := toFloat(b); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return hogql.NullBreakdown
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d.UTC(), true
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, d); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// sentinelRank puts real entities first, then other, then null.
func sentinelRank(breakdown string) int {
	switch {
	case breakdown == hogql.OtherBreakdown || breakdown == OtherLabel:
		return 1
	case hogql.IsSentinelBreakdown(breakdown):
		return 2
	default:
		return 0
	}
}

func sortSeries(series []BreakdownSeries) {
	sort.SliceStable(series, func(i, j int) bool {
		ri, rj := sentinelRank(series[i].Breakdown), sentinelRank(series[j].Breakdown)
		if ri != rj {
			return ri < rj
		}
		if series[i].Total != series[j].Total {
			return series[i].Total > series[j].Total
		}
		return series[i].Breakdown < series[j].Breakdown
	})
}
