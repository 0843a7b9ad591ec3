package timeseries

import (
	"fmt"
	"strings"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/timeutil"
)

// AllBreakdown labels the single series of a query without a breakdown field.
const AllBreakdown = "all"

// CumulativeQuery yields rows of (dates[], values[], breakdown) where
// values are running event counts aligned to the bucket axis.
type CumulativeQuery struct {
	Event          string
	Window         timeutil.TimeWindow
	Interval       Interval
	BreakdownField hogql.Field
	TopN           int
	Filters        []hogql.Expr
}

func (q CumulativeQuery) Build() (string, error) {
	where, err := whereClause(q.Event, q.Window, q.Filters)
	if err != nil {
		return "", err
	}
	series := seriesSource{
		window:   q.Window,
		interval: q.Interval,
		field:    breakdownSource(q.BreakdownField),
		where:    where,
		values:   cumulativeValues(),
	}
	return series.build(q.TopN), nil
}

// BreakdownQuery yields either per-bucket series rows (dates[], values[],
// breakdown) or, when Scalar is set, (breakdown, total) rows.
type BreakdownQuery struct {
	Event          string
	Window         timeutil.TimeWindow
	Interval       Interval
	BreakdownField hogql.Field
	TopN           int
	Filters        []hogql.Expr
	Scalar         bool
}

func (q BreakdownQuery) Build() (string, error) {
	if q.BreakdownField == "" {
		return "", apperr.Validation("breakdown field is required")
	}
	where, err := whereClause(q.Event, q.Window, q.Filters)
	if err != nil {
		return "", err
	}
	if q.Scalar {
		return buildScalar(q.BreakdownField, where, q.TopN), nil
	}
	series := seriesSource{
		window:   q.Window,
		interval: q.Interval,
		field:    q.BreakdownField,
		where:    where,
		values:   bucketValues(),
	}
	return series.build(q.TopN), nil
}

// EntityCountQuery yields a single (entities) row: the number of distinct
// non-empty breakdown values in the window, counted before any top-N folding.
type EntityCountQuery struct {
	Event          string
	Window         timeutil.TimeWindow
	BreakdownField hogql.Field
	Filters        []hogql.Expr
}

func (q EntityCountQuery) Build() (string, error) {
	if q.BreakdownField == "" {
		return "", apperr.Validation("breakdown field is required")
	}
	where, err := whereClause(q.Event, q.Window, q.Filters)
	if err != nil {
		return "", err
	}
	present := hogql.Combine(where,
		hogql.Call{Name: "isNotNull", Args: []hogql.Expr{q.BreakdownField}},
		hogql.Compare{Left: hogql.Call{Name: "toString", Args: []hogql.Expr{q.BreakdownField}}, Op: hogql.OpNotEq, Right: hogql.String("")},
	)
	return fmt.Sprintf("SELECT uniq(%s) AS entities\nFROM events\nWHERE %s", q.BreakdownField.Render(), present.Render()), nil
}

func whereClause(event string, window timeutil.TimeWindow, filters []hogql.Expr) (hogql.Expr, error) {
	if window.Start.After(window.End) {
		return nil, apperr.Validation("start_date must not be after end_date")
	}
	exprs := []hogql.Expr{hogql.DateRange(window.Start, window.End, "")}
	if event = strings.TrimSpace(event); event != "" {
		exprs = append(exprs, hogql.EventName(event))
	}
	exprs = append(exprs, filters...)
	return hogql.Combine(exprs...), nil
}

func breakdownSource(field hogql.Field) hogql.Expr {
	if field == "" {
		return hogql.String(AllBreakdown)
	}
	return field
}

// cumulativeValues maps each axis date to the running count at that bucket,
// holding the last count through buckets with no events.
func cumulativeValues() hogql.Expr {
	lookup := hogql.Raw("arrayMap(d -> if(has(bucket_dates, d), arrayElement(running, indexOf(bucket_dates, d)), NULL), dates)")
	return hogql.Call{Name: "arrayMap", Args: []hogql.Expr{hogql.Raw("x -> ifNull(x, 0)"), CumulativeFill(lookup)}}
}

// bucketValues maps each axis date to the count within that bucket.
func bucketValues() hogql.Expr {
	return hogql.Raw("arrayMap(d -> if(has(bucket_dates, d), arrayElement(bucket_counts, indexOf(bucket_dates, d)), 0), dates)")
}

type seriesSource struct {
	window   timeutil.TimeWindow
	interval Interval
	field    hogql.Expr
	where    hogql.Expr
	values   hogql.Expr
}

func (s seriesSource) build(topN int) string {
	raw := hogql.Field(colBreakdownRaw)
	ordering := BreakdownOrdering(raw, topN)
	order := SentinelsLast(hogql.Call{Name: "arrayElement", Args: []hogql.Expr{hogql.Field("values"), hogql.Number(-1)}})

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT any(dates) AS dates, sumForEach(values) AS values, %s\n", colBreakdownValue)
	b.WriteString("FROM (\n")
	fmt.Fprintf(&b, "  SELECT dates, values, %s\n", hogql.Alias{Expr: ordering.Bucket, Name: colBreakdownValue}.Render())
	b.WriteString("  FROM (\n")
	fmt.Fprintf(&b, "    SELECT dates, values, %s, %s\n", colBreakdownRaw, hogql.Alias{Expr: ordering.Rank, Name: colBreakdownRank}.Render())
	b.WriteString("    FROM (\n")
	fmt.Fprintf(&b, "      SELECT %s, %s, %s, arrayElement(values, -1) AS %s\n",
		hogql.Alias{Expr: DateArray(s.window.Start, s.window.End, s.interval), Name: "dates"}.Render(),
		hogql.Alias{Expr: s.values, Name: "values"}.Render(),
		colBreakdownRaw, colFinalValue)
	b.WriteString("      FROM (\n")
	fmt.Fprintf(&b, "        SELECT %s, groupArray(bucket) AS bucket_dates, groupArray(cnt) AS bucket_counts, arrayCumSum(bucket_counts) AS running\n", colBreakdownRaw)
	b.WriteString("        FROM (\n")
	fmt.Fprintf(&b, "          SELECT %s, %s, count() AS cnt\n",
		hogql.Alias{Expr: s.field, Name: colBreakdownRaw}.Render(),
		hogql.Alias{Expr: s.interval.truncate(hogql.DefaultTimestampField), Name: "bucket"}.Render())
	b.WriteString("          FROM events\n")
	fmt.Fprintf(&b, "          WHERE %s\n", s.where.Render())
	fmt.Fprintf(&b, "          GROUP BY %s, bucket\n", colBreakdownRaw)
	b.WriteString("          ORDER BY bucket\n")
	b.WriteString("        )\n")
	fmt.Fprintf(&b, "        GROUP BY %s\n", colBreakdownRaw)
	b.WriteString("      )\n")
	b.WriteString("    )\n")
	b.WriteString("  )\n")
	b.WriteString(")\n")
	fmt.Fprintf(&b, "GROUP BY %s\n", colBreakdownValue)
	fmt.Fprintf(&b, "ORDER BY %s", order.Render())
	return b.String()
}

func buildScalar(field hogql.Field, where hogql.Expr, topN int) string {
	raw := hogql.Field(colBreakdownRaw)
	ordering := BreakdownOrdering(raw, topN)
	order := SentinelsLast(hogql.Field("total"))

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, sum(%s) AS total\n", colBreakdownValue, colFinalValue)
	b.WriteString("FROM (\n")
	fmt.Fprintf(&b, "  SELECT %s, %s\n", colFinalValue, hogql.Alias{Expr: ordering.Bucket, Name: colBreakdownValue}.Render())
	b.WriteString("  FROM (\n")
	fmt.Fprintf(&b, "    SELECT %s, %s, %s\n", colBreakdownRaw, colFinalValue, hogql.Alias{Expr: ordering.Rank, Name: colBreakdownRank}.Render())
	b.WriteString("    FROM (\n")
	fmt.Fprintf(&b, "      SELECT %s, count() AS %s\n", hogql.Alias{Expr: field, Name: colBreakdownRaw}.Render(), colFinalValue)
	b.WriteString("      FROM events\n")
	fmt.Fprintf(&b, "      WHERE %s\n", where.Render())
	fmt.Fprintf(&b, "      GROUP BY %s\n", colBreakdownRaw)
	b.WriteString("    )\n")
	b.WriteString("  )\n")
	b.WriteString(")\n")
	fmt.Fprintf(&b, "GROUP BY %s\n", colBreakdownValue)
	fmt.Fprintf(&b, "ORDER BY %s", order.Render())
	return b.String()
}
