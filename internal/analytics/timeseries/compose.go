package timeseries

import (
	"fmt"
	"time"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
)

// Column aliases shared by the composed statements.
const (
	colBreakdownRaw   = "breakdown_raw"
	colBreakdownRank  = "breakdown_rank"
	colBreakdownValue = "breakdown_value"
	colFinalValue     = "final_value"
)

// MaxBuckets caps the axis length of a single query.
const MaxBuckets = 1000

// DateBuckets returns the inclusive bucket starts covering [start, end].
// Every series in a response is aligned to this axis.
func DateBuckets(start, end time.Time, interval Interval) []time.Time {
	if end.Before(start) {
		return nil
	}
	last := interval.Truncate(end)
	var out []time.Time
	for b := interval.Truncate(start); !b.After(last) && len(out) < MaxBuckets; b = interval.Next(b) {
		out = append(out, b)
	}
	return out
}

// DateArray renders the bucket axis as a warehouse array of datetimes.
func DateArray(start, end time.Time, interval Interval) hogql.Expr {
	buckets := DateBuckets(start, end, interval)
	arr := make(hogql.Array, len(buckets))
	for i, b := range buckets {
		arr[i] = toDateTime(hogql.Timestamp(b))
	}
	return arr
}

// CumulativeFill holds the last non-null value forward across empty buckets.
func CumulativeFill(values hogql.Expr) hogql.Expr {
	return hogql.Call{Name: "arrayFill", Args: []hogql.Expr{hogql.Raw("x -> isNotNull(x)"), values}}
}

// FillForward is the in-process counterpart of CumulativeFill. Leading gaps become zero.
func FillForward(values []*float64) []float64 {
	out := make([]float64, len(values))
	var last float64
	for i, v := range values {
		if v != nil {
			last = *v
		}
		out[i] = last
	}
	return out
}

// Ordering carries the expressions that rank breakdown groups and fold the
// tail into the other bucket.
type Ordering struct {
	// Rank numbers groups by final value, real entities first.
	Rank hogql.Expr
	// Bucket maps null groups to the null sentinel and ranks beyond topN
	// to the other sentinel.
	Bucket hogql.Expr
}

// BreakdownOrdering ranks groups of field by their final cumulative value.
// A topN of zero or less disables folding.
func BreakdownOrdering(field hogql.Expr, topN int) Ordering {
	isNull := hogql.Or{
		hogql.Call{Name: "isNull", Args: []hogql.Expr{field}},
		hogql.Compare{Left: hogql.Call{Name: "toString", Args: []hogql.Expr{field}}, Op: hogql.OpEq, Right: hogql.String("")},
	}
	rankOrder := hogql.OrderBy{
		{Expr: hogql.Call{Name: "if", Args: []hogql.Expr{isNull, hogql.Number(1), hogql.Number(0)}}},
		{Expr: hogql.Field(colFinalValue), Desc: true},
		{Expr: hogql.Call{Name: "toString", Args: []hogql.Expr{field}}},
	}
	rank := hogql.Raw(fmt.Sprintf("row_number() OVER (ORDER BY %s)", rankOrder.Render()))

	branches := []hogql.Expr{isNull, hogql.String(hogql.NullBreakdown)}
	if topN > 0 {
		branches = append(branches,
			hogql.Compare{Left: hogql.Field(colBreakdownRank), Op: hogql.OpGt, Right: hogql.Number(topN)},
			hogql.String(hogql.OtherBreakdown),
		)
	}
	branches = append(branches, hogql.Call{Name: "toString", Args: []hogql.Expr{field}})
	return Ordering{Rank: rank, Bucket: hogql.Call{Name: "multiIf", Args: branches}}
}

// SentinelsLast orders folded rows by value descending with the other and
// null buckets always at the end.
func SentinelsLast(value hogql.Expr) hogql.Expr {
	bv := hogql.Field(colBreakdownValue)
	return hogql.OrderBy{
		{Expr: hogql.Call{Name: "multiIf", Args: []hogql.Expr{
			hogql.Compare{Left: bv, Op: hogql.OpEq, Right: hogql.String(hogql.OtherBreakdown)}, hogql.Number(1),
			hogql.Compare{Left: bv, Op: hogql.OpEq, Right: hogql.String(hogql.NullBreakdown)}, hogql.Number(2),
			hogql.Number(0),
		}}},
		{Expr: value, Desc: true},
		{Expr: bv},
	}
}
