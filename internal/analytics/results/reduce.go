package results

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
)

// TopNWithOther keeps the n largest series by total and folds the rest into
// a single OtherLabel series. Null-sentinel series rank after real entities;
// other-sentinel series always fold. n <= 0 disables folding.
func TopNWithOther(series []BreakdownSeries, n int) []BreakdownSeries {
	ranked := make([]BreakdownSeries, 0, len(series))
	var fold []BreakdownSeries
	for _, s := range series {
		if s.Breakdown == hogql.OtherBreakdown || s.Breakdown == OtherLabel {
			fold = append(fold, s)
			continue
		}
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		ni, nj := hogql.IsSentinelBreakdown(ranked[i].Breakdown), hogql.IsSentinelBreakdown(ranked[j].Breakdown)
		if ni != nj {
			return !ni
		}
		if ranked[i].Total != ranked[j].Total {
			return ranked[i].Total > ranked[j].Total
		}
		return ranked[i].Breakdown < ranked[j].Breakdown
	})

	if n <= 0 {
		return append(ranked, fold...)
	}
	if len(ranked) > n {
		fold = append(fold, ranked[n:]...)
		ranked = ranked[:n]
	}
	if len(fold) == 0 {
		return ranked
	}
	return append(ranked, sumSeries(OtherLabel, fold))
}

// sumSeries adds totals and aligns time series by bucket index.
func sumSeries(label string, series []BreakdownSeries) BreakdownSeries {
	out := BreakdownSeries{Breakdown: label}
	for _, s := range series {
		out.Total += s.Total
		for i, p := range s.TimeSeries {
			if i >= len(out.TimeSeries) {
				out.TimeSeries = append(out.TimeSeries, DataPoint{Date: p.Date, Breakdown: label})
			}
			out.TimeSeries[i].Value += p.Value
		}
	}
	return out
}

// PercentageChange is (current-previous)/previous*100 rounded to two
// decimals. A zero baseline yields 100 for any growth and 0 otherwise.
func PercentageChange(current, previous float64) float64 {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	c, p := decimal.NewFromFloat(current), decimal.NewFromFloat(previous)
	pct := c.Sub(p).Div(p).Mul(decimal.NewFromInt(100)).Round(2)
	f, _ := pct.Float64()
	return f
}

// GrowthRate is the percentage change from the first to the last value.
func GrowthRate(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return PercentageChange(values[len(values)-1], values[0])
}

// CountEntities counts series that name a real entity.
func CountEntities(series []BreakdownSeries) int {
	count := 0
	for _, s := range series {
		if hogql.IsSentinelBreakdown(s.Breakdown) || s.Breakdown == OtherLabel {
			continue
		}
		count++
	}
	return count
}

// Values extracts point values in order.
func Values(points []DataPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
