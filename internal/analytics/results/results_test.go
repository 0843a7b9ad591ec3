package results

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
)

func TestPercentageChange(t *testing.T) {
	cases := []struct {
		current, previous, want float64
	}{
		{150, 100, 50},
		{75, 100, -25},
		{50, 0, 100},
		{0, 0, 0},
		{1, 3, -66.67},
		{2, 3, -33.33},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%v_vs_%v", tc.current, tc.previous), func(t *testing.T) {
			require.Equal(t, tc.want, PercentageChange(tc.current, tc.previous))
		})
	}
}

func TestGrowthRate(t *testing.T) {
	require.Equal(t, 100.0, GrowthRate([]float64{100, 150, 200}))
	require.Equal(t, 0.0, GrowthRate(nil))
	require.Equal(t, 0.0, GrowthRate([]float64{100}))
	require.Equal(t, 100.0, GrowthRate([]float64{0, 5}))
}

func TestParseCumulative(t *testing.T) {
	rows := [][]any{
		{[]any{"2024-01-01T00:00:00Z", "2024-01-02T00:00:00Z"}, []any{float64(1), float64(3)}, "chrome"},
		{[]any{"2024-01-01 00:00:00", "2024-01-02 00:00:00"}, []any{float64(0), float64(2)}, hogql.NullBreakdown},
		{"garbage"},
		{[]any{"2024-01-01"}, []any{float64(1), float64(2)}, "mismatched"},
	}
	points := ParseCumulative(rows)
	require.Len(t, points, 4)
	require.Equal(t, DataPoint{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Value: 3, Breakdown: "chrome"}, points[1])
	require.Equal(t, hogql.NullBreakdown, points[3].Breakdown)

	require.Empty(t, ParseCumulative(nil))
}

func TestParseBreakdownScalar(t *testing.T) {
	rows := [][]any{
		{hogql.OtherBreakdown, float64(40)},
		{"firefox", float64(10)},
		{nil, float64(99)},
		{"chrome", "25"},
		{"broken", map[string]any{}},
	}
	series := ParseBreakdown(KindBreakdownScalar, rows)
	require.Len(t, series, 4)
	require.Equal(t, []string{"chrome", "firefox", hogql.OtherBreakdown, hogql.NullBreakdown},
		[]string{series[0].Breakdown, series[1].Breakdown, series[2].Breakdown, series[3].Breakdown})
	require.Equal(t, 25.0, series[0].Total)
	require.Equal(t, 2, CountEntities(series))
}

func TestParseBreakdownTotals(t *testing.T) {
	row := []any{[]any{"2024-01-01", "2024-01-02", "2024-01-03"}, []any{float64(2), float64(5), float64(9)}, "a"}

	cumulative := ParseBreakdown(KindCumulative, [][]any{row})
	require.Equal(t, 9.0, cumulative[0].Total)

	bucketed := ParseBreakdown(KindBreakdownSeries, [][]any{row})
	require.Equal(t, 16.0, bucketed[0].Total)
	require.Len(t, bucketed[0].TimeSeries, 3)
}

func makeSeries(name string, total float64) BreakdownSeries {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return BreakdownSeries{
		Breakdown: name,
		Total:     total,
		TimeSeries: []DataPoint{
			{Date: base, Value: total / 2, Breakdown: name},
			{Date: base.AddDate(0, 0, 1), Value: total / 2, Breakdown: name},
		},
	}
}

func TestTopNWithOther(t *testing.T) {
	var series []BreakdownSeries
	for i := 1; i <= 30; i++ {
		series = append(series, makeSeries(fmt.Sprintf("b%02d", i), float64(i)))
	}

	out := TopNWithOther(series, 10)
	require.Len(t, out, 11)
	require.Equal(t, "b30", out[0].Breakdown)
	require.Equal(t, "b21", out[9].Breakdown)

	other := out[10]
	require.Equal(t, OtherLabel, other.Breakdown)
	// 1 + 2 + ... + 20
	require.Equal(t, 210.0, other.Total)
	require.Len(t, other.TimeSeries, 2)
	require.Equal(t, 105.0, other.TimeSeries[0].Value)
	require.Equal(t, OtherLabel, other.TimeSeries[1].Breakdown)
}

func TestTopNWithOtherNoFold(t *testing.T) {
	series := []BreakdownSeries{makeSeries("a", 1), makeSeries("b", 2)}
	out := TopNWithOther(series, 5)
	require.Len(t, out, 2)
	require.Equal(t, "b", out[0].Breakdown)

	require.Len(t, TopNWithOther(series, 0), 2)
}

func TestTopNWithOtherSentinels(t *testing.T) {
	series := []BreakdownSeries{
		makeSeries(hogql.NullBreakdown, 100),
		makeSeries(hogql.OtherBreakdown, 7),
		makeSeries("a", 3),
		makeSeries("b", 2),
	}
	out := TopNWithOther(series, 2)
	require.Len(t, out, 3)
	require.Equal(t, []string{"a", "b", OtherLabel}, []string{out[0].Breakdown, out[1].Breakdown, out[2].Breakdown})
	require.Equal(t, 107.0, out[2].Total)

	out = TopNWithOther(series, 3)
	require.Equal(t, hogql.NullBreakdown, out[2].Breakdown)
	require.Equal(t, 7.0, out[3].Total)
}

func TestCountEntitiesSkipsSentinels(t *testing.T) {
	series := []BreakdownSeries{
		{Breakdown: "a"}, {Breakdown: ""}, {Breakdown: "null"},
		{Breakdown: hogql.NullBreakdown}, {Breakdown: hogql.OtherBreakdown}, {Breakdown: OtherLabel}, {Breakdown: "b"},
	}
	require.Equal(t, 2, CountEntities(series))
}

func TestParseCount(t *testing.T) {
	require.Equal(t, 30, ParseCount([][]any{{float64(30)}}))
	require.Equal(t, 30, ParseCount([][]any{{"30"}}))
	require.Equal(t, 0, ParseCount(nil))
	require.Equal(t, 0, ParseCount([][]any{{}}))
	require.Equal(t, 0, ParseCount([][]any{{"n/a"}}))
	require.Equal(t, "entity_count", KindEntityCount.String())
}
