package timeseries

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/timeutil"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseInterval(t *testing.T) {
	i, err := ParseInterval("")
	require.NoError(t, err)
	require.Equal(t, Day, i)

	i, err = ParseInterval(" Week ")
	require.NoError(t, err)
	require.Equal(t, Week, i)

	_, err = ParseInterval("hour")
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDateBucketsDaily(t *testing.T) {
	buckets := DateBuckets(day(2024, 1, 1), time.Date(2024, 1, 30, 23, 59, 59, 0, time.UTC), Day)
	require.Len(t, buckets, 30)
	require.Equal(t, day(2024, 1, 1), buckets[0])
	require.Equal(t, day(2024, 1, 30), buckets[29])
}

func TestDateBucketsWeeksStartMonday(t *testing.T) {
	// 2024-01-03 is a Wednesday.
	buckets := DateBuckets(day(2024, 1, 3), day(2024, 1, 22), Week)
	require.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 8), day(2024, 1, 15), day(2024, 1, 22)}, buckets)
	for _, b := range buckets {
		require.Equal(t, time.Monday, b.Weekday())
	}
}

func TestDateBucketsMonths(t *testing.T) {
	buckets := DateBuckets(day(2024, 1, 31), day(2024, 3, 2), Month)
	require.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 2, 1), day(2024, 3, 1)}, buckets)
}

func TestDateBucketsInvertedAndCapped(t *testing.T) {
	require.Empty(t, DateBuckets(day(2024, 2, 1), day(2024, 1, 1), Day))
	require.Len(t, DateBuckets(day(2000, 1, 1), day(2024, 1, 1), Day), MaxBuckets)
}

func TestFillForward(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	require.Equal(t, []float64{0, 3, 3, 5, 5}, FillForward([]*float64{nil, f(3), nil, f(5), nil}))
	require.Empty(t, FillForward(nil))
}

func TestBreakdownOrderingFoldsBeyondTopN(t *testing.T) {
	ordering := BreakdownOrdering(hogql.Field("breakdown_raw"), 10)
	require.Equal(t,
		"row_number() OVER (ORDER BY if(or(isNull(breakdown_raw), toString(breakdown_raw) = ''), 1, 0) ASC, final_value DESC, toString(breakdown_raw) ASC)",
		ordering.Rank.Render())
	bucket := ordering.Bucket.Render()
	require.Contains(t, bucket, "'$$_posthog_breakdown_null_$$'")
	require.Contains(t, bucket, "breakdown_rank > 10, '$$_posthog_breakdown_other_$$'")
}

func TestBreakdownOrderingWithoutTopN(t *testing.T) {
	bucket := BreakdownOrdering(hogql.Field("breakdown_raw"), 0).Bucket.Render()
	require.NotContains(t, bucket, hogql.OtherBreakdown)
	require.Contains(t, bucket, hogql.NullBreakdown)
}

func TestCumulativeQueryBuild(t *testing.T) {
	q := CumulativeQuery{
		Event:          "user_signed_up",
		Window:         timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 3)},
		Interval:       Day,
		BreakdownField: "properties.plan",
		TopN:           5,
		Filters:        []hogql.Expr{hogql.Compare{Left: hogql.Field("properties.$host"), Op: hogql.OpNotEq, Right: hogql.String("localhost")}},
	}
	sql, err := q.Build()
	require.NoError(t, err)

	require.Contains(t, sql, "[toDateTime('2024-01-01 00:00:00'), toDateTime('2024-01-02 00:00:00'), toDateTime('2024-01-03 00:00:00')] AS dates")
	require.Contains(t, sql, "properties.plan AS breakdown_raw")
	require.Contains(t, sql, "toStartOfDay(timestamp) AS bucket")
	require.Contains(t, sql, "arrayCumSum(bucket_counts)")
	require.Contains(t, sql, "arrayFill(x -> isNotNull(x)")
	require.Contains(t, sql, "event = 'user_signed_up'")
	require.Contains(t, sql, "timestamp >= '2024-01-01 00:00:00'")
	require.Contains(t, sql, "properties.$host != 'localhost'")
	require.Contains(t, sql, "breakdown_rank > 5")
	require.True(t, strings.HasPrefix(sql, "SELECT any(dates) AS dates, sumForEach(values) AS values, breakdown_value"))
	require.Contains(t, sql, "GROUP BY breakdown_value\nORDER BY multiIf(")
}

func TestCumulativeQueryWithoutBreakdown(t *testing.T) {
	sql, err := CumulativeQuery{
		Event:    "pageview",
		Window:   timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		Interval: Week,
	}.Build()
	require.NoError(t, err)
	require.Contains(t, sql, "'all' AS breakdown_raw")
	require.Contains(t, sql, "toDateTime(toStartOfWeek(timestamp, 1)) AS bucket")
}

func TestQueryRejectsInvertedWindow(t *testing.T) {
	_, err := CumulativeQuery{Window: timeutil.TimeWindow{Start: day(2024, 2, 1), End: day(2024, 1, 1)}}.Build()
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBreakdownQueryScalar(t *testing.T) {
	sql, err := BreakdownQuery{
		Event:          "pageview",
		Window:         timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		BreakdownField: "properties.$browser",
		TopN:           3,
		Scalar:         true,
	}.Build()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sql, "SELECT breakdown_value, sum(final_value) AS total"))
	require.Contains(t, sql, "count() AS final_value")
	require.Contains(t, sql, "breakdown_rank > 3")
	require.Contains(t, sql, "total DESC")
}

func TestBreakdownQuerySeries(t *testing.T) {
	sql, err := BreakdownQuery{
		Window:         timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 3, 31)},
		Interval:       Month,
		BreakdownField: "properties.$browser",
	}.Build()
	require.NoError(t, err)
	require.NotContains(t, sql, "arrayFill(")
	require.Contains(t, sql, "arrayElement(bucket_counts, indexOf(bucket_dates, d))")
	require.NotContains(t, sql, "event =")
}

func TestBreakdownQueryRequiresField(t *testing.T) {
	_, err := BreakdownQuery{Window: timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 2)}}.Build()
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestEntityCountQueryCountsBeforeFolding(t *testing.T) {
	sql, err := EntityCountQuery{
		Event:          "pageview",
		Window:         timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 31)},
		BreakdownField: "properties.org_id",
	}.Build()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sql, "SELECT uniq(properties.org_id) AS entities\nFROM events\nWHERE and("))
	require.Contains(t, sql, "isNotNull(properties.org_id)")
	require.Contains(t, sql, "toString(properties.org_id) != ''")
	require.Contains(t, sql, "event = 'pageview'")
	require.NotContains(t, sql, "breakdown_rank")

	_, err = EntityCountQuery{Window: timeutil.TimeWindow{Start: day(2024, 1, 1), End: day(2024, 1, 2)}}.Build()
	require.ErrorIs(t, err, apperr.ErrValidation)
}
