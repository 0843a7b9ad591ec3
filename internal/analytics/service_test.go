package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
	"github.com/ncecere/insights_dashboard/internal/analytics/results"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/warehouse"
)

type fakeWarehouse struct {
	responses [][][]any
	kinds     []string
	queries   []string
	err       error
}

func (f *fakeWarehouse) Query(_ context.Context, kind, statement string) (warehouse.Result, error) {
	f.kinds = append(f.kinds, kind)
	f.queries = append(f.queries, statement)
	if f.err != nil {
		return warehouse.Result{}, f.err
	}
	if len(f.responses) == 0 {
		return warehouse.Result{Results: [][]any{}}, nil
	}
	rows := f.responses[0]
	f.responses = f.responses[1:]
	return warehouse.Result{Results: rows}, nil
}

func series(breakdown string, values ...float64) []any {
	dates := make([]any, len(values))
	vals := make([]any, len(values))
	for i, v := range values {
		dates[i] = "2024-01-0" + string(rune('1'+i)) + "T00:00:00Z"
		vals[i] = v
	}
	return []any{dates, vals, breakdown}
}

func window() Window {
	return Window{Event: "pageview", StartDate: "2024-01-01", EndDate: "2024-01-03"}
}

func TestCumulative(t *testing.T) {
	wh := &fakeWarehouse{responses: [][][]any{{
		series("chrome", 1, 4, 9),
		series("firefox", 1, 2, 3),
		series(hogql.OtherBreakdown, 0, 1, 1),
	}, {{float64(2)}}}}
	svc := NewService(wh, Options{})

	res, err := svc.Cumulative(context.Background(), CumulativeParams{Window: window(), Breakdown: "properties.$browser", TopN: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"cumulative", "entity_count"}, wh.kinds)
	require.Contains(t, wh.queries[0], "properties.$browser AS breakdown_raw")

	require.Len(t, res.Series, 3)
	require.Equal(t, "chrome", res.Series[0].Breakdown)
	require.Equal(t, 9.0, res.Series[0].Total)
	require.Equal(t, results.OtherLabel, res.Series[2].Breakdown)
	require.Len(t, res.Points, 9)
	require.Equal(t, 2, res.Meta.EntityCount)
	require.Equal(t, "day", res.Meta.Interval)
	require.Equal(t, "2024-01-03 23:59:59", res.Meta.End)
}

func TestCumulativeValidation(t *testing.T) {
	svc := NewService(&fakeWarehouse{}, Options{MaxTopN: 20, MaxRangeDays: 30})
	ctx := context.Background()

	_, err := svc.Cumulative(ctx, CumulativeParams{Window: Window{EndDate: "2024-01-01"}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(ctx, CumulativeParams{Window: Window{StartDate: "2024-02-01", EndDate: "2024-01-01"}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(ctx, CumulativeParams{Window: Window{StartDate: "2024-01-01", EndDate: "2024-06-01"}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(ctx, CumulativeParams{Window: window(), TopN: 21})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(ctx, CumulativeParams{Window: window(), Breakdown: "x; DROP TABLE events"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(ctx, CumulativeParams{Window: window(), Interval: "hour"})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBreakdownScalarUsesDefaultField(t *testing.T) {
	wh := &fakeWarehouse{responses: [][][]any{{
		{"/pricing", float64(30)},
		{hogql.NullBreakdown, float64(50)},
		{"/docs", float64(20)},
	}, {{float64(2)}}}}
	svc := NewService(wh, Options{BreakdownField: "properties.$pathname"})

	res, err := svc.Breakdown(context.Background(), BreakdownParams{Window: window()})
	require.NoError(t, err)
	require.Equal(t, []string{"breakdown_scalar", "entity_count"}, wh.kinds)
	require.True(t, strings.HasPrefix(wh.queries[0], "SELECT breakdown_value, sum(final_value) AS total"))
	require.Equal(t, []string{"/pricing", "/docs", hogql.NullBreakdown},
		[]string{res.Series[0].Breakdown, res.Series[1].Breakdown, res.Series[2].Breakdown})
	require.Equal(t, 2, res.Meta.EntityCount)
	require.Equal(t, "properties.$pathname", res.Meta.Breakdown)
}

func TestBreakdownRequiresField(t *testing.T) {
	svc := NewService(&fakeWarehouse{}, Options{})
	_, err := svc.Breakdown(context.Background(), BreakdownParams{Window: window()})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestBreakdownAppliesInternalTrafficFilters(t *testing.T) {
	wh := &fakeWarehouse{}
	svc := NewService(wh, Options{InternalTraffic: hogql.InternalTrafficOptions{ExcludeLocalhost: true}})

	params := BreakdownParams{Window: window(), Breakdown: "properties.$browser", Series: true}
	_, err := svc.Breakdown(context.Background(), params)
	require.NoError(t, err)
	require.NotContains(t, wh.queries[0], "match(")
	require.NotContains(t, wh.queries[1], "match(")

	params.ExcludeInternal = true
	_, err = svc.Breakdown(context.Background(), params)
	require.NoError(t, err)
	require.Equal(t, []string{"breakdown_series", "entity_count"}, wh.kinds[2:])
	require.Contains(t, wh.queries[2], "match(properties.$host")
	require.Contains(t, wh.queries[3], "match(properties.$host")
}

func TestBreakdownEntityCountIncludesFoldedEntities(t *testing.T) {
	var rows [][]any
	for i := 0; i < 10; i++ {
		rows = append(rows, []any{fmt.Sprintf("org-%02d", i), float64(100 - i)})
	}
	rows = append(rows, []any{hogql.OtherBreakdown, float64(200)})
	wh := &fakeWarehouse{responses: [][][]any{rows, {{float64(30)}}}}
	svc := NewService(wh, Options{})

	res, err := svc.Breakdown(context.Background(), BreakdownParams{Window: window(), Breakdown: "properties.org_id", TopN: 10})
	require.NoError(t, err)
	require.Contains(t, wh.queries[0], "breakdown_rank > 10")
	require.Contains(t, wh.queries[1], "uniq(properties.org_id)")
	require.Len(t, res.Series, 11)
	require.Equal(t, results.OtherLabel, res.Series[10].Breakdown)
	require.Equal(t, 30, res.Meta.EntityCount)
}

func TestRollingPeriodWindow(t *testing.T) {
	wh := &fakeWarehouse{}
	svc := NewService(wh, Options{})
	svc.now = func() time.Time { return time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC) }

	res, err := svc.Cumulative(context.Background(), CumulativeParams{Window: Window{Period: "7d"}})
	require.NoError(t, err)
	require.Contains(t, wh.queries[0], "'2024-03-01 12:00:00'")
	require.Contains(t, wh.queries[0], "'2024-03-08 12:00:00'")
	require.Equal(t, "2024-03-08 12:00:00", res.Meta.End)

	_, err = svc.Cumulative(context.Background(), CumulativeParams{Window: Window{Period: "7w"}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(context.Background(), CumulativeParams{Window: Window{Period: "7d", StartDate: "2024-01-01"}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.Cumulative(context.Background(), CumulativeParams{Window: Window{}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSummary(t *testing.T) {
	wh := &fakeWarehouse{responses: [][][]any{
		{series("all", 100, 120, 150)},
		{series("all", 20, 60, 100)},
	}}
	svc := NewService(wh, Options{})

	sum, err := svc.Summary(context.Background(), SummaryParams{Window: window()})
	require.NoError(t, err)
	require.Equal(t, 150.0, sum.Total)
	require.Equal(t, 100.0, sum.PreviousTotal)
	require.Equal(t, 50.0, sum.PercentageChange)
	require.Equal(t, 50.0, sum.GrowthRate)
	require.Len(t, sum.Daily, 3)
	require.Contains(t, wh.queries[1], "'2023-12-29 00:00:00'")
}

func TestSummaryWithoutData(t *testing.T) {
	svc := NewService(&fakeWarehouse{}, Options{})
	sum, err := svc.Summary(context.Background(), SummaryParams{Window: window()})
	require.NoError(t, err)
	require.Zero(t, sum.Total)
	require.Zero(t, sum.PercentageChange)
	require.NotNil(t, sum.Daily)
}

func TestWarehouseErrorsPropagate(t *testing.T) {
	upstream := apperr.ExternalAPI("warehouse", errors.New("status 503"))
	svc := NewService(&fakeWarehouse{err: upstream}, Options{})
	_, err := svc.Cumulative(context.Background(), CumulativeParams{Window: window()})
	require.ErrorIs(t, err, apperr.ErrExternalAPI)
}
