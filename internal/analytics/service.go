// Package analytics answers dashboard questions by composing HogQL, running
// it on the warehouse and decoding the rows.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ncecere/insights_dashboard/internal/analytics/hogql"
	"github.com/ncecere/insights_dashboard/internal/analytics/results"
	"github.com/ncecere/insights_dashboard/internal/analytics/timeseries"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/timeutil"
	"github.com/ncecere/insights_dashboard/internal/validation"
	"github.com/ncecere/insights_dashboard/internal/warehouse"
)

// Querier executes a HogQL statement. *warehouse.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, kind, statement string) (warehouse.Result, error)
}

type Options struct {
	DefaultTopN     int
	MaxTopN         int
	MaxRangeDays    int
	BreakdownField  string
	InternalTraffic hogql.InternalTrafficOptions
}

// OptionsFromConfig maps the analytics config section onto service options.
func OptionsFromConfig(cfg config.AnalyticsConfig) Options {
	return Options{
		DefaultTopN:    cfg.DefaultTopN,
		MaxTopN:        cfg.MaxTopN,
		MaxRangeDays:   cfg.MaxRangeDays,
		BreakdownField: cfg.BreakdownField,
		InternalTraffic: hogql.InternalTrafficOptions{
			ExcludeLocalhost:     cfg.InternalTraffic.ExcludeLocalhost,
			InternalIPs:          cfg.InternalTraffic.InternalIPs,
			InternalPathPatterns: cfg.InternalTraffic.PathPatterns,
			ExcludeDevelopers:    cfg.InternalTraffic.ExcludeDevelopers,
			DeveloperFlag:        hogql.Field(cfg.InternalTraffic.DeveloperFlag),
		},
	}
}

type Service struct {
	warehouse Querier
	opts      Options
	now       func() time.Time
}

func NewService(q Querier, opts Options) *Service {
	if opts.DefaultTopN <= 0 {
		opts.DefaultTopN = 10
	}
	if opts.MaxTopN <= 0 {
		opts.MaxTopN = 50
	}
	return &Service{warehouse: q, opts: opts, now: time.Now}
}

// Window is the common query input shared by every endpoint. Period is a
// rolling window ending now (7d, 24h) and replaces both dates.
type Window struct {
	Event           string `query:"event" validate:"max=200"`
	StartDate       string `query:"start_date" validate:"required_without=Period"`
	EndDate         string `query:"end_date" validate:"required_without=Period"`
	Period          string `query:"period" validate:"max=8"`
	ExcludeInternal bool   `query:"exclude_internal"`
}

type CumulativeParams struct {
	Window
	Interval  string `query:"interval" validate:"omitempty,oneof=day week month"`
	Breakdown string `query:"breakdown" validate:"max=200"`
	TopN      int    `query:"top_n" validate:"min=0"`
}

type BreakdownParams struct {
	Window
	Interval  string `query:"interval" validate:"omitempty,oneof=day week month"`
	Breakdown string `query:"breakdown" validate:"max=200"`
	TopN      int    `query:"top_n" validate:"min=0"`
	// Series asks for per-bucket counts instead of one total per breakdown.
	Series bool `query:"series"`
}

type SummaryParams struct {
	Window
}

// Meta describes how a response was produced.
type Meta struct {
	Start       string `json:"start_date"`
	End         string `json:"end_date"`
	Interval    string `json:"interval,omitempty"`
	Breakdown   string `json:"breakdown,omitempty"`
	TopN        int    `json:"top_n,omitempty"`
	EntityCount int    `json:"entity_count"`
}

type SeriesResult struct {
	Series []results.BreakdownSeries `json:"series"`
	Points []results.DataPoint       `json:"points,omitempty"`
	Meta   Meta                      `json:"-"`
}

type Summary struct {
	Event            string              `json:"event,omitempty"`
	Total            float64             `json:"total"`
	PreviousTotal    float64             `json:"previous_total"`
	PercentageChange float64             `json:"percentage_change"`
	GrowthRate       float64             `json:"growth_rate"`
	Daily            []results.DataPoint `json:"daily"`
	Meta             Meta                `json:"-"`
}

// Cumulative returns running event counts per breakdown over the window.
func (s *Service) Cumulative(ctx context.Context, p CumulativeParams) (SeriesResult, error) {
	if err := validation.Struct(p); err != nil {
		return SeriesResult{}, err
	}
	window, interval, err := s.resolveWindow(p.Window, p.Interval)
	if err != nil {
		return SeriesResult{}, err
	}
	field, err := parseOptionalField(p.Breakdown)
	if err != nil {
		return SeriesResult{}, err
	}
	topN, err := s.topN(p.TopN)
	if err != nil {
		return SeriesResult{}, err
	}

	statement, err := timeseries.CumulativeQuery{
		Event:          p.Event,
		Window:         window,
		Interval:       interval,
		BreakdownField: field,
		TopN:           topN,
		Filters:        s.filters(p.ExcludeInternal),
	}.Build()
	if err != nil {
		return SeriesResult{}, err
	}
	res, err := s.warehouse.Query(ctx, results.KindCumulative.String(), statement)
	if err != nil {
		return SeriesResult{}, err
	}

	series := results.ParseBreakdown(results.KindCumulative, res.Results)
	out := SeriesResult{
		Series: results.TopNWithOther(series, topN),
		Points: results.ParseCumulative(res.Results),
		Meta:   newMeta(window, interval, string(field), topN),
	}
	if field == "" {
		out.Meta.EntityCount = results.CountEntities(series)
	} else if out.Meta.EntityCount, err = s.entityCount(ctx, p.Event, window, field, s.filters(p.ExcludeInternal)); err != nil {
		return SeriesResult{}, err
	}
	logging.Ctx(ctx).Debug().Str("query_kind", "cumulative").Int("rows", len(res.Results)).Msg("analytics query complete")
	return out, nil
}

// Breakdown returns event counts grouped by a property, either as totals or
// as per-bucket series.
func (s *Service) Breakdown(ctx context.Context, p BreakdownParams) (SeriesResult, error) {
	if err := validation.Struct(p); err != nil {
		return SeriesResult{}, err
	}
	window, interval, err := s.resolveWindow(p.Window, p.Interval)
	if err != nil {
		return SeriesResult{}, err
	}
	breakdown := p.Breakdown
	if strings.TrimSpace(breakdown) == "" {
		breakdown = s.opts.BreakdownField
	}
	field, err := parseOptionalField(breakdown)
	if err != nil {
		return SeriesResult{}, err
	}
	if field == "" {
		return SeriesResult{}, apperr.Validation("breakdown is required")
	}
	topN, err := s.topN(p.TopN)
	if err != nil {
		return SeriesResult{}, err
	}

	kind := results.KindBreakdownScalar
	if p.Series {
		kind = results.KindBreakdownSeries
	}
	statement, err := timeseries.BreakdownQuery{
		Event:          p.Event,
		Window:         window,
		Interval:       interval,
		BreakdownField: field,
		TopN:           topN,
		Filters:        s.filters(p.ExcludeInternal),
		Scalar:         !p.Series,
	}.Build()
	if err != nil {
		return SeriesResult{}, err
	}
	res, err := s.warehouse.Query(ctx, kind.String(), statement)
	if err != nil {
		return SeriesResult{}, err
	}

	series := results.ParseBreakdown(kind, res.Results)
	out := SeriesResult{
		Series: results.TopNWithOther(series, topN),
		Meta:   newMeta(window, interval, string(field), topN),
	}
	if out.Meta.EntityCount, err = s.entityCount(ctx, p.Event, window, field, s.filters(p.ExcludeInternal)); err != nil {
		return SeriesResult{}, err
	}
	return out, nil
}

// Summary compares the window's event total against the preceding window of
// equal length.
func (s *Service) Summary(ctx context.Context, p SummaryParams) (Summary, error) {
	if err := validation.Struct(p); err != nil {
		return Summary{}, err
	}
	window, _, err := s.resolveWindow(p.Window, string(timeseries.Day))
	if err != nil {
		return Summary{}, err
	}
	filters := s.filters(p.ExcludeInternal)

	current, err := s.dailyTotals(ctx, p.Event, window, filters)
	if err != nil {
		return Summary{}, err
	}
	previous, err := s.dailyTotals(ctx, p.Event, window.Previous(), filters)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		Event:         p.Event,
		Daily:         current.TimeSeries,
		Total:         current.Total,
		PreviousTotal: previous.Total,
		Meta:          newMeta(window, timeseries.Day, "", 0),
	}
	out.PercentageChange = results.PercentageChange(out.Total, out.PreviousTotal)
	out.GrowthRate = results.GrowthRate(results.Values(current.TimeSeries))
	if out.Daily == nil {
		out.Daily = []results.DataPoint{}
	}
	return out, nil
}

func (s *Service) dailyTotals(ctx context.Context, event string, window timeutil.TimeWindow, filters []hogql.Expr) (results.BreakdownSeries, error) {
	statement, err := timeseries.CumulativeQuery{
		Event:    event,
		Window:   window,
		Interval: timeseries.Day,
		Filters:  filters,
	}.Build()
	if err != nil {
		return results.BreakdownSeries{}, err
	}
	res, err := s.warehouse.Query(ctx, results.KindCumulative.String(), statement)
	if err != nil {
		return results.BreakdownSeries{}, err
	}
	series := results.ParseBreakdown(results.KindCumulative, res.Results)
	if len(series) == 0 {
		return results.BreakdownSeries{Breakdown: timeseries.AllBreakdown}, nil
	}
	return series[0], nil
}

// entityCount counts distinct non-null breakdown values before top-N folding,
// so it reflects every real entity and not just the ranked ones.
func (s *Service) entityCount(ctx context.Context, event string, window timeutil.TimeWindow, field hogql.Field, filters []hogql.Expr) (int, error) {
	statement, err := timeseries.EntityCountQuery{
		Event:          event,
		Window:         window,
		BreakdownField: field,
		Filters:        filters,
	}.Build()
	if err != nil {
		return 0, err
	}
	res, err := s.warehouse.Query(ctx, results.KindEntityCount.String(), statement)
	if err != nil {
		return 0, err
	}
	return results.ParseCount(res.Results), nil
}

func (s *Service) parseWindow(w Window) (timeutil.TimeWindow, error) {
	period := strings.TrimSpace(w.Period)
	if period == "" {
		return timeutil.ParseWindow(w.StartDate, w.EndDate)
	}
	if strings.TrimSpace(w.StartDate) != "" || strings.TrimSpace(w.EndDate) != "" {
		return timeutil.TimeWindow{}, apperr.Validation("period cannot be combined with start_date or end_date")
	}
	return timeutil.NewWindow(period, s.now())
}

func (s *Service) resolveWindow(w Window, intervalValue string) (timeutil.TimeWindow, timeseries.Interval, error) {
	window, err := s.parseWindow(w)
	if err != nil {
		return timeutil.TimeWindow{}, "", err
	}
	if s.opts.MaxRangeDays > 0 && window.Days() > s.opts.MaxRangeDays {
		return timeutil.TimeWindow{}, "", apperr.Validation(fmt.Sprintf("date range must not exceed %d days", s.opts.MaxRangeDays))
	}
	interval, err := timeseries.ParseInterval(intervalValue)
	if err != nil {
		return timeutil.TimeWindow{}, "", err
	}
	if n := len(timeseries.DateBuckets(window.Start, window.End, interval)); n >= timeseries.MaxBuckets {
		return timeutil.TimeWindow{}, "", apperr.Validation(fmt.Sprintf("range produces too many %s buckets", interval))
	}
	return window, interval, nil
}

func (s *Service) topN(requested int) (int, error) {
	if requested == 0 {
		return s.opts.DefaultTopN, nil
	}
	if requested > s.opts.MaxTopN {
		return 0, apperr.Validation(fmt.Sprintf("top_n must be at most %d", s.opts.MaxTopN))
	}
	return requested, nil
}

func (s *Service) filters(excludeInternal bool) []hogql.Expr {
	if !excludeInternal {
		return nil
	}
	return hogql.InternalTraffic(s.opts.InternalTraffic)
}

func parseOptionalField(value string) (hogql.Field, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	field, err := hogql.ParseField(value)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, "invalid_request", "invalid breakdown field", err)
	}
	return field, nil
}

func newMeta(window timeutil.TimeWindow, interval timeseries.Interval, breakdown string, topN int) Meta {
	return Meta{
		Start:     hogql.FormatTime(window.Start),
		End:       hogql.FormatTime(window.End),
		Interval:  string(interval),
		Breakdown: breakdown,
		TopN:      topN,
	}
}
