// Package warehouse runs HogQL statements against the product-analytics
// query endpoint.
package warehouse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/config"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

const serviceName = "warehouse"

// ErrNotConfigured is returned when no warehouse host or project is set.
var ErrNotConfigured = apperr.Configuration("analytics warehouse is not configured")

// Result is a query response: positional rows plus their column names.
type Result struct {
	Columns []string `json:"columns"`
	Results [][]any  `json:"results"`
}

// QueryObserver records per-query latency.
type QueryObserver interface {
	ObserveWarehouseQuery(kind string, elapsed time.Duration, err error)
}

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[Result]
	observer QueryObserver
}

type Option func(*Client)

// WithHTTPClient replaces the default client built from the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithObserver(o QueryObserver) Option {
	return func(c *Client) { c.observer = o }
}

func NewClient(cfg config.WarehouseConfig, opts ...Option) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	project := strings.TrimSpace(cfg.ProjectID)
	if host == "" || project == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openDelay := cfg.BreakerOpenDelay
	if openDelay <= 0 {
		openDelay = 30 * time.Second
	}

	c := &Client{
		endpoint: fmt.Sprintf("%s/api/projects/%s/query", host, project),
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: timeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Timeout:     openDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Caller mistakes do not count against upstream health.
		IsSuccessful: func(err error) bool {
			var status *statusError
			return err == nil || (errors.As(err, &status) && status.code < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type queryRequest struct {
	Query hogQLQuery `json:"query"`
}

type hogQLQuery struct {
	Kind  string `json:"kind"`
	Query string `json:"query"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("status %d", e.code)
	}
	return fmt.Sprintf("status %d: %s", e.code, e.body)
}

// Query executes statement. kind labels the query for metrics and logs.
// While the breaker is open calls fail immediately; nothing is retried.
func (c *Client) Query(ctx context.Context, kind, statement string) (Result, error) {
	started := time.Now()
	res, err := c.breaker.Execute(func() (Result, error) {
		return c.do(ctx, statement)
	})
	if c.observer != nil {
		c.observer.ObserveWarehouseQuery(kind, time.Since(started), err)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("query_kind", kind).Msg("warehouse query failed")
		return Result{}, apperr.ExternalAPI(serviceName, err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, statement string) (Result, error) {
	body, err := json.Marshal(queryRequest{Query: hogQLQuery{Kind: "HogQLQuery", Query: statement}})
	if err != nil {
		return Result{}, fmt.Errorf("encode query: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}
	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("decode query response: %w", err)
	}
	if out.Results == nil {
		out.Results = [][]any{}
	}
	return out, nil
}
