package observability

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/config"
)

func TestSetupDisabledReturnsNilProvider(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{})
	require.NoError(t, err)
	require.Nil(t, p)

	// Recording on a nil provider is a no-op.
	p.RecordKeyValidation("valid")
	p.ObserveWarehouseQuery("cumulative", time.Second, nil)
	require.Nil(t, p.PrometheusHandler())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestMetricsExposed(t *testing.T) {
	p, err := Setup(context.Background(), config.ObservabilityConfig{EnableMetrics: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.RecordHTTPRequest(context.Background(), "GET", "/api/keys", 200, 10*time.Millisecond)
	p.RecordKeyValidation("rejected")
	p.ObserveWarehouseQuery("breakdown_scalar", 250*time.Millisecond, errors.New("boom"))

	rec := httptest.NewRecorder()
	p.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	require.Contains(t, out, `insights_dashboard_http_requests_total{method="GET",route="/api/keys",status="200"} 1`)
	require.Contains(t, out, `insights_dashboard_api_key_validations_total{outcome="rejected"} 1`)
	require.Contains(t, out, `insights_dashboard_warehouse_query_duration_seconds_count{kind="breakdown_scalar",status="error"} 1`)
}
