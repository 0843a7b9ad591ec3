package httputil

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/insights_dashboard/internal/apperr"
)

func render(t *testing.T, err error) (int, map[string]map[string]string) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return WriteError(c, err) })
	resp, testErr := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, testErr)
	raw, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestWriteErrorMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Validation("start_date is required"), 400, "invalid_request"},
		{apperr.Authentication("invalid_api_key", "invalid API key"), 401, "invalid_api_key"},
		{apperr.Authorization("insufficient role"), 403, "forbidden"},
		{apperr.NotFound("user not found"), 404, "not_found"},
		{apperr.ExternalAPI("warehouse", errors.New("status 503")), 502, "upstream_error"},
	}
	for _, tc := range cases {
		status, body := render(t, tc.err)
		require.Equal(t, tc.status, status)
		require.Equal(t, tc.code, body["error"]["code"])
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	status, body := render(t, errors.New("pq: connection refused to 10.0.0.5"))
	require.Equal(t, 500, status)
	require.Equal(t, "internal_error", body["error"]["code"])
	require.Equal(t, "internal server error", body["error"]["message"])
}
