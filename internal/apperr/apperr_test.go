package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("validate: %w", Authentication("invalid_api_key", "invalid api key"))
	require.ErrorIs(t, err, ErrAuthentication)
	require.NotErrorIs(t, err, ErrAuthorization)
	require.ErrorIs(t, err, &Error{Kind: KindAuthentication, Code: "invalid_api_key"})
	require.NotErrorIs(t, err, &Error{Kind: KindAuthentication, Code: "authentication_required"})
}

func TestKindOfAndStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{Validation("bad"), http.StatusBadRequest},
		{Authentication("x", "y"), http.StatusUnauthorized},
		{Authorization("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{New(KindRateLimit, "slow_down", "too many"), http.StatusTooManyRequests},
		{ExternalAPI("warehouse", errors.New("boom")), http.StatusBadGateway},
		{Configuration("missing"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		require.Equal(t, tt.status, Status(KindOf(tt.err)), tt.err.Error())
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ExternalAPI("warehouse", cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "warehouse request failed")
}
