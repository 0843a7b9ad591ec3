package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
	"github.com/ncecere/insights_dashboard/internal/limits"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

// RateLimit throttles warehouse-backed routes per authenticated subject.
// Redis failures let the request through.
func RateLimit(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject, ok := Subject(c)
		if !ok || container.Limiter == nil {
			return c.Next()
		}
		release, err := container.Limiter.Acquire(c.UserContext(), "analytics:"+subject.ID)
		if errors.Is(err, limits.ErrLimitExceeded) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return httputil.WriteError(c, err)
		}
		if err != nil {
			logging.Ctx(c.UserContext()).Warn().Err(err).Msg("rate limiter unavailable")
			return c.Next()
		}
		defer release()
		return c.Next()
	}
}
