// Package middleware resolves the caller of a request and gates admin routes.
package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/requestctx"
)

// Authenticate accepts either an API key bearer token or the session cookie.
// A present Authorization header is never retried against the cookie.
func Authenticate(container *app.Container) fiber.Handler {
	cookieName := container.Config.Auth.Session.CookieName
	return func(c *fiber.Ctx) error {
		subject, err := container.Authenticator.Authenticate(c.UserContext(), auth.Credentials{
			Authorization: c.Get(fiber.HeaderAuthorization),
			SessionToken:  c.Cookies(cookieName),
		})
		if err != nil {
			return httputil.WriteError(c, err)
		}
		ctx := requestctx.WithSubject(c.UserContext(), subject)
		ctx = logging.WithSubject(ctx, subject.ID, string(subject.Method))
		c.SetUserContext(ctx)
		c.Locals(requestctx.FiberLocalsKey(), subject)
		return c.Next()
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		subject, ok := Subject(c)
		if !ok {
			return httputil.WriteError(c, auth.ErrAuthenticationRequired)
		}
		if err := container.Gate.RequireAdmin(c.UserContext(), subject.ID); err != nil {
			return httputil.WriteError(c, err)
		}
		return c.Next()
	}
}

// Subject returns the caller resolved by Authenticate.
func Subject(c *fiber.Ctx) (requestctx.Subject, bool) {
	subject, ok := c.Locals(requestctx.FiberLocalsKey()).(requestctx.Subject)
	return subject, ok
}
