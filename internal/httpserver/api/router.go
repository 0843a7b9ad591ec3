// Package api mounts the authenticated JSON API under /api.
package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/httpserver/middleware"
)

// Register wires every /api route behind Authenticate. Admin-only routes
// additionally pass through RequireAdmin.
func Register(app *fiber.App, container *app.Container) {
	group := app.Group("/api", middleware.Authenticate(container))
	admin := middleware.RequireAdmin(container)

	keys := &keysHandler{container: container}
	group.Get("/keys", keys.list)
	group.Post("/keys", keys.issue)
	group.Delete("/keys/:id", keys.revoke)
	group.Delete("/admin/keys", admin, keys.purge)

	events := &analyticsHandler{container: container}
	analyticsGroup := group.Group("/analytics/events", middleware.RateLimit(container))
	analyticsGroup.Get("/cumulative", events.cumulative)
	analyticsGroup.Get("/breakdown", events.breakdown)
	analyticsGroup.Get("/summary", events.summary)

	integ := &integrationsHandler{container: container}
	group.Get("/integrations/issue-tracker/connect", admin, integ.connect)
	group.Get("/integrations/issue-tracker/callback", admin, integ.callback)
	group.Get("/integrations/issue-tracker/token", admin, integ.status)
	group.Delete("/integrations/issue-tracker", admin, integ.disconnect)

	group.Get("/issues/summary", integ.issueSummary)
	group.Get("/people/headcount", integ.headcount)
}
