package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
	"github.com/ncecere/insights_dashboard/internal/httpserver/middleware"
)

type integrationsHandler struct {
	container *app.Container
}

func (h *integrationsHandler) connect(c *fiber.Ctx) error {
	subject, _ := middleware.Subject(c)
	url, err := h.container.Integrations.Connect(c.UserContext(), subject.ID)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	if c.QueryBool("redirect") {
		return c.Redirect(url, fiber.StatusFound)
	}
	return httputil.WriteData(c, fiber.StatusOK, fiber.Map{"authorization_url": url}, nil)
}

func (h *integrationsHandler) callback(c *fiber.Ctx) error {
	if msg := c.Query("error"); msg != "" {
		return httputil.WriteError(c, apperr.Validation("authorization was declined: "+msg))
	}
	if err := h.container.Integrations.Callback(c.UserContext(), c.Query("state"), c.Query("code")); err != nil {
		return httputil.WriteError(c, err)
	}
	status, err := h.container.Integrations.Status(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, status, nil)
}

func (h *integrationsHandler) status(c *fiber.Ctx) error {
	status, err := h.container.Integrations.Status(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, status, nil)
}

func (h *integrationsHandler) disconnect(c *fiber.Ctx) error {
	if err := h.container.Integrations.Disconnect(c.UserContext()); err != nil {
		return httputil.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *integrationsHandler) issueSummary(c *fiber.Ctx) error {
	client, err := h.container.Integrations.IssueTracker(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	summary, err := client.IssueSummary(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, summary, fiber.Map{"truncated": summary.Truncated})
}

func (h *integrationsHandler) headcount(c *fiber.Ctx) error {
	client, err := h.container.Integrations.HRPlatform(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	headcount, err := client.Headcount(c.UserContext())
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, headcount, fiber.Map{"retrieved_at": headcount.RetrievedAt})
}
