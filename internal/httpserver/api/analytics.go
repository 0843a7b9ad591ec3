package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/analytics"
	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
)

type analyticsHandler struct {
	container *app.Container
}

func (h *analyticsHandler) cumulative(c *fiber.Ctx) error {
	var params analytics.CumulativeParams
	if err := c.QueryParser(&params); err != nil {
		return httputil.WriteError(c, apperr.Validation("invalid query parameters"))
	}
	result, err := h.container.Analytics.Cumulative(c.UserContext(), params)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, result, result.Meta)
}

func (h *analyticsHandler) breakdown(c *fiber.Ctx) error {
	var params analytics.BreakdownParams
	if err := c.QueryParser(&params); err != nil {
		return httputil.WriteError(c, apperr.Validation("invalid query parameters"))
	}
	result, err := h.container.Analytics.Breakdown(c.UserContext(), params)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, result, result.Meta)
}

func (h *analyticsHandler) summary(c *fiber.Ctx) error {
	var params analytics.SummaryParams
	if err := c.QueryParser(&params); err != nil {
		return httputil.WriteError(c, apperr.Validation("invalid query parameters"))
	}
	result, err := h.container.Analytics.Summary(c.UserContext(), params)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusOK, result, result.Meta)
}
