// Package httputil holds the JSON envelope shared by every route.
package httputil

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError renders err as {error:{code,message}} with the status of its
// kind. Internal failures are logged and never described to the client.
func WriteError(c *fiber.Ctx, err error) error {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		logging.Ctx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return WriteStatus(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
	status := apperr.Status(appErr.Kind)
	if status >= http.StatusInternalServerError {
		logging.Ctx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	code := appErr.Code
	if code == "" {
		code = string(appErr.Kind)
	}
	msg := appErr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return WriteStatus(c, status, code, msg)
}

// WriteStatus renders an error envelope without consulting the taxonomy.
func WriteStatus(c *fiber.Ctx, status int, code, msg string) error {
	if msg == "" {
		msg = http.StatusText(status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	return c.Status(status).JSON(fiber.Map{
		"error": errorBody{Code: code, Message: msg},
	})
}

// WriteData renders the success envelope {data, meta}.
func WriteData(c *fiber.Ctx, status int, data, meta any) error {
	if meta == nil {
		meta = fiber.Map{}
	}
	return c.Status(status).JSON(fiber.Map{"data": data, "meta": meta})
}
