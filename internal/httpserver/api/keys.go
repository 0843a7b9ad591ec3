package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/apikeys"
	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
	"github.com/ncecere/insights_dashboard/internal/httpserver/middleware"
	"github.com/ncecere/insights_dashboard/internal/logging"
)

type keysHandler struct {
	container *app.Container
}

type issueKeyRequest struct {
	Label     string         `json:"label"`
	ExpiresAt *time.Time     `json:"expires_at"`
	Metadata  map[string]any `json:"metadata"`
}

type keyResponse struct {
	ID         string         `json:"id"`
	Label      *string        `json:"label"`
	CreatedAt  time.Time      `json:"created_at"`
	LastUsedAt *time.Time     `json:"last_used_at"`
	ExpiresAt  *time.Time     `json:"expires_at"`
	Revoked    bool           `json:"revoked"`
	RevokedAt  *time.Time     `json:"revoked_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type issuedKeyResponse struct {
	Key    keyResponse `json:"key"`
	Secret string      `json:"secret"`
}

func toKeyResponse(rec apikeys.Record) keyResponse {
	return keyResponse{
		ID:         rec.ID.String(),
		Label:      rec.Label,
		CreatedAt:  rec.CreatedAt,
		LastUsedAt: rec.LastUsedAt,
		ExpiresAt:  rec.ExpiresAt,
		Revoked:    rec.Revoked,
		RevokedAt:  rec.RevokedAt,
		Metadata:   rec.Metadata,
	}
}

func (h *keysHandler) list(c *fiber.Ctx) error {
	subject, _ := middleware.Subject(c)
	records, err := h.container.Keys.List(c.UserContext(), subject.ID)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	out := make([]keyResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toKeyResponse(rec))
	}
	return httputil.WriteData(c, fiber.StatusOK, out, fiber.Map{"count": len(out)})
}

func (h *keysHandler) issue(c *fiber.Ctx) error {
	subject, _ := middleware.Subject(c)
	var req issueKeyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return httputil.WriteError(c, apperr.Validation("invalid JSON payload"))
		}
	}
	issued, err := h.container.Keys.Issue(c.UserContext(), subject.ID, apikeys.IssueOptions{
		Label:     req.Label,
		ExpiresAt: req.ExpiresAt,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return httputil.WriteError(c, err)
	}
	return httputil.WriteData(c, fiber.StatusCreated, issuedKeyResponse{
		Key:    toKeyResponse(issued.Record),
		Secret: issued.Secret,
	}, nil)
}

// revoke answers 204 whether or not the key existed or belonged to the caller.
func (h *keysHandler) revoke(c *fiber.Ctx) error {
	subject, _ := middleware.Subject(c)
	if err := h.container.Keys.Revoke(c.UserContext(), subject.ID, c.Params("id")); err != nil {
		return httputil.WriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *keysHandler) purge(c *fiber.Ctx) error {
	owner := c.Query("owner")
	deleted, err := h.container.Keys.DeleteByOwner(c.UserContext(), owner)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	logging.Ctx(c.UserContext()).Info().Str("owner", owner).Int64("deleted", deleted).Msg("api keys purged")
	return httputil.WriteData(c, fiber.StatusOK, fiber.Map{"owner": owner, "deleted": deleted}, nil)
}
