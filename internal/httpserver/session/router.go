// Package session serves the interactive login endpoints under /auth.
package session

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/insights_dashboard/internal/app"
	"github.com/ncecere/insights_dashboard/internal/apperr"
	"github.com/ncecere/insights_dashboard/internal/auth"
	"github.com/ncecere/insights_dashboard/internal/cache"
	"github.com/ncecere/insights_dashboard/internal/httpserver/httputil"
	"github.com/ncecere/insights_dashboard/internal/httpserver/middleware"
	"github.com/ncecere/insights_dashboard/internal/logging"
	"github.com/ncecere/insights_dashboard/internal/requestctx"
	"github.com/ncecere/insights_dashboard/internal/validation"
)

var errInvalidLoginState = apperr.Authentication("invalid_oauth_state", "login attempt expired or unknown")

// Register mounts the login, logout and session routes.
func Register(app *fiber.App, container *app.Container) {
	h := &handler{container: container}
	group := app.Group("/auth")
	group.Get("/methods", h.methods)
	group.Post("/login", h.login)
	group.Get("/oidc/start", h.oidcStart)
	group.Get("/oidc/callback", h.oidcCallback)
	group.Post("/logout", h.logout)
	group.Get("/session", middleware.Authenticate(container), h.session)
}

type handler struct {
	container *app.Container
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	User        *auth.User           `json:"user,omitempty"`
	Subject     string               `json:"subject"`
	Method      requestctx.Method    `json:"method"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	Memberships []membershipResponse `json:"memberships"`
}

type membershipResponse struct {
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	Role             string `json:"role"`
}

// pendingLogin is kept in the one-time store between start and callback.
type pendingLogin struct {
	Nonce string `json:"nonce"`
}

func (h *handler) methods(c *fiber.Ctx) error {
	return httputil.WriteData(c, fiber.StatusOK, fiber.Map{"methods": h.container.Identity.AllowedMethods()}, nil)
}

func (h *handler) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return httputil.WriteError(c, apperr.Validation("invalid JSON payload"))
	}
	if err := validation.Struct(req); err != nil {
		return httputil.WriteError(c, err)
	}
	sess, user, err := h.container.Identity.LoginLocal(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	h.setCookie(c, sess)
	logging.Ctx(c.UserContext()).Info().Str("user_id", user.ID).Str("provider", auth.ProviderLocal).Msg("user logged in")
	return httputil.WriteData(c, fiber.StatusOK, sessionResponse{
		User:      &user,
		Subject:   user.ID,
		Method:    requestctx.MethodSession,
		ExpiresAt: &sess.ExpiresAt,
	}, nil)
}

func (h *handler) oidcStart(c *fiber.Ctx) error {
	state, err := auth.GenerateState(32)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	nonce, err := auth.GenerateState(32)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	url, err := h.container.Identity.OIDCAuthURL(state, nonce)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	payload, err := json.Marshal(pendingLogin{Nonce: nonce})
	if err != nil {
		return httputil.WriteError(c, err)
	}
	if err := h.container.LoginStates.Put(c.UserContext(), state, payload); err != nil {
		return httputil.WriteError(c, err)
	}
	return c.Redirect(url, fiber.StatusFound)
}

func (h *handler) oidcCallback(c *fiber.Ctx) error {
	if msg := c.Query("error"); msg != "" {
		return httputil.WriteError(c, apperr.Authentication("oidc_failed", "identity provider returned "+msg))
	}
	raw, err := h.container.LoginStates.Take(c.UserContext(), c.Query("state"))
	if errors.Is(err, cache.ErrNotFound) {
		return httputil.WriteError(c, errInvalidLoginState)
	}
	if err != nil {
		return httputil.WriteError(c, err)
	}
	var pending pendingLogin
	if err := json.Unmarshal(raw, &pending); err != nil {
		return httputil.WriteError(c, errInvalidLoginState)
	}
	code := c.Query("code")
	if code == "" {
		return httputil.WriteError(c, apperr.Validation("code is required"))
	}
	sess, user, err := h.container.Identity.CompleteOIDC(c.UserContext(), code, pending.Nonce)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	h.setCookie(c, sess)
	logging.Ctx(c.UserContext()).Info().Str("user_id", user.ID).Str("provider", auth.ProviderOIDC).Msg("user logged in")
	return c.Redirect("/", fiber.StatusFound)
}

func (h *handler) logout(c *fiber.Ctx) error {
	cookieName := h.container.Config.Auth.Session.CookieName
	if token := c.Cookies(cookieName); token != "" {
		if err := h.container.Identity.Logout(c.UserContext(), token); err != nil {
			return httputil.WriteError(c, err)
		}
	}
	c.ClearCookie(cookieName)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) session(c *fiber.Ctx) error {
	subject, _ := middleware.Subject(c)
	resp := sessionResponse{Subject: subject.ID, Method: subject.Method, Memberships: []membershipResponse{}}

	if subject.Method == requestctx.MethodSession {
		user, err := h.container.Identity.User(c.UserContext(), subject.ID)
		if err != nil {
			return httputil.WriteError(c, err)
		}
		resp.User = &user
	}
	memberships, err := h.container.Identity.Memberships(c.UserContext(), subject.ID)
	if err != nil {
		return httputil.WriteError(c, err)
	}
	for _, m := range memberships {
		resp.Memberships = append(resp.Memberships, membershipResponse{
			OrganizationID:   m.OrganizationID,
			OrganizationName: m.OrganizationName,
			Role:             string(m.Role),
		})
	}
	return httputil.WriteData(c, fiber.StatusOK, resp, nil)
}

func (h *handler) setCookie(c *fiber.Ctx, sess auth.Session) {
	cfg := h.container.Config.Auth.Session
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HTTPOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
