package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jmehdipour/cablesync/internal/http/middleware"
	"github.com/jmehdipour/cablesync/internal/repository"
	"github.com/jmehdipour/cablesync/internal/session"
	echo "github.com/labstack/echo/v4"
)

const proxySecretHeader = "X-Auth-Proxy-Secret"

type sessionStore interface {
	middleware.SessionStore
	Create(ctx context.Context, id session.Identity) (string, error)
	Delete(ctx context.Context, token string) error
}

type createSessionReq struct {
	Email       string `json:"email"        validate:"required,email"`
	DisplayName string `json:"display_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// createSessionHandler is called by the auth proxy after the sign-in popup
// succeeds. The admin flag is resolved here, once per session.
func createSessionHandler(store sessionStore, admins repository.AdminsRepository, proxySecret string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if proxySecret == "" {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "sign-in disabled"})
		}
		got := c.Request().Header.Get(proxySecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(proxySecret)) != 1 {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		}

		var req createSessionReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.Email = strings.TrimSpace(req.Email)
		if err := c.Validate(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid email"})
		}

		first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
		if first == "" && last == "" {
			first, last = session.SplitName(req.DisplayName)
		}

		isAdmin, err := admins.IsAdmin(c.Request().Context(), req.Email)
		if err != nil {
			c.Logger().Errorf("admin lookup failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "store error"})
		}

		token, err := store.Create(c.Request().Context(), session.Identity{
			Email:     req.Email,
			FirstName: first,
			LastName:  last,
			Admin:     isAdmin,
		})
		if err != nil {
			c.Logger().Errorf("create session failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
		}

		return c.JSON(http.StatusCreated, map[string]any{
			"token": token,
			"email": req.Email,
			"admin": isAdmin,
		})
	}
}

// deleteSessionHandler signs the caller out.
func deleteSessionHandler(store sessionStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := middleware.BearerToken(c)
		if token == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing session token"})
		}
		if err := store.Delete(c.Request().Context(), token); err != nil {
			c.Logger().Errorf("delete session failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "session error"})
		}
		return c.NoContent(http.StatusNoContent)
	}
}
