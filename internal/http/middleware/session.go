package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jmehdipour/cablesync/internal/session"
	echo "github.com/labstack/echo/v4"
)

const identityKey = "identity"

// SessionStore resolves a bearer token to the signed-in identity.
type SessionStore interface {
	Get(ctx context.Context, token string) (session.Identity, error)
}

// IdentityFromCtx extracts the identity set by SessionMiddleware.
func IdentityFromCtx(c echo.Context) (session.Identity, bool) {
	id, ok := c.Get(identityKey).(session.Identity)
	return id, ok
}

// BearerToken reads "Authorization: Bearer <token>".
func BearerToken(c echo.Context) string {
	h := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SessionMiddleware authenticates requests with a session token and stores
// the identity in context.
func SessionMiddleware(store SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing session token"})
			}
			id, err := store.Get(c.Request().Context(), token)
			if errors.Is(err, session.ErrNoSession) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid session"})
			}
			if err != nil {
				c.Logger().Errorf("session lookup failed: %v", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			c.Set(identityKey, id)
			return next(c)
		}
	}
}

// RequireAdmin blocks identities without the admin flag. It must run after
// SessionMiddleware.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFromCtx(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			}
			if !id.Admin {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "access denied"})
			}
			return next(c)
		}
	}
}
