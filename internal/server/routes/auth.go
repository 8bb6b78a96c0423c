package routes

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireBearerToken guards API routes with a static operator token. An
// empty token leaves the routes open, which only local development allows.
func RequireBearerToken(token string) echo.MiddlewareFunc {
	token = strings.TrimSpace(token)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return next(c)
			}
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			provided, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
				c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="integrationgw"`)
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing or invalid bearer token", Kind: "unauthorized"})
			}
			return next(c)
		}
	}
}
