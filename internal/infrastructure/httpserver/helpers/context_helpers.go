package helpers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GetClientID returns the authenticated client, or "anonymous" when the
// control channel runs without auth.
func GetClientID(c echo.Context) string {
	if id, ok := GetClientIDRaw(c); ok && id != "" {
		return id
	}
	return "anonymous"
}

func GetJWTTokenFromContext(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		// EventSource cannot set headers; the events stream passes the token
		// as a query parameter instead.
		if token := c.QueryParam("access_token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "empty token")
	}
	return token, nil
}
