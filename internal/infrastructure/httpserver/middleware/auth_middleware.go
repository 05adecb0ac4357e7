package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/avatarctic/offline-sync-engine/internal/core/ports"
	"github.com/avatarctic/offline-sync-engine/internal/infrastructure/httpserver/helpers"
)

type JWTMiddleware struct {
	tokens ports.TokenService
	logger *logrus.Logger
}

func NewJWTMiddleware(tokens ports.TokenService, logger *logrus.Logger) *JWTMiddleware {
	return &JWTMiddleware{tokens: tokens, logger: logger}
}

// RequireJWT validates control-channel tokens. A nil token service disables
// the check.
func (m *JWTMiddleware) RequireJWT() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.tokens == nil {
				return next(c)
			}
			tokenString, err := helpers.GetJWTTokenFromContext(c)
			if err != nil {
				return err
			}

			claims, err := m.tokens.Validate(tokenString)
			if err != nil {
				if m.logger != nil {
					m.logger.WithFields(logrus.Fields{"ip": c.RealIP(), "path": c.Request().URL.Path}).WithError(err).Warn("JWT validation failed")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid control token")
			}

			helpers.SetClientID(c, claims.ClientID)
			if m.logger != nil {
				m.logger.WithField("client_id", claims.ClientID).Debug("jwt validated and client context set")
			}
			return next(c)
		}
	}
}
