package identity

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TokenVerifier is satisfied by *Verifier.
type TokenVerifier interface {
	Verify(tokenString string) (Principal, error)
}

// JWTMiddleware rejects requests without a valid bearer token and stores
// the principal in the request context.
func JWTMiddleware(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing token")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token format")
			}

			principal, err := verifier.Verify(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), principal)))
			return next(c)
		}
	}
}
