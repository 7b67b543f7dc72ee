package middleware

import (
	"crypto/subtle"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vanpelt/codexlens/internal/logger"
)

// EnvToken holds the shared secret required by the HTTP trigger
const EnvToken = "CODEXLENS_TOKEN"

// AuthMiddleware guards the trigger endpoints with a static bearer token
type AuthMiddleware struct {
	token []byte
}

// NewAuthMiddleware returns nil when no token is configured, which disables
// the check
func NewAuthMiddleware(token string) *AuthMiddleware {
	if token == "" {
		return nil
	}
	return &AuthMiddleware{token: []byte(token)}
}

// NewAuthMiddlewareFromEnv reads the token from CODEXLENS_TOKEN
func NewAuthMiddlewareFromEnv() *AuthMiddleware {
	return NewAuthMiddleware(os.Getenv(EnvToken))
}

// RequireAuth rejects requests without the configured token
func (am *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	if am == nil || c.Path() == "/health" {
		return c.Next()
	}

	token := extractToken(c)
	if token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}
	if subtle.ConstantTimeCompare([]byte(token), am.token) != 1 {
		logger.Debugf("Auth failed for %s %s", c.Method(), c.Path())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid token",
		})
	}
	return c.Next()
}

// extractToken reads the Authorization header, then the token query parameter
func extractToken(c *fiber.Ctx) string {
	authHeader := c.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	return c.Query("token")
}
