// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/logger"
)

// GatewayAuthMiddleware validates the Bearer token from the Gateway.
func GatewayAuthMiddleware(expectedToken string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warn("🚫 [GATEWAY_AUTH] missing Authorization header", "path", c.Path())
			return apierr.Write(c, apierr.Unauthorized("gateway authentication token missing"))
		}

		// Parse "Bearer <token>"; a raw token is accepted as well.
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn("❌ [GATEWAY_AUTH] invalid token", "path", c.Path(), "ip", c.IP())
			return apierr.Write(c, apierr.Unauthorized("invalid gateway authentication token"))
		}
		return c.Next()
	}
}
