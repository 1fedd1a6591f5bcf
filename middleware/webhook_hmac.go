// middleware/webhook_hmac.go
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/logger"
)

const HeaderWebhookHMAC = "X-Shopify-Hmac-Sha256"

// WebhookHMACMiddleware rejects webhook deliveries whose body does not match
// the base64 HMAC-SHA256 in X-Shopify-Hmac-Sha256.
func WebhookHMACMiddleware(secret string, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(HeaderWebhookHMAC)
		if header == "" {
			log.Warn("🚫 [WEBHOOK] missing HMAC header", "path", c.Path(), "ip", c.IP())
			return apierr.Write(c, apierr.Unauthorized("missing webhook signature"))
		}
		if !VerifyWebhookHMAC(c.Body(), header, secret) {
			log.Warn("❌ [WEBHOOK] HMAC mismatch", "path", c.Path(), "topic", c.Get("X-Shopify-Topic"))
			return apierr.Write(c, apierr.Forbidden("invalid webhook signature"))
		}
		return c.Next()
	}
}

func WebhookHMAC(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func VerifyWebhookHMAC(body []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	return hmac.Equal([]byte(WebhookHMAC(body, secret)), []byte(signature))
}
