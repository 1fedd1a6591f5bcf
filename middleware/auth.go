// middleware/auth.go
package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/ledger"
	"engagement-rewards/logger"
)

const (
	localCustomerKey = "customer_key"
	localToday       = "today"
	localDevMode     = "dev_mode"
)

// CustomerContextMiddleware reads the customer identity the Gateway resolved
// into X-Customer-ID. It must run after GatewayAuthMiddleware.
func CustomerContextMiddleware(loc *time.Location, log *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		customerKey := strings.TrimSpace(c.Get("X-Customer-ID"))
		if customerKey == "" {
			log.Warn("❌ [CUSTOMER_CTX] X-Customer-ID missing", "path", c.Path())
			return apierr.Write(c, apierr.Unauthorized("missing X-Customer-ID, request must come through gateway"))
		}
		setIdentity(c, customerKey, ledger.DateIn(time.Now(), loc), false)
		return c.Next()
	}
}

func setIdentity(c *fiber.Ctx, customerKey string, today ledger.Date, devMode bool) {
	c.Locals(localCustomerKey, customerKey)
	c.Locals(localToday, today)
	c.Locals(localDevMode, devMode)
}

// CustomerKey returns the identity resolved for this request.
func CustomerKey(c *fiber.Ctx) string {
	key, _ := c.Locals(localCustomerKey).(string)
	return key
}

// Today is the store-local calendar date of the request, or the
// development override when one was accepted.
func Today(c *fiber.Ctx) ledger.Date {
	d, _ := c.Locals(localToday).(ledger.Date)
	return d
}

func IsDevMode(c *fiber.Ctx) bool {
	dev, _ := c.Locals(localDevMode).(bool)
	return dev
}
