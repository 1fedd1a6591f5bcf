// middleware/app_proxy.go
package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/ledger"
	"engagement-rewards/logger"
)

// AppProxyConfig configures the storefront app proxy identity check.
type AppProxyConfig struct {
	Secret   string
	DevKey   string
	Location *time.Location
	Now      func() time.Time
}

// AppProxyMiddleware verifies the signed app proxy query and resolves the
// logged-in customer. A matching dev_key skips the signature and allows
// dev_customer_id and dev_date to override identity and date.
func AppProxyMiddleware(cfg AppProxyConfig, log *logger.Logger) fiber.Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		query := queryValues(c)
		today := ledger.DateIn(now(), cfg.Location)

		devKey := first(query["dev_key"])
		devMode := cfg.DevKey != "" && devKey != "" &&
			subtle.ConstantTimeCompare([]byte(devKey), []byte(cfg.DevKey)) == 1

		customerKey := first(query["logged_in_customer_id"])
		if devMode {
			if id := first(query["dev_customer_id"]); id != "" {
				customerKey = id
			}
			if raw := first(query["dev_date"]); raw != "" {
				d, err := ledger.ParseDate(raw)
				if err != nil {
					return apierr.Write(c, apierr.BadRequest(&ledger.ValidationError{Field: "dev_date", Message: "must be YYYY-MM-DD"}))
				}
				today = d
			}
			log.Info("🛠️ [APP_PROXY] dev mode request", "customer_id", customerKey, "today", today.String())
		} else {
			signature := first(query["signature"])
			if signature == "" {
				log.Warn("🚫 [APP_PROXY] unsigned request", "path", c.Path(), "ip", c.IP())
				return apierr.Write(c, apierr.Forbidden("missing signature"))
			}
			if !VerifyProxySignature(query, signature, cfg.Secret) {
				log.Warn("❌ [APP_PROXY] signature mismatch", "path", c.Path(), "ip", c.IP())
				return apierr.Write(c, apierr.Forbidden("invalid signature"))
			}
		}

		customerKey = strings.TrimSpace(customerKey)
		if customerKey == "" {
			return apierr.Write(c, apierr.Unauthorized("customer not logged in"))
		}
		setIdentity(c, customerKey, today, devMode)
		return c.Next()
	}
}

// ProxySignature is the hex HMAC-SHA256 over the sorted key=value pairs,
// concatenated without separator. Repeated values are joined with commas and
// the signature parameter itself is excluded.
func ProxySignature(query map[string][]string, secret string) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[k], ","))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyProxySignature(query map[string][]string, signature, secret string) bool {
	if secret == "" {
		return false
	}
	expected := ProxySignature(query, secret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func queryValues(c *fiber.Ctx) map[string][]string {
	out := map[string][]string{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		key := string(k)
		out[key] = append(out[key], string(v))
	})
	return out
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
