package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeKVs(t *testing.T) {
	out := sanitizeKVs([]interface{}{
		"customer_id", "42",
		"access_token", "shpat_abc",
		"X-Shopify-Hmac-Sha256", "c2lnbmF0dXJl",
		"email", "ada@example.com",
		"dangling",
	})

	assert.Equal(t, []interface{}{
		"customer_id", "42",
		"access_token", "[REDACTED]",
		"X-Shopify-Hmac-Sha256", "[REDACTED]",
		"email", "a***@example.com",
		"dangling",
	}, out)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "b***@shop.test", MaskEmail(" bob@shop.test "))
	assert.Equal(t, "[REDACTED]", MaskEmail("not-an-email"))
	assert.Equal(t, "[REDACTED]", MaskEmail("@nolocal"))
}
