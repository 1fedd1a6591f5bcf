// handlers/profile.go
package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/ledger"
	"engagement-rewards/middleware"
)

type profileRequest struct {
	FirstName    *string         `json:"firstName"`
	LastName     *string         `json:"lastName"`
	Nickname     *string         `json:"nickname"`
	DOB          *string         `json:"dob"`
	Address      *ledger.Address `json:"address"`
	EmailConsent *bool           `json:"emailConsent"`
	SMSConsent   *bool           `json:"smsConsent"`
}

func (r profileRequest) change() (ledger.ProfileChange, error) {
	change := ledger.ProfileChange{
		FirstName:    trimmed(r.FirstName),
		LastName:     trimmed(r.LastName),
		Nickname:     trimmed(r.Nickname),
		EmailConsent: r.EmailConsent,
		SMSConsent:   r.SMSConsent,
	}
	if dob := trimmed(r.DOB); dob != nil && *dob != "" {
		d, err := ledger.ParseDate(*dob)
		if err != nil {
			return change, &ledger.ValidationError{Field: "dob", Message: "must be YYYY-MM-DD"}
		}
		change.BirthDate = &d
	}
	if r.Address != nil && strings.TrimSpace(r.Address.Address1) != "" {
		addr := *r.Address
		change.Address = &addr
	}
	return change, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// SetupProfileRoutes mounts the customer profile routes behind the gateway.
func SetupProfileRoutes(app *fiber.App, deps Deps, gatewayAuth ...fiber.Handler) {
	secured := app.Group("/profile", gatewayAuth...)

	secured.Post("/", func(c *fiber.Ctx) error {
		var req profileRequest
		if err := c.BodyParser(&req); err != nil {
			return apierr.Write(c, apierr.BadRequest(err))
		}
		change, err := req.change()
		if err != nil {
			return apierr.Write(c, err)
		}

		customerKey := middleware.CustomerKey(c)
		ctx, cancel := deps.context(c)
		defer cancel()

		if _, err := deps.Engine.UpdateProfile(ctx, customerKey, middleware.Today(c), c.IP(), change); err != nil {
			deps.Log.Error("[PROFILE] update failed", "customer_id", customerKey, "error", err)
			return apierr.Write(c, err)
		}
		deps.Log.Info("✅ [PROFILE] updated", "customer_id", customerKey, "fields", change.Fields())
		return c.JSON(fiber.Map{"success": true})
	})

	secured.Get("/status", func(c *fiber.Ctx) error {
		customerKey := middleware.CustomerKey(c)
		ctx, cancel := deps.context(c)
		defer cancel()

		status, err := deps.Engine.ProfileStatus(ctx, customerKey)
		if err != nil {
			deps.Log.Error("[PROFILE] status failed", "customer_id", customerKey, "error", err)
			return apierr.Write(c, err)
		}
		return c.JSON(status)
	})
}
