// handlers/webhooks.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/ledger"
	"engagement-rewards/shopify"
)

const headerWebhookID = "X-Shopify-Webhook-Id"

type orderPaidPayload struct {
	ID                json.Number `json:"id"`
	AdminGraphQLAPIID string      `json:"admin_graphql_api_id"`
	Name              string      `json:"name"`
	SubtotalPrice     string      `json:"subtotal_price"`
	Currency          string      `json:"currency"`
	Customer          *struct {
		ID                json.Number `json:"id"`
		AdminGraphQLAPIID string      `json:"admin_graphql_api_id"`
	} `json:"customer"`
}

type commentPayload struct {
	Email     string      `json:"email"`
	ArticleID json.Number `json:"article_id"`
}

// SetupWebhookRoutes mounts the Shopify webhooks behind the HMAC check.
func SetupWebhookRoutes(app *fiber.App, deps Deps, hmacAuth fiber.Handler) {
	hooks := app.Group("/webhooks", hmacAuth)
	hooks.Post("/orders-paid", withDedup(deps, handleOrderPaid))
	hooks.Post("/comments-create", withDedup(deps, handleCommentCreated))
}

// withDedup answers a delivery id that was already claimed without running
// h, and drops the claim when h fails so Shopify's retry is processed.
func withDedup(deps Deps, h func(*fiber.Ctx, Deps) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerWebhookID)
		if deps.Deduper == nil || id == "" {
			return h(c, deps)
		}
		if !deps.Deduper.Claim(c.UserContext(), id) {
			deps.Log.Info("[WEBHOOK] duplicate delivery skipped", "delivery_id", id, "path", c.Path())
			return c.JSON(fiber.Map{"success": true, "duplicate": true})
		}
		err := h(c, deps)
		if err != nil || c.Response().StatusCode() >= fiber.StatusBadRequest {
			deps.Deduper.Release(c.UserContext(), id)
		}
		return err
	}
}

func handleOrderPaid(c *fiber.Ctx, deps Deps) error {
	var p orderPaidPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return apierr.Write(c, apierr.BadRequest(fmt.Errorf("invalid order payload: %w", err)))
	}
	if p.Customer == nil {
		deps.Log.Info("[ORDER_PAID] guest checkout, no reward", "order", p.Name)
		return c.JSON(fiber.Map{"success": true, "skipped": "guest"})
	}

	ev, err := p.event()
	if err != nil {
		return apierr.Write(c, err)
	}

	ctx, cancel := deps.context(c)
	defer cancel()

	out, err := deps.Engine.ProcessOrder(ctx, ev)
	if err != nil {
		deps.Log.Error("[ORDER_PAID] failed", "order_id", ev.OrderID, "customer_id", ev.CustomerID, "error", err)
		return apierr.Write(c, err)
	}
	if out.AlreadyProcessed {
		return c.JSON(fiber.Map{"success": true, "skipped": "already_processed", "rewardLevel": out.RewardLevel})
	}
	if out.Grant == nil {
		return c.JSON(fiber.Map{"success": true, "skipped": "no_reward", "rewardLevel": out.RewardLevel})
	}
	deps.Log.Info("✅ [ORDER_PAID] credit issued", "order_id", ev.OrderID, "customer_id", ev.CustomerID,
		"amount", out.Grant.Amount.String(), "reward_level", out.RewardLevel)
	return c.JSON(fiber.Map{
		"success":      true,
		"orderId":      ev.OrderID,
		"rewardLevel":  out.RewardLevel,
		"amount":       out.Grant.Amount.Decimal(),
		"currencyCode": out.Grant.Amount.Currency,
	})
}

func (p orderPaidPayload) event() (ledger.OrderPaid, error) {
	orderID := shopify.LegacyID(p.AdminGraphQLAPIID)
	if orderID == "" {
		orderID = p.ID.String()
	}
	customerID := shopify.LegacyID(p.Customer.AdminGraphQLAPIID)
	if customerID == "" {
		customerID = p.Customer.ID.String()
	}
	if strings.TrimSpace(p.Currency) == "" {
		return ledger.OrderPaid{}, &ledger.ValidationError{Field: "currency", Message: "required"}
	}
	subtotal, err := ledger.ParseMoney(p.SubtotalPrice, p.Currency)
	if err != nil {
		return ledger.OrderPaid{}, &ledger.ValidationError{Field: "subtotal_price", Message: err.Error()}
	}
	ev := ledger.OrderPaid{OrderID: orderID, OrderName: p.Name, CustomerID: customerID, Subtotal: subtotal}
	return ev, ev.Validate()
}

func handleCommentCreated(c *fiber.Ctx, deps Deps) error {
	var p commentPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return apierr.Write(c, apierr.BadRequest(fmt.Errorf("invalid comment payload: %w", err)))
	}

	ctx, cancel := deps.context(c)
	defer cancel()

	out, err := deps.Engine.ProcessComment(ctx, p.Email, p.ArticleID.String())
	if err != nil {
		var verr *ledger.ValidationError
		if !errors.As(err, &verr) {
			deps.Log.Error("[COMMENT] failed", "email", p.Email, "article_id", p.ArticleID.String(), "error", err)
		}
		return apierr.Write(c, err)
	}
	if out.NotACustomer {
		deps.Log.Info("[COMMENT] commenter is not a customer", "email", p.Email)
		return c.JSON(fiber.Map{"success": true, "skipped": "not_a_customer", "commentRewardEarned": false})
	}
	return c.JSON(fiber.Map{"success": true, "commentRewardEarned": out.Rewarded})
}
