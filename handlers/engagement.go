// handlers/engagement.go
package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"engagement-rewards/apierr"
	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/middleware"
	"engagement-rewards/services"
)

// Deduper claims webhook delivery ids. Implementations fail open.
type Deduper interface {
	Claim(ctx context.Context, deliveryID string) bool
	Release(ctx context.Context, deliveryID string)
}

// Deps is what the route handlers share.
type Deps struct {
	Engine  *services.Engine
	Deduper Deduper
	Log     *logger.Logger
	// RequestTimeout bounds the upstream work of one request.
	RequestTimeout time.Duration
}

func (d Deps) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

type engagementResponse struct {
	CurrentStreak       int    `json:"currentStreak"`
	TotalDays           int    `json:"totalDays"`
	RewardJustEarned    bool   `json:"rewardJustEarned"`
	CommentRewardEarned bool   `json:"commentRewardEarned"`
	DateRecorded        string `json:"dateRecorded"`
	IsDevMode           bool   `json:"isDevMode"`
}

// SetupEngagementRoutes mounts the storefront visit ping behind the app proxy
// signature and the same ping behind the gateway.
func SetupEngagementRoutes(app *fiber.App, deps Deps, proxyAuth fiber.Handler, gatewayAuth ...fiber.Handler) {
	app.Get("/apps/streak", proxyAuth, func(c *fiber.Ctx) error {
		return handleVisit(c, deps, c.Query("eventType"), c.Query("articleId"))
	})

	secured := app.Group("/engagement", gatewayAuth...)
	secured.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			EventType string `json:"eventType"`
			ArticleID string `json:"articleId"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apierr.Write(c, apierr.BadRequest(err))
			}
		}
		return handleVisit(c, deps, req.EventType, req.ArticleID)
	})
}

func handleVisit(c *fiber.Ctx, deps Deps, eventType, articleID string) error {
	customerKey := middleware.CustomerKey(c)
	today := middleware.Today(c)
	articleID = strings.TrimSpace(articleID)

	comment := false
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "", "visit":
	case "comment":
		comment = true
		if articleID == "" {
			return apierr.Write(c, &ledger.ValidationError{Field: "articleId", Message: "required for comment events"})
		}
	default:
		return apierr.Write(c, &ledger.ValidationError{Field: "eventType", Message: "must be visit or comment"})
	}

	ctx, cancel := deps.context(c)
	defer cancel()

	out, err := deps.Engine.Process(ctx, customerKey, ledger.Visit{Today: today, ArticleID: articleID, Comment: comment})
	if err != nil {
		deps.Log.Error("[ENGAGEMENT] visit failed", "customer_id", customerKey, "error", err)
		return apierr.Write(c, err)
	}
	if out.Decision.StreakRewarded {
		deps.Log.Info("🎉 [ENGAGEMENT] streak reward earned", "customer_id", customerKey, "date", today.String())
	}

	return c.JSON(engagementResponse{
		CurrentStreak:       out.Record.CurrentStreak,
		TotalDays:           out.Record.TotalDays,
		RewardJustEarned:    out.Decision.StreakRewarded,
		CommentRewardEarned: out.Decision.CommentRewarded,
		DateRecorded:        today.String(),
		IsDevMode:           middleware.IsDevMode(c),
	})
}

func SetupHealthRoutes(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
