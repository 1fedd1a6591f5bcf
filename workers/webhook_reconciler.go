// workers/webhook_reconciler.go
package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"engagement-rewards/logger"
	"engagement-rewards/shopify"
)

// WebhookRegistry lists and creates platform webhook subscriptions.
type WebhookRegistry interface {
	List(ctx context.Context) ([]shopify.Subscription, error)
	Create(ctx context.Context, topic, callbackURL string) (string, error)
}

// WebhookReconciler makes sure every topic the service consumes has a
// subscription pointing at this deployment.
type WebhookReconciler struct {
	Registry WebhookRegistry
	BaseURL  string
	log      *logger.Logger
}

func NewWebhookReconciler(registry WebhookRegistry, baseURL string, log *logger.Logger) *WebhookReconciler {
	return &WebhookReconciler{Registry: registry, BaseURL: strings.TrimRight(baseURL, "/"), log: log}
}

func (r *WebhookReconciler) Name() string { return "webhook-reconcile" }

// Desired maps each topic to its callback URL.
func (r *WebhookReconciler) Desired() map[string]string {
	return map[string]string{
		shopify.TopicOrdersPaid:     r.BaseURL + "/webhooks/orders-paid",
		shopify.TopicCommentsCreate: r.BaseURL + "/webhooks/comments-create",
	}
}

func (r *WebhookReconciler) Run(ctx context.Context) error {
	_, err := r.Reconcile(ctx)
	return err
}

// Reconcile creates the missing subscriptions and returns their topics.
func (r *WebhookReconciler) Reconcile(ctx context.Context) ([]string, error) {
	existing, err := r.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	have := map[string]bool{}
	for _, s := range existing {
		have[s.Topic+" "+s.CallbackURL] = true
	}

	var created []string
	var errs []error
	for _, topic := range []string{shopify.TopicOrdersPaid, shopify.TopicCommentsCreate} {
		url := r.Desired()[topic]
		if have[topic+" "+url] {
			continue
		}
		id, err := r.Registry.Create(ctx, topic, url)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
			continue
		}
		r.log.Info("✅ [WEBHOOKS] subscription created", "topic", topic, "callback", url, "id", id)
		created = append(created, topic)
	}
	return created, errors.Join(errs...)
}
