package shopify

import (
	"context"
	"fmt"
)

const (
	TopicOrdersPaid     = "ORDERS_PAID"
	TopicCommentsCreate = "COMMENTS_CREATE"
)

// Subscription is one registered webhook.
type Subscription struct {
	ID          string
	Topic       string
	CallbackURL string
}

// Webhooks lists and creates webhook subscriptions for the shop.
type Webhooks struct {
	Client *Client
}

func NewWebhooks(client *Client) *Webhooks {
	return &Webhooks{Client: client}
}

const listSubscriptionsQuery = `
query webhookSubscriptions($after: String) {
  webhookSubscriptions(first: 100, after: $after) {
    nodes {
      id
      topic
      endpoint {
        __typename
        ... on WebhookHttpEndpoint { callbackUrl }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (w *Webhooks) List(ctx context.Context) ([]Subscription, error) {
	var subs []Subscription
	var after any
	for {
		var out struct {
			WebhookSubscriptions struct {
				Nodes []struct {
					ID       string `json:"id"`
					Topic    string `json:"topic"`
					Endpoint struct {
						CallbackURL string `json:"callbackUrl"`
					} `json:"endpoint"`
				} `json:"nodes"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"webhookSubscriptions"`
		}
		if err := w.Client.Do(ctx, listSubscriptionsQuery, map[string]any{"after": after}, &out); err != nil {
			return nil, fmt.Errorf("list webhook subscriptions: %w", err)
		}
		for _, n := range out.WebhookSubscriptions.Nodes {
			subs = append(subs, Subscription{ID: n.ID, Topic: n.Topic, CallbackURL: n.Endpoint.CallbackURL})
		}
		if !out.WebhookSubscriptions.PageInfo.HasNextPage {
			return subs, nil
		}
		after = out.WebhookSubscriptions.PageInfo.EndCursor
	}
}

const createSubscriptionMutation = `
mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription { id }
    userErrors { field message }
  }
}`

func (w *Webhooks) Create(ctx context.Context, topic, callbackURL string) (string, error) {
	vars := map[string]any{
		"topic": topic,
		"webhookSubscription": map[string]any{
			"callbackUrl": callbackURL,
			"format":      "JSON",
		},
	}
	var out struct {
		Create struct {
			WebhookSubscription *struct {
				ID string `json:"id"`
			} `json:"webhookSubscription"`
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"webhookSubscriptionCreate"`
	}
	if err := w.Client.Do(ctx, createSubscriptionMutation, vars, &out); err != nil {
		return "", fmt.Errorf("create webhook %s: %w", topic, err)
	}
	if err := userErrorsToErr("webhookSubscriptionCreate", out.Create.UserErrors); err != nil {
		return "", err
	}
	if out.Create.WebhookSubscription == nil {
		return "", fmt.Errorf("create webhook %s: no subscription returned", topic)
	}
	return out.Create.WebhookSubscription.ID, nil
}
