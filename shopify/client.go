// Package shopify implements the record store, customer directory, credit
// sink and webhook registry on top of the Shopify Admin GraphQL API.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"engagement-rewards/store"
)

const gidPrefix = "gid://shopify/"

// Client posts GraphQL documents to the Admin API of one shop.
type Client struct {
	Endpoint   string
	Token      string
	HTTPClient *http.Client
}

func NewClient(domain, token, apiVersion string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		Endpoint:   fmt.Sprintf("https://%s/admin/api/%s/graphql.json", strings.TrimSuffix(domain, "/"), apiVersion),
		Token:      token,
		HTTPClient: httpClient,
	}
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// Do runs one query or mutation and decodes "data" into out. Network
// failures, 429, 5xx and THROTTLED responses wrap store.ErrTransientUpstream.
func (c *Client) Do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return fmt.Errorf("encode graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: shopify request failed: %v", store.ErrTransientUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: shopify returned status %d: %s", store.ErrTransientUpstream, resp.StatusCode, snippet)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("shopify returned status %d: %s", resp.StatusCode, snippet)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("%w: failed to decode shopify response: %v", store.ErrTransientUpstream, err)
	}
	if len(decoded.Errors) > 0 {
		msgs := make([]string, 0, len(decoded.Errors))
		throttled := false
		for _, e := range decoded.Errors {
			msgs = append(msgs, e.Message)
			if e.Extensions.Code == "THROTTLED" {
				throttled = true
			}
		}
		if throttled {
			return fmt.Errorf("%w: shopify throttled: %s", store.ErrTransientUpstream, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("shopify graphql errors: %s", strings.Join(msgs, "; "))
	}
	if out == nil || len(decoded.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Data, out); err != nil {
		return fmt.Errorf("decode graphql data: %w", err)
	}
	return nil
}

// CustomerGID renders the global id of a numeric customer id. Ids that are
// already global are returned unchanged.
func CustomerGID(id string) string { return gid("Customer", id) }

func OrderGID(id string) string { return gid("Order", id) }

func gid(kind, id string) string {
	if strings.HasPrefix(id, gidPrefix) {
		return id
	}
	return gidPrefix + kind + "/" + id
}

// LegacyID strips the global id prefix ("gid://shopify/Customer/42" -> "42").
func LegacyID(globalID string) string {
	if !strings.HasPrefix(globalID, gidPrefix) {
		return globalID
	}
	return globalID[strings.LastIndex(globalID, "/")+1:]
}

type userErrorPayload struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
	Code    string   `json:"code"`
}

func toUserErrors(in []userErrorPayload) []store.UserError {
	out := make([]store.UserError, 0, len(in))
	for _, e := range in {
		out = append(out, store.UserError{Field: e.Field, Message: e.Message, Code: e.Code})
	}
	return out
}
