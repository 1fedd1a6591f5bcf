package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"engagement-rewards/ledger"
	"engagement-rewards/store"
)

// Directory resolves customers by email and reads marketing consent.
type Directory struct {
	Client *Client
}

func NewDirectory(client *Client) *Directory {
	return &Directory{Client: client}
}

const lookupByEmailQuery = `
query customerByEmail($query: String!) {
  customers(first: 1, query: $query) {
    nodes { id email }
  }
}`

func (d *Directory) LookupCustomerByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", &ledger.ValidationError{Field: "email", Message: "required"}
	}
	var out struct {
		Customers struct {
			Nodes []struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"nodes"`
		} `json:"customers"`
	}
	vars := map[string]any{"query": "email:" + strconv.Quote(email)}
	if err := d.Client.Do(ctx, lookupByEmailQuery, vars, &out); err != nil {
		return "", fmt.Errorf("lookup customer by email: %w", err)
	}
	for _, n := range out.Customers.Nodes {
		if strings.EqualFold(n.Email, email) {
			return LegacyID(n.ID), nil
		}
	}
	return "", fmt.Errorf("customer by email: %w", store.ErrNotFound)
}

const customerEmailQuery = `
query customerEmail($id: ID!) {
  customer(id: $id) { id email }
}`

// CustomerEmail confirms customerKey names a customer and returns its email.
func (d *Directory) CustomerEmail(ctx context.Context, customerKey string) (string, error) {
	var out struct {
		Customer *struct {
			ID    string  `json:"id"`
			Email *string `json:"email"`
		} `json:"customer"`
	}
	if err := d.Client.Do(ctx, customerEmailQuery, map[string]any{"id": CustomerGID(customerKey)}, &out); err != nil {
		return "", fmt.Errorf("customer %s: %w", customerKey, err)
	}
	if out.Customer == nil {
		return "", fmt.Errorf("customer %s: %w", customerKey, store.ErrNotFound)
	}
	if out.Customer.Email == nil {
		return "", nil
	}
	return *out.Customer.Email, nil
}

const consentQuery = `
query consent($id: ID!) {
  customer(id: $id) {
    emailMarketingConsent { marketingState }
    smsMarketingConsent { marketingState }
  }
}`

func (d *Directory) ConsentStatus(ctx context.Context, customerKey string) (ledger.ConsentStatus, error) {
	type consent struct {
		MarketingState string `json:"marketingState"`
	}
	var out struct {
		Customer *struct {
			Email *consent `json:"emailMarketingConsent"`
			SMS   *consent `json:"smsMarketingConsent"`
		} `json:"customer"`
	}
	if err := d.Client.Do(ctx, consentQuery, map[string]any{"id": CustomerGID(customerKey)}, &out); err != nil {
		return ledger.ConsentStatus{}, fmt.Errorf("consent status %s: %w", customerKey, err)
	}
	if out.Customer == nil {
		return ledger.ConsentStatus{}, fmt.Errorf("customer %s: %w", customerKey, store.ErrNotFound)
	}
	var status ledger.ConsentStatus
	if out.Customer.Email != nil {
		status.EmailSubscribed = out.Customer.Email.MarketingState == "SUBSCRIBED"
	}
	if out.Customer.SMS != nil {
		status.SMSSubscribed = out.Customer.SMS.MarketingState == "SUBSCRIBED"
	}
	return status, nil
}

const customerUpdateMutation = `
mutation profileUpdate($input: CustomerInput!) {
  customerUpdate(input: $input) {
    customer { id }
    userErrors { field message }
  }
}`

const emailConsentMutation = `
mutation emailConsent($input: CustomerEmailMarketingConsentUpdateInput!) {
  customerEmailMarketingConsentUpdate(input: $input) {
    userErrors { field message code }
  }
}`

const smsConsentMutation = `
mutation smsConsent($input: CustomerSmsMarketingConsentUpdateInput!) {
  customerSmsMarketingConsentUpdate(input: $input) {
    userErrors { field message code }
  }
}`

// applyProfile writes the profile fields, then each consent flag. Shopify
// has no batched form for these, so a failure part way leaves the earlier
// writes in place; every write is idempotent and the request is retried whole.
func (s *RecordStore) applyProfile(ctx context.Context, owner string, p ledger.ProfileChange) error {
	input := map[string]any{"id": owner}
	var metafields []map[string]any
	if p.FirstName != nil {
		input["firstName"] = *p.FirstName
	}
	if p.LastName != nil {
		input["lastName"] = *p.LastName
	}
	if p.Nickname != nil {
		metafields = append(metafields, map[string]any{"namespace": namespace, "key": keyNickname, "type": "single_line_text_field", "value": *p.Nickname})
	}
	if p.BirthDate != nil {
		metafields = append(metafields, map[string]any{"namespace": birthNamespace, "key": keyBirthDate, "type": "date", "value": p.BirthDate.String()})
	}
	if len(metafields) > 0 {
		input["metafields"] = metafields
	}
	if a := p.Address; a != nil && strings.TrimSpace(a.Address1) != "" {
		country := a.Country
		if country == "" {
			country = "CA"
		}
		addr := map[string]any{"address1": a.Address1, "city": a.City, "province": a.Province, "zip": a.Zip, "country": country}
		if p.FirstName != nil {
			addr["firstName"] = *p.FirstName
		}
		if p.LastName != nil {
			addr["lastName"] = *p.LastName
		}
		input["addresses"] = []map[string]any{addr}
	}

	if len(input) > 1 {
		var out struct {
			CustomerUpdate struct {
				UserErrors []userErrorPayload `json:"userErrors"`
			} `json:"customerUpdate"`
		}
		if err := s.Client.Do(ctx, customerUpdateMutation, map[string]any{"input": input}, &out); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		if err := userErrorsToErr("customerUpdate", out.CustomerUpdate.UserErrors); err != nil {
			return err
		}
	}

	if p.EmailConsent != nil {
		vars := map[string]any{"input": map[string]any{
			"customerId": owner,
			"emailMarketingConsent": map[string]any{
				"marketingState":      marketingState(*p.EmailConsent),
				"marketingOptInLevel": "SINGLE_OPT_IN",
			},
		}}
		var out struct {
			Update struct {
				UserErrors []userErrorPayload `json:"userErrors"`
			} `json:"customerEmailMarketingConsentUpdate"`
		}
		if err := s.Client.Do(ctx, emailConsentMutation, vars, &out); err != nil {
			return fmt.Errorf("update email consent: %w", err)
		}
		if err := userErrorsToErr("customerEmailMarketingConsentUpdate", out.Update.UserErrors); err != nil {
			return err
		}
	}

	if p.SMSConsent != nil {
		vars := map[string]any{"input": map[string]any{
			"customerId": owner,
			"smsMarketingConsent": map[string]any{
				"marketingState":      marketingState(*p.SMSConsent),
				"marketingOptInLevel": "SINGLE_OPT_IN",
			},
		}}
		var out struct {
			Update struct {
				UserErrors []userErrorPayload `json:"userErrors"`
			} `json:"customerSmsMarketingConsentUpdate"`
		}
		if err := s.Client.Do(ctx, smsConsentMutation, vars, &out); err != nil {
			return fmt.Errorf("update sms consent: %w", err)
		}
		if err := userErrorsToErr("customerSmsMarketingConsentUpdate", out.Update.UserErrors); err != nil {
			return err
		}
	}
	return nil
}

func marketingState(subscribed bool) string {
	if subscribed {
		return "SUBSCRIBED"
	}
	return "UNSUBSCRIBED"
}
