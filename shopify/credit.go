package shopify

import (
	"context"
	"fmt"
	"strings"

	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/store"
)

// noteLimit bounds how many reward lines are kept in the customer note.
const noteLimit = 50

// CreditSink issues store credit to the customer's account for the credited
// currency. Shopify creates the account on first credit when addressed by
// customer id.
type CreditSink struct {
	Client *Client
	Log    *logger.Logger
	// AnnotateNotes appends a "[REWARDS]" line to the customer note for every
	// issued credit.
	AnnotateNotes bool
}

func NewCreditSink(client *Client, log *logger.Logger) *CreditSink {
	return &CreditSink{Client: client, Log: log, AnnotateNotes: true}
}

const creditMutation = `
mutation grantCredit($id: ID!, $creditInput: StoreCreditAccountCreditInput!) {
  storeCreditAccountCredit(id: $id, creditInput: $creditInput) {
    storeCreditAccountTransaction { amount { amount currencyCode } }
    userErrors { field message code }
  }
}`

func (s *CreditSink) GrantCredit(ctx context.Context, customerKey string, amount ledger.Money, reason string) ([]store.UserError, error) {
	vars := map[string]any{
		"id": CustomerGID(customerKey),
		"creditInput": map[string]any{
			"creditAmount": map[string]any{"amount": amount.Decimal(), "currencyCode": amount.Currency},
		},
	}
	var out struct {
		Credit struct {
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"storeCreditAccountCredit"`
	}
	if err := s.Client.Do(ctx, creditMutation, vars, &out); err != nil {
		return nil, fmt.Errorf("credit %s to %s: %w", amount, customerKey, err)
	}
	if len(out.Credit.UserErrors) > 0 {
		return toUserErrors(out.Credit.UserErrors), nil
	}

	if s.AnnotateNotes && reason != "" {
		line := fmt.Sprintf("[REWARDS] Issued %s credit: %s", amount, reason)
		if err := s.appendNote(ctx, customerKey, line); err != nil {
			s.Log.Warn("[CREDIT] credit issued but note not updated", "customer_id", customerKey, "error", err)
		}
	}
	return nil, nil
}

const noteQuery = `
query customerNote($id: ID!) {
  customer(id: $id) { note }
}`

const noteMutation = `
mutation customerNote($input: CustomerInput!) {
  customerUpdate(input: $input) {
    userErrors { field message }
  }
}`

func (s *CreditSink) appendNote(ctx context.Context, customerKey, line string) error {
	var current struct {
		Customer *struct {
			Note string `json:"note"`
		} `json:"customer"`
	}
	id := CustomerGID(customerKey)
	if err := s.Client.Do(ctx, noteQuery, map[string]any{"id": id}, &current); err != nil {
		return err
	}
	if current.Customer == nil {
		return store.ErrNotFound
	}

	var out struct {
		CustomerUpdate struct {
			UserErrors []userErrorPayload `json:"userErrors"`
		} `json:"customerUpdate"`
	}
	input := map[string]any{"id": id, "note": appendNoteLine(current.Customer.Note, line, noteLimit)}
	if err := s.Client.Do(ctx, noteMutation, map[string]any{"input": input}, &out); err != nil {
		return err
	}
	return userErrorsToErr("customerUpdate", out.CustomerUpdate.UserErrors)
}

// appendNoteLine adds line at the end of note, dropping the oldest reward
// lines once more than limit are present. Lines written by staff are kept.
func appendNoteLine(note, line string, limit int) string {
	var staff, rewards []string
	for _, l := range strings.Split(strings.TrimSpace(note), "\n") {
		switch {
		case strings.TrimSpace(l) == "":
		case strings.HasPrefix(l, "[REWARDS]"):
			rewards = append(rewards, l)
		default:
			staff = append(staff, l)
		}
	}
	rewards = append(rewards, line)
	if len(rewards) > limit {
		rewards = rewards[len(rewards)-limit:]
	}
	return strings.Join(append(staff, rewards...), "\n")
}
