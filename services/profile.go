// services/profile.go
package services

import (
	"context"
	"strings"

	"engagement-rewards/ledger"
	"engagement-rewards/store"
)

// UpdateProfile writes a customer profile change together with its audit entry.
func (e *Engine) UpdateProfile(ctx context.Context, customerKey string, today ledger.Date, origin string, change ledger.ProfileChange) (Outcome, error) {
	if strings.TrimSpace(origin) == "" {
		origin = "unknown"
	}
	return e.Process(ctx, customerKey, ledger.ProfileUpdate{Today: today, Origin: origin, Change: change})
}

// ProfileStatus returns the customer's marketing consent.
func (e *Engine) ProfileStatus(ctx context.Context, customerKey string) (ledger.ConsentStatus, error) {
	if strings.TrimSpace(customerKey) == "" {
		return ledger.ConsentStatus{}, &ledger.ValidationError{Field: "customerKey", Message: "required"}
	}
	status, err := e.Directory.ConsentStatus(ctx, customerKey)
	if err != nil {
		return ledger.ConsentStatus{}, store.WithOp("read consent", err)
	}
	return status, nil
}
