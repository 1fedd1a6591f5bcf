// services/grants.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/store"
	"engagement-rewards/utils"
)

// Archiver stores a receipt for credit that was issued.
type Archiver interface {
	Archive(ctx context.Context, r utils.Receipt) (string, error)
}

// GrantDelivery hands committed grants to the reward sink and records the
// outcome in the outbox when the store keeps one.
type GrantDelivery struct {
	Sink     store.RewardSink
	Outbox   store.GrantOutbox
	Archiver Archiver
	Log      *logger.Logger
	Now      func() time.Time
}

func NewGrantDelivery(sink store.RewardSink, outbox store.GrantOutbox, archiver Archiver, log *logger.Logger) *GrantDelivery {
	return &GrantDelivery{Sink: sink, Outbox: outbox, Archiver: archiver, Log: log, Now: time.Now}
}

// Deliver issues grants with one sink call per currency. Sink rejections come
// back as *store.RejectedError; transport failures leave the grants pending.
func (g *GrantDelivery) Deliver(ctx context.Context, customerKey string, grants []ledger.Grant) error {
	if len(grants) == 0 {
		return nil
	}
	var errs []error
	for _, batch := range byCurrency(grants) {
		if err := g.deliverBatch(ctx, customerKey, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *GrantDelivery) deliverBatch(ctx context.Context, customerKey string, batch []ledger.Grant) error {
	sums, err := ledger.SumGrants(batch)
	if err != nil {
		return err
	}
	total := sums[0]
	keys := sourceKeys(batch)

	userErrs, err := g.Sink.GrantCredit(ctx, customerKey, total, reasons(batch))
	if err != nil {
		g.Log.Error("[GRANT] ledger committed but credit not issued",
			"customer_id", customerKey, "amount", total.String(), "source_keys", keys, "error", err)
		return fmt.Errorf("grant credit %s: %w", total, err)
	}
	if len(userErrs) > 0 {
		detail := store.JoinUserErrors(userErrs)
		g.Log.Warn("[GRANT] credit rejected", "customer_id", customerKey, "source_keys", keys, "detail", detail)
		g.mark(ctx, keys, store.GrantRejected, detail)
		return &store.RejectedError{Op: "storeCreditAccountCredit", UserErrors: userErrs}
	}

	g.Log.Info("[GRANT] credit issued", "customer_id", customerKey, "amount", total.String(), "source_keys", keys)
	g.mark(ctx, keys, store.GrantIssued, "")
	g.archive(ctx, customerKey, total, batch)
	return nil
}

// RetryPending re-sends grants that stayed pending for longer than grace and
// returns how many were issued.
func (g *GrantDelivery) RetryPending(ctx context.Context, grace time.Duration, limit int) (int, error) {
	if g.Outbox == nil {
		return 0, nil
	}
	pending, err := g.Outbox.PendingGrants(ctx, int(grace.Seconds()), limit)
	if err != nil {
		return 0, err
	}
	issued := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return issued, err
		}
		err := g.deliverBatch(ctx, p.CustomerKey, []ledger.Grant{p.Grant})
		var rejected *store.RejectedError
		switch {
		case err == nil:
			issued++
		case errors.As(err, &rejected):
		default:
			g.mark(ctx, []string{p.Grant.SourceKey}, store.GrantPending, err.Error())
		}
	}
	return issued, nil
}

func (g *GrantDelivery) mark(ctx context.Context, keys []string, status store.GrantStatus, detail string) {
	if g.Outbox == nil {
		return
	}
	if err := g.Outbox.MarkGrants(ctx, keys, status, detail); err != nil {
		g.Log.Error("[GRANT] failed to record grant status", "status", string(status), "source_keys", keys, "error", err)
	}
}

func (g *GrantDelivery) archive(ctx context.Context, customerKey string, total ledger.Money, batch []ledger.Grant) {
	if g.Archiver == nil {
		return
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	key, err := g.Archiver.Archive(ctx, utils.Receipt{
		CustomerKey: customerKey,
		Total:       total,
		Grants:      batch,
		IssuedAt:    now(),
	})
	if err != nil {
		g.Log.Warn("[GRANT] receipt not archived", "customer_id", customerKey, "error", err)
		return
	}
	g.Log.Debug("[GRANT] receipt archived", "key", key)
}

func byCurrency(grants []ledger.Grant) [][]ledger.Grant {
	var out [][]ledger.Grant
	idx := map[string]int{}
	for _, gr := range grants {
		i, ok := idx[gr.Amount.Currency]
		if !ok {
			i = len(out)
			idx[gr.Amount.Currency] = i
			out = append(out, nil)
		}
		out[i] = append(out[i], gr)
	}
	return out
}

func sourceKeys(grants []ledger.Grant) []string {
	keys := make([]string, 0, len(grants))
	for _, g := range grants {
		keys = append(keys, g.SourceKey)
	}
	return keys
}

func reasons(grants []ledger.Grant) string {
	parts := make([]string, 0, len(grants))
	for _, g := range grants {
		if g.Reason != "" {
			parts = append(parts, g.Reason)
		}
	}
	return strings.Join(parts, "; ")
}
