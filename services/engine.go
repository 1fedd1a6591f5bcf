// services/engine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/store"
)

// MaxCommitAttempts bounds the fetch-evaluate-commit loop on version conflicts.
const MaxCommitAttempts = 3

// Engine runs one inbound event through fetch, evaluation and a conditional
// commit, then hands any grants to delivery. It holds no per-request state.
type Engine struct {
	Store     store.RecordStore
	Directory store.CustomerDirectory
	Grants    *GrantDelivery
	Policy    ledger.Policy
	Log       *logger.Logger

	MaxAttempts int
}

func NewEngine(st store.RecordStore, dir store.CustomerDirectory, grants *GrantDelivery, policy ledger.Policy, log *logger.Logger) *Engine {
	return &Engine{
		Store:       st,
		Directory:   dir,
		Grants:      grants,
		Policy:      policy,
		Log:         log,
		MaxAttempts: MaxCommitAttempts,
	}
}

// Outcome is the result of one processed event.
type Outcome struct {
	Record   ledger.Record
	Decision ledger.Decision
	// Applied is false when the event was a pure no-op.
	Applied  bool
	Attempts int
}

// Process evaluates a Visit, Comment or ProfileUpdate for customerKey.
func (e *Engine) Process(ctx context.Context, customerKey string, ev ledger.Event) (Outcome, error) {
	customerKey = strings.TrimSpace(customerKey)
	if customerKey == "" {
		return Outcome{}, &ledger.ValidationError{Field: "customerKey", Message: "required"}
	}
	if ev.Kind() == ledger.EventOrderPaid {
		return Outcome{}, fmt.Errorf("order events go through ProcessOrder")
	}
	if err := ev.Validate(); err != nil {
		return Outcome{}, err
	}

	attempts := e.MaxAttempts
	if attempts <= 0 {
		attempts = MaxCommitAttempts
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		snap, err := e.Store.Fetch(ctx, customerKey)
		if err != nil {
			return Outcome{}, store.WithOp("fetch customer", err)
		}
		if len(snap.Issues) > 0 {
			e.Log.Warn("[ENGAGEMENT] stored record had unreadable fields, using defaults",
				"customer_id", customerKey, "issues", snap.Issues)
		}
		rec := snap.Record
		if rec.CustomerID == "" {
			rec.CustomerID = customerKey
		}

		decision, err := e.Policy.Decide(rec, nil, ev)
		if err != nil {
			return Outcome{}, err
		}
		commit := ledger.BuildCommit(rec, decision, e.Policy)
		if commit.IsEmpty() {
			return Outcome{Record: rec, Decision: decision, Attempts: attempt}, nil
		}

		version, err := e.Store.Commit(ctx, customerKey, snap.Version, commit)
		if errors.Is(err, store.ErrConflict) {
			e.Log.Info("[ENGAGEMENT] version conflict, re-evaluating",
				"customer_id", customerKey, "attempt", attempt, "event", string(ev.Kind()))
			continue
		}
		if err != nil {
			return Outcome{}, store.WithOp("commit ledger", err)
		}
		e.Log.Debug("[ENGAGEMENT] committed", "customer_id", customerKey, "version", version,
			"streak", commit.Record.CurrentStreak, "grants", len(commit.Grants), "tags", commit.AddTags)

		out := Outcome{Record: commit.Record, Decision: decision, Applied: true, Attempts: attempt}
		if err := e.Grants.Deliver(ctx, customerKey, commit.Grants); err != nil {
			return out, store.WithOp("issue credit", err)
		}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("commit for customer %s after %d attempts: %w", customerKey, attempts, store.ErrConflict)
}

// CommentOutcome is the result of a comment webhook.
type CommentOutcome struct {
	CustomerKey string
	// NotACustomer is set when the commenter's email matched no customer.
	NotACustomer bool
	Rewarded     bool
}

// ProcessComment resolves the commenter by email and applies the comment reward.
func (e *Engine) ProcessComment(ctx context.Context, email, articleID string) (CommentOutcome, error) {
	if strings.TrimSpace(email) == "" {
		return CommentOutcome{}, &ledger.ValidationError{Field: "email", Message: "required"}
	}
	ev := ledger.Comment{ArticleID: strings.TrimSpace(articleID)}
	if err := ev.Validate(); err != nil {
		return CommentOutcome{}, err
	}
	key, err := e.Directory.LookupCustomerByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return CommentOutcome{NotACustomer: true}, nil
	}
	if err != nil {
		return CommentOutcome{}, store.WithOp("lookup customer", err)
	}
	out, err := e.Process(ctx, key, ev)
	if err != nil {
		return CommentOutcome{CustomerKey: key}, err
	}
	return CommentOutcome{CustomerKey: key, Rewarded: out.Decision.CommentRewarded}, nil
}
