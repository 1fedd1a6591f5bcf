// Package store defines the record-store contract of the reward engine and its
// self-hosted implementation on gorm.
package store

import (
	"context"
	"errors"
	"strings"

	"engagement-rewards/ledger"
)

var (
	// ErrNotFound means the customer key does not resolve to a customer.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means the expected version no longer matches the stored one.
	ErrConflict = errors.New("version conflict")
	// ErrTransientUpstream covers timeouts, throttling and unreachable stores.
	ErrTransientUpstream = errors.New("transient upstream failure")
)

// Snapshot is a fetched record together with the version token to commit against.
// An empty Version means no engagement record has been written yet.
type Snapshot struct {
	Record  ledger.Record
	Version string
	Email   string
	// Issues lists stored values that could not be decoded and were defaulted.
	Issues []string
}

// RecordStore is the only component that talks to the persisted engagement records.
type RecordStore interface {
	Fetch(ctx context.Context, customerKey string) (Snapshot, error)
	// Commit applies c if the stored version still equals expectedVersion and
	// returns the new version. A stale version yields ErrConflict.
	Commit(ctx context.Context, customerKey, expectedVersion string, c ledger.Commit) (string, error)
	FetchOrderLock(ctx context.Context, orderID string) (*ledger.OrderLock, error)
	// CommitOrderWithLock writes the order lock and records the grant only if no
	// lock exists yet; otherwise ErrConflict.
	CommitOrderWithLock(ctx context.Context, orderID string, lock ledger.OrderLock, grant ledger.Grant) error
}

// CustomerDirectory resolves webhook identities and reads marketing consent.
type CustomerDirectory interface {
	LookupCustomerByEmail(ctx context.Context, email string) (string, error)
	ConsentStatus(ctx context.Context, customerKey string) (ledger.ConsentStatus, error)
}

// OpError names the engine step that failed. Op is safe to show to callers.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *OpError) Unwrap() error { return e.Err }

// WithOp wraps err with the step it came from. A nil err stays nil.
func WithOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Err: err}
}

// CustomerResolver confirms a customer key against the commerce platform.
// It returns ErrNotFound for keys that name no customer.
type CustomerResolver interface {
	CustomerEmail(ctx context.Context, customerKey string) (string, error)
}

// UserError is a rejection reported by the reward sink.
type UserError struct {
	Field   []string `json:"field,omitempty"`
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
}

// RejectedError carries user errors returned by the store or sink for an
// otherwise well-formed request.
type RejectedError struct {
	Op         string
	UserErrors []UserError
}

func (e *RejectedError) Error() string {
	return e.Op + " rejected: " + JoinUserErrors(e.UserErrors)
}

// RewardSink issues store credit.
type RewardSink interface {
	GrantCredit(ctx context.Context, customerKey string, amount ledger.Money, reason string) ([]UserError, error)
}

// GrantStatus is the delivery state of a recorded grant.
type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantIssued   GrantStatus = "issued"
	GrantRejected GrantStatus = "rejected"
)

// PendingGrant is a recorded grant still waiting for the sink.
type PendingGrant struct {
	CustomerKey string
	Grant       ledger.Grant
	Attempts    int
}

// GrantOutbox is implemented by stores that persist grants next to the
// commit that decided them, so undelivered credit can be retried later.
type GrantOutbox interface {
	MarkGrants(ctx context.Context, sourceKeys []string, status GrantStatus, detail string) error
	PendingGrants(ctx context.Context, olderThanSeconds int, limit int) ([]PendingGrant, error)
}

// JoinUserErrors renders sink rejections for logs and error details.
func JoinUserErrors(errs []UserError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Message
		if len(e.Field) > 0 {
			msg = strings.Join(e.Field, ".") + ": " + msg
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}
