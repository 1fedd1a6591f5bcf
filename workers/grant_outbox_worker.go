// workers/grant_outbox_worker.go
package workers

import (
	"context"
	"time"

	"engagement-rewards/logger"
)

// PendingRetrier re-sends grants stuck in the outbox.
type PendingRetrier interface {
	RetryPending(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// GrantOutboxWorker retries credit that was committed to the ledger but not
// confirmed by the sink.
type GrantOutboxWorker struct {
	Retrier PendingRetrier
	// Grace keeps the worker away from grants a live request is still delivering.
	Grace time.Duration
	Limit int
	log   *logger.Logger
}

func NewGrantOutboxWorker(retrier PendingRetrier, log *logger.Logger) *GrantOutboxWorker {
	return &GrantOutboxWorker{Retrier: retrier, Grace: 2 * time.Minute, Limit: 100, log: log}
}

func (w *GrantOutboxWorker) Name() string { return "grant-outbox-retry" }

func (w *GrantOutboxWorker) Run(ctx context.Context) error {
	issued, err := w.Retrier.RetryPending(ctx, w.Grace, w.Limit)
	if issued > 0 {
		w.log.Info("✅ [OUTBOX] pending grants issued", "count", issued)
	}
	return err
}
