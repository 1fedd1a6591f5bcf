// services/orders.go
package services

import (
	"context"
	"errors"

	"engagement-rewards/ledger"
	"engagement-rewards/store"
)

// OrderOutcome is the result of an order-paid event.
type OrderOutcome struct {
	// AlreadyProcessed is set when the order carried a lock, or another
	// delivery locked it first.
	AlreadyProcessed bool
	Grant            *ledger.Grant
	RewardLevel      int
}

// ProcessOrder applies the percentage rebate to a paid order at most once.
// The lock and the grant are written in one conditional commit; credit is
// only requested after that commit succeeds.
func (e *Engine) ProcessOrder(ctx context.Context, ev ledger.OrderPaid) (OrderOutcome, error) {
	if err := ev.Validate(); err != nil {
		return OrderOutcome{}, err
	}

	lock, err := e.Store.FetchOrderLock(ctx, ev.OrderID)
	if err != nil {
		return OrderOutcome{}, store.WithOp("fetch order lock", err)
	}
	if ledger.OrderAlreadyLocked(lock) {
		e.Log.Info("[ORDER_PAID] order already rewarded", "order_id", ev.OrderID, "reward_level", lock.RewardLevel)
		return OrderOutcome{AlreadyProcessed: true, RewardLevel: lock.RewardLevel}, nil
	}

	snap, err := e.Store.Fetch(ctx, ev.CustomerID)
	if err != nil {
		return OrderOutcome{}, store.WithOp("fetch customer", err)
	}
	rec := snap.Record
	if rec.CustomerID == "" {
		rec.CustomerID = ev.CustomerID
	}

	decision, err := e.Policy.Decide(rec, lock, ev)
	if err != nil {
		return OrderOutcome{}, err
	}
	if decision.OrderLock == nil || len(decision.Grants) == 0 {
		e.Log.Info("[ORDER_PAID] no rebate for order", "order_id", ev.OrderID, "subtotal", ev.Subtotal.String())
		return OrderOutcome{RewardLevel: e.Policy.OrderPercent(rec)}, nil
	}
	grant := decision.Grants[0]

	err = e.Store.CommitOrderWithLock(ctx, ev.OrderID, *decision.OrderLock, grant)
	if errors.Is(err, store.ErrConflict) {
		e.Log.Info("[ORDER_PAID] lost lock race, order handled by another delivery", "order_id", ev.OrderID)
		return OrderOutcome{AlreadyProcessed: true, RewardLevel: decision.OrderLock.RewardLevel}, nil
	}
	if err != nil {
		return OrderOutcome{}, store.WithOp("commit order lock", err)
	}

	out := OrderOutcome{Grant: &grant, RewardLevel: decision.OrderLock.RewardLevel}
	if err := e.Grants.Deliver(ctx, ev.CustomerID, decision.Grants); err != nil {
		return out, store.WithOp("issue credit", err)
	}
	return out, nil
}
