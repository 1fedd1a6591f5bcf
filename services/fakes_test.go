package services

import (
	"context"
	"strconv"
	"sync"

	"engagement-rewards/ledger"
	"engagement-rewards/store"
)

type memStore struct {
	mu        sync.Mutex
	records   map[string]ledger.Record
	versions  map[string]int
	locks     map[string]ledger.OrderLock
	commits   []ledger.Commit
	conflicts int // next n commits fail with ErrConflict
	fetchErr  error
	// onCommit runs before a commit is applied, outside the lock.
	onCommit func()
}

func newMemStore() *memStore {
	return &memStore{
		records:  map[string]ledger.Record{},
		versions: map[string]int{},
		locks:    map[string]ledger.OrderLock{},
	}
}

func (m *memStore) Fetch(_ context.Context, key string) (store.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return store.Snapshot{}, m.fetchErr
	}
	rec, ok := m.records[key]
	if !ok {
		return store.Snapshot{Record: ledger.Record{CustomerID: key}}, nil
	}
	return store.Snapshot{Record: rec.Clone(), Version: strconv.Itoa(m.versions[key])}, nil
}

func (m *memStore) Commit(_ context.Context, key, expected string, c ledger.Commit) (string, error) {
	if m.onCommit != nil {
		m.onCommit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		m.versions[key]++
		return "", store.ErrConflict
	}
	current := ""
	if _, ok := m.records[key]; ok {
		current = strconv.Itoa(m.versions[key])
	}
	if current != expected {
		return "", store.ErrConflict
	}
	m.versions[key]++
	m.records[key] = c.Record.Clone()
	m.commits = append(m.commits, c)
	return strconv.Itoa(m.versions[key]), nil
}

func (m *memStore) FetchOrderLock(_ context.Context, orderID string) (*ledger.OrderLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[orderID]; ok {
		return &l, nil
	}
	return nil, nil
}

func (m *memStore) CommitOrderWithLock(_ context.Context, orderID string, lock ledger.OrderLock, _ ledger.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locks[orderID]; ok {
		return store.ErrConflict
	}
	m.locks[orderID] = lock
	return nil
}

type sinkCall struct {
	CustomerKey string
	Amount      ledger.Money
	Reason      string
}

type fakeSink struct {
	mu       sync.Mutex
	calls    []sinkCall
	userErrs []store.UserError
	err      error
}

func (f *fakeSink) GrantCredit(_ context.Context, key string, amount ledger.Money, reason string) ([]store.UserError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if len(f.userErrs) > 0 {
		return f.userErrs, nil
	}
	f.calls = append(f.calls, sinkCall{CustomerKey: key, Amount: amount, Reason: reason})
	return nil, nil
}

type fakeDirectory struct {
	byEmail map[string]string
	consent ledger.ConsentStatus
}

func (d *fakeDirectory) LookupCustomerByEmail(_ context.Context, email string) (string, error) {
	if key, ok := d.byEmail[email]; ok {
		return key, nil
	}
	return "", store.ErrNotFound
}

func (d *fakeDirectory) ConsentStatus(context.Context, string) (ledger.ConsentStatus, error) {
	return d.consent, nil
}

type markCall struct {
	Keys   []string
	Status store.GrantStatus
}

type fakeOutbox struct {
	marks   []markCall
	pending []store.PendingGrant
}

func (o *fakeOutbox) MarkGrants(_ context.Context, keys []string, status store.GrantStatus, _ string) error {
	o.marks = append(o.marks, markCall{Keys: keys, Status: status})
	return nil
}

func (o *fakeOutbox) PendingGrants(context.Context, int, int) ([]store.PendingGrant, error) {
	return o.pending, nil
}
