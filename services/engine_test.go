package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engagement-rewards/ledger"
	"engagement-rewards/logger"
	"engagement-rewards/store"
)

func newTestEngine(st *memStore, sink *fakeSink, outbox store.GrantOutbox) *Engine {
	log := logger.Nop()
	dir := &fakeDirectory{byEmail: map[string]string{"ada@example.com": "42"}}
	return NewEngine(st, dir, NewGrantDelivery(sink, outbox, nil, log), ledger.DefaultPolicy(), log)
}

func TestProcessVisitCreatesRecordLazily(t *testing.T) {
	st := newMemStore()
	sink := &fakeSink{}
	e := newTestEngine(st, sink, nil)

	out, err := e.Process(context.Background(), "42", ledger.Visit{Today: ledger.MustParseDate("2024-03-11")})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, 1, out.Record.CurrentStreak)
	assert.Equal(t, 1, out.Record.TotalDays)
	assert.Empty(t, sink.calls)
	assert.Len(t, st.commits, 1)
}

func TestProcessSameDayIsNoOp(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(st, &fakeSink{}, nil)
	ctx := context.Background()
	visit := ledger.Visit{Today: ledger.MustParseDate("2024-03-11")}

	_, err := e.Process(ctx, "42", visit)
	require.NoError(t, err)
	out, err := e.Process(ctx, "42", visit)
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Len(t, st.commits, 1)
}

func TestProcessStreakRewardGrantsOnceAndResets(t *testing.T) {
	st := newMemStore()
	st.records["42"] = ledger.Record{
		CustomerID:    "42",
		LastVisit:     ledger.MustParseDate("2024-03-10"),
		CurrentStreak: 29,
		TotalDays:     40,
	}
	sink := &fakeSink{}
	e := newTestEngine(st, sink, nil)

	out, err := e.Process(context.Background(), "42", ledger.Visit{Today: ledger.MustParseDate("2024-03-11")})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Record.CurrentStreak)
	assert.Equal(t, 41, out.Record.TotalDays)
	assert.True(t, out.Decision.StreakRewarded)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "0.90 CAD", sink.calls[0].Amount.String())
	assert.Contains(t, out.Record.Tags, "Streak: 30 Days")
}

func TestProcessVisitWithCommentSumsIntoOneCredit(t *testing.T) {
	st := newMemStore()
	st.records["42"] = ledger.Record{
		CustomerID:    "42",
		LastVisit:     ledger.MustParseDate("2024-03-10"),
		CurrentStreak: 29,
	}
	sink := &fakeSink{}
	e := newTestEngine(st, sink, nil)

	_, err := e.Process(context.Background(), "42", ledger.Visit{Today: ledger.MustParseDate("2024-03-11"), ArticleID: "a1", Comment: true})
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "0.95 CAD", sink.calls[0].Amount.String())
	assert.Contains(t, sink.calls[0].Reason, "article a1")
}

func TestProcessRetriesOnConflict(t *testing.T) {
	st := newMemStore()
	st.conflicts = 2
	e := newTestEngine(st, &fakeSink{}, nil)

	out, err := e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.True(t, out.Decision.CommentRewarded)
}

func TestProcessSurfacesConflictAfterMaxAttempts(t *testing.T) {
	st := newMemStore()
	st.conflicts = MaxCommitAttempts
	sink := &fakeSink{}
	e := newTestEngine(st, sink, nil)

	_, err := e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.Empty(t, sink.calls)
}

func TestProcessDoesNotRetryTransientErrors(t *testing.T) {
	st := newMemStore()
	st.fetchErr = store.ErrTransientUpstream
	e := newTestEngine(st, &fakeSink{}, nil)

	_, err := e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
	require.ErrorIs(t, err, store.ErrTransientUpstream)
	var opErr *store.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "fetch customer", opErr.Op)
}

func TestProcessRejectsMissingCustomer(t *testing.T) {
	e := newTestEngine(newMemStore(), &fakeSink{}, nil)
	_, err := e.Process(context.Background(), " ", ledger.Comment{ArticleID: "a1"})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestConcurrentCommentsGrantOnce(t *testing.T) {
	st := newMemStore()
	sink := &fakeSink{}
	e := newTestEngine(st, sink, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
		}()
	}
	wg.Wait()

	assert.Len(t, sink.calls, 1)
	assert.Equal(t, []string{"a1"}, st.records["42"].RewardedArticleIDs)
}

func TestProcessCommentUnknownEmailIsSkipped(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEngine(newMemStore(), sink, nil)

	out, err := e.ProcessComment(context.Background(), "nobody@example.com", "a1")
	require.NoError(t, err)
	assert.True(t, out.NotACustomer)
	assert.Empty(t, sink.calls)
}

func TestProcessCommentRewardsOncePerArticle(t *testing.T) {
	sink := &fakeSink{}
	e := newTestEngine(newMemStore(), sink, nil)
	ctx := context.Background()

	first, err := e.ProcessComment(ctx, "ada@example.com", "a1")
	require.NoError(t, err)
	assert.True(t, first.Rewarded)
	assert.Equal(t, "42", first.CustomerKey)

	second, err := e.ProcessComment(ctx, "ada@example.com", "a1")
	require.NoError(t, err)
	assert.False(t, second.Rewarded)
	assert.Len(t, sink.calls, 1)
}

func TestProcessCommentRequiresArticle(t *testing.T) {
	e := newTestEngine(newMemStore(), &fakeSink{}, nil)
	_, err := e.ProcessComment(context.Background(), "ada@example.com", "")
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "articleId", verr.Field)
}

func TestSinkRejectionMarksGrantsRejected(t *testing.T) {
	sink := &fakeSink{userErrs: []store.UserError{{Message: "account disabled", Code: "INVALID"}}}
	outbox := &fakeOutbox{}
	e := newTestEngine(newMemStore(), sink, outbox)

	_, err := e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
	var rejected *store.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "account disabled", rejected.UserErrors[0].Message)
	require.Len(t, outbox.marks, 1)
	assert.Equal(t, store.GrantRejected, outbox.marks[0].Status)
	assert.Equal(t, []string{"comment:42:a1"}, outbox.marks[0].Keys)
}

func TestSinkTransportFailureLeavesGrantPending(t *testing.T) {
	sink := &fakeSink{err: store.ErrTransientUpstream}
	outbox := &fakeOutbox{}
	st := newMemStore()
	e := newTestEngine(st, sink, outbox)

	out, err := e.Process(context.Background(), "42", ledger.Comment{ArticleID: "a1"})
	require.ErrorIs(t, err, store.ErrTransientUpstream)
	assert.True(t, out.Applied)
	assert.Empty(t, outbox.marks)
	assert.Equal(t, []string{"a1"}, st.records["42"].RewardedArticleIDs)
}

func TestUpdateProfileAppendsAudit(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(st, &fakeSink{}, nil)
	name := "Ada"

	out, err := e.UpdateProfile(context.Background(), "42", ledger.MustParseDate("2024-03-11"), "203.0.113.9",
		ledger.ProfileChange{FirstName: &name})
	require.NoError(t, err)
	require.Len(t, out.Record.ProfileAudit, 1)
	assert.Equal(t, "203.0.113.9", out.Record.ProfileAudit[0].Origin)
	assert.Equal(t, "updated firstName", out.Record.ProfileAudit[0].Summary)
	require.NotNil(t, st.commits[0].Profile)
}

func TestUpdateProfileRejectsEmptyChange(t *testing.T) {
	e := newTestEngine(newMemStore(), &fakeSink{}, nil)
	_, err := e.UpdateProfile(context.Background(), "42", ledger.MustParseDate("2024-03-11"), "", ledger.ProfileChange{})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestProfileStatusReadsDirectory(t *testing.T) {
	st := newMemStore()
	log := logger.Nop()
	dir := &fakeDirectory{consent: ledger.ConsentStatus{EmailSubscribed: true}}
	e := NewEngine(st, dir, NewGrantDelivery(&fakeSink{}, nil, nil, log), ledger.DefaultPolicy(), log)

	status, err := e.ProfileStatus(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, status.EmailSubscribed)
	assert.False(t, status.SMSSubscribed)
}

func TestRetryPendingIssuesAndKeepsFailures(t *testing.T) {
	outbox := &fakeOutbox{pending: []store.PendingGrant{{
		CustomerKey: "42",
		Grant: ledger.Grant{
			Kind:      ledger.GrantComment,
			Amount:    ledger.MustParseMoney("0.05", "CAD"),
			SourceKey: "comment:42:a1",
		},
	}}}
	sink := &fakeSink{}
	g := NewGrantDelivery(sink, outbox, nil, logger.Nop())

	n, err := g.RetryPending(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, store.GrantIssued, outbox.marks[0].Status)

	sink.err = errors.New("timeout")
	outbox.marks = nil
	n, err = g.RetryPending(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.Len(t, outbox.marks, 1)
	assert.Equal(t, store.GrantPending, outbox.marks[0].Status)
}
