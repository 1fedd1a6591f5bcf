package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestDecideScenarios(t *testing.T) {
	p := DefaultPolicy()

	t.Run("consecutive visit advances without reward", func(t *testing.T) {
		rec := Record{CustomerID: "42", LastVisit: MustParseDate("2024-01-01"), CurrentStreak: 5, TotalDays: 10}

		d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-01-02")})
		require.NoError(t, err)
		assert.Equal(t, 6, d.Streak.NextStreak)
		assert.Equal(t, 11, d.Streak.NextTotalDays)
		assert.Empty(t, d.NewTags)
		assert.Empty(t, d.Grants)
		assert.False(t, d.StreakRewarded)
	})

	t.Run("threshold resets to zero and grants", func(t *testing.T) {
		rec := Record{CustomerID: "42", LastVisit: MustParseDate("2024-01-29"), CurrentStreak: 29, TotalDays: 40}

		d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-01-30")})
		require.NoError(t, err)
		assert.Equal(t, 0, d.Streak.NextStreak)
		assert.Equal(t, StreakRewarded, d.Streak.State)
		assert.True(t, d.StreakRewarded)
		require.Len(t, d.Grants, 1)
		assert.Equal(t, GrantStreak, d.Grants[0].Kind)
		assert.Equal(t, "0.90", d.Grants[0].Amount.Decimal())
		assert.Equal(t, "CAD", d.Grants[0].Amount.Currency)
		assert.Equal(t, "streak:42:2024-01-30", d.Grants[0].SourceKey)
		assert.Equal(t, []string{"Streak: 30 Days"}, d.NewTags, "milestone uses the pre-reset value")
	})

	t.Run("gap resets to one", func(t *testing.T) {
		rec := Record{LastVisit: MustParseDate("2024-01-01"), CurrentStreak: 8}

		d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-01-05")})
		require.NoError(t, err)
		assert.Equal(t, 1, d.Streak.NextStreak)
	})

	t.Run("comment rewarded once per article", func(t *testing.T) {
		rec := Record{CustomerID: "42"}

		d, err := p.Decide(rec, nil, Comment{ArticleID: "123"})
		require.NoError(t, err)
		assert.True(t, d.CommentRewarded)
		require.Len(t, d.Grants, 1)
		assert.Equal(t, "0.05", d.Grants[0].Amount.Decimal())

		next := BuildCommit(rec, d, p).Record
		assert.Contains(t, next.RewardedArticleIDs, "123")

		again, err := p.Decide(next, nil, Comment{ArticleID: "123"})
		require.NoError(t, err)
		assert.False(t, again.CommentRewarded)
		assert.Empty(t, again.Grants)
	})

	t.Run("order override then lock", func(t *testing.T) {
		rec := Record{CustomerID: "42", RewardLevelOverride: intPtr(10)}
		order := OrderPaid{OrderID: "9001", OrderName: "#1001", CustomerID: "42", Subtotal: MustParseMoney("100.00", "CAD")}

		d, err := p.Decide(rec, nil, order)
		require.NoError(t, err)
		require.Len(t, d.Grants, 1)
		assert.Equal(t, "10.00", d.Grants[0].Amount.Decimal())
		assert.Equal(t, "Order #1001 at 10%", d.Grants[0].Reason)
		require.NotNil(t, d.OrderLock)
		assert.Equal(t, 10, d.OrderLock.RewardLevel)

		replay, err := p.Decide(rec, d.OrderLock, order)
		require.NoError(t, err)
		assert.Empty(t, replay.Grants)
		assert.Nil(t, replay.OrderLock)
	})

	t.Run("small order rounds half up", func(t *testing.T) {
		order := OrderPaid{OrderID: "9002", CustomerID: "42", Subtotal: MustParseMoney("0.30", "CAD")}

		d, err := p.Decide(Record{CustomerID: "42"}, nil, order)
		require.NoError(t, err)
		require.Len(t, d.Grants, 1)
		assert.Equal(t, "0.02", d.Grants[0].Amount.Decimal())
	})
}

func TestDecideOrderBelowMinorUnit(t *testing.T) {
	p := DefaultPolicy()
	order := OrderPaid{OrderID: "1", CustomerID: "42", Subtotal: MustParseMoney("0.09", "CAD")}

	d, err := p.Decide(Record{}, nil, order)
	require.NoError(t, err)
	assert.Empty(t, d.Grants)
	assert.Nil(t, d.OrderLock, "no grant means no lock")
}

func TestDecideOrderZeroOverride(t *testing.T) {
	p := DefaultPolicy()
	order := OrderPaid{OrderID: "1", CustomerID: "42", Subtotal: MustParseMoney("250.00", "CAD")}

	d, err := p.Decide(Record{RewardLevelOverride: intPtr(0)}, nil, order)
	require.NoError(t, err)
	assert.Empty(t, d.Grants)
}

func TestDecideVisitIgnoresArticleWithoutComment(t *testing.T) {
	p := DefaultPolicy()
	rec := Record{CustomerID: "7", LastVisit: MustParseDate("2024-03-01"), CurrentStreak: 6, TotalDays: 6}

	d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-03-02"), ArticleID: "a-1"})
	require.NoError(t, err)
	assert.Equal(t, 7, d.Streak.NextStreak)
	assert.Equal(t, []string{"Streak: 7 Days"}, d.NewTags)
	assert.False(t, d.CommentRewarded)
	assert.Empty(t, d.RewardedArticleID)
	assert.Empty(t, d.Grants)
}

func TestDecideCommentVisit(t *testing.T) {
	p := DefaultPolicy()
	rec := Record{CustomerID: "7", LastVisit: MustParseDate("2024-03-01"), CurrentStreak: 6, TotalDays: 6}

	d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-03-02"), ArticleID: "a-1", Comment: true})
	require.NoError(t, err)
	assert.Equal(t, 7, d.Streak.NextStreak)
	assert.True(t, d.CommentRewarded)
	require.Len(t, d.Grants, 1)
	assert.Equal(t, GrantComment, d.Grants[0].Kind)
	assert.Equal(t, "a-1", d.RewardedArticleID)

	var verr *ValidationError
	_, err = p.Decide(rec, nil, Visit{Today: MustParseDate("2024-03-02"), Comment: true})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "articleId", verr.Field)
}

func TestDecideMilestoneNotDuplicated(t *testing.T) {
	p := DefaultPolicy()
	rec := Record{LastVisit: MustParseDate("2024-03-01"), CurrentStreak: 6, Tags: []string{" streak: 7 days "}}

	d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-03-02")})
	require.NoError(t, err)
	assert.Empty(t, d.NewTags)
}

func TestDecideSameDayVisitStillRewardsComment(t *testing.T) {
	p := DefaultPolicy()
	rec := Record{CustomerID: "7", LastVisit: MustParseDate("2024-03-02"), CurrentStreak: 3, TotalDays: 3}

	d, err := p.Decide(rec, nil, Visit{Today: MustParseDate("2024-03-02"), ArticleID: "55", Comment: true})
	require.NoError(t, err)
	assert.True(t, d.Streak.DayAlreadyCounted)
	assert.True(t, d.CommentRewarded)

	c := BuildCommit(rec, d, p)
	assert.Equal(t, 3, c.Record.CurrentStreak)
	assert.Equal(t, []string{"55"}, c.Record.RewardedArticleIDs)
}

func TestDecideValidation(t *testing.T) {
	p := DefaultPolicy()
	var verr *ValidationError

	_, err := p.Decide(Record{}, nil, Comment{ArticleID: "  "})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "articleId", verr.Field)

	_, err = p.Decide(Record{}, nil, OrderPaid{OrderID: "1", CustomerID: "2"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "currencyCode", verr.Field)

	_, err = p.Decide(Record{}, nil, Visit{})
	require.ErrorAs(t, err, &verr)

	_, err = p.Decide(Record{}, nil, ProfileUpdate{Today: MustParseDate("2024-01-01")})
	require.ErrorAs(t, err, &verr)
}

func TestDecideProfile(t *testing.T) {
	p := DefaultPolicy()
	first := "Ada"
	yes := true
	upd := ProfileUpdate{
		Today:  MustParseDate("2024-05-01"),
		Origin: "203.0.113.9",
		Change: ProfileChange{FirstName: &first, EmailConsent: &yes},
	}

	d, err := p.Decide(Record{}, nil, upd)
	require.NoError(t, err)
	require.NotNil(t, d.Audit)
	assert.Equal(t, "updated firstName, emailConsent", d.Audit.Summary)
	assert.Equal(t, "203.0.113.9", d.Audit.Origin)
	assert.Empty(t, d.Grants)
}

func TestSumGrants(t *testing.T) {
	grants := []Grant{
		{Kind: GrantStreak, Amount: MustParseMoney("0.90", "CAD")},
		{Kind: GrantComment, Amount: MustParseMoney("0.05", "CAD")},
		{Kind: GrantOrder, Amount: MustParseMoney("3.00", "USD")},
	}

	sums, err := SumGrants(grants)
	require.NoError(t, err)
	require.Len(t, sums, 2)
	assert.Equal(t, "0.95 CAD", sums[0].String())
	assert.Equal(t, "3.00 USD", sums[1].String())
}
