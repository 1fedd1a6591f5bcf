package ledger

import "strings"

// GrantKind is the reward class a grant belongs to.
type GrantKind string

const (
	GrantStreak  GrantKind = "streak"
	GrantComment GrantKind = "comment"
	GrantOrder   GrantKind = "order"
)

// SourceKey renders the de-duplication key of one qualifying occurrence:
// streak:<customer>:<day>, comment:<customer>:<article>, order:<order>.
func SourceKey(kind GrantKind, parts ...string) string {
	return string(kind) + ":" + strings.Join(parts, ":")
}

// StreakAlreadyCounted is the streak guard keyed by (customer, today).
func StreakAlreadyCounted(step StreakStep) bool {
	return step.DayAlreadyCounted
}

// ArticleAlreadyRewarded is the comment guard keyed by (customer, article).
func ArticleAlreadyRewarded(rec Record, articleID string) bool {
	return Contains(rec.RewardedArticleIDs, strings.TrimSpace(articleID))
}

// OrderAlreadyLocked is the order guard keyed by order id.
func OrderAlreadyLocked(lock *OrderLock) bool {
	return lock != nil
}
