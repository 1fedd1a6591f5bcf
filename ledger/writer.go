package ledger

import "slices"

// Commit is the single atomic mutation produced for one request. The record
// store applies it as one conditional write keyed on the fetched version.
type Commit struct {
	CustomerID string
	Record     Record
	AddTags    []string
	Grants     []Grant
	OrderLock  *OrderLock
	Profile    *ProfileChange

	recordChanged bool
}

// RecordChanged reports whether any engagement field differs from the fetched record.
func (c Commit) RecordChanged() bool { return c.recordChanged }

// IsEmpty reports a pure no-op: nothing to write and nothing to grant.
func (c Commit) IsEmpty() bool {
	return !c.recordChanged && len(c.AddTags) == 0 && len(c.Grants) == 0 &&
		c.OrderLock == nil && c.Profile == nil
}

// BuildCommit folds a decision into the next record state. current is not modified.
func BuildCommit(current Record, d Decision, p Policy) Commit {
	next := current.Clone()
	c := Commit{CustomerID: current.CustomerID}

	if d.VisitEvaluated && !StreakAlreadyCounted(d.Streak) {
		next.LastVisit = d.Today
		next.CurrentStreak = d.Streak.NextStreak
		next.TotalDays = d.Streak.NextTotalDays
		next.VisitHistory = slices.Clone(d.Streak.NextHistory)
		c.recordChanged = true
	}

	if d.RewardedArticleID != "" && !ArticleAlreadyRewarded(current, d.RewardedArticleID) {
		next.RewardedArticleIDs = PushFrontUnique(next.RewardedArticleIDs, d.RewardedArticleID, p.ArticleCap)
		c.recordChanged = true
	}

	for _, tag := range d.NewTags {
		if next.HasTag(tag) || slices.Contains(c.AddTags, tag) {
			continue
		}
		c.AddTags = append(c.AddTags, tag)
		next.Tags = append(next.Tags, tag)
	}

	if d.Audit != nil {
		next.ProfileAudit = PushFront(next.ProfileAudit, *d.Audit, p.AuditCap)
		c.recordChanged = true
	}

	if d.Profile != nil && !d.Profile.IsEmpty() {
		change := *d.Profile
		c.Profile = &change
	}

	if d.OrderLock != nil {
		lock := *d.OrderLock
		c.OrderLock = &lock
	}

	c.Grants = slices.Clone(d.Grants)
	c.Record = next
	return c
}
