package ledger

import (
	"fmt"
	"slices"
	"strings"
)

const (
	DefaultHistoryCap      = 60
	DefaultArticleCap      = 500
	DefaultAuditCap        = 10
	DefaultOrderPercent    = 5
	DefaultStreakThreshold = 30
	DefaultMilestoneTag    = "Streak: %d Days"
)

// DefaultMilestones are the streak lengths that earn a permanent tag.
var DefaultMilestones = []int{7, 15, 30, 60, 100, 365}

// Policy is the immutable reward configuration.
type Policy struct {
	StreakThreshold     int
	StreakReward        Money
	Milestones          []int
	MilestoneTagFormat  string
	CommentReward       Money
	DefaultOrderPercent int
	HistoryCap          int
	ArticleCap          int
	AuditCap            int
}

// DefaultPolicy mirrors the storefront's launch settings (CAD).
func DefaultPolicy() Policy {
	return Policy{
		StreakThreshold:     DefaultStreakThreshold,
		StreakReward:        MustParseMoney("0.90", "CAD"),
		Milestones:          slices.Clone(DefaultMilestones),
		MilestoneTagFormat:  DefaultMilestoneTag,
		CommentReward:       MustParseMoney("0.05", "CAD"),
		DefaultOrderPercent: DefaultOrderPercent,
		HistoryCap:          DefaultHistoryCap,
		ArticleCap:          DefaultArticleCap,
		AuditCap:            DefaultAuditCap,
	}
}

// MilestoneTag renders the tag label for a streak length.
func (p Policy) MilestoneTag(streak int) string {
	format := p.MilestoneTagFormat
	if format == "" {
		format = DefaultMilestoneTag
	}
	return fmt.Sprintf(format, streak)
}

// OrderPercent is the customer override when set, otherwise the default.
func (p Policy) OrderPercent(rec Record) int {
	if rec.RewardLevelOverride != nil && *rec.RewardLevelOverride >= 0 {
		return *rec.RewardLevelOverride
	}
	return p.DefaultOrderPercent
}

// Grant is one reward decided for one qualifying occurrence.
type Grant struct {
	Kind      GrantKind `json:"kind"`
	Amount    Money     `json:"amount"`
	SourceKey string    `json:"source_key"`
	Reason    string    `json:"reason"`
}

// Decision is everything the policy decided for one event.
type Decision struct {
	Today             Date
	Streak            StreakStep
	VisitEvaluated    bool
	NewTags           []string
	Grants            []Grant
	RewardedArticleID string
	StreakRewarded    bool
	CommentRewarded   bool
	OrderLock         *OrderLock
	Profile           *ProfileChange
	Audit             *AuditEntry
}

// Decide dispatches a validated event to its rule. lock is only consulted for
// OrderPaid events.
func (p Policy) Decide(rec Record, lock *OrderLock, ev Event) (Decision, error) {
	if err := ev.Validate(); err != nil {
		return Decision{}, err
	}
	switch e := ev.(type) {
	case Visit:
		return p.decideVisit(rec, e), nil
	case Comment:
		return p.decideComment(rec, e.ArticleID), nil
	case OrderPaid:
		return p.decideOrder(rec, lock, e), nil
	case ProfileUpdate:
		return p.decideProfile(e), nil
	default:
		return Decision{}, fmt.Errorf("unsupported event kind %q", ev.Kind())
	}
}

func (p Policy) decideVisit(rec Record, v Visit) Decision {
	step := EvaluateStreak(v.Today, rec, p.HistoryCap)
	d := Decision{Today: v.Today, Streak: step, VisitEvaluated: true}

	if !StreakAlreadyCounted(step) {
		if slices.Contains(p.Milestones, step.NextStreak) {
			if tag := p.MilestoneTag(step.NextStreak); !rec.HasTag(tag) {
				d.NewTags = append(d.NewTags, tag)
			}
		}
		if p.StreakThreshold > 0 && step.NextStreak == p.StreakThreshold {
			d.Streak.NextStreak = 0
			d.Streak.State = StreakRewarded
			d.StreakRewarded = true
			if p.StreakReward.IsPositive() {
				d.Grants = append(d.Grants, Grant{
					Kind:      GrantStreak,
					Amount:    p.StreakReward,
					SourceKey: SourceKey(GrantStreak, rec.CustomerID, v.Today.String()),
					Reason:    fmt.Sprintf("Streak reward: %d consecutive days", p.StreakThreshold),
				})
			}
		}
	}

	if v.Comment {
		c := p.decideComment(rec, v.ArticleID)
		d.RewardedArticleID = c.RewardedArticleID
		d.CommentRewarded = c.CommentRewarded
		d.Grants = append(d.Grants, c.Grants...)
	}
	return d
}

func (p Policy) decideComment(rec Record, articleID string) Decision {
	articleID = strings.TrimSpace(articleID)
	var d Decision
	if articleID == "" || ArticleAlreadyRewarded(rec, articleID) {
		return d
	}
	d.RewardedArticleID = articleID
	d.CommentRewarded = true
	if p.CommentReward.IsPositive() {
		d.Grants = append(d.Grants, Grant{
			Kind:      GrantComment,
			Amount:    p.CommentReward,
			SourceKey: SourceKey(GrantComment, rec.CustomerID, articleID),
			Reason:    "Comment reward: article " + articleID,
		})
	}
	return d
}

func (p Policy) decideOrder(rec Record, lock *OrderLock, o OrderPaid) Decision {
	var d Decision
	if OrderAlreadyLocked(lock) {
		return d
	}
	pct := p.OrderPercent(rec)
	amount := o.Subtotal.Percent(pct)
	if !amount.IsPositive() {
		return d
	}
	name := o.OrderName
	if name == "" {
		name = o.OrderID
	}
	d.OrderLock = &OrderLock{OrderID: o.OrderID, CustomerID: o.CustomerID, RewardLevel: pct}
	d.Grants = []Grant{{
		Kind:      GrantOrder,
		Amount:    amount,
		SourceKey: SourceKey(GrantOrder, o.OrderID),
		Reason:    fmt.Sprintf("Order %s at %d%%", name, pct),
	}}
	return d
}

func (p Policy) decideProfile(u ProfileUpdate) Decision {
	change := u.Change
	return Decision{
		Today:   u.Today,
		Profile: &change,
		Audit: &AuditEntry{
			Date:    u.Today,
			Origin:  u.Origin,
			Summary: "updated " + strings.Join(change.Fields(), ", "),
		},
	}
}

// SumGrants folds grants into one amount per currency, in first-seen order.
func SumGrants(grants []Grant) ([]Money, error) {
	var out []Money
	for _, g := range grants {
		idx := slices.IndexFunc(out, func(m Money) bool { return m.Currency == g.Amount.Currency })
		if idx < 0 {
			out = append(out, g.Amount)
			continue
		}
		sum, err := out[idx].Add(g.Amount)
		if err != nil {
			return nil, err
		}
		out[idx] = sum
	}
	return out, nil
}
