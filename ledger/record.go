// Package ledger holds the pure decision logic of the engagement reward engine:
// streak evaluation, reward policy, idempotency guards, bounded audit rings and
// the writer that folds all of it into one commit descriptor.
//
// Nothing in this package performs I/O or blocks.
package ledger

import (
	"slices"
	"strings"
)

// Record is the persisted engagement state of one customer.
type Record struct {
	CustomerID          string       `json:"customer_id"`
	LastVisit           Date         `json:"last_visit"`
	CurrentStreak       int          `json:"current_streak"`
	TotalDays           int          `json:"total_days"`
	VisitHistory        []Date       `json:"visit_history"`
	RewardedArticleIDs  []string     `json:"rewarded_article_ids"`
	Tags                []string     `json:"tags"`
	RewardLevelOverride *int         `json:"reward_level_override,omitempty"`
	ProfileAudit        []AuditEntry `json:"profile_audit"`
}

// AuditEntry is one line of the profile-change audit trail.
type AuditEntry struct {
	Date    Date   `json:"date"`
	Origin  string `json:"origin"`
	Summary string `json:"summary"`
}

// HasTag reports whether the record carries label (case-insensitive, trimmed).
func (r Record) HasTag(label string) bool {
	want := strings.TrimSpace(label)
	return slices.ContainsFunc(r.Tags, func(t string) bool {
		return strings.EqualFold(strings.TrimSpace(t), want)
	})
}

// Clone returns a deep copy so callers can derive next states without aliasing.
func (r Record) Clone() Record {
	out := r
	out.VisitHistory = slices.Clone(r.VisitHistory)
	out.RewardedArticleIDs = slices.Clone(r.RewardedArticleIDs)
	out.Tags = slices.Clone(r.Tags)
	out.ProfileAudit = slices.Clone(r.ProfileAudit)
	if r.RewardLevelOverride != nil {
		v := *r.RewardLevelOverride
		out.RewardLevelOverride = &v
	}
	return out
}

// OrderLock marks an order as already evaluated for reward.
type OrderLock struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	RewardLevel int    `json:"reward_level"`
}

// ConsentStatus is the marketing consent state of a customer.
type ConsentStatus struct {
	EmailSubscribed bool `json:"emailSubscribed"`
	SMSSubscribed   bool `json:"smsSubscribed"`
}

// Address is a postal address attached to a profile change.
type Address struct {
	Address1 string `json:"address1"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

// ProfileChange carries customer profile fields written alongside a commit.
// Nil fields are left untouched.
type ProfileChange struct {
	FirstName    *string  `json:"first_name,omitempty"`
	LastName     *string  `json:"last_name,omitempty"`
	Nickname     *string  `json:"nickname,omitempty"`
	BirthDate    *Date    `json:"birth_date,omitempty"`
	Address      *Address `json:"address,omitempty"`
	EmailConsent *bool    `json:"email_consent,omitempty"`
	SMSConsent   *bool    `json:"sms_consent,omitempty"`
}

// Fields lists the names of the fields the change touches, in a stable order.
func (p ProfileChange) Fields() []string {
	var out []string
	if p.FirstName != nil {
		out = append(out, "firstName")
	}
	if p.LastName != nil {
		out = append(out, "lastName")
	}
	if p.Nickname != nil {
		out = append(out, "nickname")
	}
	if p.BirthDate != nil {
		out = append(out, "birthDate")
	}
	if p.Address != nil {
		out = append(out, "address")
	}
	if p.EmailConsent != nil {
		out = append(out, "emailConsent")
	}
	if p.SMSConsent != nil {
		out = append(out, "smsConsent")
	}
	return out
}

func (p ProfileChange) IsEmpty() bool { return len(p.Fields()) == 0 }
