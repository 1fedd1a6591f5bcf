package models

import "time"

const (
	GrantStatusPending  = "pending"
	GrantStatusIssued   = "issued"
	GrantStatusRejected = "rejected"
)

// CreditGrant is one decided reward. It is written in the same transaction as
// the commit that decided it and updated once the credit sink has answered.
type CreditGrant struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SourceKey   string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"source_key"`
	CustomerID  string     `gorm:"type:varchar(64);index;not null" json:"customer_id"`
	Kind        string     `gorm:"type:varchar(16);not null" json:"kind"`
	AmountMinor int64      `gorm:"not null" json:"amount_minor"`
	Currency    string     `gorm:"type:varchar(3);not null" json:"currency"`
	Scale       int        `gorm:"not null" json:"scale"`
	Reason      string     `gorm:"type:text" json:"reason"`
	Status      string     `gorm:"type:varchar(16);index;not null" json:"status"`
	Attempts    int        `gorm:"not null" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	IssuedAt    *time.Time `json:"issued_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}
