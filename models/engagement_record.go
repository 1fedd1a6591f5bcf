package models

import "time"

// EngagementRecord holds the streak and reward state of one customer.
// Version is bumped by every conditional update.
type EngagementRecord struct {
	CustomerID         string `gorm:"primaryKey;type:varchar(64)" json:"customer_id"`
	Version            int64  `gorm:"not null" json:"version"`
	LastVisit          string `gorm:"type:varchar(10)" json:"last_visit"`
	CurrentStreak      int    `gorm:"not null" json:"current_streak"`
	TotalDays          int    `gorm:"not null" json:"total_days"`
	VisitHistory       string `gorm:"type:text" json:"visit_history"`        // JSON, most recent first
	RewardedArticleIDs string `gorm:"type:text" json:"rewarded_article_ids"` // JSON, most recent first
	ProfileAudit       string `gorm:"type:text" json:"profile_audit"`        // JSON, most recent first

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
