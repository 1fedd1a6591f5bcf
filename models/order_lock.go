package models

import "time"

// OrderLock marks an order whose reward has been decided.
type OrderLock struct {
	OrderID     string    `gorm:"primaryKey;type:varchar(64)" json:"order_id"`
	CustomerID  string    `gorm:"type:varchar(64);index;not null" json:"customer_id"`
	RewardLevel int       `gorm:"not null" json:"reward_level"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}
