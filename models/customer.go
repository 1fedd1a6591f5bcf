package models

// Customer is the local mirror of a storefront customer. Rows are created
// lazily by the first engagement commit for the customer.
type Customer struct {
	ID                  string  `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Email               string  `gorm:"type:varchar(320);index" json:"email,omitempty"`
	FirstName           *string `json:"first_name,omitempty"`
	LastName            *string `json:"last_name,omitempty"`
	Nickname            *string `json:"nickname,omitempty"`
	BirthDate           *string `gorm:"type:varchar(10)" json:"birth_date,omitempty"` // YYYY-MM-DD
	Address             string  `gorm:"type:text" json:"address,omitempty"`           // JSON ledger.Address
	EmailSubscribed     bool    `json:"email_subscribed"`
	SMSSubscribed       bool    `json:"sms_subscribed"`
	Tags                string  `gorm:"type:text" json:"tags"` // JSON array
	RewardLevelOverride *int    `json:"reward_level_override,omitempty"`

	Timestamps
}
