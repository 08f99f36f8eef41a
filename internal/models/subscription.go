package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SubscriptionStatusActive      = 1
	SubscriptionStatusCancelled   = 2
	SubscriptionStatusPaused      = 3
	SubscriptionStatusNeedsResync = 7
)

// Subscription mirrors the gateway's record for Token.
type Subscription struct {
	ID             uint                  `gorm:"primaryKey;autoIncrement" json:"id"`
	Token          string                `gorm:"column:token;size:64;not null;uniqueIndex" json:"token"`
	UserID         uint                  `gorm:"column:user_id;not null;index" json:"user_id"`
	FrequencyID    uint                  `gorm:"column:frequency_id;not null" json:"frequency_id"`
	Frequency      SubscriptionFrequency `gorm:"foreignKey:FrequencyID" json:"frequency"`
	Cycles         int                   `gorm:"column:cycles;not null" json:"cycles"`
	CyclesComplete int                   `gorm:"column:cycles_complete;not null" json:"cycles_complete"`
	RunDate        time.Time             `gorm:"column:run_date;not null" json:"run_date"`
	StatusID       int                   `gorm:"column:status_id;not null;index" json:"status_id"`
	StatusText     string                `gorm:"column:status_text;size:100" json:"status_text"`
	StatusReason   string                `gorm:"column:status_reason;size:255" json:"status_reason"`
	Amount         decimal.Decimal       `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
}

func (Subscription) TableName() string {
	return "payments_subscription"
}

// SubscriptionFrequency maps a gateway frequency code to a local plan.
type SubscriptionFrequency struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	PayfastID int    `gorm:"column:payfast_id;not null;uniqueIndex" json:"payfast_id"`
	Name      string `gorm:"column:name;size:50;not null" json:"name"`
}

func (SubscriptionFrequency) TableName() string {
	return "payments_subscription_frequency"
}
