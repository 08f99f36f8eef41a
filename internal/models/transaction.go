package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TransactionTypeTip                = "tip"
	TransactionTypePlatformTip        = "platform-tip"
	TransactionTypeSubscriptionCredit = "subscription-credit"
	TransactionTypeDebit              = "debit"
)

// Transaction is an immutable ledger entry. Every wallet change has exactly one.
type Transaction struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint            `gorm:"column:user_id;not null;index" json:"user_id"`
	InvoiceID *uint           `gorm:"column:invoice_id;index" json:"invoice_id"`
	Reference string          `gorm:"column:reference;size:64;not null;uniqueIndex" json:"reference"`
	Type      string          `gorm:"column:type;size:50;not null;index" json:"type"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
	OnViews   int             `gorm:"column:on_views;default:0" json:"on_views"`
	Date      time.Time       `gorm:"column:date;not null" json:"date"`
}

func (Transaction) TableName() string {
	return "transaction"
}
