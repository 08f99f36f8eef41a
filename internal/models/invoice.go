package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus int

const (
	InvoiceStatusDraft     InvoiceStatus = 1
	InvoiceStatusUnpaid    InvoiceStatus = 2
	InvoiceStatusPaid      InvoiceStatus = 3
	InvoiceStatusCancelled InvoiceStatus = 4
)

// Settleable reports whether an invoice in status s may still move to Paid.
func (s InvoiceStatus) Settleable() bool {
	return s == InvoiceStatusDraft || s == InvoiceStatusUnpaid
}

// Invoice totals are derived from its items and never stored.
type Invoice struct {
	ID        uint          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    *uint         `gorm:"column:user_id;index" json:"user_id"`
	Status    InvoiceStatus `gorm:"column:status_id;not null;default:1;index" json:"status_id"`
	Items     []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
	CreatedAt time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Invoice) TableName() string {
	return "payments_invoice"
}

type InvoiceItem struct {
	ID        uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID uint            `gorm:"column:invoice_id;not null;index" json:"invoice_id"`
	ProductID uint            `gorm:"column:product_id;not null" json:"product_id"`
	Name      string          `gorm:"column:name;size:255" json:"name"`
	Cost      decimal.Decimal `gorm:"column:cost;type:decimal(20,4);not null" json:"cost"`
}

func (InvoiceItem) TableName() string {
	return "payments_invoice_item"
}

// Product is a purchasable item. Product 2's BasePrice is the yearly
// subscription price.
type Product struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Name      string          `gorm:"column:name;size:100;not null" json:"name"`
	BasePrice decimal.Decimal `gorm:"column:base_price;type:decimal(20,4);not null;default:0" json:"base_price"`
}

func (Product) TableName() string {
	return "payments_product"
}
