package models

import (
	"time"
)

const (
	ItnOutcomeSettled   = "settled"
	ItnOutcomeDuplicate = "duplicate"
	ItnOutcomeUntrusted = "untrusted"
	ItnOutcomeNotFound  = "not_found"
	ItnOutcomeInvalid   = "invalid"
	ItnOutcomeFailed    = "failed"
	ItnOutcomeIgnored   = "ignored"
)

// ItnLog is the audit trail of every received payment notification.
type ItnLog struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	InvoiceID     *uint     `gorm:"column:invoice_id;index" json:"invoice_id"`
	PfPaymentID   string    `gorm:"column:pf_payment_id;size:100;index" json:"pf_payment_id"`
	Environment   string    `gorm:"column:environment;size:20" json:"environment"`
	ClientAddress string    `gorm:"column:client_address;size:64" json:"client_address"`
	Payload       string    `gorm:"column:payload;type:text" json:"payload"`
	SignatureOK   bool      `gorm:"column:signature_ok" json:"signature_ok"`
	OriginOK      bool      `gorm:"column:origin_ok" json:"origin_ok"`
	AmountOK      bool      `gorm:"column:amount_ok" json:"amount_ok"`
	ServerOK      bool      `gorm:"column:server_ok" json:"server_ok"`
	Outcome       string    `gorm:"column:outcome;size:32;index" json:"outcome"`
	Error         string    `gorm:"column:error;type:text" json:"error"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ItnLog) TableName() string {
	return "payments_itn_log"
}
