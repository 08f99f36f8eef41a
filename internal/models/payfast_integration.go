package models

import "time"

const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// PayfastIntegration holds the merchant credentials for one environment.
type PayfastIntegration struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Environment string    `gorm:"column:environment;size:20;not null;uniqueIndex" json:"environment"`
	MerchantID  string    `gorm:"column:merchant_id;size:150;not null" json:"merchant_id"`
	MerchantKey string    `gorm:"column:merchant_key;size:150;not null" json:"merchant_key"`
	Passphrase  string    `gorm:"column:passphrase;size:255" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (PayfastIntegration) TableName() string {
	return "payments_payfast_integration"
}

// GlobalSettings is a single row selecting the active environment.
type GlobalSettings struct {
	ID             uint `gorm:"primaryKey;autoIncrement" json:"id"`
	SandboxEnabled bool `gorm:"column:sandbox_enabled;not null" json:"sandbox_enabled"`
}

func (GlobalSettings) TableName() string {
	return "payments_global_settings"
}
