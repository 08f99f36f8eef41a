package models

import "github.com/shopspring/decimal"

// User is the wallet-bearing account. Amount is the wallet balance and is only
// changed by atomic increments paired with a Transaction.
type User struct {
	ID     uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name   string          `gorm:"column:name;size:255" json:"name"`
	Email  string          `gorm:"column:email;size:255;uniqueIndex" json:"email"`
	Admin  bool            `gorm:"column:admin;default:false;index" json:"admin"`
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null;default:0" json:"amount"`
}

func (User) TableName() string {
	return "users"
}
