package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"payments-service/internal/metrics"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
	"payments-service/pkg/common"
)

type HelperService struct {
	DB  *gorm.DB
	Now func() time.Time
}

func NewHelperService(db *gorm.DB) *HelperService {
	return &HelperService{DB: db, Now: time.Now}
}

type TransactionData struct {
	UserID    uint
	InvoiceID *uint
	Type      string
	// Amount is signed: credits are positive, debits negative.
	Amount decimal.Decimal
}

// SaveTransaction writes the ledger entry for data and applies the same amount
// to the user's wallet as an atomic increment. It must run inside tx so the
// pair commits together. Debits never take a wallet below zero.
func (s *HelperService) SaveTransaction(tx *gorm.DB, data TransactionData) (*models.Transaction, error) {
	entry := models.Transaction{
		UserID:    data.UserID,
		InvoiceID: data.InvoiceID,
		Reference: common.NewReference(referencePrefix(data.Type)),
		Type:      data.Type,
		Amount:    data.Amount,
		Date:      s.Now().UTC(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("create %s transaction: %w", data.Type, err)
	}

	q := tx.Model(&models.User{}).Where("id = ?", data.UserID)
	if data.Amount.IsNegative() {
		q = q.Where("amount >= CAST(? AS DECIMAL(20,4))", data.Amount.Neg().String())
	}
	res := q.UpdateColumn("amount", gorm.Expr("amount + CAST(? AS DECIMAL(20,4))", data.Amount.String()))
	if res.Error != nil {
		return nil, fmt.Errorf("update wallet of user %d: %w", data.UserID, res.Error)
	}
	if res.RowsAffected == 0 && !data.Amount.IsZero() {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", data.UserID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 && data.Amount.IsNegative() {
			return nil, ErrInsufficientFunds
		}
		return nil, &payfast.NotFoundError{Resource: "user", Key: data.UserID}
	}

	metrics.LedgerCredits.WithLabelValues(data.Type).Inc()
	return &entry, nil
}

func referencePrefix(trxType string) string {
	switch trxType {
	case models.TransactionTypeTip:
		return "TIP"
	case models.TransactionTypePlatformTip:
		return "PTIP"
	case models.TransactionTypeSubscriptionCredit:
		return "SUB"
	case models.TransactionTypeDebit:
		return "DEB"
	}
	return strings.ToUpper(trxType)
}
