package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payments-service/internal/models"
	"payments-service/internal/payfast"
	"payments-service/pkg/common"
)

// ErrInvoiceAlreadySettled means the invoice left Draft/Unpaid before this
// settlement could claim it.
var ErrInvoiceAlreadySettled = errors.New("invoice already settled")

// ErrInsufficientFunds is returned by Debit when the wallet cannot cover it.
var ErrInsufficientFunds = errors.New("insufficient wallet balance")

// AuthorShare is the fraction of a tip credited to the author. Admin wallets
// are credited the full gross on top of it.
var AuthorShare = decimal.RequireFromString("0.9")

type LedgerService struct {
	DB     *gorm.DB
	Helper *HelperService
	Log    *zap.Logger
}

func NewLedgerService(db *gorm.DB, helper *HelperService, log *zap.Logger) *LedgerService {
	return &LedgerService{DB: db, Helper: helper, Log: log.Named("ledger")}
}

// Settlement lists what a settled invoice wrote to the ledger.
type Settlement struct {
	InvoiceID    uint
	Product      payfast.Product
	Gross        decimal.Decimal
	Transactions []models.Transaction
}

// Settle marks the invoice Paid and applies the product's wallet credits in
// one database transaction. A second call for the same invoice returns
// ErrInvoiceAlreadySettled and writes nothing.
func (s *LedgerService) Settle(ctx context.Context, invoiceID uint, product payfast.Product, gross decimal.Decimal) (*Settlement, error) {
	settlement := &Settlement{InvoiceID: invoiceID, Product: product, Gross: gross}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND status_id IN ?", invoiceID, []models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusUnpaid}).
			Update("status_id", models.InvoiceStatusPaid)
		if res.Error != nil {
			return fmt.Errorf("mark invoice %d paid: %w", invoiceID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvoiceAlreadySettled
		}

		adminType := models.TransactionTypeSubscriptionCredit
		switch p := product.(type) {
		case payfast.Tip:
			entry, err := s.Helper.SaveTransaction(tx, TransactionData{
				UserID:    p.AuthorID,
				InvoiceID: &invoiceID,
				Type:      models.TransactionTypeTip,
				Amount:    gross.Mul(AuthorShare),
			})
			if err != nil {
				return err
			}
			settlement.Transactions = append(settlement.Transactions, *entry)
			adminType = models.TransactionTypePlatformTip
		case payfast.SubscriptionCredit:
		default:
			return fmt.Errorf("unsupported product %T", product)
		}

		var adminIDs []uint
		if err := tx.Model(&models.User{}).Where("admin = ?", true).Order("id").Pluck("id", &adminIDs).Error; err != nil {
			return fmt.Errorf("list admins: %w", err)
		}
		for _, id := range adminIDs {
			entry, err := s.Helper.SaveTransaction(tx, TransactionData{
				UserID:    id,
				InvoiceID: &invoiceID,
				Type:      adminType,
				Amount:    gross,
			})
			if err != nil {
				return err
			}
			settlement.Transactions = append(settlement.Transactions, *entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("invoice settled",
		zap.Uint("invoice_id", invoiceID),
		zap.Int("product_id", product.ProductID()),
		zap.String("gross", gross.String()),
		zap.Int("entries", len(settlement.Transactions)))
	return settlement, nil
}

// Debit takes amount out of a user's wallet, failing without side effects
// when the balance is too low.
func (s *LedgerService) Debit(ctx context.Context, userID uint, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, &payfast.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var entry *models.Transaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.Helper.SaveTransaction(tx, TransactionData{
			UserID: userID,
			Type:   models.TransactionTypeDebit,
			Amount: amount.Neg(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("wallet debited", zap.Uint("user_id", userID), zap.String("amount", amount.String()))
	return entry, nil
}

// ListTransactions pages through a user's ledger entries, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, userID uint, page common.Page) ([]models.Transaction, int64, error) {
	var (
		entries []models.Transaction
		total   int64
	)
	q := s.DB.WithContext(ctx).Model(&models.Transaction{}).Where("user_id = ?", userID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := q.Order("date DESC, id DESC").Offset(page.Offset()).Limit(page.Limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Balance returns a user's wallet balance.
func (s *LedgerService) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Select("id", "amount").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, &payfast.NotFoundError{Resource: "user", Key: userID}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load wallet of user %d: %w", userID, err)
	}
	return user.Amount, nil
}
