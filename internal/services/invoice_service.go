package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

type InvoiceService struct {
	DB *gorm.DB
}

func NewInvoiceService(db *gorm.DB) *InvoiceService {
	return &InvoiceService{DB: db}
}

// Get loads an invoice with its items.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*models.Invoice, error) {
	var invoice models.Invoice
	err := s.DB.WithContext(ctx).Preload("Items").First(&invoice, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &payfast.NotFoundError{Resource: "invoice", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice %d: %w", id, err)
	}
	return &invoice, nil
}

// Total sums the invoice's item costs.
func Total(invoice *models.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, item := range invoice.Items {
		total = total.Add(item.Cost)
	}
	return total
}

// Create stores a new Unpaid invoice with items.
func (s *InvoiceService) Create(ctx context.Context, userID *uint, items []models.InvoiceItem) (*models.Invoice, error) {
	if len(items) == 0 {
		return nil, &payfast.ValidationError{Field: "items", Reason: "an invoice needs at least one item"}
	}
	invoice := models.Invoice{
		UserID: userID,
		Status: models.InvoiceStatusUnpaid,
		Items:  items,
	}
	if err := s.DB.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}
	return &invoice, nil
}

// Cancel moves an unsettled invoice to Cancelled.
func (s *InvoiceService) Cancel(ctx context.Context, id uint) error {
	res := s.DB.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status_id IN ?", id, []models.InvoiceStatus{models.InvoiceStatusDraft, models.InvoiceStatusUnpaid}).
		Update("status_id", models.InvoiceStatusCancelled)
	if res.Error != nil {
		return fmt.Errorf("cancel invoice %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrInvoiceAlreadySettled
	}
	return nil
}
