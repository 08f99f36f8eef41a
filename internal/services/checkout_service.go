package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

// Buyer is the paying user's contact details sent to the gateway.
type Buyer struct {
	NameFirst string `json:"name_first"`
	NameLast  string `json:"name_last"`
	Email     string `json:"email_address"`
}

type TipRequest struct {
	PayerID  *uint           `json:"payer_id"`
	AuthorID uint            `json:"author_id" binding:"required"`
	Amount   decimal.Decimal `json:"amount"`
	Buyer    Buyer           `json:"buyer"`
}

type SubscriptionRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Plan   string `json:"plan" binding:"required"`
	Buyer  Buyer  `json:"buyer"`
}

type CheckoutResult struct {
	InvoiceID uint   `json:"invoice_id"`
	Action    string `json:"action"`
	Signature string `json:"signature"`
	Form      string `json:"form"`
}

// CheckoutService creates the invoice for a purchase and returns the signed
// form that sends the buyer to the gateway.
type CheckoutService struct {
	DB       *gorm.DB
	Env      *EnvironmentService
	Invoices *InvoiceService
	Plans    *PlanService
	AppURL   string
	Log      *zap.Logger
	Now      func() time.Time
}

func NewCheckoutService(db *gorm.DB, env *EnvironmentService, invoices *InvoiceService, plans *PlanService, appURL string, log *zap.Logger) *CheckoutService {
	return &CheckoutService{
		DB:       db,
		Env:      env,
		Invoices: invoices,
		Plans:    plans,
		AppURL:   appURL,
		Log:      log.Named("checkout"),
		Now:      time.Now,
	}
}

// StartTip records the tip at the cents the gateway will charge.
func (s *CheckoutService) StartTip(ctx context.Context, req TipRequest) (*CheckoutResult, error) {
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, &payfast.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if err := s.requireUser(ctx, req.AuthorID); err != nil {
		return nil, err
	}
	env, err := s.Env.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	invoice, err := s.Invoices.Create(ctx, req.PayerID, []models.InvoiceItem{{
		ProductID: payfast.ProductTipID,
		Name:      "Tip",
		Cost:      amount,
	}})
	if err != nil {
		return nil, err
	}

	return s.build(env, invoice, payfast.PaymentIntent{
		Amount:   amount.StringFixed(2),
		ItemName: "Tip",
		Custom: map[string]string{
			"custom_int1": strconv.FormatUint(uint64(req.AuthorID), 10),
			"custom_int2": strconv.Itoa(payfast.ProductTipID),
		},
	}, req.Buyer)
}

func (s *CheckoutService) StartSubscription(ctx context.Context, req SubscriptionRequest) (*CheckoutResult, error) {
	plan, err := s.Plans.Plan(ctx, req.Plan)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, req.UserID); err != nil {
		return nil, err
	}
	env, err := s.Env.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	userID := req.UserID
	itemName := fmt.Sprintf("Subscription (%s)", plan.Name)
	invoice, err := s.Invoices.Create(ctx, &userID, []models.InvoiceItem{{
		ProductID: payfast.ProductSubscriptionID,
		Name:      itemName,
		Cost:      plan.Cost,
	}})
	if err != nil {
		return nil, err
	}

	return s.build(env, invoice, payfast.PaymentIntent{
		Amount:   plan.Cost.String(),
		ItemName: itemName,
		Custom: map[string]string{
			"custom_int2": strconv.Itoa(payfast.ProductSubscriptionID),
		},
		Subscription: &payfast.Recurring{
			BillingDate:     s.Now(),
			RecurringAmount: plan.Cost,
			Frequency:       plan.Frequency,
			Cycles:          0,
		},
	}, req.Buyer)
}

func (s *CheckoutService) build(env payfast.Environment, invoice *models.Invoice, intent payfast.PaymentIntent, buyer Buyer) (*CheckoutResult, error) {
	intent.PaymentID = strconv.FormatUint(uint64(invoice.ID), 10)
	intent.ReturnURL = s.AppURL + "/payments/success"
	intent.CancelURL = s.AppURL + "/payments/cancel"
	intent.NotifyURL = s.AppURL + "/api/v1/payments/notify"
	intent.NameFirst = buyer.NameFirst
	intent.NameLast = buyer.NameLast
	intent.Email = buyer.Email

	checkout, err := payfast.BuildCheckout(env, intent)
	if err != nil {
		return nil, err
	}
	form, err := checkout.HTML()
	if err != nil {
		return nil, err
	}

	s.Log.Info("checkout created",
		zap.Uint("invoice_id", invoice.ID),
		zap.String("item", intent.ItemName),
		zap.String("amount", intent.Amount),
		zap.String("environment", env.Name()))
	return &CheckoutResult{
		InvoiceID: invoice.ID,
		Action:    checkout.Action,
		Signature: checkout.Signature,
		Form:      form,
	}, nil
}

func (s *CheckoutService) requireUser(ctx context.Context, id uint) error {
	var user models.User
	err := s.DB.WithContext(ctx).Select("id").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &payfast.NotFoundError{Resource: "user", Key: id}
	}
	return err
}
