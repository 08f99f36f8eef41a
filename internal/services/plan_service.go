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

const (
	PlanMonthly    = "monthly"
	PlanBiannually = "biannually"
	PlanYearly     = "yearly"
)

// Gateway frequency codes.
const (
	FrequencyMonthly    = 3
	FrequencyBiannually = 5
	FrequencyYearly     = 6
)

// DefaultYearlyBasePrice applies when the subscription product has no price.
var DefaultYearlyBasePrice = decimal.NewFromInt(708)

var (
	biannualDiscount = decimal.NewFromInt(10)
	yearlyDiscount   = decimal.NewFromInt(17)
	hundred          = decimal.NewFromInt(100)
)

type Plan struct {
	Name      string          `json:"name"`
	Cost      decimal.Decimal `json:"cost"`
	Frequency int             `json:"frequency"`
}

// PlanCatalog holds the subscription prices derived from the yearly base price.
type PlanCatalog struct {
	MonthlyCost             decimal.Decimal `json:"monthly_cost"`
	BiannuallyCost          decimal.Decimal `json:"biannually_cost"`
	YearlyCost              decimal.Decimal `json:"yearly_cost"`
	BiannualDiscount        decimal.Decimal `json:"biannual_discount"`
	BiannualDiscountSavings decimal.Decimal `json:"biannual_discount_savings"`
	YearlyDiscount          decimal.Decimal `json:"yearly_discount"`
	YearlyDiscountSavings   decimal.Decimal `json:"yearly_discount_savings"`
}

type PlanService struct {
	DB *gorm.DB
}

func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{DB: db}
}

func (s *PlanService) Catalog(ctx context.Context) (*PlanCatalog, error) {
	base := DefaultYearlyBasePrice
	var product models.Product
	err := s.DB.WithContext(ctx).First(&product, payfast.ProductSubscriptionID).Error
	switch {
	case err == nil && product.BasePrice.IsPositive():
		base = product.BasePrice
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("load subscription product: %w", err)
	}
	return NewPlanCatalog(base), nil
}

func NewPlanCatalog(yearlyBase decimal.Decimal) *PlanCatalog {
	biannualBase := yearlyBase.Div(decimal.NewFromInt(2))
	biannualSavings := biannualBase.Mul(biannualDiscount).Div(hundred)
	yearlySavings := yearlyBase.Mul(yearlyDiscount).Div(hundred)

	return &PlanCatalog{
		MonthlyCost:             yearlyBase.Div(decimal.NewFromInt(12)).Round(2),
		BiannuallyCost:          biannualBase.Sub(biannualSavings).Round(2),
		YearlyCost:              yearlyBase.Sub(yearlySavings).Round(2),
		BiannualDiscount:        biannualDiscount,
		BiannualDiscountSavings: biannualSavings.Round(2),
		YearlyDiscount:          yearlyDiscount,
		YearlyDiscountSavings:   yearlySavings.Round(2),
	}
}

// Plan returns the price and gateway frequency for name.
func (s *PlanService) Plan(ctx context.Context, name string) (*Plan, error) {
	catalog, err := s.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	switch name {
	case PlanMonthly:
		return &Plan{Name: name, Cost: catalog.MonthlyCost, Frequency: FrequencyMonthly}, nil
	case PlanBiannually:
		return &Plan{Name: name, Cost: catalog.BiannuallyCost, Frequency: FrequencyBiannually}, nil
	case PlanYearly:
		return &Plan{Name: name, Cost: catalog.YearlyCost, Frequency: FrequencyYearly}, nil
	}
	return nil, &payfast.ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown plan %q", name)}
}
