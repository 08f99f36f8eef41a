package payfast

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	ProductTipID          = 1
	ProductSubscriptionID = 2
)

// Product is what an ITN paid for. It is decoded once from the custom fields
// and is either a Tip or a SubscriptionCredit.
type Product interface {
	ProductID() int
	isProduct()
}

// Tip credits an author.
type Tip struct {
	AuthorID uint
}

func (Tip) ProductID() int { return ProductTipID }
func (Tip) isProduct()     {}

// SubscriptionCredit pays for a subscription identified by Token.
type SubscriptionCredit struct {
	Token string
}

func (SubscriptionCredit) ProductID() int { return ProductSubscriptionID }
func (SubscriptionCredit) isProduct()     {}

// DecodeProduct reads custom_int2 (and custom_int1 or token) from an ITN.
func DecodeProduct(form Form) (Product, error) {
	raw := strings.TrimSpace(form.Get("custom_int2"))
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &ValidationError{Field: "custom_int2", Reason: "not a product id"}
	}

	switch id {
	case ProductTipID:
		author, err := strconv.ParseUint(strings.TrimSpace(form.Get("custom_int1")), 10, 64)
		if err != nil || author == 0 {
			return nil, &ValidationError{Field: "custom_int1", Reason: "not an author id"}
		}
		return Tip{AuthorID: uint(author)}, nil
	case ProductSubscriptionID:
		token := strings.TrimSpace(form.Get("token"))
		if token == "" {
			return nil, &ValidationError{Field: "token", Reason: "required for subscription payments"}
		}
		return SubscriptionCredit{Token: token}, nil
	default:
		return nil, &ValidationError{Field: "custom_int2", Reason: "unknown product " + raw}
	}
}

// PaymentID parses m_payment_id.
func (f Form) PaymentID() (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(f.Get("m_payment_id")), 10, 64)
	if err != nil {
		return 0, &ValidationError{Field: "m_payment_id", Reason: "not an invoice id"}
	}
	return uint(id), nil
}

// AmountGross parses amount_gross.
func (f Form) AmountGross() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(f.Get("amount_gross")))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount_gross", Reason: "not a number"}
	}
	return amount, nil
}
