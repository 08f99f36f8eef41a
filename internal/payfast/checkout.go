package payfast

import (
	"bytes"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Recurring turns a checkout into a subscription enrollment.
type Recurring struct {
	BillingDate     time.Time
	RecurringAmount decimal.Decimal
	Frequency       int
	Cycles          int
}

// PaymentIntent describes what the buyer is paying for.
type PaymentIntent struct {
	Amount          string
	ItemName        string
	ItemDescription string
	ReturnURL       string
	CancelURL       string
	NotifyURL       string
	NameFirst       string
	NameLast        string
	Email           string
	CellNumber      string
	PaymentID       string
	// Custom holds custom_int1..5 and custom_str1..5.
	Custom       map[string]string
	Subscription *Recurring
}

// Checkout is a signed request ready to be posted to the gateway.
type Checkout struct {
	Action    string
	Fields    Form
	Signature string
}

// BuildCheckout validates intent, signs it with env's credentials and returns
// the form to post to env's process endpoint.
func BuildCheckout(env Environment, intent PaymentIntent) (*Checkout, error) {
	if strings.TrimSpace(intent.Amount) == "" {
		return nil, &ValidationError{Field: "amount", Reason: "required"}
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(intent.Amount))
	if err != nil {
		return nil, &ValidationError{Field: "amount", Reason: "not a number"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if strings.TrimSpace(intent.ItemName) == "" {
		return nil, &ValidationError{Field: "item_name", Reason: "required"}
	}

	values := map[string]string{
		"merchant_id":      env.Credentials.MerchantID,
		"merchant_key":     env.Credentials.MerchantKey,
		"return_url":       intent.ReturnURL,
		"cancel_url":       intent.CancelURL,
		"notify_url":       intent.NotifyURL,
		"name_first":       intent.NameFirst,
		"name_last":        intent.NameLast,
		"email_address":    intent.Email,
		"cell_number":      intent.CellNumber,
		"m_payment_id":     intent.PaymentID,
		"amount":           amount.StringFixed(2),
		"item_name":        intent.ItemName,
		"item_description": intent.ItemDescription,
	}
	for k, v := range intent.Custom {
		if !strings.HasPrefix(k, "custom_") {
			return nil, &ValidationError{Field: k, Reason: "not a custom field"}
		}
		values[k] = v
	}
	if s := intent.Subscription; s != nil {
		values["subscription_type"] = "1"
		values["billing_date"] = s.BillingDate.Format(time.DateOnly)
		values["recurring_amount"] = s.RecurringAmount.StringFixed(2)
		values["frequency"] = strconv.Itoa(s.Frequency)
		values["cycles"] = strconv.Itoa(s.Cycles)
	}

	var fields Form
	for _, key := range CheckoutFields {
		if v, ok := values[key]; ok && v != "" {
			fields = append(fields, Field{Key: key, Value: v})
		}
	}
	signature := Sign(CheckoutFields, values, env.Credentials.Passphrase)

	return &Checkout{
		Action:    env.ProcessURL(),
		Fields:    fields,
		Signature: signature,
	}, nil
}

var checkoutTemplate = template.Must(template.New("checkout").Parse(
	`<form id="payfastSubmit" action="{{.Action}}" method="post">` +
		`{{range .Fields}}<input name="{{.Key}}" type="hidden" value="{{.Value}}" />{{end}}` +
		`<input name="signature" type="hidden" value="{{.Signature}}" />` +
		`</form>` +
		`<script>document.getElementById("payfastSubmit").submit();</script>`))

// HTML renders the checkout as a self-submitting form.
func (c *Checkout) HTML() (string, error) {
	var buf bytes.Buffer
	if err := checkoutTemplate.Execute(&buf, c); err != nil {
		return "", err
	}
	return buf.String(), nil
}
