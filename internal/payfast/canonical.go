package payfast

import (
	"net/url"
	"strings"
)

// CheckoutFields is the order in which the gateway signs checkout
// parameters. Reordering it breaks every outbound signature.
var CheckoutFields = []string{
	"merchant_id", "merchant_key", "return_url", "cancel_url", "notify_url", "notify_method",
	"name_first", "name_last", "email_address", "cell_number", "m_payment_id", "amount", "item_name",
	"item_description", "custom_int1", "custom_int2", "custom_int3", "custom_int4", "custom_int5",
	"custom_str1", "custom_str2", "custom_str3", "custom_str4", "custom_str5", "email_confirmation",
	"confirmation_address", "currency", "payment_method", "subscription_type",
	"billing_date", "recurring_amount", "frequency", "cycles", "subscription_notify_email",
	"subscription_notify_webhook", "subscription_notify_buyer",
}

const (
	fieldSignature  = "signature"
	fieldPassphrase = "passphrase"
)

// Field is a single key/value pair of a form.
type Field struct {
	Key   string
	Value string
}

// Form is an ordered list of form fields as received on the wire.
type Form []Field

// ParseForm decodes an application/x-www-form-urlencoded body keeping the
// order in which the fields were sent.
func ParseForm(body []byte) (Form, error) {
	var form Form
	for _, pair := range strings.Split(string(body), "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, &ValidationError{Field: "body", Reason: err.Error()}
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, &ValidationError{Field: key, Reason: err.Error()}
		}
		form = append(form, Field{Key: key, Value: value})
	}
	return form, nil
}

// Get returns the first value for key, or "".
func (f Form) Get(key string) string {
	for _, field := range f {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

// Values returns the form as a map. Later duplicates win.
func (f Form) Values() map[string]string {
	values := make(map[string]string, len(f))
	for _, field := range f {
		values[field.Key] = field.Value
	}
	return values
}

// Canonicalize renders values in allow-list order as the gateway's signing
// string. Missing and empty fields are skipped, as is any "signature" field. A
// whitespace-only value is kept and signs as "key=".
func Canonicalize(fields []string, values map[string]string, passphrase string) string {
	parts := make([]string, 0, len(fields)+1)
	for _, key := range fields {
		if key == fieldSignature || key == fieldPassphrase {
			continue
		}
		value, ok := values[key]
		if !ok || value == "" {
			continue
		}
		parts = append(parts, key+"="+EncodeValue(value))
	}
	return withPassphrase(parts, passphrase)
}

// canonicalizeReceived renders an inbound form in the order it was posted.
// Empty values are kept because the gateway signs them.
func canonicalizeReceived(form Form, passphrase string) string {
	parts := make([]string, 0, len(form)+1)
	for _, field := range form {
		if field.Key == fieldSignature {
			continue
		}
		parts = append(parts, field.Key+"="+EncodeValue(field.Value))
	}
	return withPassphrase(parts, passphrase)
}

func withPassphrase(parts []string, passphrase string) string {
	if strings.TrimSpace(passphrase) != "" {
		parts = append(parts, fieldPassphrase+"="+EncodeValue(passphrase))
	}
	return strings.Join(parts, "&")
}

// EncodeValue trims v, percent-encodes it the way JavaScript's
// encodeURIComponent does and then turns %20 into +.
func EncodeValue(v string) string {
	return strings.ReplaceAll(encodeComponent(strings.TrimSpace(v)), "%20", "+")
}

const upperHex = "0123456789ABCDEF"

func encodeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperHex[c>>4])
		b.WriteByte(upperHex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
