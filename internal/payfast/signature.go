package payfast

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign returns the lowercase hex MD5 of the allow-list canonical string.
func Sign(fields []string, values map[string]string, passphrase string) string {
	return digest(Canonicalize(fields, values, passphrase))
}

// Verify recomputes the checkout signature over values and compares it with
// the "signature" entry of values.
func Verify(fields []string, values map[string]string, passphrase string) bool {
	return equalSignature(Sign(fields, values, passphrase), values[fieldSignature])
}

// SignForm signs an inbound notification in received order.
func SignForm(form Form, passphrase string) string {
	return digest(canonicalizeReceived(form, passphrase))
}

// VerifyForm checks the signature posted with an ITN.
func VerifyForm(form Form, passphrase string) bool {
	return equalSignature(SignForm(form, passphrase), form.Get(fieldSignature))
}

// SignHeaders signs subscription API headers. Keys, passphrase included, are
// sorted and every pair is kept even when its value is empty.
func SignHeaders(headers map[string]string, passphrase string) string {
	data := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		if k == fieldSignature {
			continue
		}
		data[k] = v
	}
	data[fieldPassphrase] = passphrase

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+EncodeValue(data[k]))
	}
	return digest(strings.Join(parts, "&"))
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func equalSignature(expected, supplied string) bool {
	supplied = strings.ToLower(strings.TrimSpace(supplied))
	if supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(supplied)) == 1
}
