package payfast

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed or missing payment field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// GateResults records the outcome of each ITN verification gate.
type GateResults struct {
	Signature bool
	Origin    bool
	Amount    bool
	Server    bool
}

// Trusted reports whether the blocking gates passed. The origin gate only
// blocks when enforceOrigin is set.
func (g GateResults) Trusted(enforceOrigin bool) bool {
	if enforceOrigin && !g.Origin {
		return false
	}
	return g.Signature && g.Amount && g.Server
}

func (g GateResults) String() string {
	return fmt.Sprintf("signature=%t origin=%t amount=%t server=%t", g.Signature, g.Origin, g.Amount, g.Server)
}

// UntrustedNotificationError is returned when an ITN fails one or more
// required gates.
type UntrustedNotificationError struct {
	Gates GateResults
}

func (e *UntrustedNotificationError) Error() string {
	var failed []string
	if !e.Gates.Signature {
		failed = append(failed, "signature")
	}
	if !e.Gates.Origin {
		failed = append(failed, "origin")
	}
	if !e.Gates.Amount {
		failed = append(failed, "amount")
	}
	if !e.Gates.Server {
		failed = append(failed, "server")
	}
	return "untrusted notification: failed gates [" + strings.Join(failed, ",") + "]"
}

// NotFoundError reports a missing invoice, frequency mapping, subscription or
// credential row.
type NotFoundError struct {
	Resource string
	Key      any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.Key)
}

// UpstreamError wraps a failed or malformed gateway API call.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payfast %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payfast %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
