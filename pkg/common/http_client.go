package common

import (
	"time"

	"github.com/go-resty/resty/v2"
)

const userAgent = "payments-service/1.0"

// NewHTTPClient returns a resty client for outbound gateway calls. Every call
// is bounded by timeout and never retried here; failed syncs are picked up by
// the next resync sweep.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", userAgent)
}
