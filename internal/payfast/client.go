package payfast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const timestampLayout = "2006-01-02T15:04:05"

// RemoteSubscription is the gateway's view of a subscription.
type RemoteSubscription struct {
	Token          string
	Amount         decimal.Decimal
	Cycles         int
	CyclesComplete int
	Frequency      int
	RunDate        time.Time
	Status         int
	StatusReason   string
	StatusText     string
}

// Client talks to the gateway's validate and subscription APIs.
type Client struct {
	http *resty.Client
	Now  func() time.Time
}

func NewClient(httpClient *resty.Client) *Client {
	return &Client{http: httpClient, Now: time.Now}
}

// ValidateNotification posts the received ITN body back to the gateway and
// reports whether it answered VALID.
func (c *Client) ValidateNotification(ctx context.Context, env Environment, payload []byte) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(payload).
		Post(env.ValidateURL())
	if err != nil {
		return false, &UpstreamError{Op: "validate", Err: err}
	}
	if resp.IsError() {
		return false, &UpstreamError{Op: "validate", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return strings.TrimSpace(resp.String()) == "VALID", nil
}

// FetchSubscription reads the authoritative subscription state for token.
func (c *Client) FetchSubscription(ctx context.Context, env Environment, token string) (*RemoteSubscription, error) {
	resp, err := c.signedRequest(ctx, env).Get(env.SubscriptionURL(token, "fetch"))
	if err != nil {
		return nil, &UpstreamError{Op: "fetch", Err: err}
	}
	if resp.IsError() {
		return nil, &UpstreamError{Op: "fetch", StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var envelope struct {
		Data struct {
			Response *remoteSubscriptionPayload `json:"response"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, &UpstreamError{Op: "fetch", StatusCode: resp.StatusCode(), Body: resp.String(), Err: err}
	}
	if envelope.Data.Response == nil {
		return nil, &UpstreamError{Op: "fetch", StatusCode: resp.StatusCode(), Body: resp.String(), Err: fmt.Errorf("missing data.response")}
	}

	sub, err := envelope.Data.Response.decode()
	if err != nil {
		return nil, &UpstreamError{Op: "fetch", StatusCode: resp.StatusCode(), Body: resp.String(), Err: err}
	}
	if sub.Token == "" {
		sub.Token = token
	}
	return sub, nil
}

// CancelSubscription asks the gateway to cancel token.
func (c *Client) CancelSubscription(ctx context.Context, env Environment, token string) error {
	resp, err := c.signedRequest(ctx, env).Put(env.SubscriptionURL(token, "cancel"))
	if err != nil {
		return &UpstreamError{Op: "cancel", Err: err}
	}
	if resp.IsError() {
		return &UpstreamError{Op: "cancel", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	return nil
}

// SubscriptionHeaders returns the signed headers for a subscription API call
// made at t.
func SubscriptionHeaders(env Environment, t time.Time) map[string]string {
	headers := map[string]string{
		"merchant-id": env.Credentials.MerchantID,
		"version":     APIVersion,
		"timestamp":   t.Format(timestampLayout),
	}
	headers[fieldSignature] = SignHeaders(headers, env.Credentials.Passphrase)
	return headers
}

func (c *Client) signedRequest(ctx context.Context, env Environment) *resty.Request {
	return c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeaders(SubscriptionHeaders(env, c.Now()))
}

type remoteSubscriptionPayload struct {
	Amount         decimal.Decimal `json:"amount"`
	Cycles         int             `json:"cycles"`
	CyclesComplete int             `json:"cycles_complete"`
	Frequency      int             `json:"frequency"`
	RunDate        string          `json:"run_date"`
	Status         json.RawMessage `json:"status"`
	StatusReason   string          `json:"status_reason"`
	StatusText     string          `json:"status_text"`
	Token          string          `json:"token"`
}

var runDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func (p *remoteSubscriptionPayload) decode() (*RemoteSubscription, error) {
	runDate, err := parseRunDate(p.RunDate)
	if err != nil {
		return nil, err
	}
	return &RemoteSubscription{
		Token:          p.Token,
		Amount:         p.Amount,
		Cycles:         p.Cycles,
		CyclesComplete: p.CyclesComplete,
		Frequency:      p.Frequency,
		RunDate:        runDate,
		Status:         parseStatus(p.Status),
		StatusReason:   p.StatusReason,
		StatusText:     p.StatusText,
	}, nil
}

func parseRunDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range runDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid run_date %q", s)
}

// parseStatus maps a non-numeric status to 0.
func parseStatus(raw json.RawMessage) int {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	i, err := n.Int64()
	if err != nil {
		return 0
	}
	return int(i)
}
