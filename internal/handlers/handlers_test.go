package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payments-service/internal/database"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
	"payments-service/internal/services"
	"payments-service/pkg/common"
)

const passphrase = "secret pass"

type testServer struct {
	db            *gorm.DB
	router        *gin.Engine
	handlers      Handlers
	notifications *services.NotificationService
	cancelled     atomic.Bool
	author        models.User
	reader        models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ts := &testServer{}

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/eng/query/validate":
			_, _ = w.Write([]byte("VALID"))
		case strings.HasSuffix(r.URL.Path, "/cancel"):
			ts.cancelled.Store(true)
			_, _ = w.Write([]byte(`{"code":200,"status":"success"}`))
		case strings.HasSuffix(r.URL.Path, "/fetch"):
			status := models.SubscriptionStatusActive
			if ts.cancelled.Load() {
				status = models.SubscriptionStatusCancelled
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"code":200,"status":"success","data":{"response":{"amount":59.00,"cycles":0,"cycles_complete":1,"frequency":3,"run_date":"2030-02-01T00:00:00+02:00","status":%d,"status_text":"ACTIVE","token":"tok-1"}}}`, status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(gateway.Close)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db))
	require.NoError(t, db.Create(&models.PayfastIntegration{
		Environment: models.EnvironmentSandbox, MerchantID: "10000100", MerchantKey: "46f0cd694581a", Passphrase: passphrase,
	}).Error)

	ts.db = db
	ts.author = models.User{Name: "Author", Email: "author@mail.test"}
	ts.reader = models.User{Name: "Reader", Email: "reader@mail.test"}
	require.NoError(t, db.Create(&ts.author).Error)
	require.NoError(t, db.Create(&ts.reader).Error)
	require.NoError(t, db.Create(&models.User{Name: "Admin", Email: "admin@mail.test", Admin: true}).Error)

	log := zap.NewNop()
	endpoints := payfast.Endpoints{ProductionURL: gateway.URL, SandboxURL: gateway.URL, APIURL: gateway.URL}
	client := payfast.NewClient(common.NewHTTPClient(5 * time.Second))

	env := services.NewEnvironmentService(db, endpoints)
	invoices := services.NewInvoiceService(db)
	ledger := services.NewLedgerService(db, services.NewHelperService(db), log)
	subs := services.NewSubscriptionService(db, env, client, log)
	plans := services.NewPlanService(db)
	dispatcher := services.InlineSyncDispatcher{
		Subscriptions: subs,
		Resync:        services.NewResyncService(subs, nil, log),
	}
	ts.notifications = services.NewNotificationService(db, env, invoices, ledger, subs, client, dispatcher,
		services.NotificationOptions{OriginCheck: false}, log)
	checkout := services.NewCheckoutService(db, env, invoices, plans, "https://app.example.com", log)

	ts.handlers = Handlers{
		Payments:      NewPaymentHandler(ts.notifications, checkout, invoices, plans, env, log),
		Subscriptions: NewSubscriptionHandler(subs, dispatcher),
		Transactions:  NewTransactionHandler(ledger),
		Wallets:       NewWalletHandler(ledger, subs),
	}
	ts.router = ts.newRouter(t, nil)
	return ts
}

func (ts *testServer) newRouter(t *testing.T, trustedProxies []string) *gin.Engine {
	t.Helper()
	r, err := NewRouter(trustedProxies)
	require.NoError(t, err)
	ts.handlers.Register(r)
	return r
}

func (ts *testServer) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) postJSON(path string, v any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(v)
	return ts.do(http.MethodPost, path, bytes.NewReader(b), "application/json")
}

func (ts *testServer) notify(body string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, "/api/v1/payments/notify", strings.NewReader(body), "application/x-www-form-urlencoded")
}

func signedBody(pass string, pairs ...string) string {
	var form payfast.Form
	for i := 0; i+1 < len(pairs); i += 2 {
		form = append(form, payfast.Field{Key: pairs[i], Value: pairs[i+1]})
	}
	form = append(form, payfast.Field{Key: "signature", Value: payfast.SignForm(form, pass)})
	parts := make([]string, 0, len(form))
	for _, f := range form {
		parts = append(parts, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	return strings.Join(parts, "&")
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (ts *testServer) startTip(t *testing.T, amount string) uint {
	t.Helper()
	w := ts.postJSON("/api/v1/payments/checkout/tip", gin.H{
		"payer_id":  ts.reader.ID,
		"author_id": ts.author.ID,
		"amount":    amount,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data services.CheckoutResult `json:"data"`
	}
	decode(t, w, &resp)
	require.NotZero(t, resp.Data.InvoiceID)
	assert.Contains(t, resp.Data.Form, "payfastSubmit")
	return resp.Data.InvoiceID
}

func TestTipCheckoutAndNotification(t *testing.T) {
	ts := newTestServer(t)
	invoiceID := ts.startTip(t, "50")

	body := signedBody(passphrase,
		"m_payment_id", fmt.Sprint(invoiceID),
		"pf_payment_id", "1089250",
		"payment_status", "COMPLETE",
		"item_name", "Tip",
		"amount_gross", "50.00",
		"custom_int1", fmt.Sprint(ts.author.ID),
		"custom_int2", "1",
	)
	w := ts.notify(body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ack common.AckResponse
	decode(t, w, &ack)
	assert.True(t, ack.Received)
	assert.Equal(t, models.ItnOutcomeSettled, ack.Outcome)

	w = ts.notify(body)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &ack)
	assert.Equal(t, models.ItnOutcomeDuplicate, ack.Outcome)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/wallet", ts.author.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var wallet struct {
		Data struct {
			Balance decimal.Decimal `json:"balance"`
		} `json:"data"`
	}
	decode(t, w, &wallet)
	assert.True(t, decimal.NewFromInt(45).Equal(wallet.Data.Balance), wallet.Data.Balance.String())

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/transactions?limit=5", ts.author.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page common.PaginationResult
	decode(t, w, &page)
	assert.Equal(t, int64(1), page.Count)
	assert.Equal(t, 1, page.CurrentPage)
}

func TestNotificationErrors(t *testing.T) {
	ts := newTestServer(t)
	invoiceID := ts.startTip(t, "50")

	forged := fmt.Sprintf("m_payment_id=%d&amount_gross=50.00&custom_int1=%d&custom_int2=1&signature=deadbeef", invoiceID, ts.author.ID)
	w := ts.notify(forged)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unknown := signedBody(passphrase, "m_payment_id", "999", "amount_gross", "50.00", "custom_int2", "1", "custom_int1", "1")
	w = ts.notify(unknown)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.notify("m_payment_id=%zz")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var logs int64
	require.NoError(t, ts.db.Model(&models.ItnLog{}).Count(&logs).Error)
	assert.Equal(t, int64(3), logs)
}

func TestSubscriptionLifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/v1/payments/checkout/subscription", gin.H{"user_id": ts.reader.ID, "plan": "monthly"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data services.CheckoutResult `json:"data"`
	}
	decode(t, w, &resp)

	body := signedBody(passphrase,
		"m_payment_id", fmt.Sprint(resp.Data.InvoiceID),
		"payment_status", "COMPLETE",
		"amount_gross", "59.00",
		"custom_int2", "2",
		"token", "tok-1",
	)
	w = ts.notify(body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(http.MethodGet, "/api/v1/subscriptions/tok-1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var sub struct {
		Data models.Subscription `json:"data"`
	}
	decode(t, w, &sub)
	assert.Equal(t, ts.reader.ID, sub.Data.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Data.StatusID)
	assert.Equal(t, time.Date(2030, 1, 31, 22, 0, 0, 0, time.UTC), sub.Data.RunDate.UTC())

	w = ts.do(http.MethodPost, "/api/v1/subscriptions/tok-1/cancel", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &sub)
	assert.Equal(t, models.SubscriptionStatusCancelled, sub.Data.StatusID)

	w = ts.do(http.MethodGet, fmt.Sprintf("/api/v1/users/%d/subscriptions", ts.reader.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page common.PaginationResult
	decode(t, w, &page)
	assert.Equal(t, int64(1), page.Count)

	w = ts.do(http.MethodPost, "/api/v1/subscriptions/unknown/resync", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutValidation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.postJSON("/api/v1/payments/checkout/tip", gin.H{"author_id": ts.author.ID, "amount": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.postJSON("/api/v1/payments/checkout/tip", gin.H{"author_id": 9999, "amount": "5"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.postJSON("/api/v1/payments/checkout/subscription", gin.H{"user_id": ts.reader.ID, "plan": "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/payments/checkout/tip", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDebitAndBalance(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.db.Model(&models.User{}).Where("id = ?", ts.reader.ID).
		Update("amount", decimal.NewFromInt(20)).Error)

	w := ts.postJSON("/api/v1/wallets/debit", gin.H{"user_id": ts.reader.ID, "amount": "50"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.postJSON("/api/v1/wallets/debit", gin.H{"user_id": ts.reader.ID, "amount": "5"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			Balance decimal.Decimal `json:"balance"`
		} `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, decimal.NewFromInt(15).Equal(resp.Data.Balance))

	w = ts.postJSON("/api/v1/wallets/debit", gin.H{"user_id": 9999, "amount": "5"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodGet, "/api/v1/users/abc/wallet", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlansEnvironmentAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/payments/plans", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var plans struct {
		Data services.PlanCatalog `json:"data"`
	}
	decode(t, w, &plans)
	assert.Equal(t, "59", plans.Data.MonthlyCost.String())

	w = ts.do(http.MethodPut, "/api/v1/payments/environment", strings.NewReader(`{"sandbox":false}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = ts.do(http.MethodGet, "/api/v1/payments/environment", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sandbox":false`)

	w = ts.do(http.MethodPut, "/api/v1/payments/environment", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

type staticResolver map[string][]string

func (r staticResolver) LookupAddr(_ context.Context, addr string) ([]string, error) {
	if hosts, ok := r[addr]; ok {
		return hosts, nil
	}
	return nil, fmt.Errorf("no PTR record for %s", addr)
}

const payfastIP = "41.74.179.194"

func (ts *testServer) enforceOrigin() {
	ts.notifications.Options = services.NotificationOptions{
		OriginCheck:   true,
		EnforceOrigin: true,
		ValidHosts:    payfast.DefaultValidHosts,
	}
	ts.notifications.Resolver = staticResolver{payfastIP: {"www.payfast.co.za."}}
}

func (ts *testServer) notifyFrom(router *gin.Engine, remoteAddr, forwardedFor, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/notify", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) tipNotification(invoiceID uint) string {
	return signedBody(passphrase,
		"m_payment_id", fmt.Sprint(invoiceID),
		"payment_status", "COMPLETE",
		"amount_gross", "50.00",
		"custom_int1", fmt.Sprint(ts.author.ID),
		"custom_int2", "1",
	)
}

func TestNotifyIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	ts := newTestServer(t)
	ts.enforceOrigin()
	invoiceID := ts.startTip(t, "50")

	w := ts.notifyFrom(ts.router, "6.6.6.6:1234", payfastIP, ts.tipNotification(invoiceID))
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	var audit models.ItnLog
	require.NoError(t, ts.db.Last(&audit).Error)
	assert.Equal(t, "6.6.6.6", audit.ClientAddress)
	assert.False(t, audit.OriginOK)
	assert.Equal(t, models.ItnOutcomeUntrusted, audit.Outcome)

	var invoice models.Invoice
	require.NoError(t, ts.db.First(&invoice, invoiceID).Error)
	assert.Equal(t, models.InvoiceStatusUnpaid, invoice.Status)

	w = ts.notifyFrom(ts.router, payfastIP+":443", "", ts.tipNotification(invoiceID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), models.ItnOutcomeSettled)
}

func TestNotifyUsesForwardedForFromTrustedProxy(t *testing.T) {
	ts := newTestServer(t)
	ts.enforceOrigin()
	router := ts.newRouter(t, []string{"10.0.0.1"})
	invoiceID := ts.startTip(t, "50")

	w := ts.notifyFrom(router, "10.0.0.1:5000", payfastIP, ts.tipNotification(invoiceID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var audit models.ItnLog
	require.NoError(t, ts.db.Last(&audit).Error)
	assert.Equal(t, payfastIP, audit.ClientAddress)
	assert.True(t, audit.OriginOK)
}

func TestCancelInvoice(t *testing.T) {
	ts := newTestServer(t)
	invoiceID := ts.startTip(t, "50")
	path := fmt.Sprintf("/api/v1/payments/invoices/%d/cancel", invoiceID)

	w := ts.do(http.MethodPost, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data models.Invoice `json:"data"`
	}
	decode(t, w, &resp)
	assert.Equal(t, models.InvoiceStatusCancelled, resp.Data.Status)

	w = ts.do(http.MethodPost, path, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// A late payment for a cancelled invoice credits nobody.
	w = ts.notify(ts.tipNotification(invoiceID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), models.ItnOutcomeDuplicate)
	var author models.User
	require.NoError(t, ts.db.First(&author, ts.author.ID).Error)
	assert.True(t, author.Amount.IsZero(), author.Amount.String())

	w = ts.do(http.MethodPost, "/api/v1/payments/invoices/999/cancel", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(http.MethodPost, "/api/v1/payments/invoices/abc/cancel", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResyncSweepEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var monthly models.SubscriptionFrequency
	require.NoError(t, ts.db.Where("payfast_id = ?", 3).First(&monthly).Error)
	require.NoError(t, ts.db.Create(&models.Subscription{
		Token:       "tok-1",
		UserID:      ts.reader.ID,
		FrequencyID: monthly.ID,
		RunDate:     time.Date(2029, 1, 1, 0, 0, 0, 0, time.UTC),
		StatusID:    models.SubscriptionStatusNeedsResync,
		Amount:      decimal.NewFromInt(59),
	}).Error)

	w := ts.postJSON("/api/v1/subscriptions/resync", gin.H{"sweep": services.SweepNeedsResync})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var sub models.Subscription
	require.NoError(t, ts.db.Where("token = ?", "tok-1").First(&sub).Error)
	assert.Equal(t, models.SubscriptionStatusActive, sub.StatusID)

	w = ts.postJSON("/api/v1/subscriptions/resync", gin.H{"sweep": "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.postJSON("/api/v1/subscriptions/resync", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
