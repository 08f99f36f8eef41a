package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"payments-service/internal/database"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

const (
	sandboxPassphrase    = "secret pass"
	productionPassphrase = "prod pass"
	payfastAddr          = "197.97.145.144"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) ValidateNotification(ctx context.Context, env payfast.Environment, payload []byte) (bool, error) {
	args := m.Called(ctx, env, payload)
	return args.Bool(0), args.Error(1)
}

func (m *mockGateway) FetchSubscription(ctx context.Context, env payfast.Environment, token string) (*payfast.RemoteSubscription, error) {
	args := m.Called(ctx, env, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payfast.RemoteSubscription), args.Error(1)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, env payfast.Environment, token string) error {
	return m.Called(ctx, env, token).Error(0)
}

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) LookupAddr(ctx context.Context, addr string) ([]string, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Seed(db))

	require.NoError(t, db.Create(&[]models.PayfastIntegration{
		{Environment: models.EnvironmentSandbox, MerchantID: "10000100", MerchantKey: "46f0cd694581a", Passphrase: sandboxPassphrase},
		{Environment: models.EnvironmentProduction, MerchantID: "20000200", MerchantKey: "prodkey", Passphrase: productionPassphrase},
	}).Error)
	return db
}

type fixture struct {
	db            *gorm.DB
	gateway       *mockGateway
	resolver      *mockResolver
	env           *EnvironmentService
	invoices      *InvoiceService
	ledger        *LedgerService
	subscriptions *SubscriptionService
	notifications *NotificationService
	author        models.User
	reader        models.User
	admins        []models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop()

	f := &fixture{
		db:       db,
		gateway:  new(mockGateway),
		resolver: new(mockResolver),
		author:   models.User{Name: "Author", Email: "author@mail.test"},
		reader:   models.User{Name: "Reader", Email: "reader@mail.test"},
		admins: []models.User{
			{Name: "Admin One", Email: "admin1@mail.test", Admin: true},
			{Name: "Admin Two", Email: "admin2@mail.test", Admin: true},
		},
	}
	require.NoError(t, db.Create(&f.author).Error)
	require.NoError(t, db.Create(&f.reader).Error)
	require.NoError(t, db.Create(&f.admins).Error)

	f.env = NewEnvironmentService(db, payfast.DefaultEndpoints())
	f.invoices = NewInvoiceService(db)
	f.ledger = NewLedgerService(db, NewHelperService(db), log)
	f.subscriptions = NewSubscriptionService(db, f.env, f.gateway, log)
	f.notifications = NewNotificationService(db, f.env, f.invoices, f.ledger, f.subscriptions, f.gateway,
		InlineSyncDispatcher{Subscriptions: f.subscriptions},
		NotificationOptions{OriginCheck: true, ValidHosts: payfast.DefaultValidHosts}, log)
	f.notifications.Resolver = f.resolver

	f.resolver.On("LookupAddr", mock.Anything, payfastAddr).Return([]string{"w1w.payfast.co.za."}, nil).Maybe()
	return f
}

// createInvoice stores an Unpaid invoice with one item per cost.
func (f *fixture) createInvoice(t *testing.T, id uint, owner *uint, costs ...string) models.Invoice {
	t.Helper()
	invoice := models.Invoice{ID: id, UserID: owner, Status: models.InvoiceStatusUnpaid}
	for _, c := range costs {
		invoice.Items = append(invoice.Items, models.InvoiceItem{ProductID: 1, Name: "item", Cost: decimal.RequireFromString(c)})
	}
	require.NoError(t, f.db.Create(&invoice).Error)
	return invoice
}

func (f *fixture) wallet(t *testing.T, id uint) decimal.Decimal {
	t.Helper()
	var u models.User
	require.NoError(t, f.db.First(&u, id).Error)
	return u.Amount
}

func (f *fixture) countTransactions(t *testing.T, trxType string) int64 {
	t.Helper()
	var n int64
	q := f.db.Model(&models.Transaction{})
	if trxType != "" {
		q = q.Where("type = ?", trxType)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func (f *fixture) invoiceStatus(t *testing.T, id uint) models.InvoiceStatus {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, f.db.First(&inv, id).Error)
	return inv.Status
}

// signedITN encodes fields as a form body signed with passphrase.
func signedITN(passphrase string, fields ...payfast.Field) []byte {
	form := payfast.Form(fields)
	form = append(form, payfast.Field{Key: "signature", Value: payfast.SignForm(form, passphrase)})
	return encodeForm(form)
}

func encodeForm(form payfast.Form) []byte {
	parts := make([]string, 0, len(form))
	for _, f := range form {
		parts = append(parts, url.QueryEscape(f.Key)+"="+url.QueryEscape(f.Value))
	}
	return []byte(strings.Join(parts, "&"))
}

func tipFields(invoiceID uint, gross string, authorID uint) []payfast.Field {
	return []payfast.Field{
		{Key: "m_payment_id", Value: fmt.Sprint(invoiceID)},
		{Key: "pf_payment_id", Value: "1089250"},
		{Key: "payment_status", Value: "COMPLETE"},
		{Key: "item_name", Value: "Tip"},
		{Key: "item_description", Value: ""},
		{Key: "amount_gross", Value: gross},
		{Key: "amount_fee", Value: "-1.15"},
		{Key: "amount_net", Value: "48.85"},
		{Key: "custom_int1", Value: fmt.Sprint(authorID)},
		{Key: "custom_int2", Value: "1"},
		{Key: "name_first", Value: "Test"},
		{Key: "email_address", Value: "reader@mail.test"},
		{Key: "merchant_id", Value: "10000100"},
	}
}

func remoteSubscription(token string, status int, runDate time.Time) *payfast.RemoteSubscription {
	return &payfast.RemoteSubscription{
		Token:          token,
		Amount:         decimal.RequireFromString("59.00"),
		Cycles:         0,
		CyclesComplete: 2,
		Frequency:      FrequencyMonthly,
		RunDate:        runDate,
		Status:         status,
		StatusText:     "ACTIVE",
	}
}

func uintPtr(v uint) *uint { return &v }
