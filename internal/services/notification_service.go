package services

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"payments-service/internal/metrics"
	"payments-service/internal/models"
	"payments-service/internal/payfast"
)

// AmountTolerance is the largest accepted gap between the invoice total and
// the notified gross amount.
var AmountTolerance = decimal.RequireFromString("0.01")

// OriginResolver does reverse DNS lookups. *net.Resolver implements it.
type OriginResolver interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

type NotificationOptions struct {
	// OriginCheck enables the reverse DNS gate.
	OriginCheck bool
	// EnforceOrigin makes a failed origin gate block settlement.
	EnforceOrigin bool
	ValidHosts    []string
}

type NotificationService struct {
	DB            *gorm.DB
	Env           *EnvironmentService
	Invoices      *InvoiceService
	Ledger        *LedgerService
	Subscriptions *SubscriptionService
	Gateway       Gateway
	Dispatcher    SyncDispatcher
	Resolver      OriginResolver
	Options       NotificationOptions
	Log           *zap.Logger
}

func NewNotificationService(
	db *gorm.DB,
	env *EnvironmentService,
	invoices *InvoiceService,
	ledger *LedgerService,
	subscriptions *SubscriptionService,
	gateway Gateway,
	dispatcher SyncDispatcher,
	opts NotificationOptions,
	log *zap.Logger,
) *NotificationService {
	return &NotificationService{
		DB:            db,
		Env:           env,
		Invoices:      invoices,
		Ledger:        ledger,
		Subscriptions: subscriptions,
		Gateway:       gateway,
		Dispatcher:    dispatcher,
		Resolver:      net.DefaultResolver,
		Options:       opts,
		Log:           log.Named("payfast.itn"),
	}
}

// Notification is a raw ITN as received.
type Notification struct {
	Body          []byte
	ClientAddress string
}

// NotificationResult describes a notification that was handled without error.
type NotificationResult struct {
	InvoiceID uint
	Gates     payfast.GateResults
	Outcome   string
}

// Handle verifies an ITN and, when trusted, settles its invoice.
//
// Every gate runs and is logged regardless of the others. The notification is
// trusted when the signature, amount and server gates pass, and the origin
// gate too when EnforceOrigin is set. A subscription token in a correctly
// signed ITN is synced even when other gates fail.
func (s *NotificationService) Handle(ctx context.Context, n Notification) (*NotificationResult, error) {
	audit := &models.ItnLog{
		ClientAddress: n.ClientAddress,
		Payload:       string(n.Body),
	}
	result, err := s.handle(ctx, n, audit)
	s.finish(ctx, audit, result, err)
	return result, err
}

func (s *NotificationService) handle(ctx context.Context, n Notification, audit *models.ItnLog) (*NotificationResult, error) {
	form, err := payfast.ParseForm(n.Body)
	if err != nil {
		return nil, err
	}
	audit.PfPaymentID = form.Get("pf_payment_id")

	env, err := s.Env.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	audit.Environment = env.Name()

	log := s.Log.With(
		zap.String("m_payment_id", form.Get("m_payment_id")),
		zap.String("pf_payment_id", audit.PfPaymentID),
		zap.String("client_address", n.ClientAddress),
		zap.String("environment", env.Name()),
	)

	var gates payfast.GateResults

	gates.Signature = payfast.VerifyForm(form, env.Credentials.Passphrase)
	log.Info("itn gate", zap.String("gate", "signature"), zap.Bool("passed", gates.Signature))

	gates.Origin = s.checkOrigin(ctx, n.ClientAddress, log)
	log.Info("itn gate", zap.String("gate", "origin"), zap.Bool("passed", gates.Origin),
		zap.Bool("enforced", s.Options.EnforceOrigin))

	invoice, invoiceErr := s.loadInvoice(ctx, form)
	if invoice != nil {
		audit.InvoiceID = &invoice.ID
	}
	gross, grossErr := form.AmountGross()
	var total decimal.Decimal
	if invoiceErr == nil && grossErr == nil {
		total = Total(invoice)
		gates.Amount = total.Sub(gross).Abs().LessThanOrEqual(AmountTolerance)
	}
	log.Info("itn gate", zap.String("gate", "amount"), zap.Bool("passed", gates.Amount),
		zap.String("invoice_total", total.String()), zap.String("amount_gross", form.Get("amount_gross")))

	valid, err := s.Gateway.ValidateNotification(ctx, env, n.Body)
	if err != nil {
		log.Warn("itn round-trip validation failed", zap.Error(err))
	}
	gates.Server = valid
	log.Info("itn gate", zap.String("gate", "server"), zap.Bool("passed", gates.Server))

	trusted := gates.Trusted(s.Options.EnforceOrigin)
	s.recordGates(audit, gates)
	log.Info("itn verified",
		zap.Bool("signature", gates.Signature),
		zap.Bool("origin", gates.Origin),
		zap.Bool("amount", gates.Amount),
		zap.Bool("server", gates.Server),
		zap.Bool("trusted", trusted))

	if invoiceErr != nil {
		return nil, invoiceErr
	}
	result := &NotificationResult{InvoiceID: invoice.ID, Gates: gates}

	product, productErr := payfast.DecodeProduct(form)
	paymentStatus := form.Get("payment_status")
	complete := paymentStatus == "" || paymentStatus == "COMPLETE"

	// A settling subscription payment syncs inline below.
	_, isSubscription := product.(payfast.SubscriptionCredit)
	syncsInline := trusted && isSubscription && complete && invoice.Status.Settleable()

	token := strings.TrimSpace(form.Get("token"))
	if token != "" && invoice.UserID != nil && gates.Signature && !syncsInline {
		if err := s.Dispatcher.DispatchSync(ctx, env, token, *invoice.UserID); err != nil {
			log.Warn("subscription side-effect sync failed", zap.String("token", token), zap.Error(err))
		}
	}

	if !trusted {
		return nil, &payfast.UntrustedNotificationError{Gates: gates}
	}
	if grossErr != nil {
		return nil, grossErr
	}

	if !complete {
		log.Info("itn ignored", zap.String("payment_status", paymentStatus))
		result.Outcome = models.ItnOutcomeIgnored
		return result, nil
	}

	if !invoice.Status.Settleable() {
		log.Info("itn for settled invoice", zap.Int("status", int(invoice.Status)))
		result.Outcome = models.ItnOutcomeDuplicate
		return result, nil
	}

	if productErr != nil {
		return nil, productErr
	}

	if sub, ok := product.(payfast.SubscriptionCredit); ok {
		if invoice.UserID == nil {
			log.Warn("subscription payment without invoice owner", zap.String("token", sub.Token))
		} else if _, err := s.Subscriptions.SyncWith(ctx, env, sub.Token, *invoice.UserID); err != nil {
			return nil, err
		}
	}

	if _, err := s.Ledger.Settle(ctx, invoice.ID, product, gross); err != nil {
		if errors.Is(err, ErrInvoiceAlreadySettled) {
			result.Outcome = models.ItnOutcomeDuplicate
			return result, nil
		}
		return nil, err
	}

	result.Outcome = models.ItnOutcomeSettled
	return result, nil
}

func (s *NotificationService) loadInvoice(ctx context.Context, form payfast.Form) (*models.Invoice, error) {
	id, err := form.PaymentID()
	if err != nil {
		return nil, err
	}
	return s.Invoices.Get(ctx, id)
}

// checkOrigin reports whether addr reverse-resolves to a gateway host. With
// the check disabled it always passes.
func (s *NotificationService) checkOrigin(ctx context.Context, addr string, log *zap.Logger) bool {
	if !s.Options.OriginCheck {
		return true
	}
	if addr == "" || s.Resolver == nil {
		return false
	}
	hosts, err := s.Resolver.LookupAddr(ctx, addr)
	if err != nil {
		log.Warn("itn reverse lookup failed", zap.Error(err))
		return false
	}
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSuffix(host, "."))
		for _, valid := range s.Options.ValidHosts {
			if host == valid {
				return true
			}
		}
	}
	log.Info("itn origin not recognised", zap.Strings("hosts", hosts))
	return false
}

func (s *NotificationService) recordGates(audit *models.ItnLog, gates payfast.GateResults) {
	audit.SignatureOK = gates.Signature
	audit.OriginOK = gates.Origin
	audit.AmountOK = gates.Amount
	audit.ServerOK = gates.Server
	metrics.ObserveGate("signature", gates.Signature)
	metrics.ObserveGate("origin", gates.Origin)
	metrics.ObserveGate("amount", gates.Amount)
	metrics.ObserveGate("server", gates.Server)
}

// finish stores the audit row. A failure to store it is logged, never returned.
func (s *NotificationService) finish(ctx context.Context, audit *models.ItnLog, result *NotificationResult, err error) {
	switch {
	case err == nil:
		audit.Outcome = result.Outcome
	default:
		audit.Outcome = OutcomeOf(err)
		audit.Error = err.Error()
	}
	metrics.ItnOutcomes.WithLabelValues(audit.Outcome).Inc()

	if dbErr := s.DB.WithContext(context.WithoutCancel(ctx)).Create(audit).Error; dbErr != nil {
		s.Log.Error("failed to store itn log", zap.Error(dbErr))
	}
}

// OutcomeOf classifies a Handle error for the audit log.
func OutcomeOf(err error) string {
	var (
		untrusted *payfast.UntrustedNotificationError
		notFound  *payfast.NotFoundError
		invalid   *payfast.ValidationError
	)
	switch {
	case errors.As(err, &untrusted):
		return models.ItnOutcomeUntrusted
	case errors.As(err, &notFound):
		return models.ItnOutcomeNotFound
	case errors.As(err, &invalid):
		return models.ItnOutcomeInvalid
	default:
		return models.ItnOutcomeFailed
	}
}
