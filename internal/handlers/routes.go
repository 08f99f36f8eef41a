package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"payments-service/internal/metrics"
)

type Handlers struct {
	Payments      *PaymentHandler
	Subscriptions *SubscriptionHandler
	Transactions  *TransactionHandler
	Wallets       *WalletHandler
}

// NewRouter returns an engine that takes the client address from forwarding
// headers only when the direct peer is in trustedProxies. nil trusts no one.
func NewRouter(trustedProxies []string) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	return r, nil
}

// Register mounts the payments API on r.
func (h Handlers) Register(r *gin.Engine) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome To Payments service"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")

	payments := api.Group("/payments")
	payments.POST("/notify", h.Payments.Notify)
	payments.POST("/checkout/tip", h.Payments.CheckoutTip)
	payments.POST("/checkout/subscription", h.Payments.CheckoutSubscription)
	payments.POST("/invoices/:id/cancel", h.Payments.CancelInvoice)
	payments.GET("/plans", h.Payments.ListPlans)
	payments.GET("/environment", h.Payments.GetEnvironment)
	payments.PUT("/environment", h.Payments.SetEnvironment)

	subs := api.Group("/subscriptions")
	subs.POST("/resync", h.Subscriptions.StartResyncSweep)
	subs.GET("/:token", h.Subscriptions.GetSubscription)
	subs.POST("/:token/cancel", h.Subscriptions.CancelSubscription)
	subs.POST("/:token/resync", h.Subscriptions.ResyncSubscription)

	users := api.Group("/users/:user_id")
	users.GET("/subscriptions", h.Subscriptions.ListSubscriptions)
	users.GET("/transactions", h.Transactions.GetTransactions)
	users.GET("/wallet", h.Wallets.GetBalance)

	api.POST("/wallets/debit", h.Transactions.DebitUser)
}
