package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payments-service/internal/services"
	"payments-service/pkg/common"
)

type WalletHandler struct {
	Ledger        *services.LedgerService
	Subscriptions *services.SubscriptionService
}

func NewWalletHandler(ledger *services.LedgerService, subscriptions *services.SubscriptionService) *WalletHandler {
	return &WalletHandler{Ledger: ledger, Subscriptions: subscriptions}
}

// GetBalance returns the wallet balance with the user's subscription flags.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	balance, err := h.Ledger.Balance(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	valid, err := h.Subscriptions.HasValidSubscription(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	active, err := h.Subscriptions.HasActiveSubscription(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"user_id":             userID,
		"balance":             balance,
		"valid_subscription":  valid,
		"active_subscription": active,
	}, "success"))
}
