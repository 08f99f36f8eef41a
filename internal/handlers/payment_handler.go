package handlers

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"payments-service/internal/services"
	"payments-service/pkg/common"
)

// maxNotificationBytes bounds the ITN body read.
const maxNotificationBytes = 64 << 10

type PaymentHandler struct {
	Notifications *services.NotificationService
	Checkout      *services.CheckoutService
	Invoices      *services.InvoiceService
	Plans         *services.PlanService
	Env           *services.EnvironmentService
	Log           *zap.Logger
}

func NewPaymentHandler(
	notifications *services.NotificationService,
	checkout *services.CheckoutService,
	invoices *services.InvoiceService,
	plans *services.PlanService,
	env *services.EnvironmentService,
	log *zap.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		Notifications: notifications,
		Checkout:      checkout,
		Invoices:      invoices,
		Plans:         plans,
		Env:           env,
		Log:           log.Named("http.payments"),
	}
}

// Notify receives the gateway's ITN. Anything but a 200 makes the gateway retry.
func (h *PaymentHandler) Notify(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxNotificationBytes))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}

	// A started notification runs to completion even if the gateway hangs up.
	ctx := context.WithoutCancel(c.Request.Context())
	result, err := h.Notifications.Handle(ctx, services.Notification{
		Body:          body,
		ClientAddress: c.ClientIP(),
	})
	if err != nil {
		h.Log.Warn("notification rejected", zap.String("client_address", c.ClientIP()), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewAckResponse(result.Outcome))
}

func (h *PaymentHandler) CheckoutTip(c *gin.Context) {
	var req services.TipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.Checkout.StartTip(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(result, "checkout created"))
}

func (h *PaymentHandler) CheckoutSubscription(c *gin.Context) {
	var req services.SubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.Checkout.StartSubscription(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.NewSuccessResponse(result, "checkout created"))
}

// CancelInvoice abandons a checkout that has not been paid.
func (h *PaymentHandler) CancelInvoice(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid invoice id")
		return
	}
	ctx := c.Request.Context()
	if err := h.Invoices.Cancel(ctx, uint(id)); err != nil {
		respondError(c, err)
		return
	}
	invoice, err := h.Invoices.Get(ctx, uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	h.Log.Info("invoice cancelled", zap.Uint("invoice_id", invoice.ID))
	c.JSON(http.StatusOK, common.NewSuccessResponse(invoice, "invoice cancelled"))
}

func (h *PaymentHandler) ListPlans(c *gin.Context) {
	catalog, err := h.Plans.Catalog(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(catalog, "success"))
}

type SandboxRequest struct {
	Sandbox *bool `json:"sandbox" binding:"required"`
}

func (h *PaymentHandler) GetEnvironment(c *gin.Context) {
	sandbox, err := h.Env.IsSandbox(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"sandbox": sandbox}, "success"))
}

func (h *PaymentHandler) SetEnvironment(c *gin.Context) {
	var req SandboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Env.SetSandbox(c.Request.Context(), *req.Sandbox); err != nil {
		respondError(c, err)
		return
	}
	h.Log.Info("gateway environment changed", zap.Bool("sandbox", *req.Sandbox))
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"sandbox": *req.Sandbox}, "environment updated"))
}
