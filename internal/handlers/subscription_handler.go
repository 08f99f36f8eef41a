package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payments-service/internal/services"
	"payments-service/pkg/common"
)

type SubscriptionHandler struct {
	Subscriptions *services.SubscriptionService
	Dispatcher    services.SyncDispatcher
}

func NewSubscriptionHandler(subscriptions *services.SubscriptionService, dispatcher services.SyncDispatcher) *SubscriptionHandler {
	return &SubscriptionHandler{Subscriptions: subscriptions, Dispatcher: dispatcher}
}

func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	sub, err := h.Subscriptions.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(sub, "success"))
}

func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page := common.ParsePage(c.Query("page"), c.Query("limit"))

	subs, total, err := h.Subscriptions.ListForUser(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(subs, total, page.Number, page.Limit, ""))
}

func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	sub, err := h.Subscriptions.Cancel(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(sub, "subscription cancelled"))
}

func (h *SubscriptionHandler) ResyncSubscription(c *gin.Context) {
	sub, err := h.Subscriptions.Resync(c.Request.Context(), c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(sub, "subscription synced"))
}

type ResyncSweepRequest struct {
	Sweep string `json:"sweep" binding:"required,oneof=needs-resync full"`
}

// StartResyncSweep hands a sweep to the dispatcher. Queued sweeps run on the
// worker.
func (h *SubscriptionHandler) StartResyncSweep(c *gin.Context) {
	var req ResyncSweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.Dispatcher.DispatchSweep(c.Request.Context(), req.Sweep); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, common.NewSuccessResponse(gin.H{"sweep": req.Sweep}, "resync sweep dispatched"))
}
