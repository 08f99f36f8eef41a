package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"payments-service/internal/services"
	"payments-service/pkg/common"
)

type TransactionHandler struct {
	Ledger *services.LedgerService
}

func NewTransactionHandler(ledger *services.LedgerService) *TransactionHandler {
	return &TransactionHandler{Ledger: ledger}
}

type DebitUserRequest struct {
	UserID uint            `json:"user_id" binding:"required"`
	Amount decimal.Decimal `json:"amount"`
}

func (h *TransactionHandler) DebitUser(c *gin.Context) {
	var req DebitUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	entry, err := h.Ledger.Debit(c.Request.Context(), req.UserID, req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}
	balance, err := h.Ledger.Balance(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"transaction": entry,
		"balance":     balance,
	}, "User debited successfully"))
}

func (h *TransactionHandler) GetTransactions(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}
	page := common.ParsePage(c.Query("page"), c.Query("limit"))

	entries, total, err := h.Ledger.ListTransactions(c.Request.Context(), userID, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.PaginateResponse(entries, total, page.Number, page.Limit, ""))
}

// userIDParam reads the user_id path or query value, answering 400 itself
// when it is missing or malformed.
func userIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("user_id")
	if raw == "" {
		raw = c.Query("user_id")
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "Invalid user_id")
		return 0, false
	}
	return uint(id), true
}
