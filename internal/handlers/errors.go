package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"payments-service/internal/payfast"
	"payments-service/internal/services"
	"payments-service/pkg/common"
)

// statusOf maps a service error onto an HTTP status.
func statusOf(err error) int {
	var (
		invalid   *payfast.ValidationError
		untrusted *payfast.UntrustedNotificationError
		notFound  *payfast.NotFoundError
	)
	switch {
	case errors.As(err, &invalid), errors.As(err, &untrusted):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvoiceAlreadySettled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.JSON(status, common.NewErrorResponse(message, nil, status))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, common.NewErrorResponse(message, nil, http.StatusBadRequest))
}
