// internal/handlers/payment.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ndstrzz/taedal-v7-sub000/internal/services"
	"github.com/ndstrzz/taedal-v7-sub000/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
}

func NewPaymentHandler(paymentService *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// POST /negotiations/:id/checkout
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	// Create payment intent
	response, err := h.paymentService.CreateLicenseFeeIntent(c.Request.Context(), id, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, response)
}
