package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// PaymentHandler handles online payment collection for rides.
type PaymentHandler struct {
	rideService *service.RideService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(rideService *service.RideService) *PaymentHandler {
	return &PaymentHandler{rideService: rideService}
}

// CreateOrder handles POST /v1/rides/:id/payment/order
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	order, err := h.rideService.PaymentOrder(c.Request.Context(), c.Param("id"), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toPaymentOrderResponse(order))
}

// Confirm handles POST /v1/rides/:id/payment/confirm
func (h *PaymentHandler) Confirm(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		respondBadRequest(c, "gateway_order_id, gateway_payment_id and signature are required")
		return
	}

	ride, err := h.rideService.ConfirmPayment(c.Request.Context(), c.Param("id"), caller.UserID, domain.PaymentProof{
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
