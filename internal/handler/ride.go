package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// RideHandler handles HTTP requests for the ride lifecycle.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// PlaceRequest is an address with coordinates.
type PlaceRequest struct {
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	Pickup        PlaceRequest `json:"pickup"`
	Destination   PlaceRequest `json:"destination"`
	ServiceType   string       `json:"service_type"`
	Price         int64        `json:"price"`
	PaymentMethod string       `json:"payment_method,omitempty"` // CASH, ONLINE
	PaymentTiming string       `json:"payment_timing,omitempty"` // PREPAID, POSTPAID
}

// OTPRequest carries an OTP typed by the technician.
type OTPRequest struct {
	OTP string `json:"otp"`
}

// CancelRequest is the HTTP request body for cancelling a ride.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ConfirmPaymentRequest is the gateway proof returned to the customer's app.
type ConfirmPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

// PlaceResponse is an address with coordinates.
type PlaceResponse struct {
	Address string  `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

// RideResponse is the HTTP representation of a ride. OTP fields are only
// present when the caller may see them.
type RideResponse struct {
	ID             string        `json:"id"`
	CustomerID     string        `json:"customer_id"`
	TechnicianID   string        `json:"technician_id,omitempty"`
	Status         string        `json:"status"`
	Pickup         PlaceResponse `json:"pickup"`
	Destination    PlaceResponse `json:"destination"`
	ServiceType    string        `json:"service_type"`
	Price          int64         `json:"price"`
	PaymentMethod  string        `json:"payment_method"`
	PaymentTiming  string        `json:"payment_timing"`
	PaymentStatus  string        `json:"payment_status"`
	PaymentOrderID string        `json:"payment_order_id,omitempty"`
	ArrivalOTP     string        `json:"arrival_otp,omitempty"`
	CompletionOTP  string        `json:"completion_otp,omitempty"`
	CancelReason   string        `json:"cancel_reason,omitempty"`
	CancelledBy    string        `json:"cancelled_by,omitempty"`
	CreatedAt      string        `json:"created_at"`
	AcceptedAt     string        `json:"accepted_at,omitempty"`
	ArrivedAt      string        `json:"arrived_at,omitempty"`
	StartedAt      string        `json:"started_at,omitempty"`
	ServiceEndedAt string        `json:"service_ended_at,omitempty"`
	CompletedAt    string        `json:"completed_at,omitempty"`
	CancelledAt    string        `json:"cancelled_at,omitempty"`
}

// PaymentOrderResponse is the gateway order the customer pays against.
type PaymentOrderResponse struct {
	ID             string `json:"id"`
	RideID         string `json:"ride_id"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	GatewayOrderID string `json:"gateway_order_id"`
	CreatedAt      string `json:"created_at"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:             r.ID,
		CustomerID:     r.CustomerID,
		TechnicianID:   r.TechnicianID,
		Status:         string(r.Status),
		Pickup:         PlaceResponse{Address: r.Pickup.Address, Lat: r.Pickup.Lat, Lng: r.Pickup.Lng},
		Destination:    PlaceResponse{Address: r.Destination.Address, Lat: r.Destination.Lat, Lng: r.Destination.Lng},
		ServiceType:    r.ServiceType,
		Price:          r.Price,
		PaymentMethod:  string(r.PaymentMethod),
		PaymentTiming:  string(r.PaymentTiming),
		PaymentStatus:  string(r.PaymentStatus),
		PaymentOrderID: r.PaymentOrderID,
		ArrivalOTP:     r.ArrivalOTP,
		CompletionOTP:  r.CompletionOTP,
		CancelReason:   r.CancelReason,
		CancelledBy:    string(r.CancelledBy),
		CreatedAt:      formatTime(r.CreatedAt),
		AcceptedAt:     formatTime(r.AcceptedAt),
		ArrivedAt:      formatTime(r.ArrivedAt),
		StartedAt:      formatTime(r.StartedAt),
		ServiceEndedAt: formatTime(r.ServiceEndedAt),
		CompletedAt:    formatTime(r.CompletedAt),
		CancelledAt:    formatTime(r.CancelledAt),
	}
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	return out
}

func toPaymentOrderResponse(o *domain.PaymentOrder) PaymentOrderResponse {
	return PaymentOrderResponse{
		ID:             o.ID,
		RideID:         o.RideID,
		Amount:         o.Amount,
		Status:         string(o.Status),
		GatewayOrderID: o.GatewayOrderID,
		CreatedAt:      formatTime(o.CreatedAt),
	}
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.Create(c.Request.Context(), service.CreateRideRequest{
		CustomerID:    caller.UserID,
		Pickup:        domain.Place{Address: req.Pickup.Address, Lat: req.Pickup.Lat, Lng: req.Pickup.Lng},
		Destination:   domain.Place{Address: req.Destination.Address, Lat: req.Destination.Lat, Lng: req.Destination.Lng},
		ServiceType:   req.ServiceType,
		Price:         req.Price,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		PaymentTiming: domain.PaymentTiming(req.PaymentTiming),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// ListPending handles GET /v1/rides/pending
func (h *RideHandler) ListPending(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	rides, err := h.rideService.ListPending(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponses(rides))
}

// History handles GET /v1/rides/history
func (h *RideHandler) History(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	rides, err := h.rideService.History(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponses(rides))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	ride, err := h.rideService.Get(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Accept handles POST /v1/rides/:id/accept
func (h *RideHandler) Accept(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	ride, err := h.rideService.Accept(c.Request.Context(), c.Param("id"), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// VerifyArrival handles POST /v1/rides/:id/verify-arrival
func (h *RideHandler) VerifyArrival(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.VerifyArrival(c.Request.Context(), c.Param("id"), caller.UserID, req.OTP)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartService handles POST /v1/rides/:id/start
func (h *RideHandler) StartService(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	ride, err := h.rideService.StartService(c.Request.Context(), c.Param("id"), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// EndService handles POST /v1/rides/:id/end
func (h *RideHandler) EndService(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	ride, err := h.rideService.EndService(c.Request.Context(), c.Param("id"), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Complete handles POST /v1/rides/:id/complete
func (h *RideHandler) Complete(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.Complete(c.Request.Context(), c.Param("id"), caller.UserID, req.OTP)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Cancel handles POST /v1/rides/:id/cancel
func (h *RideHandler) Cancel(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req CancelRequest
	// The body is optional.
	_ = c.ShouldBindJSON(&req)

	ride, err := h.rideService.Cancel(c.Request.Context(), c.Param("id"), caller.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CancelByTechnician handles POST /v1/rides/:id/cancel-by-technician
func (h *RideHandler) CancelByTechnician(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	ride, err := h.rideService.CancelByTechnician(c.Request.Context(), c.Param("id"), caller.UserID, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
