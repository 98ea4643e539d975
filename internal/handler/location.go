package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// LocationHandler serves the polling fallback and the HTTP send fallback
// of live tracking.
type LocationHandler struct {
	locationService *service.LocationService
}

// NewLocationHandler creates a new LocationHandler.
func NewLocationHandler(locationService *service.LocationService) *LocationHandler {
	return &LocationHandler{locationService: locationService}
}

// LocationRequest is a technician position sample.
type LocationRequest struct {
	Lat       *float64  `json:"lat"`
	Lng       *float64  `json:"lng"`
	Bearing   float64   `json:"bearing"`
	Speed     float64   `json:"speed"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationAckResponse reports whether a sample replaced the stored one.
type LocationAckResponse struct {
	RideID   string `json:"ride_id"`
	Accepted bool   `json:"accepted"`
}

// GetLocation handles GET /v1/rides/:id/location
func (h *LocationHandler) GetLocation(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	sample, err := h.locationService.GetLocation(c.Request.Context(), c.Param("id"), caller)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, sample)
}

// SetLocation handles POST /v1/rides/:id/location
func (h *LocationHandler) SetLocation(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		respondBadRequest(c, "lat and lng are required")
		return
	}

	rideID := c.Param("id")
	accepted, err := h.locationService.SetLocation(c.Request.Context(), caller.UserID, domain.LocationSample{
		RideID:    rideID,
		Lat:       *req.Lat,
		Lng:       *req.Lng,
		Bearing:   req.Bearing,
		Speed:     req.Speed,
		Accuracy:  req.Accuracy,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, LocationAckResponse{RideID: rideID, Accepted: accepted})
}
