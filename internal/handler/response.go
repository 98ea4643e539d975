package handler

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/middleware"
	"dispatch/internal/repository"
	"dispatch/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

type errorCoder interface {
	Code() string
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	status, code := mapError(err)

	resp := ErrorResponse{Error: err.Error(), Code: code}
	var due *service.CommissionDueError
	if errors.As(err, &due) {
		resp.Details = map[string]any{"outstanding": due.Outstanding}
	}
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] request_id=%s unhandled error: %v", middleware.GetRequestID(c), err)
		resp.Error = "internal server error"
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

// respondBadRequest reports a malformed request body or parameter.
func respondBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "VALIDATION_ERROR"})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapError maps service and repository errors to an HTTP status and a
// stable code. Specific codes win over the category code.
func mapError(err error) (int, string) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"

	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, service.ErrConflict),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, repository.ErrDuplicate):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, service.ErrPaymentRequired):
		status, code = http.StatusPaymentRequired, "PAYMENT_REQUIRED"
	case errors.Is(err, service.ErrInsufficientFunds):
		status, code = http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"
	case errors.Is(err, service.ErrExternalService):
		status, code = http.StatusBadGateway, "EXTERNAL_SERVICE_ERROR"
	case errors.Is(err, service.ErrStaleData):
		status, code = http.StatusConflict, "STALE_DATA"
	case errors.Is(err, service.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, service.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "UNAUTHORIZED"
	default:
		return status, code
	}

	var coder errorCoder
	if errors.As(err, &coder) {
		code = coder.Code()
	}
	return status, code
}

// principal returns the caller set by the auth middleware, or responds 401.
func principal(c *gin.Context) (domain.Principal, bool) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"})
		return domain.Principal{}, false
	}
	return p, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
