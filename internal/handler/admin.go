package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// AdminHandler serves withdrawal review and wallet administration.
type AdminHandler struct {
	ledgerService *service.LedgerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledgerService *service.LedgerService) *AdminHandler {
	return &AdminHandler{ledgerService: ledgerService}
}

// AdminNoteRequest carries an optional reviewer note.
type AdminNoteRequest struct {
	Note string `json:"note,omitempty"`
}

// MarkPaidRequest records a payout settled outside the provider integration.
type MarkPaidRequest struct {
	TransactionID string `json:"transaction_id"`
	Note          string `json:"note,omitempty"`
}

// VerificationRequest updates wallet verification flags. Omitted flags are
// left unchanged.
type VerificationRequest struct {
	IdentityVerified *bool `json:"identity_verified"`
	PayoutVerified   *bool `json:"payout_verified"`
}

// CODLimitRequest sets the commission debt at which cash jobs stop.
type CODLimitRequest struct {
	CODLimit *int64 `json:"cod_limit"`
}

// ListWithdrawals handles GET /v1/admin/withdrawals
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	status := domain.WithdrawalStatus(c.Query("status"))

	withdrawals, err := h.ledgerService.ListWithdrawals(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]WithdrawalResponse, 0, len(withdrawals))
	for _, w := range withdrawals {
		response = append(response, toWithdrawalResponse(w))
	}
	respondJSON(c, http.StatusOK, response)
}

// Approve handles POST /v1/admin/withdrawals/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	var req AdminNoteRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.ledgerService.ApproveWithdrawal(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWithdrawalResponse(w))
}

// Reject handles POST /v1/admin/withdrawals/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	var req AdminNoteRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.ledgerService.RejectWithdrawal(c.Request.Context(), c.Param("id"), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWithdrawalResponse(w))
}

// MarkPaid handles POST /v1/admin/withdrawals/:id/mark-paid
func (h *AdminHandler) MarkPaid(c *gin.Context) {
	var req MarkPaidRequest
	_ = c.ShouldBindJSON(&req)

	w, err := h.ledgerService.MarkWithdrawalPaid(c.Request.Context(), c.Param("id"), req.TransactionID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWithdrawalResponse(w))
}

// SetVerification handles PUT /v1/admin/wallets/:technicianId/verification
func (h *AdminHandler) SetVerification(c *gin.Context) {
	var req VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	wallet, err := h.ledgerService.SetVerification(c.Request.Context(), c.Param("technicianId"), req.IdentityVerified, req.PayoutVerified)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}

// SetCODLimit handles PUT /v1/admin/wallets/:technicianId/cod-limit
func (h *AdminHandler) SetCODLimit(c *gin.Context) {
	var req CODLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CODLimit == nil {
		respondBadRequest(c, "cod_limit is required")
		return
	}

	wallet, err := h.ledgerService.SetCODLimit(c.Request.Context(), c.Param("technicianId"), *req.CODLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}
