package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dispatch/internal/domain"
	"dispatch/internal/service"
)

// WalletHandler serves a technician's own wallet.
type WalletHandler struct {
	ledgerService    *service.LedgerService
	statementService *service.StatementService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ledgerService *service.LedgerService, statementService *service.StatementService) *WalletHandler {
	return &WalletHandler{
		ledgerService:    ledgerService,
		statementService: statementService,
	}
}

// WalletResponse is a technician's ledger position.
type WalletResponse struct {
	TechnicianID     string `json:"technician_id"`
	Balance          int64  `json:"balance"`
	LockedAmount     int64  `json:"locked_amount"`
	CommissionDue    int64  `json:"commission_due"`
	CODLimit         int64  `json:"cod_limit"`
	CashEligible     bool   `json:"cash_eligible"`
	IdentityVerified bool   `json:"identity_verified"`
	PayoutVerified   bool   `json:"payout_verified"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// TransactionResponse is one ledger record.
type TransactionResponse struct {
	ID           string            `json:"id"`
	Type         string            `json:"type"`
	Amount       int64             `json:"amount"`
	Description  string            `json:"description"`
	RideID       string            `json:"ride_id,omitempty"`
	WithdrawalID string            `json:"withdrawal_id,omitempty"`
	Status       string            `json:"status"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	BalanceAfter int64             `json:"balance_after"`
	CreatedAt    string            `json:"created_at"`
}

// WithdrawalRequestBody is the HTTP request body for requesting a payout.
type WithdrawalRequestBody struct {
	Amount       int64                    `json:"amount"`
	PayoutMethod string                   `json:"payout_method"` // BANK, UPI
	Destination  domain.PayoutDestination `json:"destination"`
}

// WithdrawalResponse is a withdrawal request.
type WithdrawalResponse struct {
	ID            string                   `json:"id"`
	TechnicianID  string                   `json:"technician_id"`
	Amount        int64                    `json:"amount"`
	PayoutMethod  string                   `json:"payout_method"`
	Destination   domain.PayoutDestination `json:"destination"`
	Status        string                   `json:"status"`
	TransactionID string                   `json:"transaction_id,omitempty"`
	AdminNote     string                   `json:"admin_note,omitempty"`
	ProcessedAt   string                   `json:"processed_at,omitempty"`
	CreatedAt     string                   `json:"created_at"`
}

// PayCommissionRequest settles commission dues.
type PayCommissionRequest struct {
	Amount     int64  `json:"amount"`
	PaymentRef string `json:"payment_ref,omitempty"`
}

func toWalletResponse(w *domain.WalletAccount) WalletResponse {
	return WalletResponse{
		TechnicianID:     w.TechnicianID,
		Balance:          w.Balance,
		LockedAmount:     w.LockedAmount,
		CommissionDue:    w.CommissionDue,
		CODLimit:         w.CODLimit,
		CashEligible:     w.CashEligible(),
		IdentityVerified: w.IdentityVerified,
		PayoutVerified:   w.PayoutVerified,
		UpdatedAt:        formatTime(w.UpdatedAt),
	}
}

func toWithdrawalResponse(w *domain.WithdrawalRequest) WithdrawalResponse {
	return WithdrawalResponse{
		ID:            w.ID,
		TechnicianID:  w.TechnicianID,
		Amount:        w.Amount,
		PayoutMethod:  string(w.PayoutMethod),
		Destination:   w.Destination,
		Status:        string(w.Status),
		TransactionID: w.TransactionID,
		AdminNote:     w.AdminNote,
		ProcessedAt:   formatTime(w.ProcessedAt),
		CreatedAt:     formatTime(w.CreatedAt),
	}
}

// GetWallet handles GET /v1/wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	wallet, err := h.ledgerService.GetWallet(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}

// ListTransactions handles GET /v1/wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txns, err := h.ledgerService.ListTransactions(c.Request.Context(), caller.UserID, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		response = append(response, TransactionResponse{
			ID:           t.ID,
			Type:         string(t.Type),
			Amount:       t.Amount,
			Description:  t.Description,
			RideID:       t.RideID,
			WithdrawalID: t.WithdrawalID,
			Status:       string(t.Status),
			Metadata:     t.Metadata,
			BalanceAfter: t.BalanceAfter,
			CreatedAt:    formatTime(t.CreatedAt),
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// Statement handles GET /v1/wallet/statement.pdf
func (h *WalletHandler) Statement(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	data, filename, err := h.statementService.RenderPDF(c.Request.Context(), caller.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", data)
}

// RequestWithdrawal handles POST /v1/wallet/withdrawals
func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req WithdrawalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	withdrawal, err := h.ledgerService.RequestWithdrawal(c.Request.Context(), service.RequestWithdrawalRequest{
		TechnicianID: caller.UserID,
		Amount:       req.Amount,
		PayoutMethod: domain.PayoutMethod(req.PayoutMethod),
		Destination:  req.Destination,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusCreated, toWithdrawalResponse(withdrawal))
}

// PayCommission handles POST /v1/wallet/commission/pay
func (h *WalletHandler) PayCommission(c *gin.Context) {
	caller, ok := principal(c)
	if !ok {
		return
	}

	var req PayCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	wallet, err := h.ledgerService.PayCommission(c.Request.Context(), caller.UserID, req.Amount, req.PaymentRef)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toWalletResponse(wallet))
}
