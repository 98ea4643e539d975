package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dispatch/internal/service"
)

const payoutSignatureHeader = "X-Payout-Signature"

// WebhookHandler receives payout provider notifications.
type WebhookHandler struct {
	ledgerService *service.LedgerService
	secret        []byte
}

// NewWebhookHandler creates a new WebhookHandler. An empty secret disables
// signature checks, which is only meant for local runs.
func NewWebhookHandler(ledgerService *service.LedgerService, secret string) *WebhookHandler {
	return &WebhookHandler{ledgerService: ledgerService, secret: []byte(secret)}
}

// PayoutWebhookRequest is the provider's event envelope.
type PayoutWebhookRequest struct {
	Event   string `json:"event"` // e.g. payout.processed
	Payload struct {
		Payout struct {
			Entity struct {
				ID          string `json:"id"`
				ReferenceID string `json:"reference_id"`
				Status      string `json:"status"`
			} `json:"entity"`
		} `json:"payout"`
	} `json:"payload"`
}

// Payout handles POST /v1/webhooks/payout
func (h *WebhookHandler) Payout(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		respondBadRequest(c, "unreadable body")
		return
	}

	if len(h.secret) > 0 && !h.validSignature(body, c.GetHeader(payoutSignatureHeader)) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid signature", Code: "UNAUTHORIZED"})
		return
	}

	var req PayoutWebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	status := req.Payload.Payout.Entity.Status
	if status == "" {
		status = strings.TrimPrefix(req.Event, "payout.")
	}
	payoutID := req.Payload.Payout.Entity.ID
	if payoutID == "" {
		respondBadRequest(c, "payout id is required")
		return
	}

	// Intermediate states need no ledger change.
	switch status {
	case "queued", "pending", "processing":
		respondJSON(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	err = h.ledgerService.HandlePayoutWebhook(c.Request.Context(), service.PayoutWebhook{
		PayoutID:  payoutID,
		Reference: req.Payload.Payout.Entity.ReferenceID,
		Status:    status,
	})
	if err != nil {
		log.Printf("[PAYOUT] Webhook %s for %s failed: %v", status, payoutID, err)
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
