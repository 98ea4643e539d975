package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"dispatch/internal/domain"
)

// PaymentGateway is the interface for the online payment provider.
type PaymentGateway interface {
	// CreateOrder opens an order for amount and returns the gateway order id.
	CreateOrder(ctx context.Context, amount int64, receipt string) (string, error)
	// Verify checks that the proof was issued by the gateway for its order.
	Verify(ctx context.Context, proof domain.PaymentProof) (bool, error)
}

// PayoutProvider is the interface for the bank/UPI payout provider.
type PayoutProvider interface {
	CreateContact(ctx context.Context, technicianID string) (string, error)
	CreateFundAccount(ctx context.Context, contactID string, method domain.PayoutMethod, dest domain.PayoutDestination) (string, error)
	// CreatePayout transfers amount and returns the provider's payout id.
	CreatePayout(ctx context.Context, fundAccountID string, amount int64, reference string) (string, error)
}

// MockGateway is a PaymentGateway that signs proofs with a shared secret,
// the way hosted checkout gateways do.
type MockGateway struct {
	secret []byte
}

// NewMockGateway creates a new mock gateway.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{secret: []byte(secret)}
}

// CreateOrder always succeeds.
func (g *MockGateway) CreateOrder(ctx context.Context, amount int64, receipt string) (string, error) {
	return "order_" + uuid.New().String(), nil
}

// Verify accepts proofs whose signature is Sign(orderID, paymentID).
func (g *MockGateway) Verify(ctx context.Context, proof domain.PaymentProof) (bool, error) {
	expected := g.Sign(proof.GatewayOrderID, proof.GatewayPaymentID)
	return hmac.Equal([]byte(expected), []byte(proof.Signature)), nil
}

// Sign returns the signature the gateway issues for a captured payment.
func (g *MockGateway) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// MockPayoutProvider is a PayoutProvider that always succeeds.
type MockPayoutProvider struct{}

// NewMockPayoutProvider creates a new mock payout provider.
func NewMockPayoutProvider() *MockPayoutProvider {
	return &MockPayoutProvider{}
}

func (p *MockPayoutProvider) CreateContact(ctx context.Context, technicianID string) (string, error) {
	return "cont_" + technicianID, nil
}

func (p *MockPayoutProvider) CreateFundAccount(ctx context.Context, contactID string, method domain.PayoutMethod, dest domain.PayoutDestination) (string, error) {
	return "fa_" + uuid.New().String(), nil
}

func (p *MockPayoutProvider) CreatePayout(ctx context.Context, fundAccountID string, amount int64, reference string) (string, error) {
	return "pout_" + uuid.New().String(), nil
}
