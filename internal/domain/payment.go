package domain

import "time"

// PaymentOrderStatus represents the current status of a gateway order.
type PaymentOrderStatus string

const (
	PaymentOrderCreated PaymentOrderStatus = "CREATED"
	PaymentOrderPaid    PaymentOrderStatus = "PAID"
	PaymentOrderFailed  PaymentOrderStatus = "FAILED"
)

// PaymentOrder is the gateway order created to collect an online payment for a ride.
type PaymentOrder struct {
	ID             string
	RideID         string
	Amount         int64
	Status         PaymentOrderStatus
	GatewayOrderID string
	IdempotencyKey string
	CreatedAt      time.Time
}

// PaymentProof is what the client returns after paying through the gateway.
type PaymentProof struct {
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}
