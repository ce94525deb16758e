package models

import "time"

// Order event types published after every ledger write.
const (
	EventOrderConfirmed = "order.confirmed"
	EventOrderReceived  = "order.received"
)

// OrderEvent is published to SNS once the ledger row exists.
type OrderEvent struct {
	Event         string    `json:"event"`
	LocalID       string    `json:"local_id"`
	RemoteOrderID *string   `json:"remote_order_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	ClientID      string    `json:"client_id"`
	TotalAmount   float64   `json:"total_amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentSettlementEvent arrives out of band (webhook fan-out) once a payment
// that was still pending at checkout time settles.
type PaymentSettlementEvent struct {
	OrderID   string    `json:"order_id"` // remote order id
	PaymentID string    `json:"payment_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}
