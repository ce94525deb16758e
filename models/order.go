package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Local order statuses.
const (
	OrderStatusConfirmed   = "CONFIRMED"
	OrderStatusPendingSync = "PENDING_SYNC"
)

// Payment status snapshot values stored on the ledger row. The first four
// mirror PaymentState; AwaitingProcessing marks fallback orders.
const (
	PaymentStatusPending            = string(PaymentPending)
	PaymentStatusPaid               = string(PaymentPaid)
	PaymentStatusFailed             = string(PaymentFailed)
	PaymentStatusCancelled          = string(PaymentCancelled)
	PaymentStatusAwaitingProcessing = "AWAITING_PROCESSING"
)

// LocalOrder is the durable ledger record written once per checkout attempt.
// Items and the shipping address are stored as JSON snapshots so later
// profile or catalog edits never rewrite history.
type LocalOrder struct {
	LocalID             string    `gorm:"primaryKey;type:varchar(64)" json:"local_id"`
	RemoteOrderID       *string   `gorm:"type:varchar(128);index" json:"remote_order_id"`
	PaymentID           *string   `gorm:"type:varchar(128)" json:"payment_id,omitempty"`
	Status              string    `gorm:"type:varchar(20);not null" json:"status"`
	PaymentStatus       string    `gorm:"type:varchar(32);not null" json:"payment_status"`
	TotalAmount         float64   `gorm:"not null" json:"total_amount"`
	Currency            string    `gorm:"type:varchar(3);not null" json:"currency"`
	CountryCode         string    `gorm:"type:varchar(2)" json:"country_code"`
	ItemsJSON           string    `gorm:"column:items;type:jsonb;not null" json:"-"`
	ShippingAddressJSON string    `gorm:"column:shipping_address;type:jsonb;not null" json:"-"`
	ClientID            string    `gorm:"type:varchar(128);not null;index" json:"client_id"`
	CustomerEmail       string    `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerName        string    `gorm:"type:varchar(255)" json:"customer_name"`
	FailureReason       string    `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewLocalOrder snapshots the intent into an unsaved ledger record.
func NewLocalOrder(localID string, intent OrderIntent, createdAt time.Time) (*LocalOrder, error) {
	items, err := json.Marshal(intent.Items)
	if err != nil {
		return nil, fmt.Errorf("snapshot items: %w", err)
	}
	addr, err := json.Marshal(intent.Address)
	if err != nil {
		return nil, fmt.Errorf("snapshot shipping address: %w", err)
	}
	return &LocalOrder{
		LocalID:             localID,
		TotalAmount:         intent.Total(),
		Currency:            intent.Currency,
		CountryCode:         intent.Address.CountryCode,
		ItemsJSON:           string(items),
		ShippingAddressJSON: string(addr),
		ClientID:            intent.ClientID,
		CustomerEmail:       intent.Customer.Email,
		CustomerName:        intent.Customer.Name,
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}, nil
}

// Items decodes the item snapshot.
func (o *LocalOrder) Items() ([]CartItem, error) {
	var items []CartItem
	if o.ItemsJSON == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(o.ItemsJSON), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ShippingAddress decodes the address snapshot.
func (o *LocalOrder) ShippingAddress() (ShippingAddress, error) {
	var addr ShippingAddress
	if o.ShippingAddressJSON == "" {
		return addr, nil
	}
	err := json.Unmarshal([]byte(o.ShippingAddressJSON), &addr)
	return addr, err
}

// MarshalJSON exposes the snapshots as structured fields in API responses.
func (o LocalOrder) MarshalJSON() ([]byte, error) {
	type plain LocalOrder
	items, _ := o.Items()
	addr, _ := o.ShippingAddress()
	return json.Marshal(struct {
		plain
		Items           []CartItem      `json:"items"`
		ShippingAddress ShippingAddress `json:"shipping_address"`
	}{plain: plain(o), Items: items, ShippingAddress: addr})
}
