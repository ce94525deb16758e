package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// CartItem is a single line in the customer's cart, priced in catalog currency.
type CartItem struct {
	ProductID   string  `json:"product_id" validate:"required"`
	ProductName string  `json:"product_name,omitempty"`
	Quantity    int     `json:"quantity" validate:"min=1"`
	UnitPrice   float64 `json:"unit_price" validate:"gte=0"`
}

// LineTotal returns quantity × unit price.
func (i CartItem) LineTotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// ShippingAddress is the single active delivery address for a checkout.
type ShippingAddress struct {
	Line1       string `json:"address_line1"`
	Line2       string `json:"address_line2,omitempty"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"` // ISO 3166-1 alpha-2
}

// NewShippingAddress builds a normalized address.
func NewShippingAddress(line1, line2, city, state, postalCode, country, countryCode string) ShippingAddress {
	return ShippingAddress{
		Line1:       line1,
		Line2:       line2,
		City:        city,
		State:       state,
		PostalCode:  postalCode,
		Country:     country,
		CountryCode: countryCode,
	}.Normalize()
}

// Normalize trims every field, upper-cases the country code and defaults the
// state to the city when none was given.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.CountryCode = strings.ToUpper(strings.TrimSpace(a.CountryCode))
	if a.State == "" {
		a.State = a.City
	}
	return a
}

// Customer is the contact snapshot stored with every order.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// OrderIntent is everything a checkout attempt needs. It is built once and
// passed by value.
type OrderIntent struct {
	ClientID string          `json:"client_id" validate:"required"`
	Customer Customer        `json:"customer"`
	Items    []CartItem      `json:"items" validate:"dive"`
	Address  ShippingAddress `json:"shipping_address"`
	Currency string          `json:"currency" validate:"required,len=3"`
}

// Total returns the order amount rounded to cents.
func (o OrderIntent) Total() float64 {
	var total float64
	for _, item := range o.Items {
		total += item.LineTotal()
	}
	return math.Round(total*100) / 100
}

// Fingerprint identifies what is being bought, by whom and where it ships.
// Two intents with the same fingerprint describe the same purchase.
func (o OrderIntent) Fingerprint() string {
	b, _ := json.Marshal(struct {
		ClientID string          `json:"client_id"`
		Items    []CartItem      `json:"items"`
		Address  ShippingAddress `json:"shipping_address"`
		Currency string          `json:"currency"`
	}{o.ClientID, o.Items, o.Address, strings.ToUpper(o.Currency)})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RemoteOrderResult is what the registry returns for a created order.
type RemoteOrderResult struct {
	OrderID   string    `json:"order_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentState is the remote payment status as reported by polling.
type PaymentState string

const (
	PaymentPending   PaymentState = "PENDING"
	PaymentPaid      PaymentState = "PAID"
	PaymentFailed    PaymentState = "FAILED"
	PaymentCancelled PaymentState = "CANCELLED"
)

// Terminal reports whether no further status change is expected.
func (s PaymentState) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentCancelled
}

// Supersedes reports whether s may overwrite the stored payment status
// current. Only terminal states are attached. PAID is final; FAILED and
// CANCELLED can still be upgraded to PAID but never replace each other.
func (s PaymentState) Supersedes(current string) bool {
	if !s.Terminal() || string(s) == current {
		return false
	}
	prev, ok := ParsePaymentState(current)
	if !ok || !prev.Terminal() {
		return true
	}
	return prev != PaymentPaid && s == PaymentPaid
}

// ParsePaymentState maps a wire value to a PaymentState.
func ParsePaymentState(s string) (PaymentState, bool) {
	switch PaymentState(strings.ToUpper(strings.TrimSpace(s))) {
	case PaymentPending:
		return PaymentPending, true
	case PaymentPaid:
		return PaymentPaid, true
	case PaymentFailed:
		return PaymentFailed, true
	case PaymentCancelled, "CANCELED":
		return PaymentCancelled, true
	}
	return "", false
}

// PaymentRequest is sent to the payment provider after the order exists.
type PaymentRequest struct {
	OrderID  string  `json:"order_id"`
	ClientID string  `json:"client_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}
