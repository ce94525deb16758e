package providers

import (
	"context"

	"checkout-service/models"
)

// OrderProvider is the registry side of order placement. The three calls are
// issued together as one unit by the order coordinator.
type OrderProvider interface {
	// BindShippingAddress makes address the client's active delivery address.
	BindShippingAddress(ctx context.Context, clientID string, address models.ShippingAddress) error

	// SubmitCartItems replaces the client's remote cart with items.
	SubmitCartItems(ctx context.Context, clientID string, items []models.CartItem) error

	// CreateOrder turns the submitted cart into an order.
	CreateOrder(ctx context.Context, clientID string) (models.RemoteOrderResult, error)
}

// PaymentProvider creates payments against remote orders and reports their status.
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (models.PaymentState, error)
}

// Registry is the full remote API.
type Registry interface {
	OrderProvider
	PaymentProvider
}
