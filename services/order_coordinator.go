package services

import (
	"context"
	"fmt"

	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/retry"

	"go.uber.org/zap"
)

// OrderCoordinator places the remote order: bind the shipping address, submit
// the cart and create the order, retried together as one unit.
type OrderCoordinator struct {
	provider providers.OrderProvider
	policy   retry.Policy
	logger   *zap.Logger
}

// NewOrderCoordinator creates a new OrderCoordinator.
func NewOrderCoordinator(provider providers.OrderProvider, policy retry.Policy, logger *zap.Logger) *OrderCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderCoordinator{provider: provider, policy: policy, logger: logger}
}

// PlaceOrder validates the intent and runs the three registry calls. Intent
// validation errors are returned before any remote call is made.
func (c *OrderCoordinator) PlaceOrder(ctx context.Context, intent models.OrderIntent) (models.RemoteOrderResult, error) {
	if err := intent.Validate(); err != nil {
		return models.RemoteOrderResult{}, err
	}

	result, err := retry.Do(ctx, c.policy, c.logger, "place_order", func(ctx context.Context) (models.RemoteOrderResult, error) {
		if err := c.provider.BindShippingAddress(ctx, intent.ClientID, intent.Address); err != nil {
			return models.RemoteOrderResult{}, fmt.Errorf("bind shipping address: %w", err)
		}
		if err := c.provider.SubmitCartItems(ctx, intent.ClientID, intent.Items); err != nil {
			return models.RemoteOrderResult{}, fmt.Errorf("submit cart items: %w", err)
		}
		res, err := c.provider.CreateOrder(ctx, intent.ClientID)
		if err != nil {
			return models.RemoteOrderResult{}, fmt.Errorf("create order: %w", err)
		}
		return res, nil
	})
	if err != nil {
		return models.RemoteOrderResult{}, err
	}

	c.logger.Info("Remote order created",
		zap.String("client_id", intent.ClientID),
		zap.String("remote_order_id", result.OrderID),
	)
	return result, nil
}
