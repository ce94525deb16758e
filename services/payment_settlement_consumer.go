package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"go.uber.org/zap"
)

// SettlementSource delivers raw settlement messages. aws_pkg.SQSConsumer
// implements it.
type SettlementSource interface {
	StartPolling(ctx context.Context, handler aws_pkg.MessageHandler) error
}

// PaymentSettlementConsumer attaches payment statuses that settle after the
// checkout returned to the matching ledger rows.
type PaymentSettlementConsumer struct {
	source  SettlementSource
	ledger  repository.OrderLedger
	metrics MetricsRecorder
	logger  *zap.Logger
}

func NewPaymentSettlementConsumer(source SettlementSource, ledger repository.OrderLedger, metrics MetricsRecorder, logger *zap.Logger) *PaymentSettlementConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentSettlementConsumer{source: source, ledger: ledger, metrics: metrics, logger: logger}
}

// Start blocks until ctx is cancelled.
func (c *PaymentSettlementConsumer) Start(ctx context.Context) error {
	c.logger.Info("Starting payment settlement consumer")
	return c.source.StartPolling(ctx, c.HandleMessage)
}

// HandleMessage applies one settlement message. Returning an error leaves the
// message on the queue for redelivery.
func (c *PaymentSettlementConsumer) HandleMessage(ctx context.Context, body string) error {
	var evt models.PaymentSettlementEvent
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		c.logger.Warn("Invalid settlement message JSON", zap.Error(err), zap.String("payload", body))
		return fmt.Errorf("decode settlement message: %w", err)
	}
	if evt.OrderID == "" {
		c.logger.Warn("Settlement message without order_id", zap.String("payload", body))
		return errors.New("settlement message missing order_id")
	}
	state, ok := models.ParsePaymentState(evt.Status)
	if !ok || !state.Terminal() {
		// nothing to attach until the payment settles
		c.logger.Info("Ignoring non-terminal settlement",
			zap.String("order_id", evt.OrderID),
			zap.String("status", evt.Status),
		)
		return nil
	}

	order, err := c.ledger.FindByRemoteOrderID(ctx, evt.OrderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		c.logger.Warn("Settlement for unknown order", zap.String("order_id", evt.OrderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("find order %s: %w", evt.OrderID, err)
	}
	if !state.Supersedes(order.PaymentStatus) {
		c.logger.Info("Ignoring stale settlement",
			zap.String("local_id", order.LocalID),
			zap.String("current", order.PaymentStatus),
			zap.String("status", string(state)),
		)
		return nil
	}

	if err := c.ledger.AttachPaymentStatus(ctx, order.LocalID, string(state)); err != nil {
		return fmt.Errorf("attach payment status to %s: %w", order.LocalID, err)
	}
	c.logger.Info("Payment status attached",
		zap.String("local_id", order.LocalID),
		zap.String("remote_order_id", evt.OrderID),
		zap.String("payment_status", string(state)),
	)
	if c.metrics != nil {
		if err := c.metrics.RecordCount(ctx, aws_pkg.MetricPaymentSettled, map[string]string{"Status": string(state)}); err != nil {
			c.logger.Warn("Failed to record metric", zap.Error(err))
		}
	}
	return nil
}
