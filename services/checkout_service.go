package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"
	aws_pkg "checkout-service/pkg/aws"
	"checkout-service/repository"

	"go.uber.org/zap"
)

// Checkout outcomes shown to the customer.
const (
	OutcomeOrderConfirmed = "ORDER_CONFIRMED"
	OutcomeOrderReceived  = "ORDER_RECEIVED"
)

const DefaultIdempotencyTTL = 24 * time.Hour

// CheckoutResult is what a finished checkout produced. Cause is set on
// ORDER_RECEIVED and explains why the order could not be confirmed.
type CheckoutResult struct {
	Outcome  string
	Order    *models.LocalOrder
	Cause    error
	Replayed bool
}

// MetricsRecorder is the subset of aws_pkg.MetricsClient used here.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, d time.Duration, dimensions map[string]string) error
}

// CheckoutService defines the checkout business logic.
type CheckoutService interface {
	Checkout(ctx context.Context, idempotencyKey string, intent models.OrderIntent) (*CheckoutResult, error)
	GetOrder(ctx context.Context, clientID, localID string) (*models.LocalOrder, error)
	ListOrders(ctx context.Context, clientID string, page, limit int) ([]models.LocalOrder, int64, error)
}

// CheckoutDeps wires a CheckoutService. Idempotency, SNS and Metrics are
// optional.
type CheckoutDeps struct {
	Coordinator    *OrderCoordinator
	Payments       *PaymentPoller
	Fallback       *FallbackRecorder
	Ledger         repository.OrderLedger
	Idempotency    repository.IdempotencyStore
	IdempotencyTTL time.Duration
	SNS            aws_pkg.SNSPublisher
	SNSTopicArn    string
	Metrics        MetricsRecorder
	Now            func() time.Time
	Logger         *zap.Logger
}

type checkoutServiceImpl struct {
	coordinator *OrderCoordinator
	payments    *PaymentPoller
	fallback    *FallbackRecorder
	ledger      repository.OrderLedger
	idem        repository.IdempotencyStore
	idemTTL     time.Duration
	snsClient   aws_pkg.SNSPublisher
	snsTopicArn string
	metrics     MetricsRecorder
	now         func() time.Time
	logger      *zap.Logger
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(d CheckoutDeps) CheckoutService {
	s := &checkoutServiceImpl{
		coordinator: d.Coordinator,
		payments:    d.Payments,
		fallback:    d.Fallback,
		ledger:      d.Ledger,
		idem:        d.Idempotency,
		idemTTL:     d.IdempotencyTTL,
		snsClient:   d.SNS,
		snsTopicArn: d.SNSTopicArn,
		metrics:     d.Metrics,
		now:         d.Now,
		logger:      d.Logger,
	}
	if s.idemTTL <= 0 {
		s.idemTTL = DefaultIdempotencyTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.fallback == nil {
		s.fallback = NewFallbackRecorder(s.now)
	}
	return s
}

// Checkout turns the intent into exactly one ledger row: a CONFIRMED order
// when the registry accepted it and the payment did not terminally fail, a
// PENDING_SYNC order otherwise. Intent validation errors return before any
// remote call or write. A failed ledger write returns a Ledger error.
func (s *checkoutServiceImpl) Checkout(ctx context.Context, idempotencyKey string, intent models.OrderIntent) (*CheckoutResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	if idempotencyKey != "" && s.idem != nil {
		key := idempotencyScope(intent.ClientID, idempotencyKey)
		fingerprint := intent.Fingerprint()
		replay, reserved, err := s.reserve(ctx, key, fingerprint, intent)
		if err != nil || replay != nil {
			return replay, err
		}
		if reserved {
			var result *CheckoutResult
			defer func() { s.settleKey(key, fingerprint, result) }()
			result, err = s.checkout(ctx, intent)
			return result, err
		}
	}
	return s.checkout(ctx, intent)
}

func (s *checkoutServiceImpl) checkout(ctx context.Context, intent models.OrderIntent) (*CheckoutResult, error) {
	start := s.now()

	res, err := s.resolve(ctx, intent)
	if err != nil {
		return nil, apperrors.Ledger(err)
	}
	draft, outcome := res.order, res.outcome

	// the row is written even when the caller has gone away
	writeCtx := context.WithoutCancel(ctx)
	if err := s.ledger.Record(writeCtx, draft); err != nil {
		s.logger.Error("Failed to record order",
			zap.String("local_id", draft.LocalID),
			zap.String("client_id", draft.ClientID),
			zap.Error(err),
		)
		s.recordCount(writeCtx, aws_pkg.MetricOrdersFailed, nil)
		return nil, apperrors.Ledger(err)
	}

	s.logger.Info("Checkout finished",
		zap.String("outcome", outcome),
		zap.String("local_id", draft.LocalID),
		zap.String("status", draft.Status),
		zap.String("payment_status", draft.PaymentStatus),
	)

	event := models.EventOrderConfirmed
	if outcome == OutcomeOrderReceived {
		event = models.EventOrderReceived
	}
	s.publishEvent(writeCtx, models.OrderEvent{
		Event:         event,
		LocalID:       draft.LocalID,
		RemoteOrderID: draft.RemoteOrderID,
		Status:        draft.Status,
		PaymentStatus: draft.PaymentStatus,
		ClientID:      draft.ClientID,
		TotalAmount:   draft.TotalAmount,
		Currency:      draft.Currency,
		Timestamp:     s.now().UTC(),
	})
	s.recordCount(writeCtx, aws_pkg.MetricCheckoutOutcome, map[string]string{"Outcome": outcome})
	if s.metrics != nil {
		if err := s.metrics.RecordLatency(writeCtx, aws_pkg.MetricCheckoutLatency, s.now().Sub(start), map[string]string{"Outcome": outcome}); err != nil {
			s.logger.Warn("Failed to record metric", zap.Error(err))
		}
	}

	return &CheckoutResult{Outcome: outcome, Order: draft, Cause: res.cause}, nil
}

type resolution struct {
	order   *models.LocalOrder
	outcome string
	cause   error
}

// resolve runs the remote branch and returns the draft to record. The error
// return is reserved for failures to build a draft at all.
func (s *checkoutServiceImpl) resolve(ctx context.Context, intent models.OrderIntent) (resolution, error) {
	remote, err := s.coordinator.PlaceOrder(ctx, intent)
	if err != nil {
		return s.draftFallback(intent, nil, nil, err)
	}
	remoteID := remote.OrderID

	paymentID, err := s.payments.Initiate(ctx, remoteID, intent.Total(), intent.Currency, intent.ClientID)
	if err != nil {
		return s.draftFallback(intent, &remoteID, nil, err)
	}

	outcome, err := s.payments.Await(ctx, paymentID)
	if err != nil {
		return s.draftFallback(intent, &remoteID, &paymentID, err)
	}

	createdAt := remote.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	order, err := models.NewLocalOrder(remoteID, intent, createdAt)
	if err != nil {
		return resolution{}, err
	}
	order.RemoteOrderID = &remoteID
	order.PaymentID = &paymentID
	order.Status = models.OrderStatusConfirmed
	order.PaymentStatus = string(outcome.State)
	if outcome.Exhausted {
		s.logger.Warn("Confirming order with payment still pending",
			zap.String("remote_order_id", remoteID),
			zap.String("payment_id", paymentID),
		)
	}
	return resolution{order: order, outcome: OutcomeOrderConfirmed}, nil
}

func (s *checkoutServiceImpl) draftFallback(intent models.OrderIntent, remoteID, paymentID *string, cause error) (resolution, error) {
	s.logger.Warn("Falling back to local order",
		zap.String("client_id", intent.ClientID),
		zap.String("kind", apperrors.KindOf(cause).String()),
		zap.Error(cause),
	)
	order, err := s.fallback.Draft(intent, remoteID, paymentID, cause)
	if err != nil {
		return resolution{}, err
	}
	return resolution{order: order, outcome: OutcomeOrderReceived, cause: cause}, nil
}

// idempotencyScope namespaces a client-supplied key by client, so two
// clients choosing the same key never see each other's orders.
func idempotencyScope(clientID, key string) string {
	return clientID + ":" + key
}

// reserve claims the idempotency key. It returns a replay result when the
// key already produced an order for the same purchase, and reserved=false
// when the store is unreachable (the checkout then proceeds without a key).
func (s *checkoutServiceImpl) reserve(ctx context.Context, key, fingerprint string, intent models.OrderIntent) (*CheckoutResult, bool, error) {
	rec, acquired, err := s.idem.Reserve(ctx, key, fingerprint, s.idemTTL)
	if err != nil {
		s.logger.Warn("Idempotency store unavailable", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	if acquired {
		return nil, true, nil
	}
	if rec.Fingerprint != "" && rec.Fingerprint != fingerprint {
		s.logger.Warn("Idempotency key reused for a different checkout", zap.String("key", key))
		return nil, false, apperrors.KeyReused("idempotency key was already used for a different checkout")
	}
	if rec.InFlight() {
		return nil, false, apperrors.Conflict(apperrors.ReasonCheckoutInProgress, "a checkout with this idempotency key is already in progress")
	}

	order, err := s.ledger.FindByLocalID(ctx, rec.LocalID)
	if err != nil {
		s.logger.Error("Failed to load replayed order", zap.String("key", key), zap.String("local_id", rec.LocalID), zap.Error(err))
		return nil, false, apperrors.New(http.StatusInternalServerError, apperrors.KindTransient, "", "failed to load order", err)
	}
	if order.ClientID != intent.ClientID {
		s.logger.Warn("Idempotency key points at another client's order", zap.String("key", key), zap.String("local_id", order.LocalID))
		return nil, false, apperrors.KeyReused("idempotency key was already used for a different checkout")
	}
	outcome := OutcomeOrderConfirmed
	if order.Status == models.OrderStatusPendingSync {
		outcome = OutcomeOrderReceived
	}
	s.logger.Info("Replaying checkout", zap.String("key", key), zap.String("local_id", order.LocalID))
	return &CheckoutResult{Outcome: outcome, Order: order, Replayed: true}, false, nil
}

func (s *checkoutServiceImpl) settleKey(key, fingerprint string, result *CheckoutResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	if result != nil && result.Order != nil {
		err = s.idem.Complete(ctx, key, fingerprint, result.Order.LocalID, s.idemTTL)
	} else {
		err = s.idem.Release(ctx, key)
	}
	if err != nil {
		s.logger.Warn("Failed to settle idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// GetOrder returns one of the client's orders.
func (s *checkoutServiceImpl) GetOrder(ctx context.Context, clientID, localID string) (*models.LocalOrder, error) {
	order, err := s.ledger.FindByLocalID(ctx, localID)
	if errors.Is(err, repository.ErrOrderNotFound) || (err == nil && order.ClientID != clientID) {
		return nil, apperrors.NotFound("order not found")
	}
	if err != nil {
		s.logger.Error("Failed to load order", zap.String("local_id", localID), zap.Error(err))
		return nil, apperrors.New(http.StatusInternalServerError, apperrors.KindTransient, "", "failed to load order", err)
	}
	return order, nil
}

// ListOrders returns a page of the client's orders, newest first.
func (s *checkoutServiceImpl) ListOrders(ctx context.Context, clientID string, page, limit int) ([]models.LocalOrder, int64, error) {
	if clientID == "" {
		return nil, 0, apperrors.ErrMissingClient
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	orders, total, err := s.ledger.FindByClientID(ctx, clientID, page, limit)
	if err != nil {
		s.logger.Error("Failed to list orders", zap.String("client_id", clientID), zap.Error(err))
		return nil, 0, apperrors.New(http.StatusInternalServerError, apperrors.KindTransient, "", "failed to list orders", err)
	}
	return orders, total, nil
}

// publishEvent marshals an event and publishes it to SNS (non-fatal on error).
func (s *checkoutServiceImpl) publishEvent(ctx context.Context, event models.OrderEvent) {
	if s.snsClient == nil || s.snsTopicArn == "" {
		s.logger.Debug("SNS not configured, skipping event publish")
		return
	}
	b, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal SNS event", zap.Error(err))
		return
	}
	if err := s.snsClient.Publish(ctx, s.snsTopicArn, b); err != nil {
		s.logger.Error("Failed to publish SNS event", zap.String("event", event.Event), zap.Error(err))
		return
	}
	s.logger.Info("Published SNS event", zap.String("event", event.Event), zap.String("local_id", event.LocalID))
}

func (s *checkoutServiceImpl) recordCount(ctx context.Context, name string, dims map[string]string) {
	if s.metrics == nil {
		return
	}
	if err := s.metrics.RecordCount(ctx, name, dims); err != nil {
		s.logger.Warn("Failed to record metric", zap.String("metric", name), zap.Error(err))
	}
}
