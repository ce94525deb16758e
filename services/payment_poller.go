package services

import (
	"context"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/retry"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultMaxPolls     = 10
)

// PaymentOutcome is the result of waiting on a payment.
type PaymentOutcome struct {
	PaymentID string
	State     models.PaymentState
	Polls     int
	// Exhausted is set when the poll budget ran out while the payment was
	// still pending.
	Exhausted bool
}

// PaymentPoller creates payments and waits a bounded time for them to settle.
type PaymentPoller struct {
	provider providers.PaymentProvider
	policy   retry.Policy
	interval time.Duration
	maxPolls int
	sleep    retry.Sleeper
	logger   *zap.Logger
}

// PollerOption customises a PaymentPoller.
type PollerOption func(*PaymentPoller)

func WithPollInterval(d time.Duration) PollerOption {
	return func(p *PaymentPoller) { p.interval = d }
}

func WithMaxPolls(n int) PollerOption {
	return func(p *PaymentPoller) {
		if n > 0 {
			p.maxPolls = n
		}
	}
}

// WithPollSleeper replaces the wait between polls; tests pass a no-op.
func WithPollSleeper(s retry.Sleeper) PollerOption {
	return func(p *PaymentPoller) { p.sleep = s }
}

func NewPaymentPoller(provider providers.PaymentProvider, policy retry.Policy, logger *zap.Logger, opts ...PollerOption) *PaymentPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PaymentPoller{
		provider: provider,
		policy:   policy,
		interval: DefaultPollInterval,
		maxPolls: DefaultMaxPolls,
		sleep:    retry.SleepContext,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initiate creates the payment for a remote order as one retryable call.
func (p *PaymentPoller) Initiate(ctx context.Context, remoteOrderID string, amount float64, currency, clientID string) (string, error) {
	req := models.PaymentRequest{
		OrderID:  remoteOrderID,
		ClientID: clientID,
		Amount:   amount,
		Currency: currency,
	}
	id, err := retry.Do(ctx, p.policy, p.logger, "create_payment", func(ctx context.Context) (string, error) {
		return p.provider.CreatePayment(ctx, req)
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("Payment created",
		zap.String("remote_order_id", remoteOrderID),
		zap.String("payment_id", id),
	)
	return id, nil
}

// Await polls the payment status, waiting the interval before every poll.
// PAID returns an outcome, FAILED and CANCELLED return a PaymentTerminal
// error alongside the outcome, and running out of polls while pending
// returns an Exhausted outcome with no error. A failed poll counts as a
// pending tick.
func (p *PaymentPoller) Await(ctx context.Context, paymentID string) (PaymentOutcome, error) {
	out := PaymentOutcome{PaymentID: paymentID, State: models.PaymentPending}

	for out.Polls < p.maxPolls {
		if err := p.sleep(ctx, p.interval); err != nil {
			return out, err
		}
		out.Polls++

		state, err := p.provider.GetPaymentStatus(ctx, paymentID)
		if err != nil {
			p.logger.Warn("Payment status poll failed",
				zap.String("payment_id", paymentID),
				zap.Int("poll", out.Polls),
				zap.Error(err),
			)
			continue
		}
		out.State = state

		switch state {
		case models.PaymentPaid:
			return out, nil
		case models.PaymentFailed:
			return out, apperrors.PaymentTerminal(apperrors.ReasonPaymentFailed, "payment failed")
		case models.PaymentCancelled:
			return out, apperrors.PaymentTerminal(apperrors.ReasonPaymentCancelled, "payment cancelled")
		}
	}

	out.Exhausted = true
	p.logger.Warn("Payment still pending after poll budget",
		zap.String("payment_id", paymentID),
		zap.Int("polls", out.Polls),
	)
	return out, nil
}
