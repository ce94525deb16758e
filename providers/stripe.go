package providers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	apperrors "checkout-service/errors"
	"checkout-service/models"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// paymentIntents is the slice of the Stripe client this provider needs.
type paymentIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProvider implements PaymentProvider with Stripe PaymentIntents.
// Intents are created with an idempotency key derived from the remote order
// id, so a retried create never produces a second charge.
type StripeProvider struct {
	intents paymentIntents
}

func NewStripeProvider(secretKey string) *StripeProvider {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProvider{intents: sc.PaymentIntents}
}

func newStripeProviderWith(intents paymentIntents) *StripeProvider {
	return &StripeProvider{intents: intents}
}

var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true, "krw": true,
	"mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true, "vuv": true, "xaf": true,
	"xof": true, "xpf": true,
}

// minorUnits converts a decimal amount to the integer Stripe expects.
func minorUnits(amount float64, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToLower(currency)] {
		return int64(math.Round(amount))
	}
	return int64(math.Round(amount * 100))
}

func (s *StripeProvider) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	amount := minorUnits(req.Amount, req.Currency)
	if amount <= 0 {
		return "", apperrors.Validation(apperrors.ReasonInvalidAmount, "invalid amount")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout-payment-" + req.OrderID)
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("client_id", req.ClientID)

	pi, err := s.intents.New(params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return pi.ID, nil
}

func (s *StripeProvider) GetPaymentStatus(ctx context.Context, paymentID string) (models.PaymentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(paymentID, params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	return stateFromIntent(pi), nil
}

// stateFromIntent maps Stripe's intent lifecycle onto PaymentState. An intent
// sent back to requires_payment_method after an attempt has failed.
func stateFromIntent(pi *stripe.PaymentIntent) models.PaymentState {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentPaid
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return models.PaymentFailed
		}
		return models.PaymentPending
	default:
		return models.PaymentPending
	}
}

func classifyStripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		status := se.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		msg := se.Msg
		if msg == "" {
			msg = string(se.Code)
		}
		reason := ""
		if se.Type == stripe.ErrorTypeInvalidRequest && se.Param == "amount" {
			reason = apperrors.ReasonInvalidAmount
		}
		return apperrors.FromHTTPStatus(status, reason, msg)
	}
	return apperrors.Transient(http.StatusServiceUnavailable, "stripe request failed", err)
}
