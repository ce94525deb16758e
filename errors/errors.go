package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure by how the checkout pipeline must react to it.
type Kind int

const (
	KindTransient Kind = iota
	KindValidation
	KindAuthFailure
	KindPaymentTerminal
	KindLedger
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	case KindAuthFailure:
		return "auth_failure"
	case KindPaymentTerminal:
		return "payment_terminal"
	case KindLedger:
		return "ledger"
	default:
		return "unknown"
	}
}

// Machine-readable reasons reported by the registry in error bodies.
const (
	ReasonValidationFailed        = "VALIDATION_FAILED"
	ReasonMissingRequiredField    = "MISSING_REQUIRED_FIELD"
	ReasonAuthenticationFailed    = "AUTHENTICATION_FAILED"
	ReasonResourceInactive        = "RESOURCE_INACTIVE"
	ReasonShippingAddressRequired = "SHIPPING_ADDRESS_REQUIRED"
	ReasonInvalidAmount           = "INVALID_AMOUNT"
	ReasonEmptyCart               = "EMPTY_CART"
	ReasonMissingClient           = "MISSING_CLIENT"
	ReasonPaymentFailed           = "PAYMENT_FAILED"
	ReasonPaymentCancelled        = "PAYMENT_CANCELLED"
	ReasonLedgerWrite             = "LEDGER_WRITE_FAILED"
	ReasonOrderNotFound           = "ORDER_NOT_FOUND"
	ReasonCheckoutInProgress      = "CHECKOUT_IN_PROGRESS"
	ReasonIdempotencyKeyReused    = "IDEMPOTENCY_KEY_REUSED"
)

// Error represents an application error.
//
// Code is the HTTP status the caller should see (or the status observed at
// the remote boundary). Retryable is decided once, where the error is first
// parsed, so nothing downstream needs to inspect messages.
type Error struct {
	Code      int    `json:"code"`
	Kind      Kind   `json:"-"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"-"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by reason so errors.Is works on freshly built values.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Reason == "" {
		return false
	}
	return e.Reason == t.Reason
}

// New creates a new Error
func New(code int, kind Kind, reason, message string, err error) *Error {
	return &Error{
		Code:      code,
		Kind:      kind,
		Reason:    reason,
		Message:   message,
		Retryable: kind == KindTransient,
		Err:       err,
	}
}

func Validation(reason, message string) *Error {
	return New(http.StatusBadRequest, KindValidation, reason, message, nil)
}

func AuthFailure(message string) *Error {
	return New(http.StatusUnauthorized, KindAuthFailure, ReasonAuthenticationFailed, message, nil)
}

func Transient(code int, message string, err error) *Error {
	return New(code, KindTransient, "", message, err)
}

func PaymentTerminal(reason, message string) *Error {
	return New(http.StatusPaymentRequired, KindPaymentTerminal, reason, message, nil)
}

func Ledger(err error) *Error {
	return New(http.StatusInternalServerError, KindLedger, ReasonLedgerWrite,
		"we could not save your order; contact support", err)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, KindValidation, ReasonOrderNotFound, message, nil)
}

// Conflict reports a request that clashes with one still being processed.
func Conflict(reason, message string) *Error {
	return New(http.StatusConflict, KindValidation, reason, message, nil)
}

// KeyReused reports an idempotency key presented with a different request
// than the one it was first used for.
func KeyReused(message string) *Error {
	return New(http.StatusUnprocessableEntity, KindValidation, ReasonIdempotencyKeyReused, message, nil)
}

// Sentinels for pre-flight intent validation.
var (
	ErrShippingAddressRequired = Validation(ReasonShippingAddressRequired, "shipping address required")
	ErrEmptyCart               = Validation(ReasonEmptyCart, "cart is empty")
	ErrMissingClient           = Validation(ReasonMissingClient, "missing required field: client_id")
)

// FromHTTPStatus classifies a remote response. Any 4xx is terminal, 401/403
// as an auth failure; everything else is transient. A recognised reason in
// the body overrides the status classification.
func FromHTTPStatus(status int, reason, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%d %s", status, http.StatusText(status))
	}
	reason = strings.ToUpper(strings.TrimSpace(reason))

	switch reason {
	case ReasonAuthenticationFailed:
		return New(status, KindAuthFailure, reason, message, nil)
	case ReasonValidationFailed, ReasonMissingRequiredField, ReasonResourceInactive,
		ReasonShippingAddressRequired, ReasonInvalidAmount:
		return New(status, KindValidation, reason, message, nil)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(status, KindAuthFailure, reason, message, nil)
	case status >= 400 && status < 500:
		return New(status, KindValidation, reason, message, nil)
	default:
		return New(status, KindTransient, reason, message, nil)
	}
}

// As extracts the typed error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether another attempt may succeed. Untyped errors
// (network failures, timeouts surfaced by the transport) count as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return true
}

// KindOf returns the kind of err, defaulting to KindTransient for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindTransient
}
