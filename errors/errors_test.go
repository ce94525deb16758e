package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	apperrors "checkout-service/errors"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus_ClientErrorsAreTerminal(t *testing.T) {
	for _, status := range []int{400, 404, 409, 422, 499} {
		e := apperrors.FromHTTPStatus(status, "", "")
		assert.False(t, e.Retryable, "status %d", status)
		assert.Equal(t, apperrors.KindValidation, e.Kind)
	}
}

func TestFromHTTPStatus_AuthStatuses(t *testing.T) {
	e := apperrors.FromHTTPStatus(http.StatusForbidden, "", "forbidden")
	assert.Equal(t, apperrors.KindAuthFailure, e.Kind)
	assert.False(t, e.Retryable)
}

func TestFromHTTPStatus_ServerErrorsAreTransient(t *testing.T) {
	e := apperrors.FromHTTPStatus(http.StatusServiceUnavailable, "", "")
	assert.True(t, e.Retryable)
	assert.Equal(t, "503 Service Unavailable", e.Error())
}

func TestFromHTTPStatus_ReasonOverridesStatus(t *testing.T) {
	e := apperrors.FromHTTPStatus(http.StatusInternalServerError, "resource_inactive", "client inactive")
	assert.False(t, e.Retryable)
	assert.Equal(t, apperrors.ReasonResourceInactive, e.Reason)
	assert.Equal(t, "client inactive", e.Error())
}

func TestIs_MatchesByReasonThroughWrapping(t *testing.T) {
	err := fmt.Errorf("bind shipping address: %w",
		apperrors.FromHTTPStatus(400, apperrors.ReasonShippingAddressRequired, "shipping address required"))
	assert.True(t, stderrors.Is(err, apperrors.ErrShippingAddressRequired))
	assert.False(t, stderrors.Is(err, apperrors.ErrEmptyCart))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, apperrors.IsRetryable(stderrors.New("connection reset")))
	assert.False(t, apperrors.IsRetryable(nil))
	assert.False(t, apperrors.IsRetryable(apperrors.ErrEmptyCart))
	assert.Equal(t, apperrors.KindLedger, apperrors.KindOf(apperrors.Ledger(stderrors.New("disk full"))))
}
