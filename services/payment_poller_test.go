package services_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"
	"checkout-service/providers"
	"checkout-service/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPoller(reg *providers.FakeRegistry, s *sleepRecorder, opts ...services.PollerOption) *services.PaymentPoller {
	opts = append([]services.PollerOption{services.WithPollSleeper(s.sleep)}, opts...)
	return services.NewPaymentPoller(reg, noWaitPolicy(s), zap.NewNop(), opts...)
}

func TestInitiate_ReturnsPaymentID(t *testing.T) {
	reg := providers.NewFakeRegistry()
	reg.PaymentIDs = []string{"P-1"}

	id, err := newPoller(reg, &sleepRecorder{}).Initiate(context.Background(), "RO-1", 50, "EUR", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "P-1", id)
}

func TestInitiate_RetriesTransientFailures(t *testing.T) {
	reg := providers.NewFakeRegistry()
	reg.PaymentErrs = []error{apperrors.FromHTTPStatus(http.StatusBadGateway, "", "")}
	reg.PaymentIDs = []string{"P-2"}

	id, err := newPoller(reg, &sleepRecorder{}).Initiate(context.Background(), "RO-1", 50, "EUR", "client-1")
	require.NoError(t, err)
	assert.Equal(t, "P-2", id)
	assert.Equal(t, 2, reg.CallCount("create_payment"))
}

func TestAwait_TerminatesOnEveryTerminalState(t *testing.T) {
	cases := map[string]struct {
		statuses  []models.PaymentState
		wantState models.PaymentState
		wantErr   error
		wantPolls int
	}{
		"paid":      {[]models.PaymentState{models.PaymentPending, models.PaymentPaid}, models.PaymentPaid, nil, 2},
		"failed":    {[]models.PaymentState{models.PaymentFailed}, models.PaymentFailed, apperrors.PaymentTerminal(apperrors.ReasonPaymentFailed, ""), 1},
		"cancelled": {[]models.PaymentState{models.PaymentPending, models.PaymentPending, models.PaymentCancelled}, models.PaymentCancelled, apperrors.PaymentTerminal(apperrors.ReasonPaymentCancelled, ""), 3},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			reg := providers.NewFakeRegistry()
			reg.Statuses = tc.statuses

			out, err := newPoller(reg, &sleepRecorder{}).Await(context.Background(), "P-1")
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, apperrors.KindPaymentTerminal, apperrors.KindOf(err))
			}
			assert.Equal(t, tc.wantState, out.State)
			assert.Equal(t, tc.wantPolls, out.Polls)
			assert.False(t, out.Exhausted)
		})
	}
}

func TestAwait_ExhaustedWhilePending(t *testing.T) {
	reg := providers.NewFakeRegistry()
	reg.DefaultState = models.PaymentPending
	sleeps := &sleepRecorder{}

	out, err := newPoller(reg, sleeps).Await(context.Background(), "P-1")
	require.NoError(t, err)
	assert.True(t, out.Exhausted)
	assert.Equal(t, models.PaymentPending, out.State)
	assert.Equal(t, services.DefaultMaxPolls, out.Polls)
	require.Len(t, sleeps.delays, services.DefaultMaxPolls)
	for _, d := range sleeps.delays {
		assert.Equal(t, 1500*time.Millisecond, d)
	}
}

func TestAwait_PollErrorsCountAsPendingTicks(t *testing.T) {
	reg := providers.NewFakeRegistry()
	reg.DefaultState = models.PaymentPending
	reg.StatusErrs = []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}

	out, err := newPoller(reg, &sleepRecorder{}, services.WithMaxPolls(3)).Await(context.Background(), "P-1")
	require.NoError(t, err)
	assert.True(t, out.Exhausted)
	assert.Equal(t, 3, reg.CallCount("payment_status"))
}

func TestAwait_ErrorThenPaid(t *testing.T) {
	reg := providers.NewFakeRegistry()
	reg.StatusErrs = []error{errors.New("timeout")}

	out, err := newPoller(reg, &sleepRecorder{}).Await(context.Background(), "P-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, out.State)
	assert.Equal(t, 2, out.Polls)
}

func TestAwait_StopsOnContextCancel(t *testing.T) {
	reg := providers.NewFakeRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := newPoller(reg, &sleepRecorder{}).Await(ctx, "P-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, out.Polls)
	assert.Empty(t, reg.Calls())
}
