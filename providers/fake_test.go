package providers

import (
	"context"
	"testing"

	"checkout-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeRegistry_CallLogIsBounded(t *testing.T) {
	f := NewFakeRegistry()
	ctx := context.Background()

	for i := 0; i < maxRecordedCalls*3; i++ {
		require.NoError(t, f.BindShippingAddress(ctx, "client-1", models.ShippingAddress{Line1: "1 Main St"}))
	}
	_, err := f.CreateOrder(ctx, "client-1")
	require.NoError(t, err)

	calls := f.Calls()
	assert.Len(t, calls, maxRecordedCalls)
	assert.Equal(t, "create_order", calls[len(calls)-1])
}

func TestFakeRegistry_ScriptedThenDefaults(t *testing.T) {
	f := NewFakeRegistry()
	f.OrderIDs = []string{"RO-1"}
	f.Statuses = []models.PaymentState{models.PaymentPending}
	ctx := context.Background()

	first, err := f.CreateOrder(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, "RO-1", first.OrderID)

	second, err := f.CreateOrder(ctx, "client-1")
	require.NoError(t, err)
	assert.Regexp(t, `^FAKE-[0-9A-F]{8}$`, second.OrderID)

	state, err := f.GetPaymentStatus(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, state)
	state, err = f.GetPaymentStatus(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, state)
}
