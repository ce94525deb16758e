package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntent() models.OrderIntent {
	return models.OrderIntent{
		ClientID: "client-1",
		Customer: models.Customer{Email: "jane@example.com", Name: "Jane Doe"},
		Items: []models.CartItem{
			{ProductID: "A", Quantity: 2, UnitPrice: 25.00},
			{ProductID: "B", Quantity: 1, UnitPrice: 9.99},
		},
		Address:  models.NewShippingAddress("1 Main St", "", "Lisbon", "", "1000-001", "Portugal", "pt"),
		Currency: "EUR",
	}
}

func TestNewShippingAddress_StateDefaultsToCity(t *testing.T) {
	addr := models.NewShippingAddress(" 1 Main St ", "", "Lisbon", "", "1000", "Portugal", "pt")
	assert.Equal(t, "Lisbon", addr.State)
	assert.Equal(t, "PT", addr.CountryCode)
	assert.Equal(t, "1 Main St", addr.Line1)

	withState := models.NewShippingAddress("1 Main St", "", "Austin", "TX", "78701", "USA", "US")
	assert.Equal(t, "TX", withState.State)
}

func TestOrderIntent_Total(t *testing.T) {
	assert.Equal(t, 59.99, validIntent().Total())
}

func TestOrderIntent_Validate(t *testing.T) {
	assert.NoError(t, validIntent().Validate())

	noAddr := validIntent()
	noAddr.Address.Line1 = "   "
	assert.True(t, errors.Is(noAddr.Validate(), apperrors.ErrShippingAddressRequired))

	empty := validIntent()
	empty.Items = nil
	assert.True(t, errors.Is(empty.Validate(), apperrors.ErrEmptyCart))

	noClient := validIntent()
	noClient.ClientID = ""
	assert.True(t, errors.Is(noClient.Validate(), apperrors.ErrMissingClient))

	badQty := validIntent()
	badQty.Items[0].Quantity = 0
	err := badQty.Validate()
	require.Error(t, err)
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindValidation, e.Kind)
	assert.False(t, e.Retryable)
}

func TestParsePaymentState(t *testing.T) {
	s, ok := models.ParsePaymentState("canceled")
	assert.True(t, ok)
	assert.Equal(t, models.PaymentCancelled, s)

	_, ok = models.ParsePaymentState("refunded")
	assert.False(t, ok)
}

func TestNewLocalOrder_SnapshotsIntent(t *testing.T) {
	intent := validIntent()
	created := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	order, err := models.NewLocalOrder("LOCAL-20261015-AB12", intent, created)
	require.NoError(t, err)

	intent.Items[0].Quantity = 99 // later edits must not leak into the snapshot

	items, err := order.Items()
	require.NoError(t, err)
	assert.Equal(t, 2, items[0].Quantity)
	addr, err := order.ShippingAddress()
	require.NoError(t, err)
	assert.Equal(t, "Lisbon", addr.State)
	assert.Equal(t, "PT", order.CountryCode)
	assert.Equal(t, 59.99, order.TotalAmount)

	raw, err := json.Marshal(order)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "LOCAL-20261015-AB12", out["local_id"])
	assert.Nil(t, out["remote_order_id"])
	assert.Len(t, out["items"], 2)
}

func TestPaymentState_Supersedes(t *testing.T) {
	cases := []struct {
		next    models.PaymentState
		current string
		want    bool
	}{
		{models.PaymentPaid, models.PaymentStatusPending, true},
		{models.PaymentFailed, models.PaymentStatusAwaitingProcessing, true},
		{models.PaymentPending, models.PaymentStatusAwaitingProcessing, false},
		{models.PaymentPaid, models.PaymentStatusPaid, false},
		{models.PaymentFailed, models.PaymentStatusPaid, false},
		{models.PaymentCancelled, models.PaymentStatusPaid, false},
		{models.PaymentCancelled, models.PaymentStatusFailed, false},
		{models.PaymentPaid, models.PaymentStatusCancelled, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.next.Supersedes(tc.current), "%s over %s", tc.next, tc.current)
	}
}

func TestOrderIntent_Fingerprint(t *testing.T) {
	base := validIntent()
	assert.Equal(t, base.Fingerprint(), validIntent().Fingerprint())
	assert.Len(t, base.Fingerprint(), 64)

	otherClient := validIntent()
	otherClient.ClientID = "client-2"
	assert.NotEqual(t, base.Fingerprint(), otherClient.Fingerprint())

	otherCart := validIntent()
	otherCart.Items[0].Quantity = 3
	assert.NotEqual(t, base.Fingerprint(), otherCart.Fingerprint())

	otherAddress := validIntent()
	otherAddress.Address.PostalCode = "2000-001"
	assert.NotEqual(t, base.Fingerprint(), otherAddress.Fingerprint())
}
