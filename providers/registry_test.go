package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, handler http.HandlerFunc) *RegistryClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRegistryClient(srv.URL, "test-key", 2*time.Second)
}

func TestRegistry_OrderFlow(t *testing.T) {
	var seen []string
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))

		switch r.URL.Path {
		case "/clients/c-1/shipping-address":
			var body registryAddress
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "1 Main St", body.AddressLine1)
			assert.Equal(t, "Lisbon", body.State)
			w.WriteHeader(http.StatusNoContent)
		case "/clients/c-1/cart":
			var body registryCartRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Len(t, body.Items, 1)
			w.WriteHeader(http.StatusOK)
		case "/clients/c-1/orders":
			_ = json.NewEncoder(w).Encode(map[string]string{"orderId": "RO-1", "createdAt": "2026-10-15T10:00:00Z"})
		}
	})

	ctx := context.Background()
	addr := models.NewShippingAddress("1 Main St", "", "Lisbon", "", "1000", "Portugal", "PT")
	require.NoError(t, client.BindShippingAddress(ctx, "c-1", addr))
	require.NoError(t, client.SubmitCartItems(ctx, "c-1", []models.CartItem{{ProductID: "A", Quantity: 2, UnitPrice: 25}}))
	res, err := client.CreateOrder(ctx, "c-1")
	require.NoError(t, err)

	assert.Equal(t, "RO-1", res.OrderID)
	assert.Equal(t, 2026, res.CreatedAt.Year())
	assert.Equal(t, []string{
		"PUT /clients/c-1/shipping-address",
		"PUT /clients/c-1/cart",
		"POST /clients/c-1/orders",
	}, seen)
}

func TestRegistry_PaymentStatus(t *testing.T) {
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			_ = json.NewEncoder(w).Encode(map[string]string{"paymentId": "P-1"})
		case r.URL.Path == "/payments/P-1":
			_ = json.NewEncoder(w).Encode(map[string]string{"paymentId": "P-1", "status": "paid"})
		}
	})

	id, err := client.CreatePayment(context.Background(), models.PaymentRequest{OrderID: "RO-1", Amount: 50, Currency: "EUR"})
	require.NoError(t, err)
	assert.Equal(t, "P-1", id)

	state, err := client.GetPaymentStatus(context.Background(), "P-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, state)
}

func TestRegistry_ClassifiesClientErrors(t *testing.T) {
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid amount","code":"INVALID_AMOUNT"}`))
	})

	_, err := client.CreatePayment(context.Background(), models.PaymentRequest{OrderID: "RO-1", Amount: -1, Currency: "EUR"})
	require.Error(t, err)
	assert.EqualError(t, err, "400 invalid amount")
	assert.False(t, apperrors.IsRetryable(err))
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ReasonInvalidAmount, e.Reason)
}

func TestRegistry_ClassifiesServerErrors(t *testing.T) {
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.CreateOrder(context.Background(), "c-1")
	require.Error(t, err)
	assert.EqualError(t, err, "503 Service Unavailable")
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRegistry_InactiveClientIsTerminalEvenOn5xx(t *testing.T) {
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"client is inactive","code":"RESOURCE_INACTIVE"}`))
	})

	err := client.BindShippingAddress(context.Background(), "c-1", models.ShippingAddress{Line1: "x"})
	assert.False(t, apperrors.IsRetryable(err))
	assert.EqualError(t, err, "500 client is inactive")
}

func TestRegistry_NetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := NewRegistryClient(srv.URL, "k", time.Second)
	srv.Close()

	err := client.SubmitCartItems(context.Background(), "c-1", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	var e *apperrors.Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, apperrors.KindTransient, e.Kind)
}

func TestRegistry_UnknownPaymentStatus(t *testing.T) {
	client := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "REFUNDED"})
	})
	_, err := client.GetPaymentStatus(context.Background(), "P-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
}
