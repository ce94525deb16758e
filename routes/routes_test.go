package routes_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"checkout-service/config"
	"checkout-service/controllers"
	"checkout-service/models"
	"checkout-service/routes"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type noopSvc struct{}

func (noopSvc) Checkout(context.Context, string, models.OrderIntent) (*services.CheckoutResult, error) {
	return nil, nil
}
func (noopSvc) GetOrder(context.Context, string, string) (*models.LocalOrder, error) {
	return &models.LocalOrder{LocalID: "RO-1"}, nil
}
func (noopSvc) ListOrders(context.Context, string, int, int) ([]models.LocalOrder, int64, error) {
	return nil, 0, nil
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		ServiceName:        "checkout-service",
		CORSAllowedOrigins: []string{"https://shop.example.com"},
		RateLimitPerMinute: 60,
		RateLimitBurst:     5,
	}
	r := routes.NewRouter(cfg, controllers.NewCheckoutController(noopSvc{}, zap.NewNop()), zap.NewNop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "checkout-service")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders?client_id=c-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/RO-1?client_id=c-1", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/checkout", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
