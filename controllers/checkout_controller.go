package controllers

import (
	"net/http"
	"strconv"

	apperrors "checkout-service/errors"
	"checkout-service/logger"
	"checkout-service/models"
	"checkout-service/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultCurrency = "USD"

// CheckoutRequest is the POST /checkout body.
type CheckoutRequest struct {
	ClientID string            `json:"client_id"`
	Customer models.Customer   `json:"customer"`
	Items    []models.CartItem `json:"items"`
	Address  struct {
		Line1       string `json:"address_line1"`
		Line2       string `json:"address_line2"`
		City        string `json:"city"`
		State       string `json:"state"`
		PostalCode  string `json:"postal_code"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"shipping_address"`
	Currency string `json:"currency"`
}

// Intent converts the request into a normalized OrderIntent.
func (r CheckoutRequest) Intent() models.OrderIntent {
	currency := r.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	return models.OrderIntent{
		ClientID: r.ClientID,
		Customer: r.Customer,
		Items:    r.Items,
		Address: models.NewShippingAddress(
			r.Address.Line1, r.Address.Line2, r.Address.City, r.Address.State,
			r.Address.PostalCode, r.Address.Country, r.Address.CountryCode,
		),
		Currency: currency,
	}
}

// CheckoutController handles HTTP requests for checkout and order lookup.
type CheckoutController struct {
	checkoutService services.CheckoutService
	logger          *zap.Logger
}

// NewCheckoutController creates a new CheckoutController.
func NewCheckoutController(svc services.CheckoutService, log *zap.Logger) *CheckoutController {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckoutController{checkoutService: svc, logger: log}
}

// Checkout handles POST /checkout
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	var req CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	result, err := cc.checkoutService.Checkout(ctx.Request.Context(), ctx.GetHeader("Idempotency-Key"), req.Intent())
	if err != nil {
		cc.respondError(ctx, err)
		return
	}

	if result.Replayed {
		ctx.Header("Idempotent-Replayed", "true")
	}

	if result.Outcome == services.OutcomeOrderConfirmed {
		ctx.JSON(http.StatusCreated, gin.H{
			"outcome": result.Outcome,
			"message": "Order Confirmed",
			"order":   result.Order,
		})
		return
	}

	body := gin.H{
		"outcome": result.Outcome,
		"message": "Order Received",
		"order":   result.Order,
	}
	if result.Cause != nil {
		body["reason"] = result.Cause.Error()
		body["retryable"] = apperrors.IsRetryable(result.Cause)
	}
	ctx.JSON(http.StatusAccepted, body)
}

// GetOrder handles GET /orders/:local_id?client_id=
func (cc *CheckoutController) GetOrder(ctx *gin.Context) {
	clientID := ctx.Query("client_id")
	if clientID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return
	}

	order, err := cc.checkoutService.GetOrder(ctx.Request.Context(), clientID, ctx.Param("local_id"))
	if err != nil {
		cc.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

// ListOrders handles GET /orders?client_id=&page=&limit=
func (cc *CheckoutController) ListOrders(ctx *gin.Context) {
	clientID := ctx.Query("client_id")
	if clientID == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "client_id is required"})
		return
	}
	page, limit := parsePaginationParams(ctx)

	orders, total, err := cc.checkoutService.ListOrders(ctx.Request.Context(), clientID, page, limit)
	if err != nil {
		cc.respondError(ctx, err)
		return
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	ctx.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"meta": gin.H{
			"page":        page,
			"limit":       limit,
			"total":       total,
			"total_pages": totalPages,
		},
	})
}

func (cc *CheckoutController) respondError(ctx *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code >= http.StatusInternalServerError {
		logger.FromContext(ctx, cc.logger).Error("Request failed",
			zap.String("path", ctx.FullPath()),
			zap.Error(err),
		)
	}
	if !ok {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	body := gin.H{"error": appErr.Message}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	if appErr.Kind == apperrors.KindLedger {
		body["outcome"] = "ORDER_FAILED"
		body["message"] = "Order Failed"
	}
	ctx.JSON(appErr.Code, body)
}

// parsePaginationParams extracts and validates page/limit query params.
func parsePaginationParams(ctx *gin.Context) (int, int) {
	const maxLimit = 100
	pageInt, limitInt := 1, 10
	if p, err := strconv.Atoi(ctx.DefaultQuery("page", "1")); err == nil && p > 0 {
		pageInt = p
	}
	if l, err := strconv.Atoi(ctx.DefaultQuery("limit", "10")); err == nil && l > 0 {
		if l > maxLimit {
			l = maxLimit
		}
		limitInt = l
	}
	return pageInt, limitInt
}
