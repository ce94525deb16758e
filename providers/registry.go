package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "checkout-service/errors"
	"checkout-service/models"
)

// RegistryClient implements Registry over the registry's JSON HTTP API.
// Every failure leaves this type already classified as an *errors.Error.
type RegistryClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRegistryClient creates a new RegistryClient.
func NewRegistryClient(baseURL, apiKey string, timeout time.Duration) *RegistryClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ---- wire structs ----

type registryAddress struct {
	AddressLine1 string `json:"address1"`
	AddressLine2 string `json:"address2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	CountryCode  string `json:"countryCode"`
}

type registryCartItem struct {
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type registryCartRequest struct {
	Items []registryCartItem `json:"items"`
}

type registryOrderResponse struct {
	OrderID   string `json:"orderId"`
	CreatedAt string `json:"createdAt"`
}

type registryPaymentRequest struct {
	OrderID  string  `json:"orderId"`
	ClientID string  `json:"clientId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type registryPaymentResponse struct {
	PaymentID string `json:"paymentId"`
}

type registryPaymentStatusResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

type registryErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ---- Registry implementation ----

func (c *RegistryClient) BindShippingAddress(ctx context.Context, clientID string, a models.ShippingAddress) error {
	body := registryAddress{
		AddressLine1: a.Line1,
		AddressLine2: a.Line2,
		City:         a.City,
		State:        a.State,
		PostalCode:   a.PostalCode,
		Country:      a.Country,
		CountryCode:  a.CountryCode,
	}
	return c.doRequest(ctx, http.MethodPut, "/clients/"+url.PathEscape(clientID)+"/shipping-address", body, nil)
}

func (c *RegistryClient) SubmitCartItems(ctx context.Context, clientID string, items []models.CartItem) error {
	body := registryCartRequest{Items: make([]registryCartItem, 0, len(items))}
	for _, item := range items {
		body.Items = append(body.Items, registryCartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return c.doRequest(ctx, http.MethodPut, "/clients/"+url.PathEscape(clientID)+"/cart", body, nil)
}

func (c *RegistryClient) CreateOrder(ctx context.Context, clientID string) (models.RemoteOrderResult, error) {
	var resp registryOrderResponse
	if err := c.doRequest(ctx, http.MethodPost, "/clients/"+url.PathEscape(clientID)+"/orders", struct{}{}, &resp); err != nil {
		return models.RemoteOrderResult{}, err
	}
	if resp.OrderID == "" {
		return models.RemoteOrderResult{}, apperrors.Transient(http.StatusBadGateway, "registry returned an order without id", nil)
	}

	createdAt := time.Now().UTC()
	if resp.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, resp.CreatedAt); err == nil {
			createdAt = t
		}
	}
	return models.RemoteOrderResult{OrderID: resp.OrderID, CreatedAt: createdAt}, nil
}

func (c *RegistryClient) CreatePayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	body := registryPaymentRequest{
		OrderID:  req.OrderID,
		ClientID: req.ClientID,
		Amount:   req.Amount,
		Currency: req.Currency,
	}
	var resp registryPaymentResponse
	if err := c.doRequest(ctx, http.MethodPost, "/payments", body, &resp); err != nil {
		return "", err
	}
	if resp.PaymentID == "" {
		return "", apperrors.Transient(http.StatusBadGateway, "registry returned a payment without id", nil)
	}
	return resp.PaymentID, nil
}

func (c *RegistryClient) GetPaymentStatus(ctx context.Context, paymentID string) (models.PaymentState, error) {
	var resp registryPaymentStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return "", err
	}
	state, ok := models.ParsePaymentState(resp.Status)
	if !ok {
		return "", apperrors.Transient(http.StatusBadGateway,
			fmt.Sprintf("registry returned unknown payment status %q", resp.Status), nil)
	}
	return state, nil
}

// ---- HTTP helper ----

func (c *RegistryClient) doRequest(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperrors.Validation(apperrors.ReasonValidationFailed, "marshal request: "+err.Error())
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return apperrors.Validation(apperrors.ReasonValidationFailed, "create request: "+err.Error())
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transient(http.StatusServiceUnavailable, fmt.Sprintf("registry %s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Transient(http.StatusBadGateway, "read registry response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyResponse(resp.StatusCode, respBytes)
	}

	if out != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, out); err != nil {
			return apperrors.Transient(http.StatusBadGateway, "decode registry response", err)
		}
	}
	return nil
}

// classifyResponse turns a non-2xx response into a tagged error, keeping the
// registry's own message whenever it sent one.
func classifyResponse(status int, body []byte) error {
	var er registryErrorResponse
	_ = json.Unmarshal(body, &er)

	msg := er.Message
	if msg == "" {
		msg = er.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 512 || strings.HasPrefix(msg, "<") {
			msg = ""
		}
	}
	if msg != "" {
		msg = fmt.Sprintf("%d %s", status, msg)
	}
	return apperrors.FromHTTPStatus(status, er.Code, msg)
}
