// Package backend is the typed REST client for the remote commerce API:
// catalog reads, payment intent creation, payment verification, and order
// persistence. The API owns all durable state; this client holds none.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	pathPaymentConfig = "/api/payments/config"
	pathCreateOrder   = "/api/payments/create-order"
	pathVerifyPayment = "/api/payments/verify"
	pathOrders        = "/api/orders"
	pathMyOrders      = "/api/orders/user/my-orders"
	pathProducts      = "/api/products"

	maxErrorBodySize = 64 * 1024
)

var (
	// ErrBackendInvalidInput indicates the caller supplied invalid parameters.
	ErrBackendInvalidInput = errors.New("backend: invalid input")
	// ErrBackendUnavailable indicates the API could not be reached or answered 5xx.
	ErrBackendUnavailable = errors.New("backend: unavailable")
	// ErrBackendRejected indicates the API answered with a 4xx rejection.
	ErrBackendRejected = errors.New("backend: rejected")
)

// APIError carries the normalised error envelope the API returns on failure.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status class onto the package sentinels.
func (e *APIError) Unwrap() error {
	if e.Status >= 500 || e.Status == 0 {
		return ErrBackendUnavailable
	}
	return ErrBackendRejected
}

// ClientConfig wires the transport parameters for the API client.
type ClientConfig struct {
	BaseURL    string
	Timeout    time.Duration
	AuthToken  func() string
	HTTPClient *http.Client
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

// Client talks to the commerce API.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewClient validates the configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		token:   cfg.AuthToken,
		logger:  logger,
	}, nil
}

// PaymentConfig identifies the gateway account the storefront checks out
// against.
type PaymentConfig struct {
	KeyID string `json:"keyId"`
}

// GetPaymentConfig fetches the gateway client identification.
func (c *Client) GetPaymentConfig(ctx context.Context) (PaymentConfig, error) {
	var out PaymentConfig
	if err := c.do(ctx, http.MethodGet, pathPaymentConfig, nil, &out); err != nil {
		return PaymentConfig{}, err
	}
	if strings.TrimSpace(out.KeyID) == "" {
		return PaymentConfig{}, &APIError{Status: http.StatusBadGateway, Message: "payment config missing key id"}
	}
	return out, nil
}

// CreatePaymentOrderRequest is the payload for gateway intent creation.
type CreatePaymentOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// PaymentOrder is the gateway order (payment intent) issued by the API.
type PaymentOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreatePaymentOrder asks the API to create a gateway order for the amount.
func (c *Client) CreatePaymentOrder(ctx context.Context, req CreatePaymentOrderRequest) (PaymentOrder, error) {
	if req.Amount <= 0 {
		return PaymentOrder{}, fmt.Errorf("%w: amount must be positive", ErrBackendInvalidInput)
	}
	if strings.TrimSpace(req.Currency) == "" {
		return PaymentOrder{}, fmt.Errorf("%w: currency is required", ErrBackendInvalidInput)
	}
	var out PaymentOrder
	if err := c.do(ctx, http.MethodPost, pathCreateOrder, req, &out); err != nil {
		return PaymentOrder{}, err
	}
	if strings.TrimSpace(out.ID) == "" {
		return PaymentOrder{}, &APIError{Status: http.StatusBadGateway, Message: "payment order missing id"}
	}
	return out, nil
}

// VerifyPaymentRequest carries the gateway outcome for server-side
// signature verification.
type VerifyPaymentRequest struct {
	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`
}

type verifyPaymentResponse struct {
	Success bool `json:"success"`
}

// VerifyPayment asks the API to confirm the outcome is authentic. A false
// result with a nil error means verification was performed and failed.
func (c *Client) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (bool, error) {
	if strings.TrimSpace(req.GatewayOrderID) == "" || strings.TrimSpace(req.PaymentID) == "" {
		return false, fmt.Errorf("%w: gateway order id and payment id are required", ErrBackendInvalidInput)
	}
	var out verifyPaymentResponse
	err := c.do(ctx, http.MethodPost, pathVerifyPayment, req, &out)
	if err != nil {
		var apiErr *APIError
		// A 4xx from the verification endpoint is a definitive "not
		// authentic", not a transport problem.
		if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
			return false, nil
		}
		return false, err
	}
	return out.Success, nil
}

// OrderItem is a line in the persisted order snapshot.
type OrderItem struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

// CreateOrderRequest is the order persistence payload. PaymentReference is
// the deduplication key: repeated calls with the same reference must not be
// observable as distinct orders.
type CreateOrderRequest struct {
	Items            []OrderItem `json:"items"`
	ShippingAddress  string      `json:"shippingAddress"`
	PaymentMethod    string      `json:"paymentMethod"`
	PaymentReference string      `json:"paymentReference"`
	ContactPhone     string      `json:"contactPhone"`
	Notes            string      `json:"notes,omitempty"`
}

type createOrderResponse struct {
	Success bool `json:"success"`
}

// CreateOrder persists the order record.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) error {
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: order requires at least one item", ErrBackendInvalidInput)
	}
	if strings.TrimSpace(req.PaymentReference) == "" {
		return fmt.Errorf("%w: payment reference is required", ErrBackendInvalidInput)
	}
	var out createOrderResponse
	if err := c.do(ctx, http.MethodPost, pathOrders, req, &out); err != nil {
		return err
	}
	if !out.Success {
		return &APIError{Status: http.StatusBadGateway, Message: "order was not accepted"}
	}
	return nil
}

// Product is a catalog entry as the API reports it.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Image    string `json:"image"`
	Category string `json:"category"`
}

// ProductQuery filters and paginates catalog reads.
type ProductQuery struct {
	Category string
	Search   string
	Page     int
	Limit    int
}

// ProductPage is one page of catalog results.
type ProductPage struct {
	Products []Product `json:"products"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
}

// ListProducts reads the catalog.
func (c *Client) ListProducts(ctx context.Context, query ProductQuery) (ProductPage, error) {
	params := url.Values{}
	if category := strings.TrimSpace(query.Category); category != "" && category != "all" {
		params.Set("category", category)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		params.Set("search", search)
	}
	if query.Page > 0 {
		params.Set("page", strconv.Itoa(query.Page))
	}
	if query.Limit > 0 {
		params.Set("limit", strconv.Itoa(query.Limit))
	}
	path := pathProducts
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out ProductPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return ProductPage{}, err
	}
	return out, nil
}

// GetProduct reads a single catalog entry.
func (c *Client) GetProduct(ctx context.Context, id string) (Product, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrBackendInvalidInput)
	}
	var out Product
	if err := c.do(ctx, http.MethodGet, pathProducts+"/"+url.PathEscape(trimmed), nil, &out); err != nil {
		return Product{}, err
	}
	return out, nil
}

// OrderSummary is a read-only order history entry.
type OrderSummary struct {
	ID        string      `json:"id"`
	Status    string      `json:"status"`
	Total     string      `json:"total"`
	CreatedAt time.Time   `json:"createdAt"`
	Items     []OrderItem `json:"items"`
}

// OrderHistoryPage is one page of the customer's order history.
type OrderHistoryPage struct {
	Orders []OrderSummary `json:"orders"`
	Total  int            `json:"total"`
	Page   int            `json:"page"`
}

// ListMyOrders reads the paginated order history for the current customer.
func (c *Client) ListMyOrders(ctx context.Context, page, limit int) (OrderHistoryPage, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := pathMyOrders
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out OrderHistoryPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return OrderHistoryPage{}, err
	}
	return out, nil
}

type errorEnvelope struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if c == nil || c.http == nil {
		return ErrBackendUnavailable
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBackendInvalidInput, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendInvalidInput, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != nil {
		if token := strings.TrimSpace(c.token()); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger(ctx, "backend.request_failed", map[string]any{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.decodeError(ctx, method, path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Status: http.StatusBadGateway, Message: "malformed response body"}
	}
	return nil
}

func (c *Client) decodeError(ctx context.Context, method, path string, resp *http.Response) error {
	var envelope errorEnvelope
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if len(data) > 0 {
		_ = json.Unmarshal(data, &envelope)
	}
	message := strings.TrimSpace(envelope.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	c.logger(ctx, "backend.request_rejected", map[string]any{
		"method": method,
		"path":   path,
		"status": resp.StatusCode,
	})

	return &APIError{Status: resp.StatusCode, Message: message}
}
