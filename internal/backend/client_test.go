package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, server
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(ClientConfig{}); err == nil {
		t.Fatalf("expected error for missing base url")
	}
	if _, err := NewClient(ClientConfig{BaseURL: "  "}); err == nil {
		t.Fatalf("expected error for blank base url")
	}
}

func TestGetPaymentConfig(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/config" || r.Method != http.MethodGet {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"keyId": "key_live_1"})
	})

	config, err := client.GetPaymentConfig(context.Background())
	if err != nil {
		t.Fatalf("GetPaymentConfig: %v", err)
	}
	if config.KeyID != "key_live_1" {
		t.Fatalf("unexpected key id: %q", config.KeyID)
	}
}

func TestGetPaymentConfigRejectsEmptyKey(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"keyId": ""})
	})

	if _, err := client.GetPaymentConfig(context.Background()); !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected unavailable for missing key id, got %v", err)
	}
}

func TestCreatePaymentOrder(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payments/create-order" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req CreatePaymentOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Amount != 220000 || req.Currency != "INR" {
			t.Errorf("unexpected payload: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(PaymentOrder{ID: "order_gw_1", Amount: req.Amount, Currency: req.Currency})
	})

	order, err := client.CreatePaymentOrder(context.Background(), CreatePaymentOrderRequest{
		Amount:   220000,
		Currency: "INR",
		Receipt:  "order_local_1",
	})
	if err != nil {
		t.Fatalf("CreatePaymentOrder: %v", err)
	}
	if order.ID != "order_gw_1" {
		t.Fatalf("unexpected order id: %q", order.ID)
	}
}

func TestCreatePaymentOrderValidatesInput(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "http://localhost:1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.CreatePaymentOrder(context.Background(), CreatePaymentOrderRequest{Currency: "INR"}); !errors.Is(err, ErrBackendInvalidInput) {
		t.Fatalf("expected invalid input for zero amount, got %v", err)
	}
	if _, err := client.CreatePaymentOrder(context.Background(), CreatePaymentOrderRequest{Amount: 100}); !errors.Is(err, ErrBackendInvalidInput) {
		t.Fatalf("expected invalid input for missing currency, got %v", err)
	}
}

func TestVerifyPaymentDefinitiveRejection(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "invalid signature"})
	})

	ok, err := client.VerifyPayment(context.Background(), VerifyPaymentRequest{
		GatewayOrderID: "order_1",
		PaymentID:      "pay_1",
		Signature:      "sig_bad",
	})
	if err != nil {
		t.Fatalf("a 4xx verification answer is definitive, not an error: %v", err)
	}
	if ok {
		t.Fatalf("expected rejection")
	}
}

func TestVerifyPaymentServerErrorIsNotDefinitive(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.VerifyPayment(context.Background(), VerifyPaymentRequest{
		GatewayOrderID: "order_1",
		PaymentID:      "pay_1",
		Signature:      "sig_1",
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected unavailable for a 5xx, got %v", err)
	}
}

func TestCreateOrderSendsDedupReference(t *testing.T) {
	var got CreateOrderRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
	})

	err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Items:            []OrderItem{{Product: "gown-1", Quantity: 2, Price: "499.50"}},
		ShippingAddress:  "12 Lake Road, Pune",
		PaymentMethod:    "gateway",
		PaymentReference: "pay_1",
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if got.PaymentReference != "pay_1" {
		t.Fatalf("expected the reference on the wire, got %q", got.PaymentReference)
	}
}

func TestCreateOrderUnacceptedIsAnError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": false})
	})

	err := client.CreateOrder(context.Background(), CreateOrderRequest{
		Items:            []OrderItem{{Product: "gown-1", Quantity: 1, Price: "10"}},
		PaymentReference: "pay_1",
	})
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected unavailable when the order is not accepted, got %v", err)
	}
}

func TestListProductsBuildsQuery(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("category") != "gowns" || q.Get("search") != "lace" || q.Get("page") != "2" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(ProductPage{
			Products: []Product{{ID: "gown-1", Title: "Lace Gown", Price: "499.50"}},
			Total:    1,
			Page:     2,
		})
	})

	page, err := client.ListProducts(context.Background(), ProductQuery{
		Category: "gowns",
		Search:   "lace",
		Page:     2,
		Limit:    20,
	})
	if err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	if len(page.Products) != 1 || page.Products[0].ID != "gown-1" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestListProductsSkipsCategoryAll(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("category") {
			t.Errorf("category=all must not be forwarded")
		}
		_ = json.NewEncoder(w).Encode(ProductPage{})
	})

	if _, err := client.ListProducts(context.Background(), ProductQuery{Category: "all"}); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
}

func TestAuthTokenHeader(t *testing.T) {
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(OrderHistoryPage{})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		BaseURL:   server.URL,
		AuthToken: func() string { return "token-123" },
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if _, err := client.ListMyOrders(context.Background(), 1, 10); err != nil {
		t.Fatalf("ListMyOrders: %v", err)
	}
	if authHeader != "Bearer token-123" {
		t.Fatalf("unexpected auth header: %q", authHeader)
	}
}

func TestErrorEnvelopeMessageSurfaces(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "duplicate order"})
	})

	_, err := client.GetProduct(context.Background(), "gown-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "duplicate order" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
	if !errors.Is(err, ErrBackendRejected) {
		t.Fatalf("a 4xx must unwrap to rejected, got %v", err)
	}
}
