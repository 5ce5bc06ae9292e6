package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bridal-dreams/storefront/internal/cart"
)

func newCartRouter(t *testing.T) http.Handler {
	t.Helper()
	calc, err := cart.NewCalculator(cart.CalculatorConfig{})
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	store, err := cart.NewStore(cart.StoreConfig{Calculator: calc})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return NewRouter(
		WithMiddlewares(SessionMiddleware(nil)),
		WithCartRoutes(NewCartHandlers(store, 10).Routes),
	)
}

func doJSON(t *testing.T, handler http.Handler, method, path, session, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(sessionHeaderName, session)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeCart(t *testing.T, rec *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var out cartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode cart response: %v", err)
	}
	return out
}

func TestCartAddAndRead(t *testing.T) {
	router := newCartRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","color":"ivory","size":"M","unitPrice":"499.50","quantity":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/cart", "sess-1", "")
	payload := decodeCart(t, rec)
	if len(payload.Items) != 1 || payload.Items[0].Quantity != 2 {
		t.Fatalf("unexpected cart: %+v", payload)
	}
	if payload.Totals.Subtotal != "999" {
		t.Fatalf("unexpected subtotal: %q", payload.Totals.Subtotal)
	}
}

func TestCartQuantityCeiling(t *testing.T) {
	router := newCartRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","unitPrice":"10","quantity":11}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for oversized quantity, got %d", rec.Code)
	}

	// Reaching the ceiling across two additions is also rejected.
	rec = doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","unitPrice":"10","quantity":8}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("first add: status %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","unitPrice":"10","quantity":3}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 when the sum exceeds the ceiling, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/cart", "sess-1", "")
	if payload := decodeCart(t, rec); payload.Totals.TotalQuantity != 8 {
		t.Fatalf("rejected addition must not change the cart, got %d", payload.Totals.TotalQuantity)
	}
}

func TestCartUpdateQuantityZeroRemovesLine(t *testing.T) {
	router := newCartRouter(t)

	doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","color":"ivory","size":"M","unitPrice":"499.50","quantity":2}`)

	rec := doJSON(t, router, http.MethodPatch, "/api/cart/items/gown-1?color=ivory&size=M", "sess-1", `{"quantity":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	if payload := decodeCart(t, rec); len(payload.Items) != 0 {
		t.Fatalf("quantity zero must remove the line: %+v", payload.Items)
	}
}

func TestCartVariantsAreDistinctLines(t *testing.T) {
	router := newCartRouter(t)

	doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","color":"ivory","size":"M","unitPrice":"499.50","quantity":1}`)
	doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","color":"ivory","size":"L","unitPrice":"499.50","quantity":1}`)

	// Removing one variant leaves the other untouched.
	rec := doJSON(t, router, http.MethodDelete, "/api/cart/items/gown-1?color=ivory&size=M", "sess-1", "")
	payload := decodeCart(t, rec)
	if len(payload.Items) != 1 || payload.Items[0].Size != "L" {
		t.Fatalf("unexpected remaining lines: %+v", payload.Items)
	}
}

func TestCartClear(t *testing.T) {
	router := newCartRouter(t)

	doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","unitPrice":"10","quantity":2}`)
	rec := doJSON(t, router, http.MethodDelete, "/api/cart", "sess-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: status %d", rec.Code)
	}
	if payload := decodeCart(t, rec); len(payload.Items) != 0 || payload.Totals.Total != "0" {
		t.Fatalf("expected empty cart, got %+v", payload)
	}
}

func TestCartSessionsAreIsolated(t *testing.T) {
	router := newCartRouter(t)

	doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1",
		`{"productId":"gown-1","title":"Lace Gown","unitPrice":"10","quantity":2}`)

	rec := doJSON(t, router, http.MethodGet, "/api/cart", "sess-2", "")
	if payload := decodeCart(t, rec); len(payload.Items) != 0 {
		t.Fatalf("sessions must not share carts: %+v", payload.Items)
	}
}

func TestCartMintsSessionCookie(t *testing.T) {
	router := newCartRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == sessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a minted session cookie, got %v", cookies)
	}
}

func TestCartRejectsInvalidPayloads(t *testing.T) {
	router := newCartRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1", `{"productId":"gown-1","unitPrice":"not-a-number"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad price, got %d", rec.Code)
	}
	rec = doJSON(t, router, http.MethodPost, "/api/cart/items", "sess-1", `{broken`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}
