package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bridal-dreams/storefront/internal/cart"
	domain "github.com/bridal-dreams/storefront/internal/domain"
	"github.com/bridal-dreams/storefront/internal/platform/httpx"
	"github.com/bridal-dreams/storefront/internal/platform/requestctx"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes the session cart endpoints.
type CartHandlers struct {
	store       *cart.Store
	maxQuantity int
}

// NewCartHandlers constructs handlers over the session cart store. The
// per-line quantity ceiling is enforced here, before the ledger is touched.
func NewCartHandlers(store *cart.Store, maxQuantity int) *CartHandlers {
	if maxQuantity <= 0 {
		maxQuantity = 10
	}
	return &CartHandlers{
		store:       store,
		maxQuantity: maxQuantity,
	}
}

// Routes wires the cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{productID}", h.updateQuantity)
	r.Delete("/items/{productID}", h.removeItem)
}

type cartLinePayload struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"lineTotal"`
}

type cartTotalsPayload struct {
	Subtotal      string `json:"subtotal"`
	Shipping      string `json:"shipping"`
	Tax           string `json:"tax"`
	Total         string `json:"total"`
	TotalQuantity int    `json:"totalQuantity"`
}

type cartResponse struct {
	Items  []cartLinePayload `json:"items"`
	Totals cartTotalsPayload `json:"totals"`
}

func buildCartResponse(items []domain.CartItem, totals domain.Totals) cartResponse {
	lines := make([]cartLinePayload, 0, len(items))
	for _, item := range items {
		lines = append(lines, cartLinePayload{
			ProductID: item.ProductID,
			Title:     item.Title,
			Image:     item.Image,
			Color:     item.Color,
			Size:      item.Size,
			UnitPrice: cart.RoundMoney(item.UnitPrice).String(),
			Quantity:  item.Quantity,
			LineTotal: cart.RoundMoney(item.LineTotal()).String(),
		})
	}
	return cartResponse{
		Items: lines,
		Totals: cartTotalsPayload{
			Subtotal:      cart.RoundMoney(totals.Subtotal).String(),
			Shipping:      cart.RoundMoney(totals.Shipping).String(),
			Tax:           cart.RoundMoney(totals.Tax).String(),
			Total:         cart.RoundMoney(totals.Total).String(),
			TotalQuantity: totals.TotalQuantity,
		},
	}
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.store == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}

	items, totals, err := h.store.Snapshot(sessionID)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(items, totals))
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Image     string `json:"image"`
	Color     string `json:"color"`
	Size      string `json:"size"`
	UnitPrice string `json:"unitPrice"`
	Quantity  int    `json:"quantity"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.store == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req addItemRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_quantity", "quantity must be at least 1", http.StatusBadRequest))
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.UnitPrice))
	if err != nil || price.IsNegative() {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_price", "unit price must be a non-negative decimal", http.StatusBadRequest))
		return
	}

	item := domain.CartItem{
		ProductID: strings.TrimSpace(req.ProductID),
		Title:     strings.TrimSpace(req.Title),
		Image:     strings.TrimSpace(req.Image),
		Color:     strings.TrimSpace(req.Color),
		Size:      strings.TrimSpace(req.Size),
		UnitPrice: price,
	}

	err = h.store.Update(sessionID, func(l *cart.Ledger) error {
		if existing, ok := l.Get(item.Key()); ok && existing.Quantity+quantity > h.maxQuantity {
			return errQuantityCeiling
		}
		if quantity > h.maxQuantity {
			return errQuantityCeiling
		}
		return l.Add(item, quantity)
	})
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}

	items, totals, _ := h.store.Snapshot(sessionID)
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(items, totals))
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.store == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, err := itemKeyFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	var req updateQuantityRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if req.Quantity > h.maxQuantity {
		h.writeCartError(w, r, errQuantityCeiling)
		return
	}

	// Zero and negative quantities remove the line.
	err = h.store.Update(sessionID, func(l *cart.Ledger) error {
		l.SetQuantity(key, req.Quantity)
		return nil
	})
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}

	items, totals, _ := h.store.Snapshot(sessionID)
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(items, totals))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.store == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}

	key, err := itemKeyFromRequest(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	err = h.store.Update(sessionID, func(l *cart.Ledger) error {
		l.Remove(key)
		return nil
	})
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}

	items, totals, _ := h.store.Snapshot(sessionID)
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(items, totals))
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.store == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.store.Clear(sessionID); err != nil {
		h.writeCartError(w, r, err)
		return
	}

	items, totals, _ := h.store.Snapshot(sessionID)
	httpx.WriteJSON(w, http.StatusOK, buildCartResponse(items, totals))
}

var errQuantityCeiling = errors.New("quantity exceeds the per-item limit")

func (h *CartHandlers) writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errQuantityCeiling):
		httpx.WriteError(ctx, w, httpx.NewError("quantity_limit", fmt.Sprintf("quantity is limited to %d per item", h.maxQuantity), http.StatusUnprocessableEntity))
	case errors.Is(err, cart.ErrInvalidItem):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_item", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
	}
}

// itemKeyFromRequest derives the ledger key from the path product id plus
// the optional color and size query parameters.
func itemKeyFromRequest(r *http.Request) (domain.ItemKey, error) {
	productID, err := url.PathUnescape(chi.URLParam(r, "productID"))
	if err != nil || strings.TrimSpace(productID) == "" {
		return domain.ItemKey{}, errors.New("product id is required")
	}
	query := r.URL.Query()
	return domain.ItemKey{
		ProductID: strings.TrimSpace(productID),
		Color:     strings.TrimSpace(query.Get("color")),
		Size:      strings.TrimSpace(query.Get("size")),
	}, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxCartBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}
