package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bridal-dreams/storefront/internal/backend"
	"github.com/bridal-dreams/storefront/internal/platform/httpx"
)

// OrderHandlers proxies the customer's order history from the commerce API.
type OrderHandlers struct {
	client *backend.Client
}

// NewOrderHandlers constructs the order history endpoints.
func NewOrderHandlers(client *backend.Client) *OrderHandlers {
	return &OrderHandlers{client: client}
}

// Routes wires the order endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/my-orders", h.listMyOrders)
}

func (h *OrderHandlers) listMyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.client == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_unavailable", "order history is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	page, err := h.client.ListMyOrders(ctx, intQueryParam(query, "page"), intQueryParam(query, "limit"))
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}
