package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bridal-dreams/storefront/internal/backend"
	"github.com/bridal-dreams/storefront/internal/platform/httpx"
)

// CatalogHandlers proxies catalog reads to the commerce API. The storefront
// holds no catalog state of its own.
type CatalogHandlers struct {
	client *backend.Client
}

// NewCatalogHandlers constructs the catalog endpoints.
func NewCatalogHandlers(client *backend.Client) *CatalogHandlers {
	return &CatalogHandlers{client: client}
}

// Routes wires the catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.client == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	page, err := h.client.ListProducts(ctx, backend.ProductQuery{
		Category: query.Get("category"),
		Search:   query.Get("search"),
		Page:     intQueryParam(query, "page"),
		Limit:    intQueryParam(query, "limit"),
	})
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.client == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is unavailable", http.StatusServiceUnavailable))
		return
	}

	id, err := url.PathUnescape(chi.URLParam(r, "productID"))
	if err != nil || strings.TrimSpace(id) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.client.GetProduct(ctx, id)
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, product)
}

func intQueryParam(values url.Values, name string) int {
	parsed, err := strconv.Atoi(values.Get(name))
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// writeBackendError maps commerce API failures onto the storefront's error
// envelope, passing 4xx statuses through and collapsing the rest to 502.
func writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		httpx.WriteError(ctx, w, httpx.NewError("backend_rejected", apiErr.Message, apiErr.Status))
		return
	}
	if errors.Is(err, backend.ErrBackendInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "the commerce service could not be reached", http.StatusBadGateway))
}
