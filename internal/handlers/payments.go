package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/bridal-dreams/storefront/internal/domain"
	"github.com/bridal-dreams/storefront/internal/gateway"
	"github.com/bridal-dreams/storefront/internal/platform/httpx"
)

// PaymentHandlers exposes the gateway configuration read and the browser
// callback that resolves a pending payment.
type PaymentHandlers struct {
	loader  *gateway.Loader
	surface *gateway.CallbackSurface
	name    string
}

// NewPaymentHandlers constructs the payment endpoints.
func NewPaymentHandlers(loader *gateway.Loader, surface *gateway.CallbackSurface, displayName string) *PaymentHandlers {
	return &PaymentHandlers{
		loader:  loader,
		surface: surface,
		name:    strings.TrimSpace(displayName),
	}
}

// Routes wires the payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/config", h.getConfig)
	r.Post("/callback", h.callback)
}

func (h *PaymentHandlers) getConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.loader == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
		return
	}
	if !h.loader.Load(ctx) {
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "the payment gateway could not be reached", http.StatusBadGateway))
		return
	}
	config, _ := h.loader.Config()
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"keyId":       config.KeyID,
		"displayName": h.name,
	})
}

type paymentCallbackRequest struct {
	IntentID  string `json:"intentId"`
	Status    string `json:"status"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	Reason    string `json:"reason"`
}

// callback receives the browser-side gateway result and resolves the
// attempt parked in Present. Replays for an already-resolved intent are
// acknowledged without effect.
func (h *PaymentHandlers) callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.surface == nil {
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req paymentCallbackRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.IntentID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "intentId is required", http.StatusBadRequest))
		return
	}

	outcome, err := outcomeFromCallback(req)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	if err := h.surface.Resolve(req.IntentID, outcome); err != nil {
		if errors.Is(err, gateway.ErrNoPendingIntent) {
			// Duplicate delivery; the first one already won.
			httpx.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "the payment could not be recorded", http.StatusServiceUnavailable))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func outcomeFromCallback(req paymentCallbackRequest) (domain.PaymentOutcome, error) {
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "succeeded", "success":
		if strings.TrimSpace(req.PaymentID) == "" {
			return domain.PaymentOutcome{}, errors.New("paymentId is required for a successful payment")
		}
		return domain.PaymentOutcome{
			Status:    domain.OutcomeSucceeded,
			PaymentID: strings.TrimSpace(req.PaymentID),
			Signature: strings.TrimSpace(req.Signature),
		}, nil
	case "failed":
		return domain.PaymentOutcome{
			Status: domain.OutcomeFailed,
			Reason: strings.TrimSpace(req.Reason),
		}, nil
	case "cancelled", "canceled":
		return domain.PaymentOutcome{Status: domain.OutcomeCancelled}, nil
	default:
		return domain.PaymentOutcome{}, errors.New("status must be one of succeeded, failed, cancelled")
	}
}
