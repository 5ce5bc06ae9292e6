package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bridal-dreams/storefront/internal/checkout"
	domain "github.com/bridal-dreams/storefront/internal/domain"
	"github.com/bridal-dreams/storefront/internal/platform/httpx"
	"github.com/bridal-dreams/storefront/internal/platform/requestctx"
)

// CheckoutHandlers exposes the checkout submission endpoint.
type CheckoutHandlers struct {
	orchestrator *checkout.Orchestrator
}

// NewCheckoutHandlers constructs handlers over the checkout orchestrator.
func NewCheckoutHandlers(orchestrator *checkout.Orchestrator) *CheckoutHandlers {
	return &CheckoutHandlers{orchestrator: orchestrator}
}

// Routes wires the checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.submit)
	r.Get("/state", h.state)
}

type checkoutRequest struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`

	// AllowDemoFallback is the explicit consent to place a demo order when
	// the payment gateway cannot be reached. Absent means no.
	AllowDemoFallback bool `json:"allowDemoFallback"`
}

type checkoutResponse struct {
	State            string `json:"state"`
	IntentID         string `json:"intentId,omitempty"`
	PaymentID        string `json:"paymentId,omitempty"`
	PaymentReference string `json:"paymentReference,omitempty"`
	DemoFallback     bool   `json:"demoFallback,omitempty"`
	Total            string `json:"total,omitempty"`
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.orchestrator == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := checkout.SubmitCommand{
		SessionID: sessionID,
		Form: domain.ShippingForm{
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Phone:      req.Phone,
			Address:    req.Address,
			City:       req.City,
			PostalCode: req.PostalCode,
			Country:    req.Country,
		},
	}
	if req.AllowDemoFallback {
		cmd.ConfirmDemo = func(context.Context) bool { return true }
	}

	result, err := h.orchestrator.Submit(ctx, cmd)
	if err != nil {
		h.writeCheckoutError(w, r, result, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, checkoutResponse{
		State:            string(result.State),
		IntentID:         result.IntentID,
		PaymentID:        result.PaymentID,
		PaymentReference: result.PaymentReference,
		DemoFallback:     result.DemoFallback,
		Total:            result.Totals.Total.Round(2).String(),
	})
}

type checkoutStateResponse struct {
	State    string `json:"state"`
	IntentID string `json:"intentId,omitempty"`
	Amount   int64  `json:"amount,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// state reports the session's checkout state. While a payment is awaited it
// also carries the pending intent, which the browser needs to open the
// gateway modal and address the callback.
func (h *CheckoutHandlers) state(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := requestctx.SessionID(ctx)
	if h.orchestrator == nil || sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is unavailable", http.StatusServiceUnavailable))
		return
	}

	state, intent, pending := h.orchestrator.Status(sessionID)
	resp := checkoutStateResponse{State: string(state)}
	if pending {
		resp.IntentID = intent.ID
		resp.Amount = intent.Amount
		resp.Currency = intent.Currency
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *CheckoutHandlers) writeCheckoutError(w http.ResponseWriter, r *http.Request, result checkout.Result, err error) {
	ctx := r.Context()

	var vErr *checkout.ValidationError
	switch {
	case errors.As(err, &vErr):
		httpErr := httpx.NewError("validation_failed", "required fields are missing", http.StatusUnprocessableEntity)
		if len(vErr.MissingFields) > 0 {
			fields := make([]any, 0, len(vErr.MissingFields))
			for _, f := range vErr.MissingFields {
				fields = append(fields, f)
			}
			httpErr = httpErr.WithDetails(map[string]any{"missing_fields": fields})
		}
		httpx.WriteError(ctx, w, httpErr)
	case errors.Is(err, checkout.ErrCheckoutInFlight):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_in_flight", "a checkout attempt is already in progress", http.StatusConflict))
	case errors.Is(err, checkout.ErrGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "the payment gateway could not be reached", http.StatusBadGateway))
	case errors.Is(err, checkout.ErrAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("amount_mismatch", "the payment amount could not be confirmed", http.StatusConflict))
	case errors.Is(err, checkout.ErrPaymentDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("payment_declined", "the payment was not completed", http.StatusPaymentRequired))
	case errors.Is(err, checkout.ErrVerificationFailed):
		httpErr := httpx.NewError("verification_failed", "the payment could not be verified; contact support", http.StatusConflict)
		if result.PaymentID != "" {
			httpErr = httpErr.WithDetails(map[string]any{"payment_id": result.PaymentID})
		}
		httpx.WriteError(ctx, w, httpErr)
	case errors.Is(err, checkout.ErrOrderPersistFailed):
		httpErr := httpx.NewError("order_persist_failed", "the payment completed but the order could not be stored; contact support", http.StatusBadGateway)
		if result.PaymentReference != "" {
			httpErr = httpErr.WithDetails(map[string]any{"payment_reference": result.PaymentReference})
		}
		httpx.WriteError(ctx, w, httpErr)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", "checkout failed", http.StatusInternalServerError))
	}
}
