package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/bridal-dreams/storefront/internal/backend"
	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// DemoIntentPrefix labels locally-synthesised intents so the demo path can
// never be mistaken for a real gateway order.
const DemoIntentPrefix = "demo_"

var (
	// ErrGatewayUnavailable indicates the gateway or the intent-issuing
	// backend could not be reached. Recoverable; the caller decides whether
	// to offer the user-consented demo fallback.
	ErrGatewayUnavailable = errors.New("gateway: unavailable")
	// ErrGatewayInvalidInput indicates the caller supplied invalid parameters.
	ErrGatewayInvalidInput = errors.New("gateway: invalid input")
)

// IntentCreator issues gateway payment orders through the backend.
type IntentCreator interface {
	CreatePaymentOrder(ctx context.Context, req backend.CreatePaymentOrderRequest) (backend.PaymentOrder, error)
}

// Surface presents the gateway's modal checkout UI and blocks until the
// single terminal outcome is reported or the context ends.
type Surface interface {
	Present(ctx context.Context, intent domain.PaymentIntent, prefill domain.PaymentPrefill) (domain.PaymentOutcome, error)
}

// AdapterConfig wires the adapter dependencies.
type AdapterConfig struct {
	Loader      *Loader
	Intents     IntentCreator
	Surface     Surface
	DisplayName string
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

// Adapter is the payment gateway integration point the checkout
// orchestrator drives.
type Adapter struct {
	loader  *Loader
	intents IntentCreator
	surface Surface
	name    string
	newID   func() string
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewAdapter validates dependencies and constructs an Adapter.
func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.Loader == nil {
		return nil, errors.New("gateway: loader is required")
	}
	if cfg.Intents == nil {
		return nil, errors.New("gateway: intent creator is required")
	}
	if cfg.Surface == nil {
		return nil, errors.New("gateway: surface is required")
	}

	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Adapter{
		loader:  cfg.Loader,
		intents: cfg.Intents,
		surface: cfg.Surface,
		name:    strings.TrimSpace(cfg.DisplayName),
		newID:   idGen,
		logger:  logger,
	}, nil
}

// Load bootstraps the gateway client; see Loader.Load.
func (a *Adapter) Load(ctx context.Context) bool {
	if a == nil {
		return false
	}
	return a.loader.Load(ctx)
}

// CreateIntent requests a server-issued payment intent for the amount in
// minor currency units. A fresh intent is created per checkout attempt.
func (a *Adapter) CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (domain.PaymentIntent, error) {
	if a == nil || a.intents == nil {
		return domain.PaymentIntent{}, ErrGatewayUnavailable
	}
	if amountMinorUnits <= 0 {
		return domain.PaymentIntent{}, fmt.Errorf("%w: amount must be positive", ErrGatewayInvalidInput)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return domain.PaymentIntent{}, fmt.Errorf("%w: currency is required", ErrGatewayInvalidInput)
	}

	receipt := "order_" + a.newID()
	order, err := a.intents.CreatePaymentOrder(ctx, backend.CreatePaymentOrderRequest{
		Amount:   amountMinorUnits,
		Currency: currency,
		Receipt:  receipt,
		Notes:    metadata,
	})
	if err != nil {
		a.logger(ctx, "gateway.intent_failed", map[string]any{
			"amount":   amountMinorUnits,
			"currency": currency,
			"error":    err.Error(),
		})
		if errors.Is(err, backend.ErrBackendInvalidInput) {
			return domain.PaymentIntent{}, fmt.Errorf("%w: %v", ErrGatewayInvalidInput, err)
		}
		return domain.PaymentIntent{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	a.logger(ctx, "gateway.intent_created", map[string]any{
		"intentId": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
	})

	return domain.PaymentIntent{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
	}, nil
}

// DemoIntent synthesises a clearly-labeled local intent for the consented
// demo path. It never touches the gateway or the backend.
func (a *Adapter) DemoIntent(amountMinorUnits int64, currency string) domain.PaymentIntent {
	return domain.PaymentIntent{
		ID:       DemoIntentPrefix + a.newID(),
		Amount:   amountMinorUnits,
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
		Demo:     true,
	}
}

// Open presents the gateway modal for the intent and returns its single
// terminal outcome. Failed and Cancelled outcomes leave the checkout
// retryable; the orchestrator requests a fresh intent on retry.
func (a *Adapter) Open(ctx context.Context, intent domain.PaymentIntent, prefill domain.PaymentPrefill) (domain.PaymentOutcome, error) {
	if a == nil || a.surface == nil {
		return domain.PaymentOutcome{}, ErrGatewayUnavailable
	}
	if strings.TrimSpace(intent.ID) == "" {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: intent id is required", ErrGatewayInvalidInput)
	}
	if intent.Demo {
		return domain.PaymentOutcome{}, fmt.Errorf("%w: demo intents are never presented to the gateway", ErrGatewayInvalidInput)
	}

	outcome, err := a.surface.Present(ctx, intent, prefill)
	if err != nil {
		a.logger(ctx, "gateway.open_failed", map[string]any{
			"intentId": intent.ID,
			"error":    err.Error(),
		})
		return domain.PaymentOutcome{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	a.logger(ctx, "gateway.outcome", map[string]any{
		"intentId": intent.ID,
		"status":   string(outcome.Status),
	})
	return outcome, nil
}
