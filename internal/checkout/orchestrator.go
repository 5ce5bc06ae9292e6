// Package checkout sequences the cart, the payment gateway, and the order
// reconciliation service through an explicit state machine, and guarantees
// the cart is cleared only after a durable order exists.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/bridal-dreams/storefront/internal/domain"
	"github.com/bridal-dreams/storefront/internal/gateway"
	"github.com/bridal-dreams/storefront/internal/orders"
)

// State enumerates the checkout attempt states. A tagged state replaces the
// loose processing/placed booleans so impossible combinations cannot be
// represented.
type State string

const (
	// StateIdle is the submittable resting state.
	StateIdle State = "idle"
	// StateValidatingShipping checks the shipping form before any network call.
	StateValidatingShipping State = "validating_shipping"
	// StateAwaitingGatewayLoad bootstraps the gateway client.
	StateAwaitingGatewayLoad State = "awaiting_gateway_load"
	// StateCreatingIntent requests the server-issued payment intent.
	StateCreatingIntent State = "creating_intent"
	// StateAwaitingPayment has the gateway modal open.
	StateAwaitingPayment State = "awaiting_payment"
	// StateVerifying confirms the outcome's authenticity server-side.
	StateVerifying State = "verifying"
	// StateCreatingOrder persists the order record.
	StateCreatingOrder State = "creating_order"
	// StatePlaced is terminal for the attempt; entering it clears the cart.
	StatePlaced State = "placed"
	// StateError is reachable from every non-terminal state; the next
	// submission retries from Idle.
	StateError State = "error"
)

// PaymentMethodGateway marks orders funded through the real gateway.
const PaymentMethodGateway = "gateway"

var (
	// ErrCheckoutInFlight indicates a submission is already running for the cart.
	ErrCheckoutInFlight = errors.New("checkout: attempt already in flight")
	// ErrValidation indicates missing or invalid shipping data; no network
	// call was made.
	ErrValidation = errors.New("checkout: validation failed")
	// ErrGatewayUnavailable indicates the gateway client or the
	// intent-issuing backend could not be reached. The demo fallback may be
	// offered, never taken silently.
	ErrGatewayUnavailable = errors.New("checkout: gateway unavailable")
	// ErrPaymentDeclined indicates the gateway reported failure or the
	// customer dismissed the modal; no funds were captured.
	ErrPaymentDeclined = errors.New("checkout: payment declined")
	// ErrVerificationFailed indicates funds were captured but the outcome
	// could not be confirmed as authentic; the customer must contact
	// support with the payment id. No order is created.
	ErrVerificationFailed = errors.New("checkout: payment verification failed")
	// ErrOrderPersistFailed indicates the payment succeeded and verified
	// but the order record was not stored. The cart is kept so the order
	// can be re-submitted with the same payment reference.
	ErrOrderPersistFailed = errors.New("checkout: order persist failed")
	// ErrAmountMismatch indicates the server-issued intent disagrees with
	// the locally computed total; the gateway is never opened for it.
	ErrAmountMismatch = errors.New("checkout: intent amount mismatch")
	// ErrCheckoutUnavailable indicates missing dependencies.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// ValidationError reports which required shipping fields are missing.
type ValidationError struct {
	MissingFields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.MissingFields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("checkout: missing required fields: %s", strings.Join(e.MissingFields, ", "))
}

// Unwrap ties ValidationError to the ErrValidation sentinel.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// CartAccess is the slice of the session cart store the orchestrator needs.
type CartAccess interface {
	Snapshot(sessionID string) ([]domain.CartItem, domain.Totals, error)
	Clear(sessionID string) error
}

// Gateway is the payment gateway adapter surface.
type Gateway interface {
	Load(ctx context.Context) bool
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency string, metadata map[string]string) (domain.PaymentIntent, error)
	DemoIntent(amountMinorUnits int64, currency string) domain.PaymentIntent
	Open(ctx context.Context, intent domain.PaymentIntent, prefill domain.PaymentPrefill) (domain.PaymentOutcome, error)
}

// OrderService verifies payments and persists orders.
type OrderService interface {
	Verify(ctx context.Context, paymentID, intentID, signature string) (bool, error)
	CreateOrder(ctx context.Context, cmd orders.CreateOrderCommand) error
}

// OrchestratorDeps wires the orchestrator dependencies.
type OrchestratorDeps struct {
	Carts        CartAccess
	Gateway      Gateway
	Orders       OrderService
	Currency     string
	DemoFallback bool
	Clock        func() time.Time
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

// Orchestrator runs one checkout attempt at a time per session. Strict
// sequencing is enforced: the intent exists before the gateway opens, and
// verification completes before order creation.
type Orchestrator struct {
	carts    CartAccess
	gateway  Gateway
	orders   OrderService
	currency string
	demo     bool
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)

	mu       sync.Mutex
	sessions map[string]*sessionState
}

type sessionState struct {
	state    State
	inFlight bool
	lastSeen time.Time

	// pending is the intent awaiting its gateway outcome, set only while
	// the attempt sits in StateAwaitingPayment. The browser reads it
	// through Status to open the modal and address the callback.
	pending *domain.PaymentIntent
}

// NewOrchestrator validates dependencies and constructs an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout: cart access is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("checkout: gateway is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout: order service is required")
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Orchestrator{
		carts:    deps.Carts,
		gateway:  deps.Gateway,
		orders:   deps.Orders,
		currency: currency,
		demo:     deps.DemoFallback,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		sessions: make(map[string]*sessionState),
	}, nil
}

// SubmitCommand starts a checkout attempt for the session's cart.
// ConfirmDemo is consulted only when the gateway cannot be reached; it must
// reflect an explicit user confirmation, never a default.
type SubmitCommand struct {
	SessionID   string
	Form        domain.ShippingForm
	ConfirmDemo func(ctx context.Context) bool
}

// Result reports the terminal outcome of an attempt.
type Result struct {
	State            State
	Totals           domain.Totals
	IntentID         string
	PaymentID        string
	PaymentReference string
	DemoFallback     bool
}

// State reports the last observed state for the session, Idle when unknown.
func (o *Orchestrator) State(sessionID string) State {
	state, _, _ := o.Status(sessionID)
	return state
}

// Status reports the session's state together with the intent awaiting its
// gateway outcome, when one is parked. The intent is what the browser needs
// to open the hosted modal and address the payment callback.
func (o *Orchestrator) Status(sessionID string) (State, domain.PaymentIntent, bool) {
	if o == nil {
		return StateIdle, domain.PaymentIntent{}, false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return StateIdle, domain.PaymentIntent{}, false
	}
	if entry.pending != nil {
		return entry.state, *entry.pending, true
	}
	return entry.state, domain.PaymentIntent{}, false
}

// Sweep drops sessions that are idle past maxIdle and not mid-attempt, and
// reports how many were removed. Run on the same cadence as the cart
// store's sweep.
func (o *Orchestrator) Sweep(maxIdle time.Duration) int {
	if o == nil || maxIdle <= 0 {
		return 0
	}
	cutoff := o.now().Add(-maxIdle)
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for id, entry := range o.sessions {
		if !entry.inFlight && entry.lastSeen.Before(cutoff) {
			delete(o.sessions, id)
			removed++
		}
	}
	return removed
}

// Submit runs the full checkout sequence. Exactly one attempt per session
// may be in flight; concurrent submissions fail fast with
// ErrCheckoutInFlight. On any failure the session lands in StateError and
// the next Submit retries from Idle with a fresh payment intent.
func (o *Orchestrator) Submit(ctx context.Context, cmd SubmitCommand) (Result, error) {
	if o == nil || o.carts == nil || o.gateway == nil || o.orders == nil {
		return Result{}, ErrCheckoutUnavailable
	}

	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return Result{}, &ValidationError{MissingFields: []string{"session"}}
	}

	entry, err := o.begin(sessionID)
	if err != nil {
		return Result{}, err
	}

	result, err := o.run(ctx, sessionID, entry, cmd)

	o.mu.Lock()
	entry.inFlight = false
	entry.pending = nil
	entry.lastSeen = o.now()
	if err != nil {
		entry.state = StateError
	}
	o.mu.Unlock()

	if err != nil {
		result.State = StateError
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) begin(sessionID string) (*sessionState, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry, ok := o.sessions[sessionID]
	if !ok {
		entry = &sessionState{state: StateIdle}
		o.sessions[sessionID] = entry
	}
	if entry.inFlight {
		return nil, ErrCheckoutInFlight
	}
	// Error is retryable: a new submission passes back through Idle.
	entry.inFlight = true
	entry.state = StateIdle
	entry.pending = nil
	entry.lastSeen = o.now()
	return entry, nil
}

func (o *Orchestrator) transition(ctx context.Context, sessionID string, entry *sessionState, next State) {
	o.mu.Lock()
	prev := entry.state
	entry.state = next
	entry.lastSeen = o.now()
	o.mu.Unlock()
	o.logger(ctx, "checkout.transition", map[string]any{
		"session": sessionID,
		"from":    string(prev),
		"to":      string(next),
	})
}

func (o *Orchestrator) run(ctx context.Context, sessionID string, entry *sessionState, cmd SubmitCommand) (Result, error) {
	// ValidatingShipping: all required fields before any network call.
	o.transition(ctx, sessionID, entry, StateValidatingShipping)
	if missing := cmd.Form.MissingFields(); len(missing) > 0 {
		return Result{}, &ValidationError{MissingFields: missing}
	}

	snapshot, totals, err := o.carts.Snapshot(sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if len(snapshot) == 0 {
		return Result{}, &ValidationError{MissingFields: []string{"cart"}}
	}

	result := Result{Totals: totals}
	amount := totals.AmountMinorUnits()
	if amount <= 0 {
		return result, fmt.Errorf("%w: cart total must be positive", ErrValidation)
	}

	// AwaitingGatewayLoad: bounded bootstrap, recoverable on failure.
	o.transition(ctx, sessionID, entry, StateAwaitingGatewayLoad)
	if !o.gateway.Load(ctx) {
		return o.demoBranch(ctx, sessionID, entry, cmd, snapshot, result, amount,
			fmt.Errorf("%w: gateway client failed to load", ErrGatewayUnavailable))
	}

	// CreatingIntent: a fresh server-issued intent per attempt.
	o.transition(ctx, sessionID, entry, StateCreatingIntent)
	intent, err := o.gateway.CreateIntent(ctx, amount, o.currency, map[string]string{
		"customer_name":    cmd.Form.FullName(),
		"customer_email":   strings.TrimSpace(cmd.Form.Email),
		"customer_phone":   strings.TrimSpace(cmd.Form.Phone),
		"shipping_address": cmd.Form.AddressLine(),
	})
	if err != nil {
		return o.demoBranch(ctx, sessionID, entry, cmd, snapshot, result, amount,
			fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
	}
	result.IntentID = intent.ID

	// The server-issued amount is authoritative; a disagreement with the
	// locally computed total aborts before the gateway ever opens.
	if intent.Amount != amount {
		return result, fmt.Errorf("%w: intent %d, cart %d", ErrAmountMismatch, intent.Amount, amount)
	}

	// AwaitingPayment: single terminal notification per intent. The
	// intent is published for Status readers while the modal is open.
	o.mu.Lock()
	pending := intent
	entry.pending = &pending
	o.mu.Unlock()
	o.transition(ctx, sessionID, entry, StateAwaitingPayment)
	outcome, err := o.gateway.Open(ctx, intent, domain.PaymentPrefill{
		Name:    cmd.Form.FullName(),
		Email:   strings.TrimSpace(cmd.Form.Email),
		Contact: strings.TrimSpace(cmd.Form.Phone),
	})
	o.mu.Lock()
	entry.pending = nil
	o.mu.Unlock()
	if err != nil {
		// The surface reporting an error means the modal never reached a
		// terminal outcome; that is a gateway problem, not a decline.
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			return result, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return result, fmt.Errorf("%w: %v", ErrPaymentDeclined, err)
	}
	switch outcome.Status {
	case domain.OutcomeSucceeded:
	case domain.OutcomeCancelled:
		return result, fmt.Errorf("%w: payment cancelled", ErrPaymentDeclined)
	default:
		reason := strings.TrimSpace(outcome.Reason)
		if reason == "" {
			reason = "payment failed"
		}
		return result, fmt.Errorf("%w: %s", ErrPaymentDeclined, reason)
	}
	result.PaymentID = outcome.PaymentID

	// Verifying: mandatory authenticity gate before any order exists.
	o.transition(ctx, sessionID, entry, StateVerifying)
	verified, err := o.orders.Verify(ctx, outcome.PaymentID, intent.ID, outcome.Signature)
	if err != nil {
		return result, fmt.Errorf("%w: payment %s could not be confirmed: %v", ErrVerificationFailed, outcome.PaymentID, err)
	}
	if !verified {
		return result, fmt.Errorf("%w: payment %s is not authentic", ErrVerificationFailed, outcome.PaymentID)
	}

	ref := domain.PaymentReference{
		Method:    PaymentMethodGateway,
		IntentID:  intent.ID,
		PaymentID: outcome.PaymentID,
	}
	result.PaymentReference = ref.PaymentID
	return o.persistAndPlace(ctx, sessionID, entry, cmd, snapshot, result, ref)
}

// demoBranch offers the clearly-labeled demo path when the gateway cannot
// be reached. It requires both the feature flag and an explicit user
// confirmation; otherwise the attempt fails with the cause.
func (o *Orchestrator) demoBranch(ctx context.Context, sessionID string, entry *sessionState, cmd SubmitCommand, snapshot []domain.CartItem, result Result, amount int64, cause error) (Result, error) {
	if !o.demo || cmd.ConfirmDemo == nil || !cmd.ConfirmDemo(ctx) {
		return result, cause
	}

	intent := o.gateway.DemoIntent(amount, o.currency)
	result.IntentID = intent.ID
	result.DemoFallback = true
	o.logger(ctx, "checkout.demo_fallback", map[string]any{
		"session":  sessionID,
		"intentId": intent.ID,
	})

	ref := domain.PaymentReference{
		Method:   orders.PaymentMethodDemo,
		IntentID: intent.ID,
	}
	result.PaymentReference = ref.IntentID
	return o.persistAndPlace(ctx, sessionID, entry, cmd, snapshot, result, ref)
}

func (o *Orchestrator) persistAndPlace(ctx context.Context, sessionID string, entry *sessionState, cmd SubmitCommand, snapshot []domain.CartItem, result Result, ref domain.PaymentReference) (Result, error) {
	// CreatingOrder: the cart stays intact until the record is durable.
	o.transition(ctx, sessionID, entry, StateCreatingOrder)
	if err := o.orders.CreateOrder(ctx, orders.CreateOrderCommand{
		Snapshot: snapshot,
		Form:     cmd.Form,
		Ref:      ref,
	}); err != nil {
		return result, fmt.Errorf("%w: %v", ErrOrderPersistFailed, err)
	}

	// Placed: the single point in the system where the ledger is cleared.
	o.transition(ctx, sessionID, entry, StatePlaced)
	if err := o.carts.Clear(sessionID); err != nil {
		o.logger(ctx, "checkout.clear_failed", map[string]any{
			"session": sessionID,
			"error":   err.Error(),
		})
	}

	result.State = StatePlaced
	return result, nil
}
