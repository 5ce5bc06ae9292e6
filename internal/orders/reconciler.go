// Package orders turns a verified payment into a durable order record held
// by the backend order service. Verification is a mandatory gate: an order
// is never created for an outcome that could not be authenticated.
package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bridal-dreams/storefront/internal/backend"
	"github.com/bridal-dreams/storefront/internal/cart"
	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// PaymentMethodDemo marks orders placed through the consented demo path.
const PaymentMethodDemo = "demo"

var (
	// ErrReconcilerInvalidInput indicates the caller supplied invalid parameters.
	ErrReconcilerInvalidInput = errors.New("orders: invalid input")
	// ErrVerifyUnavailable indicates the verification call itself failed, so
	// the outcome's authenticity is unknown.
	ErrVerifyUnavailable = errors.New("orders: verification unavailable")
	// ErrOrderPersistFailed indicates the backend did not store the order.
	// Funds may already be captured; the caller retries with the same
	// payment reference rather than re-attempting payment.
	ErrOrderPersistFailed = errors.New("orders: order persist failed")
)

// Backend is the slice of the commerce API the reconciler needs.
type Backend interface {
	VerifyPayment(ctx context.Context, req backend.VerifyPaymentRequest) (bool, error)
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) error
}

// ReconcilerConfig wires the reconciler dependencies.
type ReconcilerConfig struct {
	Backend Backend
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

// Reconciler verifies gateway outcomes and persists orders.
type Reconciler struct {
	backend Backend
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewReconciler validates dependencies and constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Backend == nil {
		return nil, errors.New("orders: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Reconciler{
		backend: cfg.Backend,
		logger:  logger,
	}, nil
}

// Verify confirms server-side that the reported outcome actually originated
// from the gateway. false with a nil error means the check ran and the
// outcome is not authentic; a non-nil error means the check could not run.
func (r *Reconciler) Verify(ctx context.Context, paymentID, intentID, signature string) (bool, error) {
	if r == nil || r.backend == nil {
		return false, ErrVerifyUnavailable
	}
	paymentID = strings.TrimSpace(paymentID)
	intentID = strings.TrimSpace(intentID)
	if paymentID == "" || intentID == "" {
		return false, fmt.Errorf("%w: payment id and intent id are required", ErrReconcilerInvalidInput)
	}

	ok, err := r.backend.VerifyPayment(ctx, backend.VerifyPaymentRequest{
		GatewayOrderID: intentID,
		PaymentID:      paymentID,
		Signature:      strings.TrimSpace(signature),
	})
	if err != nil {
		r.logger(ctx, "orders.verify_unavailable", map[string]any{
			"paymentId": paymentID,
			"intentId":  intentID,
			"error":     err.Error(),
		})
		return false, fmt.Errorf("%w: %v", ErrVerifyUnavailable, err)
	}
	if !ok {
		r.logger(ctx, "orders.verify_rejected", map[string]any{
			"paymentId": paymentID,
			"intentId":  intentID,
		})
	}
	return ok, nil
}

// CreateOrderCommand carries everything needed to persist the order.
// Snapshot is the immutable copy of the cart taken at payment time, so
// later cart mutations cannot alter the submitted order.
type CreateOrderCommand struct {
	Snapshot []domain.CartItem
	Form     domain.ShippingForm
	Ref      domain.PaymentReference
}

// CreateOrder persists the order. The payment reference rides on every call
// so the backend can deduplicate retried submissions; repeated calls with
// the same reference are not observable as distinct orders.
func (r *Reconciler) CreateOrder(ctx context.Context, cmd CreateOrderCommand) error {
	if r == nil || r.backend == nil {
		return ErrOrderPersistFailed
	}
	if len(cmd.Snapshot) == 0 {
		return fmt.Errorf("%w: snapshot is empty", ErrReconcilerInvalidInput)
	}
	reference := paymentReferenceKey(cmd.Ref)
	if reference == "" {
		return fmt.Errorf("%w: payment reference is required", ErrReconcilerInvalidInput)
	}

	items := make([]backend.OrderItem, 0, len(cmd.Snapshot))
	for _, line := range cmd.Snapshot {
		items = append(items, backend.OrderItem{
			Product:  line.ProductID,
			Quantity: line.Quantity,
			Price:    cart.RoundMoney(line.UnitPrice).String(),
		})
	}

	req := backend.CreateOrderRequest{
		Items:            items,
		ShippingAddress:  cmd.Form.AddressLine(),
		PaymentMethod:    cmd.Ref.Method,
		PaymentReference: reference,
		ContactPhone:     strings.TrimSpace(cmd.Form.Phone),
		Notes:            "customer: " + cmd.Form.FullName(),
	}

	if err := r.backend.CreateOrder(ctx, req); err != nil {
		r.logger(ctx, "orders.persist_failed", map[string]any{
			"paymentReference": reference,
			"error":            err.Error(),
		})
		if errors.Is(err, backend.ErrBackendInvalidInput) {
			return fmt.Errorf("%w: %v", ErrReconcilerInvalidInput, err)
		}
		return fmt.Errorf("%w: %v", ErrOrderPersistFailed, err)
	}

	r.logger(ctx, "orders.persisted", map[string]any{
		"paymentReference": reference,
		"lines":            len(items),
	})
	return nil
}

func paymentReferenceKey(ref domain.PaymentReference) string {
	paymentID := strings.TrimSpace(ref.PaymentID)
	if paymentID != "" {
		return paymentID
	}
	return strings.TrimSpace(ref.IntentID)
}
