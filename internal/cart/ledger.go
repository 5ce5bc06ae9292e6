// Package cart holds the in-memory shopping cart ledger, the totals
// calculator derived from it, and the session-scoped store that owns one
// ledger per browsing session.
package cart

import (
	"errors"
	"fmt"

	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// ErrInvalidItem indicates the supplied item cannot be stored in the ledger.
var ErrInvalidItem = errors.New("cart: invalid item")

// Ledger is an ordered mapping from item key to cart line. It is pure and
// synchronous: no I/O happens here, and persistence (if any) is an external
// collaborator. The per-line quantity ceiling is owned by the layer calling
// these operations (HTTP handlers and the checkout orchestrator); the ledger
// itself only guarantees stored quantities are positive.
//
// A Ledger is not safe for concurrent use; Store serialises access.
type Ledger struct {
	order []domain.ItemKey
	lines map[domain.ItemKey]domain.CartItem
}

// NewLedger constructs an empty ledger, as at session start.
func NewLedger() *Ledger {
	return &Ledger{
		lines: make(map[domain.ItemKey]domain.CartItem),
	}
}

// Add inserts the item with the given quantity, summing quantities when a
// line with the same (product, variant) key already exists.
func (l *Ledger) Add(item domain.CartItem, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidItem)
	}
	key := item.Key()
	if key.ProductID == "" {
		return fmt.Errorf("%w: product id is required", ErrInvalidItem)
	}
	if item.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be non-negative", ErrInvalidItem)
	}

	if existing, ok := l.lines[key]; ok {
		existing.Quantity += quantity
		l.lines[key] = existing
		return nil
	}

	item.Quantity = quantity
	l.lines[key] = item
	l.order = append(l.order, key)
	return nil
}

// Remove deletes the line; absent keys are a no-op.
func (l *Ledger) Remove(key domain.ItemKey) {
	if _, ok := l.lines[key]; !ok {
		return
	}
	delete(l.lines, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// SetQuantity overwrites the stored quantity. A quantity of zero or less
// removes the line; a reduction to zero is never stored.
func (l *Ledger) SetQuantity(key domain.ItemKey, quantity int) {
	if quantity <= 0 {
		l.Remove(key)
		return
	}
	if existing, ok := l.lines[key]; ok {
		existing.Quantity = quantity
		l.lines[key] = existing
	}
}

// Clear empties the ledger. Idempotent.
func (l *Ledger) Clear() {
	l.order = l.order[:0]
	for k := range l.lines {
		delete(l.lines, k)
	}
}

// Get returns the line for the key, reporting whether it exists.
func (l *Ledger) Get(key domain.ItemKey) (domain.CartItem, bool) {
	item, ok := l.lines[key]
	return item, ok
}

// Len reports the number of distinct lines.
func (l *Ledger) Len() int {
	return len(l.order)
}

// IsEmpty reports whether the ledger holds no lines.
func (l *Ledger) IsEmpty() bool {
	return len(l.order) == 0
}

// Items returns the lines in insertion order. The slice is a copy; mutating
// it does not affect the ledger.
func (l *Ledger) Items() []domain.CartItem {
	items := make([]domain.CartItem, 0, len(l.order))
	for _, key := range l.order {
		items = append(items, l.lines[key])
	}
	return items
}

// Snapshot returns an immutable copy of the lines for order creation, so
// later ledger mutations cannot retroactively alter a submitted order.
func (l *Ledger) Snapshot() []domain.CartItem {
	return l.Items()
}
