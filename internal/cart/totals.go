package cart

import (
	"errors"

	"github.com/shopspring/decimal"

	domain "github.com/bridal-dreams/storefront/internal/domain"
)

// Default pricing parameters for the storefront. Tax is a flat percentage of
// the subtotal; shipping is a flat fee waived for large orders.
var (
	defaultTaxRate               = decimal.NewFromFloat(0.10)
	defaultShippingFee           = decimal.NewFromFloat(7.99)
	defaultFreeShippingThreshold = decimal.NewFromInt(2000)
)

// CalculatorConfig overrides the pricing parameters. Zero values fall back
// to the storefront defaults.
type CalculatorConfig struct {
	TaxRate               decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// Calculator derives Totals from a ledger. Compute is a pure function of
// ledger state: deterministic, re-entrant, and safe to call on every read.
type Calculator struct {
	taxRate       decimal.Decimal
	shippingFee   decimal.Decimal
	freeThreshold decimal.Decimal
}

// NewCalculator builds a Calculator, rejecting negative parameters.
func NewCalculator(cfg CalculatorConfig) (*Calculator, error) {
	taxRate := cfg.TaxRate
	if taxRate.IsZero() {
		taxRate = defaultTaxRate
	}
	fee := cfg.ShippingFee
	if fee.IsZero() {
		fee = defaultShippingFee
	}
	threshold := cfg.FreeShippingThreshold
	if threshold.IsZero() {
		threshold = defaultFreeShippingThreshold
	}
	if taxRate.IsNegative() || fee.IsNegative() || threshold.IsNegative() {
		return nil, errors.New("cart: pricing parameters must be non-negative")
	}
	return &Calculator{
		taxRate:       taxRate,
		shippingFee:   fee,
		freeThreshold: threshold,
	}, nil
}

// Compute derives the totals for the ledger. Intermediate sums stay
// unrounded; rounding to currency precision happens only where a value
// leaves the system (RoundMoney, Totals.AmountMinorUnits).
func (c *Calculator) Compute(l *Ledger) domain.Totals {
	subtotal := decimal.Zero
	quantity := 0
	for _, item := range l.Items() {
		subtotal = subtotal.Add(item.LineTotal())
		quantity += item.Quantity
	}

	shipping := decimal.Zero
	if quantity > 0 && subtotal.LessThan(c.freeThreshold) {
		shipping = c.shippingFee
	}

	tax := subtotal.Mul(c.taxRate)
	total := subtotal.Add(shipping).Add(tax)

	return domain.Totals{
		Subtotal:      subtotal,
		Shipping:      shipping,
		Tax:           tax,
		Total:         total,
		TotalQuantity: quantity,
	}
}

// RoundMoney applies the boundary rounding rule: round-half-up to two
// decimal places. Used for display values and nowhere inside Compute.
func RoundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}
