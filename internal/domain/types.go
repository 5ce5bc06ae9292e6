package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ItemKey identifies a cart line: one catalog item in one variant
// combination. Two additions with the same key collapse into a single line.
type ItemKey struct {
	ProductID string
	Color     string
	Size      string
}

// String renders the key in a stable, URL-safe form.
func (k ItemKey) String() string {
	parts := []string{strings.TrimSpace(k.ProductID)}
	if c := strings.TrimSpace(k.Color); c != "" {
		parts = append(parts, c)
	}
	if s := strings.TrimSpace(k.Size); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "|")
}

// CartItem is a single line in the cart ledger.
type CartItem struct {
	ProductID string
	Title     string
	Image     string
	Color     string
	Size      string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Key derives the ledger key for the item.
func (i CartItem) Key() ItemKey {
	return ItemKey{
		ProductID: strings.TrimSpace(i.ProductID),
		Color:     strings.TrimSpace(i.Color),
		Size:      strings.TrimSpace(i.Size),
	}
}

// LineTotal is the unrounded price of the line.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Totals is the value object derived from the ledger on every read. It is
// never stored or mutated in place.
type Totals struct {
	Subtotal      decimal.Decimal
	Shipping      decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	TotalQuantity int
}

// AmountMinorUnits converts the grand total into integer minor currency
// units (round-half-up), the only representation the gateway accepts.
func (t Totals) AmountMinorUnits() int64 {
	return t.Total.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// ShippingForm holds the customer-entered contact and address fields. All
// fields are required before any payment step begins.
type ShippingForm struct {
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Address    string
	City       string
	PostalCode string
	Country    string
}

// MissingFields lists the required fields that are empty, in form order.
func (f ShippingForm) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("first_name", f.FirstName)
	check("last_name", f.LastName)
	check("email", f.Email)
	check("phone", f.Phone)
	check("address", f.Address)
	check("city", f.City)
	check("postal_code", f.PostalCode)
	check("country", f.Country)
	return missing
}

// FullName joins the name fields for gateway prefill and order notes.
func (f ShippingForm) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(f.FirstName) + " " + strings.TrimSpace(f.LastName))
}

// AddressLine renders the single-line shipping address stored on the order.
func (f ShippingForm) AddressLine() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{f.Address, f.City, f.PostalCode, f.Country} {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, ", ")
}

// PaymentIntent is the gateway-issued handle for a specific amount pending
// capture. Created once per checkout attempt and never reused.
type PaymentIntent struct {
	ID       string
	Amount   int64
	Currency string
	Demo     bool
}

// OutcomeStatus enumerates the terminal gateway notifications.
type OutcomeStatus string

const (
	// OutcomeSucceeded indicates the gateway captured the payment.
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed indicates the gateway reported an explicit failure.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeCancelled indicates the customer dismissed the modal without paying.
	OutcomeCancelled OutcomeStatus = "cancelled"
)

// PaymentOutcome is the single terminal notification for an intent. Once
// reported the gateway is not queried again for the same intent.
type PaymentOutcome struct {
	Status    OutcomeStatus
	PaymentID string
	Signature string
	Reason    string
}

// PaymentPrefill carries customer details into the gateway modal.
type PaymentPrefill struct {
	Name    string
	Email   string
	Contact string
}

// PaymentReference links a created order back to the payment that funded
// it. The backend deduplicates orders on this reference.
type PaymentReference struct {
	Method    string
	IntentID  string
	PaymentID string
}
