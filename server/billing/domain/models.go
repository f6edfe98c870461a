package domain

import (
	"fmt"
	"time"
)

type QuoteStatus string

const (
	QuoteDraft    QuoteStatus = "draft"
	QuoteSent     QuoteStatus = "sent"
	QuoteAccepted QuoteStatus = "accepted"
	QuoteDeclined QuoteStatus = "declined"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteDraft:    {QuoteSent},
	QuoteSent:     {QuoteAccepted, QuoteDeclined},
	QuoteAccepted: {},
	QuoteDeclined: {},
}

func ValidQuoteStatus(status QuoteStatus) bool {
	_, ok := quoteTransitions[status]
	return ok
}

func CanTransitionQuote(from, to QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// LineItem amounts are integer cents. Floats never touch money.
type LineItem struct {
	Description    string `json:"description"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (li LineItem) TotalCents() int64 {
	return li.Quantity * li.UnitPriceCents
}

func (li LineItem) Validate() error {
	if li.Description == "" {
		return fmt.Errorf("line item description is required")
	}
	if li.Quantity <= 0 {
		return fmt.Errorf("line item quantity must be positive, got %d", li.Quantity)
	}
	if li.UnitPriceCents < 0 {
		return fmt.Errorf("line item unit price must not be negative, got %d", li.UnitPriceCents)
	}
	return nil
}

type Quote struct {
	ID            string      `json:"id"`
	LeadID        string      `json:"lead_id,omitempty"`
	CreatedBy     string      `json:"created_by"`
	CustomerName  string      `json:"customer_name"`
	Items         []LineItem  `json:"items"`
	TaxRateBasis  int64       `json:"tax_rate_basis_points"`
	SubtotalCents int64       `json:"subtotal_cents"`
	TaxCents      int64       `json:"tax_cents"`
	TotalCents    int64       `json:"total_cents"`
	Status        QuoteStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Totalize recomputes the money fields from the line items. Tax rate
// is in basis points, rounded half up on the subtotal.
func (q *Quote) Totalize() {
	var subtotal int64
	for _, item := range q.Items {
		subtotal += item.TotalCents()
	}
	q.SubtotalCents = subtotal
	q.TaxCents = (subtotal*q.TaxRateBasis + 5000) / 10000
	q.TotalCents = q.SubtotalCents + q.TaxCents
}

func (q Quote) Editable() bool {
	return q.Status == QuoteDraft
}

type InvoiceStatus string

const (
	InvoiceOpen InvoiceStatus = "open"
	InvoicePaid InvoiceStatus = "paid"
)

type Invoice struct {
	ID         string        `json:"id"`
	Number     string        `json:"number"`
	QuoteID    string        `json:"quote_id"`
	CreatedBy  string        `json:"created_by"`
	TotalCents int64         `json:"total_cents"`
	Status     InvoiceStatus `json:"status"`
	DueAt      time.Time     `json:"due_at"`
	PaidAt     *time.Time    `json:"paid_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (i Invoice) Overdue(now time.Time) bool {
	return i.Status == InvoiceOpen && i.DueAt.Before(now)
}

// DefaultPaymentTerm is how long a customer has to settle an invoice.
const DefaultPaymentTerm = 14 * 24 * time.Hour
