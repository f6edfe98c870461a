package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reno_server/server/billing/domain"
	"reno_server/server/billing/repository"
	commonlog "reno_server/server/common/log"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotEditable       = errors.New("only draft quotes can be edited")
	ErrNotAccepted       = errors.New("only accepted quotes can be invoiced")
	ErrAlreadyInvoiced   = errors.New("quote already invoiced")
)

type quoteStore interface {
	Create(ctx context.Context, quote domain.Quote) (string, error)
	GetByID(ctx context.Context, quoteID string) (domain.Quote, error)
	ListByCreator(ctx context.Context, userID string) ([]domain.Quote, error)
	UpdateDraft(ctx context.Context, quote domain.Quote) error
	UpdateStatus(ctx context.Context, quoteID string, from, to domain.QuoteStatus) error
}

type invoiceStore interface {
	Create(ctx context.Context, invoice domain.Invoice) (domain.Invoice, error)
	GetByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	ListByCreator(ctx context.Context, userID string) ([]domain.Invoice, error)
	ListOverdue(ctx context.Context, now time.Time) ([]domain.Invoice, error)
	MarkPaid(ctx context.Context, invoiceID string, paidAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type BillingService struct {
	quotes   quoteStore
	invoices invoiceStore
	events   EventPublisher
	now      func() time.Time
}

func NewBillingService(quotes quoteStore, invoices invoiceStore, events EventPublisher) *BillingService {
	return &BillingService{quotes: quotes, invoices: invoices, events: events, now: time.Now}
}

type QuoteInput struct {
	LeadID       string
	CustomerName string
	Items        []domain.LineItem
	TaxRateBasis int64
}

func (in QuoteInput) validate() error {
	if strings.TrimSpace(in.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidInput)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("%w: a quote needs at least one line item", ErrInvalidInput)
	}
	if in.TaxRateBasis < 0 || in.TaxRateBasis > 10000 {
		return fmt.Errorf("%w: tax rate %d basis points out of range", ErrInvalidInput, in.TaxRateBasis)
	}
	for i, item := range in.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("%w: item %d: %v", ErrInvalidInput, i, err)
		}
	}
	return nil
}

func (s *BillingService) CreateQuote(ctx context.Context, userID string, input QuoteInput) (domain.Quote, error) {
	if err := input.validate(); err != nil {
		return domain.Quote{}, err
	}
	quote := domain.Quote{
		LeadID:       input.LeadID,
		CreatedBy:    userID,
		CustomerName: strings.TrimSpace(input.CustomerName),
		Items:        input.Items,
		TaxRateBasis: input.TaxRateBasis,
		Status:       domain.QuoteDraft,
	}
	quote.Totalize()

	id, err := s.quotes.Create(ctx, quote)
	if err != nil {
		return domain.Quote{}, err
	}
	quote.ID = id
	return quote, nil
}

func (s *BillingService) GetQuote(ctx context.Context, caller string, admin bool, quoteID string) (domain.Quote, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Quote{}, ErrNotFound
		}
		return domain.Quote{}, err
	}
	if !admin && quote.CreatedBy != caller {
		return domain.Quote{}, ErrForbidden
	}
	return quote, nil
}

func (s *BillingService) ListQuotes(ctx context.Context, userID string) ([]domain.Quote, error) {
	return s.quotes.ListByCreator(ctx, userID)
}

// UpdateQuote rewrites a draft's items and recomputes its totals.
func (s *BillingService) UpdateQuote(ctx context.Context, caller string, admin bool, quoteID string, input QuoteInput) (domain.Quote, error) {
	if err := input.validate(); err != nil {
		return domain.Quote{}, err
	}
	quote, err := s.GetQuote(ctx, caller, admin, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	if !quote.Editable() {
		return domain.Quote{}, ErrNotEditable
	}

	quote.CustomerName = strings.TrimSpace(input.CustomerName)
	quote.Items = input.Items
	quote.TaxRateBasis = input.TaxRateBasis
	quote.Totalize()

	if err := s.quotes.UpdateDraft(ctx, quote); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Quote{}, ErrNotEditable
		}
		return domain.Quote{}, err
	}
	return quote, nil
}

func (s *BillingService) TransitionQuote(ctx context.Context, caller string, admin bool, quoteID string, to domain.QuoteStatus) (domain.Quote, error) {
	if !domain.ValidQuoteStatus(to) {
		return domain.Quote{}, fmt.Errorf("%w: unknown quote status %q", ErrInvalidInput, to)
	}
	quote, err := s.GetQuote(ctx, caller, admin, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	if !domain.CanTransitionQuote(quote.Status, to) {
		return domain.Quote{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, quote.Status, to)
	}
	if err := s.quotes.UpdateStatus(ctx, quoteID, quote.Status, to); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Quote{}, fmt.Errorf("%w: quote changed concurrently", ErrInvalidTransition)
		}
		return domain.Quote{}, err
	}
	s.publish(ctx, "quote.status_changed", map[string]any{
		"quote_id":   quoteID,
		"created_by": quote.CreatedBy,
		"from":       quote.Status,
		"to":         to,
	})

	quote.Status = to
	return quote, nil
}

// IssueInvoice turns an accepted quote into an open invoice. Each
// quote yields at most one invoice.
func (s *BillingService) IssueInvoice(ctx context.Context, caller string, admin bool, quoteID string) (domain.Invoice, error) {
	quote, err := s.GetQuote(ctx, caller, admin, quoteID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if quote.Status != domain.QuoteAccepted {
		return domain.Invoice{}, ErrNotAccepted
	}

	invoice, err := s.invoices.Create(ctx, domain.Invoice{
		QuoteID:    quoteID,
		CreatedBy:  quote.CreatedBy,
		TotalCents: quote.TotalCents,
		Status:     domain.InvoiceOpen,
		DueAt:      s.now().Add(domain.DefaultPaymentTerm),
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateInvoice) {
			return domain.Invoice{}, ErrAlreadyInvoiced
		}
		return domain.Invoice{}, err
	}
	s.publish(ctx, "invoice.issued", map[string]any{
		"invoice_id":  invoice.ID,
		"number":      invoice.Number,
		"quote_id":    quoteID,
		"created_by":  invoice.CreatedBy,
		"total_cents": invoice.TotalCents,
	})
	return invoice, nil
}

func (s *BillingService) GetInvoice(ctx context.Context, caller string, admin bool, invoiceID string) (domain.Invoice, error) {
	invoice, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Invoice{}, ErrNotFound
		}
		return domain.Invoice{}, err
	}
	if !admin && invoice.CreatedBy != caller {
		return domain.Invoice{}, ErrForbidden
	}
	return invoice, nil
}

func (s *BillingService) ListInvoices(ctx context.Context, userID string) ([]domain.Invoice, error) {
	return s.invoices.ListByCreator(ctx, userID)
}

func (s *BillingService) ListOverdueInvoices(ctx context.Context) ([]domain.Invoice, error) {
	return s.invoices.ListOverdue(ctx, s.now())
}

func (s *BillingService) MarkInvoicePaid(ctx context.Context, caller string, admin bool, invoiceID string) error {
	invoice, err := s.GetInvoice(ctx, caller, admin, invoiceID)
	if err != nil {
		return err
	}
	if invoice.Status != domain.InvoiceOpen {
		return fmt.Errorf("%w: invoice is already %s", ErrInvalidTransition, invoice.Status)
	}
	if err := s.invoices.MarkPaid(ctx, invoiceID, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.publish(ctx, "invoice.paid", map[string]any{
		"invoice_id": invoiceID,
		"created_by": invoice.CreatedBy,
	})
	return nil
}

func (s *BillingService) publish(ctx context.Context, routingKey string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, payload); err != nil {
		commonlog.Warnf("publish %s event: %v", routingKey, err)
	}
}
