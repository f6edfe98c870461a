package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reno_server/server/billing/domain"
	"reno_server/server/billing/repository"
)

type fakeQuoteStore struct {
	quotes map[string]domain.Quote
}

func newFakeQuoteStore() *fakeQuoteStore {
	return &fakeQuoteStore{quotes: map[string]domain.Quote{}}
}

func (s *fakeQuoteStore) Create(ctx context.Context, quote domain.Quote) (string, error) {
	quote.ID = fmt.Sprintf("q-%d", len(s.quotes)+1)
	s.quotes[quote.ID] = quote
	return quote.ID, nil
}

func (s *fakeQuoteStore) GetByID(ctx context.Context, id string) (domain.Quote, error) {
	quote, ok := s.quotes[id]
	if !ok {
		return domain.Quote{}, repository.ErrNotFound
	}
	return quote, nil
}

func (s *fakeQuoteStore) ListByCreator(ctx context.Context, userID string) ([]domain.Quote, error) {
	items := make([]domain.Quote, 0)
	for _, quote := range s.quotes {
		if quote.CreatedBy == userID {
			items = append(items, quote)
		}
	}
	return items, nil
}

func (s *fakeQuoteStore) UpdateDraft(ctx context.Context, quote domain.Quote) error {
	existing, ok := s.quotes[quote.ID]
	if !ok || existing.Status != domain.QuoteDraft {
		return repository.ErrNotFound
	}
	s.quotes[quote.ID] = quote
	return nil
}

func (s *fakeQuoteStore) UpdateStatus(ctx context.Context, id string, from, to domain.QuoteStatus) error {
	quote, ok := s.quotes[id]
	if !ok || quote.Status != from {
		return repository.ErrNotFound
	}
	quote.Status = to
	s.quotes[id] = quote
	return nil
}

type fakeInvoiceStore struct {
	invoices map[string]domain.Invoice
	byQuote  map[string]string
	seq      int
}

func newFakeInvoiceStore() *fakeInvoiceStore {
	return &fakeInvoiceStore{invoices: map[string]domain.Invoice{}, byQuote: map[string]string{}}
}

func (s *fakeInvoiceStore) Create(ctx context.Context, invoice domain.Invoice) (domain.Invoice, error) {
	if _, exists := s.byQuote[invoice.QuoteID]; exists {
		return domain.Invoice{}, repository.ErrDuplicateInvoice
	}
	s.seq++
	invoice.ID = fmt.Sprintf("i-%d", s.seq)
	invoice.Number = fmt.Sprintf("INV-2026-%05d", s.seq)
	s.invoices[invoice.ID] = invoice
	s.byQuote[invoice.QuoteID] = invoice.ID
	return invoice, nil
}

func (s *fakeInvoiceStore) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	invoice, ok := s.invoices[id]
	if !ok {
		return domain.Invoice{}, repository.ErrNotFound
	}
	return invoice, nil
}

func (s *fakeInvoiceStore) ListByCreator(ctx context.Context, userID string) ([]domain.Invoice, error) {
	items := make([]domain.Invoice, 0)
	for _, invoice := range s.invoices {
		if invoice.CreatedBy == userID {
			items = append(items, invoice)
		}
	}
	return items, nil
}

func (s *fakeInvoiceStore) ListOverdue(ctx context.Context, now time.Time) ([]domain.Invoice, error) {
	items := make([]domain.Invoice, 0)
	for _, invoice := range s.invoices {
		if invoice.Overdue(now) {
			items = append(items, invoice)
		}
	}
	return items, nil
}

func (s *fakeInvoiceStore) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	invoice, ok := s.invoices[id]
	if !ok || invoice.Status != domain.InvoiceOpen {
		return repository.ErrNotFound
	}
	invoice.Status = domain.InvoicePaid
	invoice.PaidAt = &paidAt
	s.invoices[id] = invoice
	return nil
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.events = append(p.events, routingKey)
	return nil
}

type billingFixture struct {
	svc      *BillingService
	quotes   *fakeQuoteStore
	invoices *fakeInvoiceStore
	events   *recordingPublisher
}

func newBillingFixture() *billingFixture {
	f := &billingFixture{
		quotes:   newFakeQuoteStore(),
		invoices: newFakeInvoiceStore(),
		events:   &recordingPublisher{},
	}
	f.svc = NewBillingService(f.quotes, f.invoices, f.events)
	return f
}

func validInput() QuoteInput {
	return QuoteInput{
		CustomerName: "J. Homeowner",
		Items: []domain.LineItem{
			{Description: "demolition", Quantity: 1, UnitPriceCents: 50000},
			{Description: "tile", Quantity: 12, UnitPriceCents: 2500},
		},
		TaxRateBasis: 2100,
	}
}

func TestCreateQuoteComputesTotals(t *testing.T) {
	f := newBillingFixture()
	quote, err := f.svc.CreateQuote(context.Background(), "u-1", validInput())
	require.NoError(t, err)

	assert.Equal(t, domain.QuoteDraft, quote.Status)
	assert.Equal(t, int64(80000), quote.SubtotalCents)
	assert.Equal(t, int64(16800), quote.TaxCents)
	assert.Equal(t, int64(96800), quote.TotalCents)
}

func TestCreateQuoteValidation(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()

	input := validInput()
	input.CustomerName = " "
	_, err := f.svc.CreateQuote(ctx, "u-1", input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = validInput()
	input.Items = nil
	_, err = f.svc.CreateQuote(ctx, "u-1", input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = validInput()
	input.Items[0].Quantity = 0
	_, err = f.svc.CreateQuote(ctx, "u-1", input)
	assert.ErrorIs(t, err, ErrInvalidInput)

	input = validInput()
	input.TaxRateBasis = 20000
	_, err = f.svc.CreateQuote(ctx, "u-1", input)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateQuoteOnlyWhileDraft(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	quote, err := f.svc.CreateQuote(ctx, "u-1", validInput())
	require.NoError(t, err)

	input := validInput()
	input.Items = []domain.LineItem{{Description: "paint", Quantity: 2, UnitPriceCents: 4500}}
	updated, err := f.svc.UpdateQuote(ctx, "u-1", false, quote.ID, input)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), updated.SubtotalCents)

	_, err = f.svc.TransitionQuote(ctx, "u-1", false, quote.ID, domain.QuoteSent)
	require.NoError(t, err)

	_, err = f.svc.UpdateQuote(ctx, "u-1", false, quote.ID, input)
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestQuoteOwnership(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	quote, err := f.svc.CreateQuote(ctx, "u-1", validInput())
	require.NoError(t, err)

	_, err = f.svc.GetQuote(ctx, "u-2", false, quote.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetQuote(ctx, "u-2", true, quote.ID)
	assert.NoError(t, err)
}

func TestIssueInvoice(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	quote, err := f.svc.CreateQuote(ctx, "u-1", validInput())
	require.NoError(t, err)

	// Draft and sent quotes cannot be invoiced.
	_, err = f.svc.IssueInvoice(ctx, "u-1", false, quote.ID)
	assert.ErrorIs(t, err, ErrNotAccepted)

	_, err = f.svc.TransitionQuote(ctx, "u-1", false, quote.ID, domain.QuoteSent)
	require.NoError(t, err)
	_, err = f.svc.TransitionQuote(ctx, "u-1", false, quote.ID, domain.QuoteAccepted)
	require.NoError(t, err)

	invoice, err := f.svc.IssueInvoice(ctx, "u-1", false, quote.ID)
	require.NoError(t, err)
	assert.Equal(t, quote.TotalCents, invoice.TotalCents)
	assert.Equal(t, domain.InvoiceOpen, invoice.Status)
	assert.NotEmpty(t, invoice.Number)

	// Second invoice for the same quote is rejected.
	_, err = f.svc.IssueInvoice(ctx, "u-1", false, quote.ID)
	assert.ErrorIs(t, err, ErrAlreadyInvoiced)

	assert.Contains(t, f.events.events, "invoice.issued")
}

func TestMarkInvoicePaid(t *testing.T) {
	f := newBillingFixture()
	ctx := context.Background()
	quote, err := f.svc.CreateQuote(ctx, "u-1", validInput())
	require.NoError(t, err)
	_, err = f.svc.TransitionQuote(ctx, "u-1", false, quote.ID, domain.QuoteSent)
	require.NoError(t, err)
	_, err = f.svc.TransitionQuote(ctx, "u-1", false, quote.ID, domain.QuoteAccepted)
	require.NoError(t, err)
	invoice, err := f.svc.IssueInvoice(ctx, "u-1", false, quote.ID)
	require.NoError(t, err)

	err = f.svc.MarkInvoicePaid(ctx, "u-2", false, invoice.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.MarkInvoicePaid(ctx, "u-1", false, invoice.ID))

	err = f.svc.MarkInvoicePaid(ctx, "u-1", false, invoice.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListOverdueInvoices(t *testing.T) {
	f := newBillingFixture()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	f.invoices.invoices["i-late"] = domain.Invoice{
		ID: "i-late", QuoteID: "q-1", CreatedBy: "u-1",
		Status: domain.InvoiceOpen, DueAt: now.Add(-48 * time.Hour),
	}
	f.invoices.invoices["i-ok"] = domain.Invoice{
		ID: "i-ok", QuoteID: "q-2", CreatedBy: "u-1",
		Status: domain.InvoiceOpen, DueAt: now.Add(48 * time.Hour),
	}

	overdue, err := f.svc.ListOverdueInvoices(context.Background())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "i-late", overdue[0].ID)
}
