package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/billing/domain"
)

var ErrDuplicateInvoice = errors.New("quote already invoiced")

const invoiceColumns = `invoice_id, number, quote_id, created_by, total_cents, status, due_at, paid_at, created_at`

type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// Create issues the next invoice number from a sequence inside the
// insert. The unique index on quote_id enforces one invoice per quote.
func (r *InvoiceRepository) Create(ctx context.Context, invoice domain.Invoice) (domain.Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invoices(number, quote_id, created_by, total_cents, status, due_at)
		VALUES('INV-' || to_char(now(), 'YYYY') || '-' || lpad(nextval('invoice_number_seq')::text, 5, '0'),
			$1, $2, $3, $4, $5)
		ON CONFLICT (quote_id) DO NOTHING
		RETURNING `+invoiceColumns+`
	`, invoice.QuoteID, invoice.CreatedBy, invoice.TotalCents, invoice.Status, invoice.DueAt)

	created, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Invoice{}, ErrDuplicateInvoice
	}
	if err != nil {
		return domain.Invoice{}, fmt.Errorf("insert invoice for quote %s: %w", invoice.QuoteID, err)
	}
	return created, nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_id = $1`, invoiceID)
	invoice, err := scanInvoice(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Invoice{}, ErrNotFound
	}
	return invoice, err
}

func (r *InvoiceRepository) ListByCreator(ctx context.Context, userID string) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices WHERE created_by = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *InvoiceRepository) ListOverdue(ctx context.Context, now time.Time) ([]domain.Invoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE status = $1 AND due_at < $2
		ORDER BY due_at ASC
	`, domain.InvoiceOpen, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *InvoiceRepository) MarkPaid(ctx context.Context, invoiceID string, paidAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE invoices SET status = $2, paid_at = $3
		WHERE invoice_id = $1 AND status = $4
	`, invoiceID, domain.InvoicePaid, paidAt, domain.InvoiceOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanInvoice(row pgx.Row) (domain.Invoice, error) {
	var invoice domain.Invoice
	err := row.Scan(&invoice.ID, &invoice.Number, &invoice.QuoteID, &invoice.CreatedBy,
		&invoice.TotalCents, &invoice.Status, &invoice.DueAt, &invoice.PaidAt, &invoice.CreatedAt)
	return invoice, err
}

func collectInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	items := make([]domain.Invoice, 0)
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, invoice)
	}
	return items, rows.Err()
}
