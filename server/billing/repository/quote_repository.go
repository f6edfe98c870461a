package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/billing/domain"
)

var ErrNotFound = errors.New("not found")

const quoteColumns = `quote_id, COALESCE(lead_id::text, ''), created_by, customer_name, items,
	tax_rate_basis_points, subtotal_cents, tax_cents, total_cents, status, created_at, updated_at`

type QuoteRepository struct {
	pool *pgxpool.Pool
}

func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}

func (r *QuoteRepository) Create(ctx context.Context, quote domain.Quote) (string, error) {
	items, err := json.Marshal(quote.Items)
	if err != nil {
		return "", fmt.Errorf("encode line items: %w", err)
	}
	var id string
	err = r.pool.QueryRow(ctx, `
		INSERT INTO quotes(lead_id, created_by, customer_name, items,
			tax_rate_basis_points, subtotal_cents, tax_cents, total_cents, status)
		VALUES(NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING quote_id
	`, quote.LeadID, quote.CreatedBy, quote.CustomerName, items,
		quote.TaxRateBasis, quote.SubtotalCents, quote.TaxCents, quote.TotalCents, quote.Status).Scan(&id)
	return id, err
}

func (r *QuoteRepository) GetByID(ctx context.Context, quoteID string) (domain.Quote, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE quote_id = $1`, quoteID)
	quote, err := scanQuote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quote{}, ErrNotFound
	}
	return quote, err
}

func (r *QuoteRepository) ListByCreator(ctx context.Context, userID string) ([]domain.Quote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+quoteColumns+` FROM quotes WHERE created_by = $1 ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Quote, 0)
	for rows.Next() {
		quote, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, quote)
	}
	return items, rows.Err()
}

// UpdateDraft replaces the line items and recomputed totals. The
// status guard in the WHERE clause keeps sent quotes immutable even
// under concurrent edits.
func (r *QuoteRepository) UpdateDraft(ctx context.Context, quote domain.Quote) error {
	items, err := json.Marshal(quote.Items)
	if err != nil {
		return fmt.Errorf("encode line items: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotes
		SET customer_name = $2, items = $3, tax_rate_basis_points = $4,
			subtotal_cents = $5, tax_cents = $6, total_cents = $7, updated_at = now()
		WHERE quote_id = $1 AND status = $8
	`, quote.ID, quote.CustomerName, items, quote.TaxRateBasis,
		quote.SubtotalCents, quote.TaxCents, quote.TotalCents, domain.QuoteDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *QuoteRepository) UpdateStatus(ctx context.Context, quoteID string, from, to domain.QuoteStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE quotes SET status = $3, updated_at = now()
		WHERE quote_id = $1 AND status = $2
	`, quoteID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanQuote(row pgx.Row) (domain.Quote, error) {
	var quote domain.Quote
	var items []byte
	err := row.Scan(&quote.ID, &quote.LeadID, &quote.CreatedBy, &quote.CustomerName, &items,
		&quote.TaxRateBasis, &quote.SubtotalCents, &quote.TaxCents, &quote.TotalCents,
		&quote.Status, &quote.CreatedAt, &quote.UpdatedAt)
	if err != nil {
		return domain.Quote{}, err
	}
	if err := json.Unmarshal(items, &quote.Items); err != nil {
		return domain.Quote{}, fmt.Errorf("decode line items: %w", err)
	}
	return quote, nil
}
