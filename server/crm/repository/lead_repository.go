package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/crm/domain"
)

var ErrNotFound = errors.New("not found")

const leadColumns = `lead_id, assigned_to, name, phone, email, address, description, status, created_at, updated_at`

type LeadRepository struct {
	pool *pgxpool.Pool
}

func NewLeadRepository(pool *pgxpool.Pool) *LeadRepository {
	return &LeadRepository{pool: pool}
}

func (r *LeadRepository) Create(ctx context.Context, lead domain.Lead) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads(assigned_to, name, phone, email, address, description, status)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING lead_id
	`, lead.AssignedTo, lead.Name, lead.Phone, lead.Email, lead.Address, lead.Description, lead.Status).Scan(&id)
	return id, err
}

func (r *LeadRepository) GetByID(ctx context.Context, leadID string) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE lead_id = $1`, leadID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (r *LeadRepository) ListByAssignee(ctx context.Context, userID string, status domain.LeadStatus) ([]domain.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE assigned_to = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *LeadRepository) UpdateStatus(ctx context.Context, leadID string, status domain.LeadStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads SET status = $2, updated_at = now() WHERE lead_id = $1
	`, leadID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale returns open leads untouched since the cutoff, for the
// morning brief.
func (r *LeadRepository) ListStale(ctx context.Context, userID string, cutoff time.Time) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE assigned_to = $1
		  AND status NOT IN ($2, $3)
		  AND updated_at < $4
		ORDER BY updated_at ASC
	`, userID, domain.LeadWon, domain.LeadLost, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLeads(rows)
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	err := row.Scan(&lead.ID, &lead.AssignedTo, &lead.Name, &lead.Phone, &lead.Email,
		&lead.Address, &lead.Description, &lead.Status, &lead.CreatedAt, &lead.UpdatedAt)
	return lead, err
}

func collectLeads(rows pgx.Rows) ([]domain.Lead, error) {
	items := make([]domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, lead)
	}
	return items, rows.Err()
}
