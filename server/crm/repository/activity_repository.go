package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/crm/domain"
)

const activityColumns = `activity_id, lead_id, assigned_to, kind, note, due_at, done_at, created_at`

type ActivityRepository struct {
	pool *pgxpool.Pool
}

func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO activities(lead_id, assigned_to, kind, note, due_at)
		VALUES($1, $2, $3, $4, $5)
		RETURNING activity_id
	`, activity.LeadID, activity.AssignedTo, activity.Kind, activity.Note, activity.DueAt).Scan(&id)
	return id, err
}

func (r *ActivityRepository) GetByID(ctx context.Context, activityID string) (domain.Activity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = $1`, activityID)
	activity, err := scanActivity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Activity{}, ErrNotFound
	}
	return activity, err
}

func (r *ActivityRepository) ListByLead(ctx context.Context, leadID string) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+activityColumns+` FROM activities WHERE lead_id = $1 ORDER BY due_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (r *ActivityRepository) ListOverdue(ctx context.Context, userID string, now time.Time) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE assigned_to = $1 AND done_at IS NULL AND due_at < $2
		ORDER BY due_at ASC
	`, userID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// ListDueBetween returns open activities whose due date falls inside
// [from, to). The due scanner uses it to publish each due event once.
func (r *ActivityRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE done_at IS NULL AND due_at >= $1 AND due_at < $2
		ORDER BY due_at ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

func (r *ActivityRepository) MarkDone(ctx context.Context, activityID string, doneAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE activities SET done_at = $2 WHERE activity_id = $1 AND done_at IS NULL
	`, activityID, doneAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var activity domain.Activity
	err := row.Scan(&activity.ID, &activity.LeadID, &activity.AssignedTo, &activity.Kind,
		&activity.Note, &activity.DueAt, &activity.DoneAt, &activity.CreatedAt)
	return activity, err
}

func collectActivities(rows pgx.Rows) ([]domain.Activity, error) {
	items := make([]domain.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, activity)
	}
	return items, rows.Err()
}
