package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/notifier/domain"
)

var ErrNotFound = errors.New("not found")

const notificationColumns = `notification_id, user_id, kind, title, body, ref_id, read_at, created_at`

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) Create(ctx context.Context, n domain.Notification) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications(user_id, kind, title, body, ref_id)
		VALUES($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING notification_id
	`, n.UserID, n.Kind, n.Title, n.Body, n.RefID).Scan(&id)
	return id, err
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// MarkRead flags the given notifications for one user. IDs belonging
// to other users are silently skipped.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID string, ids []string, readAt time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $3
		WHERE user_id = $1 AND notification_id = ANY($2) AND read_at IS NULL
	`, userID, ids, readAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL
	`, userID).Scan(&count)
	return count, err
}

func scanNotification(row pgx.Row) (domain.Notification, error) {
	var n domain.Notification
	var body, refID *string
	err := row.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &body, &refID, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, err
	}
	if body != nil {
		n.Body = *body
	}
	if refID != nil {
		n.RefID = *refID
	}
	return n, nil
}
