package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/account/domain"
)

var ErrNotFound = errors.New("user not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user domain.User) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO users(email, name, phone, role, password_hash)
		VALUES($1, $2, $3, $4, $5)
		RETURNING user_id
	`, user.Email, user.Name, user.Phone, user.Role, user.PasswordHash).Scan(&id)
	return id, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return user, err
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return user, err
}

func (r *UserRepository) Search(ctx context.Context, q string, limit int) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, email, name, phone, role, password_hash, created_at, updated_at
		FROM users
		WHERE name ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT $2
	`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.User, 0)
	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name, &user.Phone, &user.Role, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, user)
	}
	return items, rows.Err()
}
