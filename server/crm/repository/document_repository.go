package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/crm/domain"
)

// DocumentRepository stores documents with their tagged-union content
// as jsonb.
type DocumentRepository struct {
	pool *pgxpool.Pool
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{pool: pool}
}

func (r *DocumentRepository) Create(ctx context.Context, doc domain.Document) (string, error) {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return "", fmt.Errorf("encode document content: %w", err)
	}
	var id string
	err = r.pool.QueryRow(ctx, `
		INSERT INTO documents(owner_id, lead_id, title, content)
		VALUES($1, NULLIF($2, ''), $3, $4)
		RETURNING document_id
	`, doc.OwnerID, doc.LeadID, doc.Title, content).Scan(&id)
	return id, err
}

func (r *DocumentRepository) GetByID(ctx context.Context, documentID string) (domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT document_id, owner_id, COALESCE(lead_id::text, ''), title, content, created_at
		FROM documents
		WHERE document_id = $1
	`, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Document{}, ErrNotFound
	}
	return doc, err
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id, owner_id, COALESCE(lead_id::text, ''), title, content, created_at
		FROM documents
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func (r *DocumentRepository) ListByLead(ctx context.Context, leadID string) ([]domain.Document, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT document_id, owner_id, COALESCE(lead_id::text, ''), title, content, created_at
		FROM documents
		WHERE lead_id = $1
		ORDER BY created_at DESC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	var doc domain.Document
	var content []byte
	if err := row.Scan(&doc.ID, &doc.OwnerID, &doc.LeadID, &doc.Title, &content, &doc.CreatedAt); err != nil {
		return domain.Document{}, err
	}
	if err := json.Unmarshal(content, &doc.Content); err != nil {
		return domain.Document{}, fmt.Errorf("decode document content: %w", err)
	}
	return doc, nil
}
