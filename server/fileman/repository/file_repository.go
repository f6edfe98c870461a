package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reno_server/server/fileman/domain"
)

var ErrNotFound = errors.New("file not found")

// fileColumns is the shared SELECT list; uploader name/email come from
// the users join and are shaped into the public uploader view.
const fileColumns = `f.file_id, f.uploaded_by, f.entity_type, f.entity_id, f.original_name,
	f.content_type, f.extension, f.size_bytes, f.file_path, f.url, f.thumbnail_key,
	f.tags, f.description, f.is_public, f.created_at, u.name, u.email`

type FileRepository struct {
	pool *pgxpool.Pool
}

func NewFileRepository(pool *pgxpool.Pool) *FileRepository {
	return &FileRepository{pool: pool}
}

// buildListWhere translates visibility plus list options into a WHERE
// clause with numbered args. For non-admin callers the ownership
// disjunction is the base predicate and every option is conjoined onto
// it, so filters can only narrow what the caller may already see.
func buildListWhere(vis domain.Visibility, opts domain.ListOptions, startIndex int) (string, []any) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 6)
	idx := startIndex

	if !vis.Admin {
		docIDs := vis.DocumentIDs
		if docIDs == nil {
			docIDs = []string{}
		}
		clauses = append(clauses, fmt.Sprintf(
			"(f.uploaded_by = $%d OR (f.entity_type = 'document' AND f.entity_id = ANY($%d)))", idx, idx+1))
		args = append(args, vis.UserID, docIDs)
		idx += 2
	}
	if opts.EntityType != "" {
		clauses = append(clauses, fmt.Sprintf("f.entity_type = $%d", idx))
		args = append(args, opts.EntityType)
		idx++
	}
	if opts.EntityID != "" {
		clauses = append(clauses, fmt.Sprintf("f.entity_id = $%d", idx))
		args = append(args, opts.EntityID)
		idx++
	}
	if exts := domain.ExtensionsForFileType(opts.FileType); len(exts) > 0 {
		clauses = append(clauses, fmt.Sprintf("f.extension = ANY($%d)", idx))
		args = append(args, exts)
		idx++
	}
	if len(opts.Tags) > 0 {
		clauses = append(clauses, fmt.Sprintf("f.tags && $%d", idx))
		args = append(args, opts.Tags)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// buildOrderBy composes the ORDER BY clause from already-normalized
// options (column and direction are whitelisted in the domain layer).
func buildOrderBy(opts domain.ListOptions) string {
	direction := "DESC"
	if opts.SortOrder == "asc" {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY f.%s %s", opts.SortBy, direction)
}

func (r *FileRepository) List(ctx context.Context, vis domain.Visibility, opts domain.ListOptions) ([]domain.FileRecord, int, error) {
	where, args := buildListWhere(vis, opts, 1)

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM files f %s`, where)
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	idx := len(args) + 1
	dataQuery := fmt.Sprintf(`
		SELECT %s
		FROM files f
		LEFT JOIN users u ON u.user_id = f.uploaded_by
		%s %s LIMIT $%d OFFSET $%d
	`, fileColumns, where, buildOrderBy(opts), idx, idx+1)
	args = append(args, opts.Limit, (opts.Page-1)*opts.Limit)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]domain.FileRecord, 0)
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, item)
	}
	return items, total, rows.Err()
}

func (r *FileRepository) GetByID(ctx context.Context, fileID string) (domain.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM files f
		LEFT JOIN users u ON u.user_id = f.uploaded_by
		WHERE f.file_id = $1
	`, fileColumns)
	rows, err := r.pool.Query(ctx, query, fileID)
	if err != nil {
		return domain.FileRecord{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return domain.FileRecord{}, err
		}
		return domain.FileRecord{}, ErrNotFound
	}
	return scanFile(rows)
}

func (r *FileRepository) GetByIDs(ctx context.Context, fileIDs []string) ([]domain.FileRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM files f
		LEFT JOIN users u ON u.user_id = f.uploaded_by
		WHERE f.file_id = ANY($1)
	`, fileColumns)
	rows, err := r.pool.Query(ctx, query, fileIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.FileRecord, 0, len(fileIDs))
	for rows.Next() {
		item, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *FileRepository) Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO files(uploaded_by, entity_type, entity_id, original_name, content_type,
			extension, size_bytes, file_path, url, thumbnail_key, tags, description, is_public)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING file_id, created_at
	`, item.UploadedBy, nullIfEmpty(item.EntityType), nullIfEmpty(item.EntityID), item.OriginalName,
		item.ContentType, item.Extension, item.SizeBytes, item.FilePath, item.URL,
		nullIfEmpty(item.ThumbnailKey), tags, nullIfEmpty(item.Description), item.IsPublic,
	).Scan(&item.ID, &item.CreatedAt)
	return item, err
}

// UpdateMetadata persists only the fields present in the update; an
// update with nothing set reads back the current record.
func (r *FileRepository) UpdateMetadata(ctx context.Context, update domain.MetadataUpdate) (domain.FileRecord, error) {
	sets := make([]string, 0, 3)
	args := make([]any, 0, 4)
	idx := 1

	if update.Tags != nil {
		tags := *update.Tags
		if tags == nil {
			tags = []string{}
		}
		sets = append(sets, fmt.Sprintf("tags = $%d", idx))
		args = append(args, tags)
		idx++
	}
	if update.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, *update.Description)
		idx++
	}
	if update.IsPublic != nil {
		sets = append(sets, fmt.Sprintf("is_public = $%d", idx))
		args = append(args, *update.IsPublic)
		idx++
	}

	if len(sets) > 0 {
		query := fmt.Sprintf(`UPDATE files SET %s WHERE file_id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, update.FileID)
		cmd, err := r.pool.Exec(ctx, query, args...)
		if err != nil {
			return domain.FileRecord{}, fmt.Errorf("update file metadata: %w", err)
		}
		if cmd.RowsAffected() == 0 {
			return domain.FileRecord{}, ErrNotFound
		}
	}
	return r.GetByID(ctx, update.FileID)
}

func (r *FileRepository) Delete(ctx context.Context, fileID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM files WHERE file_id = $1`, fileID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OwnedDocumentIDs returns the ids of documents owned by the user, the
// input to visibility branch (b).
func (r *FileRepository) OwnedDocumentIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT document_id FROM documents WHERE owner_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanFile(rows pgx.Rows) (domain.FileRecord, error) {
	var item domain.FileRecord
	var entityType, entityID, thumbnailKey, description *string
	var uploaderName, uploaderEmail *string
	if err := rows.Scan(
		&item.ID, &item.UploadedBy, &entityType, &entityID, &item.OriginalName,
		&item.ContentType, &item.Extension, &item.SizeBytes, &item.FilePath, &item.URL,
		&thumbnailKey, &item.Tags, &description, &item.IsPublic, &item.CreatedAt,
		&uploaderName, &uploaderEmail,
	); err != nil {
		return domain.FileRecord{}, err
	}
	item.EntityType = deref(entityType)
	item.EntityID = deref(entityID)
	item.ThumbnailKey = deref(thumbnailKey)
	item.Description = deref(description)
	if item.Tags == nil {
		item.Tags = []string{}
	}
	if uploaderName != nil || uploaderEmail != nil {
		item.Uploader = &domain.Uploader{ID: item.UploadedBy, Name: deref(uploaderName), Email: deref(uploaderEmail)}
	}
	return item, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
