package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	commonlog "reno_server/server/common/log"
	"reno_server/server/fileman/domain"
	"reno_server/server/fileman/repository"
)

var (
	ErrNotFound     = errors.New("file not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

const presignExpiry = 15 * time.Minute

type FileStore interface {
	List(ctx context.Context, vis domain.Visibility, opts domain.ListOptions) ([]domain.FileRecord, int, error)
	GetByID(ctx context.Context, fileID string) (domain.FileRecord, error)
	GetByIDs(ctx context.Context, fileIDs []string) ([]domain.FileRecord, error)
	Create(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error)
	UpdateMetadata(ctx context.Context, update domain.MetadataUpdate) (domain.FileRecord, error)
	Delete(ctx context.Context, fileID string) error
}

type BlobStore interface {
	PresignPut(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, objectKey string) error
	Get(ctx context.Context, objectKey string) (io.ReadCloser, error)
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

type FileService struct {
	store         FileStore
	blob          BlobStore
	visibility    *VisibilityResolver
	publicBaseURL string
}

func NewFileService(store FileStore, blob BlobStore, visibility *VisibilityResolver, publicBaseURL string) *FileService {
	return &FileService{
		store:         store,
		blob:          blob,
		visibility:    visibility,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

// List executes the caller-scoped file query. Options are normalized
// first, so malformed pagination degrades to defaults instead of
// failing the request.
func (s *FileService) List(ctx context.Context, caller domain.Caller, opts domain.ListOptions) (domain.ListResult, error) {
	opts = opts.Normalized()
	vis, err := s.visibility.Resolve(ctx, caller)
	if err != nil {
		return domain.ListResult{}, err
	}
	files, total, err := s.store.List(ctx, vis, opts)
	if err != nil {
		return domain.ListResult{}, err
	}
	return domain.ListResult{
		Files:      files,
		TotalCount: total,
		Page:       opts.Page,
		Limit:      opts.Limit,
		TotalPages: (total + opts.Limit - 1) / opts.Limit,
	}, nil
}

// UpdateMetadata changes only the fields present in the update after
// the caller passes the visibility check for this specific record.
func (s *FileService) UpdateMetadata(ctx context.Context, caller domain.Caller, update domain.MetadataUpdate) (domain.FileRecord, error) {
	rec, err := s.store.GetByID(ctx, update.FileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.FileRecord{}, ErrNotFound
		}
		return domain.FileRecord{}, err
	}

	vis, err := s.visibility.Resolve(ctx, caller)
	if err != nil {
		return domain.FileRecord{}, err
	}
	if !vis.Allows(rec) {
		return domain.FileRecord{}, ErrForbidden
	}

	updated, err := s.store.UpdateMetadata(ctx, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.FileRecord{}, ErrNotFound
		}
		return domain.FileRecord{}, err
	}
	return updated, nil
}

// BulkDelete removes a batch of files, blob object first and metadata
// row second. Authorization is all-or-nothing up front; execution is
// best-effort per item, in input order, and one item's failure never
// rolls back or aborts its siblings. A record is never deleted while
// its blob still exists, so the worst case is a record pointing at a
// missing object, which is detectable, rather than an orphaned blob.
func (s *FileService) BulkDelete(ctx context.Context, caller domain.Caller, fileIDs []string) (domain.BulkDeleteResult, error) {
	records, err := s.store.GetByIDs(ctx, fileIDs)
	if err != nil {
		return domain.BulkDeleteResult{}, err
	}
	byID := make(map[string]domain.FileRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	vis, err := s.visibility.Resolve(ctx, caller)
	if err != nil {
		return domain.BulkDeleteResult{}, err
	}
	if !vis.Admin {
		for _, rec := range records {
			if !vis.Allows(rec) {
				return domain.BulkDeleteResult{}, ErrForbidden
			}
		}
	}

	result := domain.BulkDeleteResult{Success: true, Deleted: make([]string, 0, len(fileIDs))}
	for _, fileID := range fileIDs {
		rec, ok := byID[fileID]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("file %s: not found", fileID))
			continue
		}
		if err := s.blob.Remove(ctx, rec.FilePath); err != nil {
			commonlog.Warnf("delete blob %s for file %s: %v", rec.FilePath, fileID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("file %s: %v", fileID, err))
			continue
		}
		if rec.ThumbnailKey != "" {
			if err := s.blob.Remove(ctx, rec.ThumbnailKey); err != nil {
				commonlog.Warnf("delete thumbnail %s for file %s: %v", rec.ThumbnailKey, fileID, err)
			}
		}
		if err := s.store.Delete(ctx, rec.ID); err != nil {
			commonlog.Warnf("delete file record %s: %v", fileID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("file %s: %v", fileID, err))
			continue
		}
		result.Deleted = append(result.Deleted, fileID)
	}
	result.Message = fmt.Sprintf("Successfully deleted %d file(s)", len(result.Deleted))
	return result, nil
}

// PresignUpload allocates an object key and returns a short-lived PUT
// URL; the client uploads the bytes directly and registers afterwards.
func (s *FileService) PresignUpload(ctx context.Context, originalName string) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	objectKey := "uploads/" + uuid.NewString() + ext
	url, err := s.blob.PresignPut(ctx, objectKey, presignExpiry)
	if err != nil {
		return "", "", err
	}
	return url, objectKey, nil
}

func (s *FileService) PresignDownload(ctx context.Context, caller domain.Caller, fileID string) (string, error) {
	rec, err := s.store.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	vis, err := s.visibility.Resolve(ctx, caller)
	if err != nil {
		return "", err
	}
	if !rec.IsPublic && !vis.Allows(rec) {
		return "", ErrForbidden
	}
	return s.blob.PresignGet(ctx, rec.FilePath, presignExpiry)
}

// Register persists the metadata record once an upload has completed.
// Attachment is all-or-nothing: entity type and id come together or
// not at all, so inconsistent links are not producible by writes.
func (s *FileService) Register(ctx context.Context, item domain.FileRecord) (domain.FileRecord, error) {
	if (item.EntityType == "") != (item.EntityID == "") {
		return domain.FileRecord{}, fmt.Errorf("%w: entity type and entity id must be set together", ErrInvalidInput)
	}
	if item.EntityType != "" && !domain.ValidEntityType(item.EntityType) {
		return domain.FileRecord{}, fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, item.EntityType)
	}
	if item.SizeBytes < 0 {
		return domain.FileRecord{}, fmt.Errorf("%w: size must not be negative", ErrInvalidInput)
	}

	item.Extension = strings.ToLower(filepath.Ext(item.OriginalName))
	item.URL = s.publicBaseURL + "/" + strings.TrimPrefix(item.FilePath, "/")

	if strings.HasPrefix(item.ContentType, "image/") {
		thumbKey, err := s.makeThumbnail(ctx, item.FilePath)
		if err == nil {
			item.ThumbnailKey = thumbKey
		} else {
			commonlog.Debugf("thumbnail for %s skipped: %v", item.FilePath, err)
		}
	}
	return s.store.Create(ctx, item)
}

func (s *FileService) makeThumbnail(ctx context.Context, objectKey string) (string, error) {
	obj, err := s.blob.Get(ctx, objectKey)
	if err != nil {
		return "", err
	}
	defer obj.Close()

	img, _, err := image.Decode(obj)
	if err != nil {
		return "", err
	}

	thumb := imaging.Thumbnail(img, 320, 320, imaging.Lanczos)
	buf := bytes.NewBuffer(nil)
	if err := imaging.Encode(buf, thumb, imaging.JPEG); err != nil {
		return "", err
	}

	ext := filepath.Ext(objectKey)
	thumbKey := strings.TrimSuffix(objectKey, ext) + "_thumb.jpg"
	reader := bytes.NewReader(buf.Bytes())
	if err := s.blob.Put(ctx, thumbKey, reader, int64(reader.Len()), "image/jpeg"); err != nil {
		return "", fmt.Errorf("upload thumb: %w", err)
	}
	return thumbKey, nil
}
