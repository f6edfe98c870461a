package domain

import (
	"strconv"
	"strings"
	"time"
)

const (
	EntityDocument = "document"
	EntityTask     = "task"
	EntityProject  = "project"
	EntityUser     = "user"
	EntityOther    = "other"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
)

type Caller struct {
	ID   string
	Role string
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type Uploader struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FileRecord is the metadata row for one uploaded object. The bytes
// themselves live in the blob store under FilePath.
type FileRecord struct {
	ID           string    `json:"id"`
	UploadedBy   string    `json:"uploaded_by"`
	Uploader     *Uploader `json:"uploader,omitempty"`
	EntityType   string    `json:"entity_type,omitempty"`
	EntityID     string    `json:"entity_id,omitempty"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	Extension    string    `json:"extension"`
	SizeBytes    int64     `json:"size_bytes"`
	FilePath     string    `json:"file_path"`
	URL          string    `json:"url"`
	ThumbnailKey string    `json:"thumbnail_key,omitempty"`
	Tags         []string  `json:"tags"`
	Description  string    `json:"description,omitempty"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
}

// Attached reports whether the record is consistently linked to a
// domain entity. Rows with only one of entity_type/entity_id are
// treated as unattached on read.
func (r FileRecord) Attached() bool {
	return r.EntityType != "" && r.EntityID != ""
}

func ValidEntityType(entityType string) bool {
	switch entityType {
	case EntityDocument, EntityTask, EntityProject, EntityUser, EntityOther:
		return true
	}
	return false
}

// Visibility is the single access predicate for file records. Both the
// list query and every single-record mutation go through it, with the
// caller's owned document ids resolved once per request.
type Visibility struct {
	Admin       bool
	UserID      string
	DocumentIDs []string
}

func (v Visibility) Allows(rec FileRecord) bool {
	if v.Admin {
		return true
	}
	if rec.UploadedBy == v.UserID {
		return true
	}
	if rec.EntityType == EntityDocument && rec.EntityID != "" {
		for _, id := range v.DocumentIDs {
			if id == rec.EntityID {
				return true
			}
		}
	}
	return false
}

type ListOptions struct {
	EntityType string
	EntityID   string
	FileType   string
	Tags       []string
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

// fileTypeExtensions maps a file-type category to the extensions it
// covers. Extensions are stored lowercase with the leading dot.
var fileTypeExtensions = map[string][]string{
	"image":    {".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".bmp", ".tiff"},
	"document": {".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv"},
	"video":    {".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm"},
	"audio":    {".mp3", ".wav", ".ogg", ".flac", ".aac"},
	"archive":  {".zip", ".rar", ".7z", ".tar", ".gz"},
}

// ExtensionsForFileType returns the extension set for a category, or
// nil when the category is unknown (no filter applied).
func ExtensionsForFileType(fileType string) []string {
	exts, ok := fileTypeExtensions[strings.ToLower(strings.TrimSpace(fileType))]
	if !ok {
		return nil
	}
	return exts
}

// ParseTags splits a comma-separated tag list, trimming blanks and
// dropping duplicates while preserving order.
func ParseTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	seen := map[string]struct{}{}
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// ParsePage coerces a raw pagination input to a positive integer,
// falling back on unparsable or non-positive values.
func ParsePage(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

var sortColumns = map[string]string{
	"created_at":    "created_at",
	"createdAt":     "created_at",
	"original_name": "original_name",
	"name":          "original_name",
	"size_bytes":    "size_bytes",
	"size":          "size_bytes",
}

// Normalized fills defaults and clamps the options so a malformed
// request degrades to the default listing instead of failing.
func (o ListOptions) Normalized() ListOptions {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	if col, ok := sortColumns[o.SortBy]; ok {
		o.SortBy = col
	} else {
		o.SortBy = "created_at"
	}
	if order := strings.ToLower(strings.TrimSpace(o.SortOrder)); order == "asc" {
		o.SortOrder = "asc"
	} else {
		o.SortOrder = "desc"
	}
	return o
}

type ListResult struct {
	Files      []FileRecord `json:"files"`
	TotalCount int          `json:"totalCount"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"totalPages"`
}

type MetadataUpdate struct {
	FileID      string
	Tags        *[]string
	Description *string
	IsPublic    *bool
}

type BulkDeleteResult struct {
	Success bool     `json:"success"`
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors,omitempty"`
	Message string   `json:"message"`
}
