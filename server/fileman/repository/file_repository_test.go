package repository

import (
	"strings"
	"testing"

	"reno_server/server/fileman/domain"
)

func TestBuildListWhereAdminEmpty(t *testing.T) {
	where, args := buildListWhere(domain.Visibility{Admin: true}, domain.ListOptions{}, 1)
	if where != "" {
		t.Errorf("where = %q, want empty for unfiltered admin", where)
	}
	if len(args) != 0 {
		t.Errorf("args count = %d, want 0", len(args))
	}
}

func TestBuildListWhereNonAdminOwnership(t *testing.T) {
	vis := domain.Visibility{UserID: "u-1", DocumentIDs: []string{"doc-1"}}
	where, args := buildListWhere(vis, domain.ListOptions{}, 1)

	if !strings.Contains(where, "f.uploaded_by = $1") {
		t.Errorf("where = %q, want uploaded_by branch", where)
	}
	if !strings.Contains(where, "f.entity_type = 'document' AND f.entity_id = ANY($2)") {
		t.Errorf("where = %q, want document ownership branch", where)
	}
	if len(args) != 2 {
		t.Fatalf("args count = %d, want 2", len(args))
	}
	if args[0] != "u-1" {
		t.Errorf("args[0] = %v, want caller id", args[0])
	}
}

func TestBuildListWhereEntityFilterConjoinedForNonAdmin(t *testing.T) {
	vis := domain.Visibility{UserID: "u-1"}
	opts := domain.ListOptions{EntityType: "project", EntityID: "p-1"}
	where, args := buildListWhere(vis, opts, 1)

	// Entity filters narrow the ownership disjunction, never replace it.
	if !strings.Contains(where, "(f.uploaded_by = $1 OR") {
		t.Errorf("where = %q, want ownership disjunction first", where)
	}
	if !strings.Contains(where, "AND f.entity_type = $3") {
		t.Errorf("where = %q, want conjoined entity_type filter", where)
	}
	if !strings.Contains(where, "AND f.entity_id = $4") {
		t.Errorf("where = %q, want conjoined entity_id filter", where)
	}
	if len(args) != 4 {
		t.Errorf("args count = %d, want 4", len(args))
	}
}

func TestBuildListWhereAdminEntityFilterTopLevel(t *testing.T) {
	where, args := buildListWhere(domain.Visibility{Admin: true}, domain.ListOptions{EntityType: "task", EntityID: "t-1"}, 1)

	if strings.Contains(where, "uploaded_by") {
		t.Errorf("where = %q, admin query must carry no ownership constraint", where)
	}
	if !strings.Contains(where, "f.entity_type = $1") || !strings.Contains(where, "f.entity_id = $2") {
		t.Errorf("where = %q, want top-level entity filters", where)
	}
	if len(args) != 2 {
		t.Errorf("args count = %d, want 2", len(args))
	}
}

func TestBuildListWhereFileTypeExpandsToExtensions(t *testing.T) {
	where, args := buildListWhere(domain.Visibility{Admin: true}, domain.ListOptions{FileType: "image"}, 1)

	if !strings.Contains(where, "f.extension = ANY($1)") {
		t.Errorf("where = %q, want extension set membership", where)
	}
	exts, ok := args[0].([]string)
	if !ok {
		t.Fatalf("args[0] = %T, want []string", args[0])
	}
	found := false
	for _, ext := range exts {
		if ext == ".png" {
			found = true
		}
	}
	if !found {
		t.Errorf("extension args = %v, want .png in image set", exts)
	}
}

func TestBuildListWhereUnknownFileTypeIgnored(t *testing.T) {
	where, _ := buildListWhere(domain.Visibility{Admin: true}, domain.ListOptions{FileType: "hologram"}, 1)
	if strings.Contains(where, "extension") {
		t.Errorf("where = %q, unknown file type must not filter", where)
	}
}

func TestBuildListWhereTagsOverlap(t *testing.T) {
	opts := domain.ListOptions{Tags: []string{"urgent", "finance"}}
	where, args := buildListWhere(domain.Visibility{Admin: true}, opts, 1)

	// && is Postgres array overlap: ANY-match, not ALL-match.
	if !strings.Contains(where, "f.tags && $1") {
		t.Errorf("where = %q, want tags overlap clause", where)
	}
	if len(args) != 1 {
		t.Errorf("args count = %d, want 1", len(args))
	}
}

func TestBuildOrderBy(t *testing.T) {
	opts := domain.ListOptions{SortBy: "created_at", SortOrder: "desc"}.Normalized()
	if got := buildOrderBy(opts); got != "ORDER BY f.created_at DESC" {
		t.Errorf("buildOrderBy = %q", got)
	}
	opts = domain.ListOptions{SortBy: "size", SortOrder: "asc"}.Normalized()
	if got := buildOrderBy(opts); got != "ORDER BY f.size_bytes ASC" {
		t.Errorf("buildOrderBy = %q", got)
	}
}
