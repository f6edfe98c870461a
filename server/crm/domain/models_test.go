package domain

import (
	"testing"
	"time"
)

func TestLeadTransitions(t *testing.T) {
	allowed := []struct{ from, to LeadStatus }{
		{LeadNew, LeadContacted},
		{LeadContacted, LeadQuoted},
		{LeadQuoted, LeadWon},
		{LeadNew, LeadLost},
		{LeadContacted, LeadLost},
		{LeadQuoted, LeadLost},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to LeadStatus }{
		{LeadNew, LeadQuoted},
		{LeadNew, LeadWon},
		{LeadContacted, LeadWon},
		{LeadWon, LeadLost},
		{LeadLost, LeadNew},
		{LeadQuoted, LeadContacted},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
	}
}

func TestDocumentContentValidate(t *testing.T) {
	cases := []struct {
		name    string
		content DocumentContent
		wantErr bool
	}{
		{"quote", DocumentContent{Type: ContentQuote, Quote: &QuoteContent{QuoteID: "q-1", TotalCents: 125000}}, false},
		{"photo", DocumentContent{Type: ContentPhoto, Photo: &PhotoContent{FileID: "f-1"}}, false},
		{"comment", DocumentContent{Type: ContentComment, Comment: &CommentContent{Text: "call back tuesday"}}, false},
		{"no payload", DocumentContent{Type: ContentQuote}, true},
		{"wrong payload", DocumentContent{Type: ContentQuote, Photo: &PhotoContent{FileID: "f-1"}}, true},
		{"two payloads", DocumentContent{Type: ContentPhoto, Photo: &PhotoContent{FileID: "f-1"}, Comment: &CommentContent{Text: "x"}}, true},
		{"unknown type", DocumentContent{Type: "invoice", Comment: &CommentContent{Text: "x"}}, true},
		{"photo without file", DocumentContent{Type: ContentPhoto, Photo: &PhotoContent{}}, true},
		{"empty comment", DocumentContent{Type: ContentComment, Comment: &CommentContent{}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.content.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestActivityOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	done := now.Add(-time.Hour)

	open := Activity{DueAt: now.Add(-2 * time.Hour)}
	if !open.Overdue(now) {
		t.Error("open activity past its due date should be overdue")
	}

	finished := Activity{DueAt: now.Add(-2 * time.Hour), DoneAt: &done}
	if finished.Overdue(now) {
		t.Error("finished activity should never be overdue")
	}

	upcoming := Activity{DueAt: now.Add(2 * time.Hour)}
	if upcoming.Overdue(now) {
		t.Error("future activity should not be overdue")
	}
}
