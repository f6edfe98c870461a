package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reno_server/server/crm/domain"
	"reno_server/server/crm/repository"
)

type fakeLeadStore struct {
	leads map[string]domain.Lead
}

func newFakeLeadStore() *fakeLeadStore {
	return &fakeLeadStore{leads: map[string]domain.Lead{}}
}

func (s *fakeLeadStore) Create(ctx context.Context, lead domain.Lead) (string, error) {
	lead.ID = fmt.Sprintf("l-%d", len(s.leads)+1)
	lead.UpdatedAt = time.Now()
	s.leads[lead.ID] = lead
	return lead.ID, nil
}

func (s *fakeLeadStore) GetByID(ctx context.Context, id string) (domain.Lead, error) {
	lead, ok := s.leads[id]
	if !ok {
		return domain.Lead{}, repository.ErrNotFound
	}
	return lead, nil
}

func (s *fakeLeadStore) ListByAssignee(ctx context.Context, userID string, status domain.LeadStatus) ([]domain.Lead, error) {
	items := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if lead.AssignedTo != userID {
			continue
		}
		if status != "" && lead.Status != status {
			continue
		}
		items = append(items, lead)
	}
	return items, nil
}

func (s *fakeLeadStore) UpdateStatus(ctx context.Context, id string, status domain.LeadStatus) error {
	lead, ok := s.leads[id]
	if !ok {
		return repository.ErrNotFound
	}
	lead.Status = status
	lead.UpdatedAt = time.Now()
	s.leads[id] = lead
	return nil
}

func (s *fakeLeadStore) ListStale(ctx context.Context, userID string, cutoff time.Time) ([]domain.Lead, error) {
	items := make([]domain.Lead, 0)
	for _, lead := range s.leads {
		if lead.AssignedTo != userID || lead.Status == domain.LeadWon || lead.Status == domain.LeadLost {
			continue
		}
		if lead.UpdatedAt.Before(cutoff) {
			items = append(items, lead)
		}
	}
	return items, nil
}

type fakeActivityStore struct {
	activities map[string]domain.Activity
}

func newFakeActivityStore() *fakeActivityStore {
	return &fakeActivityStore{activities: map[string]domain.Activity{}}
}

func (s *fakeActivityStore) Create(ctx context.Context, activity domain.Activity) (string, error) {
	activity.ID = fmt.Sprintf("a-%d", len(s.activities)+1)
	s.activities[activity.ID] = activity
	return activity.ID, nil
}

func (s *fakeActivityStore) GetByID(ctx context.Context, id string) (domain.Activity, error) {
	activity, ok := s.activities[id]
	if !ok {
		return domain.Activity{}, repository.ErrNotFound
	}
	return activity, nil
}

func (s *fakeActivityStore) ListByLead(ctx context.Context, leadID string) ([]domain.Activity, error) {
	items := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.LeadID == leadID {
			items = append(items, activity)
		}
	}
	return items, nil
}

func (s *fakeActivityStore) ListOverdue(ctx context.Context, userID string, now time.Time) ([]domain.Activity, error) {
	items := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.AssignedTo == userID && activity.Overdue(now) {
			items = append(items, activity)
		}
	}
	return items, nil
}

func (s *fakeActivityStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Activity, error) {
	items := make([]domain.Activity, 0)
	for _, activity := range s.activities {
		if activity.DoneAt != nil {
			continue
		}
		if !activity.DueAt.Before(from) && activity.DueAt.Before(to) {
			items = append(items, activity)
		}
	}
	return items, nil
}

func (s *fakeActivityStore) MarkDone(ctx context.Context, id string, doneAt time.Time) error {
	activity, ok := s.activities[id]
	if !ok || activity.DoneAt != nil {
		return repository.ErrNotFound
	}
	activity.DoneAt = &doneAt
	s.activities[id] = activity
	return nil
}

type fakeDocumentStore struct {
	docs map[string]domain.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: map[string]domain.Document{}}
}

func (s *fakeDocumentStore) Create(ctx context.Context, doc domain.Document) (string, error) {
	doc.ID = fmt.Sprintf("d-%d", len(s.docs)+1)
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

func (s *fakeDocumentStore) GetByID(ctx context.Context, id string) (domain.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, repository.ErrNotFound
	}
	return doc, nil
}

func (s *fakeDocumentStore) ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error) {
	items := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.OwnerID == ownerID {
			items = append(items, doc)
		}
	}
	return items, nil
}

func (s *fakeDocumentStore) ListByLead(ctx context.Context, leadID string) ([]domain.Document, error) {
	items := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.LeadID == leadID {
			items = append(items, doc)
		}
	}
	return items, nil
}

type recordingPublisher struct {
	events []string
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	p.events = append(p.events, routingKey)
	return nil
}

type crmFixture struct {
	svc        *CRMService
	leads      *fakeLeadStore
	activities *fakeActivityStore
	documents  *fakeDocumentStore
	events     *recordingPublisher
}

func newCRMFixture() *crmFixture {
	f := &crmFixture{
		leads:      newFakeLeadStore(),
		activities: newFakeActivityStore(),
		documents:  newFakeDocumentStore(),
		events:     &recordingPublisher{},
	}
	f.svc = NewCRMService(f.leads, f.activities, f.documents, f.events, nil)
	return f
}

func TestCreateLeadPublishesEvent(t *testing.T) {
	f := newCRMFixture()
	id, err := f.svc.CreateLead(context.Background(), domain.Lead{
		Name:       "Kitchen remodel",
		AssignedTo: "u-1",
		Status:     domain.LeadWon, // caller-supplied status is ignored
	})
	require.NoError(t, err)

	lead := f.leads.leads[id]
	assert.Equal(t, domain.LeadNew, lead.Status)
	assert.Equal(t, []string{"lead.created"}, f.events.events)
}

func TestCreateLeadValidation(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()

	_, err := f.svc.CreateLead(ctx, domain.Lead{AssignedTo: "u-1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.CreateLead(ctx, domain.Lead{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTransitionLead(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()
	id, err := f.svc.CreateLead(ctx, domain.Lead{Name: "Bathroom", AssignedTo: "u-1"})
	require.NoError(t, err)

	lead, err := f.svc.TransitionLead(ctx, id, domain.LeadContacted)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadContacted, lead.Status)

	// Skipping straight to won is rejected and leaves the lead alone.
	_, err = f.svc.TransitionLead(ctx, id, domain.LeadWon)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, domain.LeadContacted, f.leads.leads[id].Status)

	_, err = f.svc.TransitionLead(ctx, id, "archived")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.TransitionLead(ctx, "l-missing", domain.LeadContacted)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, []string{"lead.created", "lead.status_changed"}, f.events.events)
}

func TestTerminalLeadStaysClosed(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()
	id, err := f.svc.CreateLead(ctx, domain.Lead{Name: "Deck", AssignedTo: "u-1"})
	require.NoError(t, err)

	_, err = f.svc.TransitionLead(ctx, id, domain.LeadLost)
	require.NoError(t, err)

	_, err = f.svc.TransitionLead(ctx, id, domain.LeadContacted)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteActivity(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()
	leadID, err := f.svc.CreateLead(ctx, domain.Lead{Name: "Garage", AssignedTo: "u-1"})
	require.NoError(t, err)

	activityID, err := f.svc.CreateActivity(ctx, domain.Activity{
		LeadID:     leadID,
		AssignedTo: "u-1",
		Kind:       "call",
		DueAt:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// Only the assignee may complete it.
	err = f.svc.CompleteActivity(ctx, "u-2", activityID)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, f.svc.CompleteActivity(ctx, "u-1", activityID))
	assert.NotNil(t, f.activities.activities[activityID].DoneAt)

	// Completing twice reports not found since it is no longer open.
	err = f.svc.CompleteActivity(ctx, "u-1", activityID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateActivityRequiresExistingLead(t *testing.T) {
	f := newCRMFixture()
	_, err := f.svc.CreateActivity(context.Background(), domain.Activity{
		LeadID:     "l-ghost",
		AssignedTo: "u-1",
		DueAt:      time.Now().Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateDocumentValidatesContent(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()

	_, err := f.svc.CreateDocument(ctx, domain.Document{
		OwnerID: "u-1",
		Title:   "Before photos",
		Content: domain.DocumentContent{Type: domain.ContentPhoto},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	id, err := f.svc.CreateDocument(ctx, domain.Document{
		OwnerID: "u-1",
		Title:   "Before photos",
		Content: domain.DocumentContent{
			Type:  domain.ContentPhoto,
			Photo: &domain.PhotoContent{FileID: "f-1", Caption: "north wall"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestGetDocumentOwnership(t *testing.T) {
	f := newCRMFixture()
	ctx := context.Background()
	id, err := f.svc.CreateDocument(ctx, domain.Document{
		OwnerID: "u-1",
		Title:   "Note",
		Content: domain.DocumentContent{Type: domain.ContentComment, Comment: &domain.CommentContent{Text: "hi"}},
	})
	require.NoError(t, err)

	_, err = f.svc.GetDocument(ctx, "u-2", false, id)
	assert.ErrorIs(t, err, ErrForbidden)

	doc, err := f.svc.GetDocument(ctx, "u-2", true, id)
	require.NoError(t, err)
	assert.Equal(t, "u-1", doc.OwnerID)

	doc, err = f.svc.GetDocument(ctx, "u-1", false, id)
	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
}

func TestDueScannerSweep(t *testing.T) {
	activities := newFakeActivityStore()
	events := &recordingPublisher{}
	scanner := NewDueScanner(activities, events, time.Minute)

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	doneAt := now.Add(-time.Minute)
	activities.activities["a-due"] = domain.Activity{
		ID: "a-due", LeadID: "l-1", AssignedTo: "u-1",
		Kind: "call", DueAt: now.Add(-30 * time.Second),
	}
	activities.activities["a-done"] = domain.Activity{
		ID: "a-done", LeadID: "l-1", AssignedTo: "u-1",
		Kind: "call", DueAt: now.Add(-30 * time.Second), DoneAt: &doneAt,
	}
	activities.activities["a-future"] = domain.Activity{
		ID: "a-future", LeadID: "l-1", AssignedTo: "u-1",
		Kind: "call", DueAt: now.Add(time.Hour),
	}

	scanner.Sweep(context.Background(), now.Add(-time.Minute), now)
	assert.Equal(t, []string{"activity.due"}, events.events)

	// The next window starts where the last one ended, so the same
	// activity does not fire twice.
	scanner.Sweep(context.Background(), now, now.Add(time.Minute))
	assert.Equal(t, []string{"activity.due"}, events.events)
}

func TestMorningBrief(t *testing.T) {
	f := newCRMFixture()
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	ctx := context.Background()

	// Stale lead: open and untouched for over a week.
	f.leads.leads["l-old"] = domain.Lead{
		ID: "l-old", AssignedTo: "u-1", Name: "Old lead",
		Status: domain.LeadContacted, UpdatedAt: now.Add(-8 * 24 * time.Hour),
	}
	// Fresh lead stays out of the brief.
	f.leads.leads["l-fresh"] = domain.Lead{
		ID: "l-fresh", AssignedTo: "u-1", Name: "Fresh lead",
		Status: domain.LeadNew, UpdatedAt: now.Add(-time.Hour),
	}
	// Closed lead stays out regardless of age.
	f.leads.leads["l-won"] = domain.Lead{
		ID: "l-won", AssignedTo: "u-1", Name: "Won lead",
		Status: domain.LeadWon, UpdatedAt: now.Add(-30 * 24 * time.Hour),
	}

	f.activities.activities["a-late"] = domain.Activity{
		ID: "a-late", LeadID: "l-old", AssignedTo: "u-1",
		Kind: "call", DueAt: now.Add(-2 * time.Hour),
	}
	f.activities.activities["a-other"] = domain.Activity{
		ID: "a-other", LeadID: "l-old", AssignedTo: "u-2",
		Kind: "call", DueAt: now.Add(-2 * time.Hour),
	}

	brief, err := f.svc.MorningBrief(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, now, brief.GeneratedAt)
	require.Len(t, brief.OverdueActivities, 1)
	assert.Equal(t, "a-late", brief.OverdueActivities[0].ID)
	require.Len(t, brief.StaleLeads, 1)
	assert.Equal(t, "l-old", brief.StaleLeads[0].ID)
}
