package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	commonlog "reno_server/server/common/log"
	"reno_server/server/crm/domain"
	"reno_server/server/crm/repository"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const briefCacheTTL = 5 * time.Minute

type leadStore interface {
	Create(ctx context.Context, lead domain.Lead) (string, error)
	GetByID(ctx context.Context, leadID string) (domain.Lead, error)
	ListByAssignee(ctx context.Context, userID string, status domain.LeadStatus) ([]domain.Lead, error)
	UpdateStatus(ctx context.Context, leadID string, status domain.LeadStatus) error
	ListStale(ctx context.Context, userID string, cutoff time.Time) ([]domain.Lead, error)
}

type activityStore interface {
	Create(ctx context.Context, activity domain.Activity) (string, error)
	GetByID(ctx context.Context, activityID string) (domain.Activity, error)
	ListByLead(ctx context.Context, leadID string) ([]domain.Activity, error)
	ListOverdue(ctx context.Context, userID string, now time.Time) ([]domain.Activity, error)
	MarkDone(ctx context.Context, activityID string, doneAt time.Time) error
}

type documentStore interface {
	Create(ctx context.Context, doc domain.Document) (string, error)
	GetByID(ctx context.Context, documentID string) (domain.Document, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Document, error)
	ListByLead(ctx context.Context, leadID string) ([]domain.Document, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type CRMService struct {
	leads      leadStore
	activities activityStore
	documents  documentStore
	events     EventPublisher
	redis      *redis.Client
	now        func() time.Time
}

func NewCRMService(leads leadStore, activities activityStore, documents documentStore, events EventPublisher, redisClient *redis.Client) *CRMService {
	return &CRMService{
		leads:      leads,
		activities: activities,
		documents:  documents,
		events:     events,
		redis:      redisClient,
		now:        time.Now,
	}
}

func (s *CRMService) CreateLead(ctx context.Context, lead domain.Lead) (string, error) {
	if strings.TrimSpace(lead.Name) == "" {
		return "", fmt.Errorf("%w: lead name is required", ErrInvalidInput)
	}
	if lead.AssignedTo == "" {
		return "", fmt.Errorf("%w: lead must be assigned to a user", ErrInvalidInput)
	}
	lead.Status = domain.LeadNew

	id, err := s.leads.Create(ctx, lead)
	if err != nil {
		return "", err
	}
	s.publish(ctx, "lead.created", map[string]any{
		"lead_id":     id,
		"assigned_to": lead.AssignedTo,
		"name":        lead.Name,
	})
	return id, nil
}

func (s *CRMService) GetLead(ctx context.Context, leadID string) (domain.Lead, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func (s *CRMService) ListLeads(ctx context.Context, userID string, status domain.LeadStatus) ([]domain.Lead, error) {
	if status != "" && !domain.ValidLeadStatus(status) {
		return nil, fmt.Errorf("%w: unknown lead status %q", ErrInvalidInput, status)
	}
	return s.leads.ListByAssignee(ctx, userID, status)
}

// TransitionLead moves a lead along the pipeline. Skipping stages or
// reopening a closed lead is rejected.
func (s *CRMService) TransitionLead(ctx context.Context, leadID string, to domain.LeadStatus) (domain.Lead, error) {
	if !domain.ValidLeadStatus(to) {
		return domain.Lead{}, fmt.Errorf("%w: unknown lead status %q", ErrInvalidInput, to)
	}
	lead, err := s.GetLead(ctx, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	if !domain.CanTransition(lead.Status, to) {
		return domain.Lead{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, lead.Status, to)
	}
	if err := s.leads.UpdateStatus(ctx, leadID, to); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, ErrNotFound
		}
		return domain.Lead{}, err
	}
	s.publish(ctx, "lead.status_changed", map[string]any{
		"lead_id":     leadID,
		"assigned_to": lead.AssignedTo,
		"from":        lead.Status,
		"to":          to,
	})
	s.invalidateBrief(ctx, lead.AssignedTo)

	lead.Status = to
	return lead, nil
}

func (s *CRMService) CreateActivity(ctx context.Context, activity domain.Activity) (string, error) {
	if activity.LeadID == "" || activity.AssignedTo == "" {
		return "", fmt.Errorf("%w: activity requires a lead and an assignee", ErrInvalidInput)
	}
	if activity.DueAt.IsZero() {
		return "", fmt.Errorf("%w: activity requires a due date", ErrInvalidInput)
	}
	if _, err := s.GetLead(ctx, activity.LeadID); err != nil {
		return "", err
	}
	id, err := s.activities.Create(ctx, activity)
	if err != nil {
		return "", err
	}
	s.invalidateBrief(ctx, activity.AssignedTo)
	return id, nil
}

func (s *CRMService) ListActivities(ctx context.Context, leadID string) ([]domain.Activity, error) {
	return s.activities.ListByLead(ctx, leadID)
}

func (s *CRMService) CompleteActivity(ctx context.Context, userID, activityID string) error {
	activity, err := s.activities.GetByID(ctx, activityID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if activity.AssignedTo != userID {
		return ErrForbidden
	}
	if err := s.activities.MarkDone(ctx, activityID, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.invalidateBrief(ctx, userID)
	return nil
}

func (s *CRMService) CreateDocument(ctx context.Context, doc domain.Document) (string, error) {
	if strings.TrimSpace(doc.Title) == "" {
		return "", fmt.Errorf("%w: document title is required", ErrInvalidInput)
	}
	if err := doc.Content.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.documents.Create(ctx, doc)
}

func (s *CRMService) GetDocument(ctx context.Context, caller string, admin bool, documentID string) (domain.Document, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Document{}, ErrNotFound
		}
		return domain.Document{}, err
	}
	if !admin && doc.OwnerID != caller {
		return domain.Document{}, ErrForbidden
	}
	return doc, nil
}

func (s *CRMService) ListDocuments(ctx context.Context, ownerID string) ([]domain.Document, error) {
	return s.documents.ListByOwner(ctx, ownerID)
}

// MorningBrief summarizes what needs attention today: overdue
// activities and open leads that have gone quiet. Cached per user for
// a few minutes since the dashboard polls it.
func (s *CRMService) MorningBrief(ctx context.Context, userID string) (domain.Brief, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, briefCacheKey(userID)).Bytes()
		if err == nil {
			var brief domain.Brief
			if json.Unmarshal(cached, &brief) == nil {
				return brief, nil
			}
		}
	}

	now := s.now()
	overdue, err := s.activities.ListOverdue(ctx, userID, now)
	if err != nil {
		return domain.Brief{}, fmt.Errorf("load overdue activities: %w", err)
	}
	stale, err := s.leads.ListStale(ctx, userID, now.Add(-domain.StaleLeadAge))
	if err != nil {
		return domain.Brief{}, fmt.Errorf("load stale leads: %w", err)
	}

	brief := domain.Brief{
		GeneratedAt:       now,
		OverdueActivities: overdue,
		StaleLeads:        stale,
	}
	if s.redis != nil {
		if encoded, err := json.Marshal(brief); err == nil {
			if err := s.redis.Set(ctx, briefCacheKey(userID), encoded, briefCacheTTL).Err(); err != nil {
				commonlog.Warnf("cache morning brief for %s: %v", userID, err)
			}
		}
	}
	return brief, nil
}

func (s *CRMService) publish(ctx context.Context, routingKey string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, routingKey, payload); err != nil {
		commonlog.Warnf("publish %s event: %v", routingKey, err)
	}
}

func (s *CRMService) invalidateBrief(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, briefCacheKey(userID)).Err(); err != nil {
		commonlog.Warnf("invalidate morning brief for %s: %v", userID, err)
	}
}

func briefCacheKey(userID string) string {
	return "crm:brief:" + userID
}
