package service

import (
	"context"
	"time"

	commonlog "reno_server/server/common/log"
	"reno_server/server/crm/domain"
)

type dueActivityStore interface {
	activityStore
	ListDueBetween(ctx context.Context, from, to time.Time) ([]domain.Activity, error)
}

// DueScanner periodically publishes activity.due events for activities
// whose due date passed since the previous sweep. Windows do not
// overlap, so each activity fires once.
type DueScanner struct {
	activities dueActivityStore
	events     EventPublisher
	interval   time.Duration
	now        func() time.Time
}

func NewDueScanner(activities dueActivityStore, events EventPublisher, interval time.Duration) *DueScanner {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DueScanner{activities: activities, events: events, interval: interval, now: time.Now}
}

func (s *DueScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			s.Sweep(ctx, last, now)
			last = now
		}
	}
}

func (s *DueScanner) Sweep(ctx context.Context, from, to time.Time) {
	due, err := s.activities.ListDueBetween(ctx, from, to)
	if err != nil {
		commonlog.Warnf("scan due activities: %v", err)
		return
	}
	for _, activity := range due {
		if s.events == nil {
			continue
		}
		err := s.events.Publish(ctx, "activity.due", map[string]any{
			"activity_id": activity.ID,
			"lead_id":     activity.LeadID,
			"assigned_to": activity.AssignedTo,
			"kind":        activity.Kind,
			"note":        activity.Note,
			"due_at":      activity.DueAt,
		})
		if err != nil {
			commonlog.Warnf("publish activity.due for %s: %v", activity.ID, err)
		}
	}
}
