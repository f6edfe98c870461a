package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reno_server/server/notifier/domain"
)

var ErrInvalidInput = errors.New("invalid input")

const defaultListLimit = 50

type notificationStore interface {
	Create(ctx context.Context, n domain.Notification) (string, error)
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, userID string, ids []string, readAt time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type liveNotifier interface {
	NotifyUser(userID string, payload any)
}

type NotificationService struct {
	store notificationStore
	hub   liveNotifier
	now   func() time.Time
}

func NewNotificationService(store notificationStore, hub liveNotifier) *NotificationService {
	return &NotificationService{store: store, hub: hub, now: time.Now}
}

// Deliver persists the notification and pushes it to any live
// websocket connections of the recipient.
func (s *NotificationService) Deliver(ctx context.Context, n domain.Notification) (string, error) {
	if n.UserID == "" || n.Kind == "" || n.Title == "" {
		return "", fmt.Errorf("%w: notification requires user, kind and title", ErrInvalidInput)
	}
	id, err := s.store.Create(ctx, n)
	if err != nil {
		return "", err
	}
	n.ID = id
	n.CreatedAt = s.now()
	if s.hub != nil {
		s.hub.NotifyUser(n.UserID, n)
	}
	return id, nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	return s.store.ListByUser(ctx, userID, unreadOnly, defaultListLimit)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no notification ids given", ErrInvalidInput)
	}
	return s.store.MarkRead(ctx, userID, ids, s.now())
}

func (s *NotificationService) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}
