package service

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "reno_server/server/common/log"
	"reno_server/server/notifier/domain"
)

type notificationDeliverer interface {
	Deliver(ctx context.Context, n domain.Notification) (string, error)
}

// EventConsumer turns broker events from the other services into
// per-user notifications.
type EventConsumer struct {
	notifications notificationDeliverer
}

func NewEventConsumer(notifications notificationDeliverer) *EventConsumer {
	return &EventConsumer{notifications: notifications}
}

// Run drains the delivery channel until it closes or the context ends.
// Events that cannot be handled are acked anyway; a poison message
// must not wedge the queue.
func (c *EventConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := c.handle(ctx, d.RoutingKey, d.Body); err != nil {
				commonlog.Warnf("handle %s event: %v", d.RoutingKey, err)
			}
			_ = d.Ack(false)
		}
	}
}

type eventPayload struct {
	LeadID     string `json:"lead_id"`
	ActivityID string `json:"activity_id"`
	QuoteID    string `json:"quote_id"`
	InvoiceID  string `json:"invoice_id"`
	Number     string `json:"number"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Note       string `json:"note"`
	AssignedTo string `json:"assigned_to"`
	CreatedBy  string `json:"created_by"`
	From       string `json:"from"`
	To         string `json:"to"`
	TotalCents int64  `json:"total_cents"`
}

func (c *EventConsumer) handle(ctx context.Context, routingKey string, body []byte) error {
	var event eventPayload
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	n, ok := c.translate(routingKey, event)
	if !ok {
		commonlog.Debugf("ignore event %s", routingKey)
		return nil
	}
	_, err := c.notifications.Deliver(ctx, n)
	return err
}

func (c *EventConsumer) translate(routingKey string, event eventPayload) (domain.Notification, bool) {
	switch routingKey {
	case "lead.created":
		return domain.Notification{
			UserID: event.AssignedTo,
			Kind:   routingKey,
			Title:  "New lead assigned",
			Body:   event.Name,
			RefID:  event.LeadID,
		}, event.AssignedTo != ""
	case "lead.status_changed":
		return domain.Notification{
			UserID: event.AssignedTo,
			Kind:   routingKey,
			Title:  "Lead moved to " + event.To,
			RefID:  event.LeadID,
		}, event.AssignedTo != ""
	case "activity.due":
		return domain.Notification{
			UserID: event.AssignedTo,
			Kind:   routingKey,
			Title:  "Activity due: " + event.Kind,
			Body:   event.Note,
			RefID:  event.ActivityID,
		}, event.AssignedTo != ""
	case "quote.status_changed":
		return domain.Notification{
			UserID: event.CreatedBy,
			Kind:   routingKey,
			Title:  "Quote moved to " + event.To,
			RefID:  event.QuoteID,
		}, event.CreatedBy != ""
	case "invoice.issued":
		return domain.Notification{
			UserID: event.CreatedBy,
			Kind:   routingKey,
			Title:  "Invoice " + event.Number + " issued",
			Body:   fmt.Sprintf("%.2f due", float64(event.TotalCents)/100),
			RefID:  event.InvoiceID,
		}, event.CreatedBy != ""
	case "invoice.paid":
		return domain.Notification{
			UserID: event.CreatedBy,
			Kind:   routingKey,
			Title:  "Invoice paid",
			RefID:  event.InvoiceID,
		}, event.CreatedBy != ""
	}
	return domain.Notification{}, false
}
