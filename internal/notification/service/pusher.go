package service

import (
	"context"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

// EventPusher hands push notifications to the message bus. A push gateway
// consumes notification.push and delivers to devices.
type EventPusher struct {
	publisher messaging.EventPublisher
}

// NewEventPusher creates a pusher on top of publisher
func NewEventPusher(publisher messaging.EventPublisher) *EventPusher {
	return &EventPusher{publisher: publisher}
}

// Push publishes a notification.push event
func (p *EventPusher) Push(ctx context.Context, userID string, n domain.Notification) error {
	return p.publisher.Publish(ctx, messaging.EventNotificationPush, messaging.NotificationEvent{
		NotificationID:  n.ID,
		Title:           n.Title,
		Message:         n.Message,
		Kind:            string(n.Type),
		RelatedReportID: n.RelatedReportID,
		UserID:          userID,
		CreatedAt:       n.Timestamp,
	})
}
