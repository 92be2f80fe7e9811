package messaging

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// Event types
const (
	// Report events
	EventReportSubmitted     = "report.submitted"
	EventReportStatusChanged = "report.status.changed"

	// Notification events
	EventNotificationCreated = "notification.created"
	EventNotificationPush    = "notification.push"
)

// Exchange names
const (
	ExchangeReports       = "civictrack.reports"
	ExchangeNotifications = "civictrack.notifications"

	DeadLetterExchange = "dlx.civictrack"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Report Events

// ReportSubmittedEvent is published when a wizard commits a report
type ReportSubmittedEvent struct {
	ReportID    string    `json:"report_id"`
	Category    string    `json:"category"`
	Priority    string    `json:"priority"`
	Authority   string    `json:"authority"`
	Address     string    `json:"address"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Cell        string    `json:"cell"`
	ReporterID  string    `json:"reporter_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ReportStatusChangedEvent is published when an authority moves a report
// to a new status
type ReportStatusChangedEvent struct {
	ReportID   string `json:"report_id"`
	OldStatus  string `json:"old_status"`
	NewStatus  string `json:"new_status"`
	Message    string `json:"message"`
	ChangedBy  string `json:"changed_by"`
	ReporterID string `json:"reporter_id,omitempty"`
}

// Notification Events

// NotificationEvent carries one user-facing notification
type NotificationEvent struct {
	NotificationID  string    `json:"notification_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Kind            string    `json:"kind"`
	RelatedReportID string    `json:"related_report_id,omitempty"`
	UserID          string    `json:"user_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

var eventSeq atomic.Uint64

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), eventSeq.Add(1)%10000)
}
