package domain

import "time"

// Kind is the visual severity of a notification
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Valid reports whether k is a known kind
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError:
		return true
	}
	return false
}

// Event is what producers hand to the sink. It is fire-and-forget.
type Event struct {
	Title           string `json:"title"`
	Message         string `json:"message"`
	Kind            Kind   `json:"kind"`
	RelatedReportID string `json:"relatedReportId,omitempty"`
	ActionURL       string `json:"actionUrl,omitempty"`
}

// Notification is a stored event
type Notification struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Type            Kind      `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	Read            bool      `json:"read"`
	ActionURL       string    `json:"actionUrl,omitempty"`
	RelatedReportID string    `json:"relatedReportId,omitempty"`
}

// Permission is the push permission state
type Permission string

const (
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionUnsupported Permission = "unsupported"
)
