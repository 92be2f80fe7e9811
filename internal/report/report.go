// Package report holds the value types shared by the wizard, the classifier
// and the report directory.
package report

import (
	"time"
)

// Category is the issue category chosen by the classifier
type Category string

const (
	CategoryRoadMaintenance     Category = "Road Maintenance"
	CategoryStreetLighting      Category = "Street Lighting"
	CategoryWasteManagement     Category = "Waste Management"
	CategoryWaterInfrastructure Category = "Water Infrastructure"
	CategoryGeneralIssue        Category = "General Issue"
)

// Priority of a classified report
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Classification is produced once per draft and never mutated
type Classification struct {
	Category   Category `json:"issueType"`
	Confidence int      `json:"confidence"`
	Priority   Priority `json:"priority"`
	Authority  string   `json:"department"`
}

// Location is a coordinate pair plus a display label
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
}

// Image is a captured payload. Data is not serialized; the API exposes only
// its metadata.
type Image struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	CapturedAt  time.Time `json:"capturedAt"`
	Data        []byte    `json:"-"`
}

// SubmittedReport is the committed, immutable record
type SubmittedReport struct {
	ID             string         `json:"id"`
	Image          Image          `json:"image"`
	Location       Location       `json:"location"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification"`
	SubmittedAt    time.Time      `json:"submittedAt"`
}
