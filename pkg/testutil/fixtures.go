package testutil

import (
	"time"

	"github.com/civictrack/civictrack-backend/internal/report"
)

// PNGHeader is the smallest payload mimetype detects as image/png
var PNGHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// FixedTime is the reference instant used by fixtures
var FixedTime = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

// ReportOption customizes a fixture report
type ReportOption func(*report.SubmittedReport)

// WithDescription sets the report description
func WithDescription(desc string) ReportOption {
	return func(r *report.SubmittedReport) { r.Description = desc }
}

// WithClassification sets category, priority and authority
func WithClassification(category report.Category, priority report.Priority, authority string) ReportOption {
	return func(r *report.SubmittedReport) {
		r.Classification.Category = category
		r.Classification.Priority = priority
		r.Classification.Authority = authority
	}
}

// WithAddress sets the location address
func WithAddress(address string) ReportOption {
	return func(r *report.SubmittedReport) { r.Location.Address = address }
}

// SubmittedAt sets the submission time
func SubmittedAt(t time.Time) ReportOption {
	return func(r *report.SubmittedReport) { r.SubmittedAt = t }
}

// NewReport returns a Road Maintenance report with the given id
func NewReport(id string, opts ...ReportOption) report.SubmittedReport {
	r := report.SubmittedReport{
		ID: id,
		Image: report.Image{
			Filename:    "issue.png",
			ContentType: "image/png",
			Size:        len(PNGHeader),
			CapturedAt:  FixedTime,
		},
		Location: report.Location{
			Lat:     40.7128,
			Lng:     -74.006,
			Address: "Main St & 5th Ave, Downtown",
		},
		Description: "Large pothole on Main Street",
		Classification: report.Classification{
			Category:   report.CategoryRoadMaintenance,
			Confidence: 87,
			Priority:   report.PriorityHigh,
			Authority:  "Department of Transportation",
		},
		SubmittedAt: FixedTime,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}
