package domain

import (
	"strings"
	"time"

	"github.com/civictrack/civictrack-backend/internal/report"
)

// Status is the resolution state of a report
type Status string

const (
	StatusReported   Status = "Reported"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Statuses lists every status in workflow order
var Statuses = []Status{StatusReported, StatusInProgress, StatusResolved}

// ParseStatus accepts a status name in any case
func ParseStatus(s string) (Status, bool) {
	for _, st := range Statuses {
		if strings.EqualFold(string(st), strings.TrimSpace(s)) {
			return st, true
		}
	}
	return "", false
}

// SystemAuthor signs the update recorded when a report is filed
const SystemAuthor = "CivicTrack AI"

// Update is one entry of a report's timeline
type Update struct {
	Date    time.Time `json:"date" db:"date"`
	Status  Status    `json:"status" db:"status"`
	Message string    `json:"message" db:"message"`
	Author  string    `json:"author" db:"author"`
}

// Record is a submitted report as tracked by the directory
type Record struct {
	report.SubmittedReport

	Status              Status     `json:"status"`
	ReportedBy          string     `json:"reportedBy"`
	ReporterID          string     `json:"reporterId,omitempty"`
	Cell                string     `json:"cell,omitempty"`
	UpdatedAt           time.Time  `json:"updatedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`

	// Updates are newest first
	Updates []Update `json:"updates"`
}

// Clone returns a deep copy
func (r *Record) Clone() *Record {
	c := *r
	c.Updates = append([]Update(nil), r.Updates...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.EstimatedCompletion != nil {
		t := *r.EstimatedCompletion
		c.EstimatedCompletion = &t
	}
	return &c
}

// Filter narrows the dashboard list. Empty or "all" fields match everything.
type Filter struct {
	Search   string `json:"search"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// Normalized lowercases the filter and clears "all"
func (f Filter) Normalized() Filter {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "all" {
			return ""
		}
		return s
	}
	return Filter{
		Search:   strings.ToLower(strings.TrimSpace(f.Search)),
		Status:   norm(f.Status),
		Priority: norm(f.Priority),
	}
}

// Matches reports whether r passes the filter. Search looks at the
// description, the address and the id.
func (f Filter) Matches(r *Record) bool {
	n := f.Normalized()
	if n.Search != "" &&
		!strings.Contains(strings.ToLower(r.Description), n.Search) &&
		!strings.Contains(strings.ToLower(r.Location.Address), n.Search) &&
		!strings.Contains(strings.ToLower(r.ID), n.Search) {
		return false
	}
	if n.Status != "" && strings.ToLower(string(r.Status)) != n.Status {
		return false
	}
	if n.Priority != "" && strings.ToLower(string(r.Classification.Priority)) != n.Priority {
		return false
	}
	return true
}

// CategoryCount is one row of the category breakdown
type CategoryCount struct {
	Type       report.Category `json:"type"`
	Count      int             `json:"count"`
	Percentage float64         `json:"percentage"`
}

// Analytics summarizes the directory for the dashboard
type Analytics struct {
	TotalReports       int             `json:"totalReports"`
	PendingReports     int             `json:"pendingReports"`
	ResolvedToday      int             `json:"resolvedToday"`
	AvgResolutionHours float64         `json:"avgResolutionHours"`
	TopIssueTypes      []CategoryCount `json:"topIssueTypes"`
}
