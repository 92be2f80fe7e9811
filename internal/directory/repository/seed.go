package repository

import (
	"context"
	"time"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/internal/location"
	"github.com/civictrack/civictrack-backend/internal/report"
)

// Creator is the part of a repository Seed writes through
type Creator interface {
	Create(ctx context.Context, rec *domain.Record) error
}

// Seed stores the demo reports shown on the public pages and the dashboard
func Seed(ctx context.Context, repo Creator) error {
	for _, rec := range SeedRecords() {
		if err := repo.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// SeedRecords returns fresh copies of the demo reports
func SeedRecords() []*domain.Record {
	placeholder := report.Image{Filename: "placeholder.svg", ContentType: "image/svg+xml"}

	recs := []*domain.Record{
		{
			SubmittedReport: report.SubmittedReport{
				ID:          "CT-001234",
				Image:       placeholder,
				Location:    report.Location{Lat: 40.7128, Lng: -74.0060, Address: "Main St & 5th Ave"},
				Description: "Large pothole on Main Street causing traffic issues",
				Classification: report.Classification{
					Category: report.CategoryRoadMaintenance, Confidence: 87,
					Priority: report.PriorityHigh, Authority: "Department of Transportation",
				},
				SubmittedAt: ts("2024-01-15T10:30:00Z"),
			},
			Status:              domain.StatusInProgress,
			ReportedBy:          "John D.",
			UpdatedAt:           ts("2024-01-16T14:20:00Z"),
			EstimatedCompletion: tsp("2024-01-18T17:00:00Z"),
			Updates: []domain.Update{
				{Date: ts("2024-01-16T14:20:00Z"), Status: domain.StatusInProgress, Message: "Work crew assigned. Repair scheduled for tomorrow morning.", Author: "DOT Dispatcher"},
				{Date: ts("2024-01-15T11:15:00Z"), Status: domain.StatusReported, Message: "Issue reported and classified as high priority road maintenance.", Author: domain.SystemAuthor},
			},
		},
		{
			SubmittedReport: report.SubmittedReport{
				ID:          "CT-001235",
				Image:       placeholder,
				Location:    report.Location{Lat: 40.7150, Lng: -74.0030, Address: "Park Avenue"},
				Description: "Broken streetlight making area unsafe at night",
				Classification: report.Classification{
					Category: report.CategoryStreetLighting, Confidence: 87,
					Priority: report.PriorityMedium, Authority: "Public Works Department",
				},
				SubmittedAt: ts("2024-01-14T15:45:00Z"),
			},
			Status:     domain.StatusInProgress,
			ReportedBy: "Sarah M.",
			UpdatedAt:  ts("2024-01-15T09:00:00Z"),
			Updates: []domain.Update{
				{Date: ts("2024-01-15T09:00:00Z"), Status: domain.StatusInProgress, Message: "Electrician scheduled.", Author: "Public Works Dispatcher"},
				{Date: ts("2024-01-14T16:00:00Z"), Status: domain.StatusReported, Message: "Street lighting issue reported and routed to Public Works.", Author: domain.SystemAuthor},
			},
		},
		{
			SubmittedReport: report.SubmittedReport{
				ID:          "CT-001236",
				Image:       placeholder,
				Location:    report.Location{Lat: 40.7100, Lng: -74.0090, Address: "Downtown Plaza"},
				Description: "Garbage overflow at downtown plaza",
				Classification: report.Classification{
					Category: report.CategoryWasteManagement, Confidence: 87,
					Priority: report.PriorityMedium, Authority: "Sanitation Department",
				},
				SubmittedAt: ts("2024-01-13T09:15:00Z"),
			},
			Status:      domain.StatusResolved,
			ReportedBy:  "Mike R.",
			UpdatedAt:   ts("2024-01-14T10:00:00Z"),
			CompletedAt: tsp("2024-01-14T10:00:00Z"),
			Updates: []domain.Update{
				{Date: ts("2024-01-14T10:00:00Z"), Status: domain.StatusResolved, Message: "Plaza bins emptied and collection schedule increased.", Author: "Sanitation Crew"},
				{Date: ts("2024-01-13T09:30:00Z"), Status: domain.StatusReported, Message: "Waste issue reported and routed to Sanitation.", Author: domain.SystemAuthor},
			},
		},
		{
			SubmittedReport: report.SubmittedReport{
				ID:          "CT-001237",
				Image:       placeholder,
				Location:    report.Location{Lat: 40.7180, Lng: -74.0010, Address: "Oak Street"},
				Description: "Water leak causing street flooding",
				Classification: report.Classification{
					Category: report.CategoryWaterInfrastructure, Confidence: 87,
					Priority: report.PriorityHigh, Authority: "Water & Sewer Department",
				},
				SubmittedAt: ts("2024-01-15T08:20:00Z"),
			},
			Status:     domain.StatusInProgress,
			ReportedBy: "Lisa K.",
			UpdatedAt:  ts("2024-01-15T09:10:00Z"),
			Updates: []domain.Update{
				{Date: ts("2024-01-15T09:10:00Z"), Status: domain.StatusInProgress, Message: "Crew dispatched to shut off the main.", Author: "Water & Sewer Dispatcher"},
				{Date: ts("2024-01-15T08:25:00Z"), Status: domain.StatusReported, Message: "Water leak reported and classified as high priority.", Author: domain.SystemAuthor},
			},
		},
		{
			SubmittedReport: report.SubmittedReport{
				ID:          "CT-001189",
				Image:       placeholder,
				Location:    report.Location{Lat: 40.7152, Lng: -74.0035, Address: "Park Avenue"},
				Description: "Broken streetlight making area unsafe at night",
				Classification: report.Classification{
					Category: report.CategoryStreetLighting, Confidence: 87,
					Priority: report.PriorityMedium, Authority: "Public Works Department",
				},
				SubmittedAt: ts("2024-01-10T15:45:00Z"),
			},
			Status:      domain.StatusResolved,
			ReportedBy:  "Sarah M.",
			UpdatedAt:   ts("2024-01-12T09:30:00Z"),
			CompletedAt: tsp("2024-01-12T09:30:00Z"),
			Updates: []domain.Update{
				{Date: ts("2024-01-12T09:30:00Z"), Status: domain.StatusResolved, Message: "Streetlight repaired and tested. Issue resolved.", Author: "Public Works Team"},
				{Date: ts("2024-01-11T08:00:00Z"), Status: domain.StatusInProgress, Message: "Electrician dispatched to assess and repair the streetlight.", Author: "Public Works Dispatcher"},
				{Date: ts("2024-01-10T16:00:00Z"), Status: domain.StatusReported, Message: "Street lighting issue reported and routed to Public Works.", Author: domain.SystemAuthor},
			},
		},
	}

	for _, rec := range recs {
		rec.Cell = location.CellToken(rec.Location)
	}
	return recs
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}
