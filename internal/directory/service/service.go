package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/internal/location"
	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

// EstimatedResolution is added to the submission time for a new report
const EstimatedResolution = 3 * 24 * time.Hour

// Repository persists directory records
type Repository interface {
	Create(ctx context.Context, rec *domain.Record) error
	Get(ctx context.Context, id string) (*domain.Record, error)
	Track(ctx context.Context, query string) ([]*domain.Record, error)
	List(ctx context.Context, f domain.Filter) ([]*domain.Record, error)
	AppendUpdate(ctx context.Context, id string, u domain.Update, completedAt *time.Time) (*domain.Record, error)
	IDs(ctx context.Context) ([]string, error)
}

// IDReserver is told about identifiers already in use
type IDReserver interface {
	Reserve(ids ...string)
}

// DirectoryService stores submitted reports and tracks their resolution
type DirectoryService struct {
	repo   Repository
	events messaging.EventPublisher
	logger *logger.Logger
	now    func() time.Time
}

// NewDirectoryService creates a new directory service. events may be nil.
func NewDirectoryService(repo Repository, events messaging.EventPublisher, log *logger.Logger) *DirectoryService {
	return &DirectoryService{
		repo:   repo,
		events: events,
		logger: log.WithComponent("directory"),
		now:    time.Now,
	}
}

// Store files a submitted report. The reporter is the actor in ctx.
func (s *DirectoryService) Store(ctx context.Context, r report.SubmittedReport) error {
	reporter := actor.FromContext(ctx)
	eta := r.SubmittedAt.Add(EstimatedResolution)

	rec := &domain.Record{
		SubmittedReport:     r,
		Status:              domain.StatusReported,
		ReportedBy:          reporter.ShortName(),
		Cell:                location.CellToken(r.Location),
		UpdatedAt:           r.SubmittedAt,
		EstimatedCompletion: &eta,
		Updates: []domain.Update{{
			Date:   r.SubmittedAt,
			Status: domain.StatusReported,
			Message: fmt.Sprintf("Issue reported and classified as %s priority %s.",
				strings.ToLower(string(r.Classification.Priority)), strings.ToLower(string(r.Classification.Category))),
			Author: domain.SystemAuthor,
		}},
	}
	if !reporter.IsAnonymous() {
		rec.ReporterID = reporter.ID
	}
	rec.Image.Data = nil

	if err := s.repo.Create(ctx, rec); err != nil {
		return err
	}

	s.logger.Info().Str("report_id", rec.ID).Str("cell", rec.Cell).Msg("report filed")

	s.publish(ctx, messaging.EventReportSubmitted, messaging.ReportSubmittedEvent{
		ReportID:    rec.ID,
		Category:    string(rec.Classification.Category),
		Priority:    string(rec.Classification.Priority),
		Authority:   rec.Classification.Authority,
		Address:     rec.Location.Address,
		Latitude:    rec.Location.Lat,
		Longitude:   rec.Location.Lng,
		Cell:        rec.Cell,
		ReporterID:  rec.ReporterID,
		SubmittedAt: rec.SubmittedAt,
	})
	return nil
}

// Get returns one report
func (s *DirectoryService) Get(ctx context.Context, id string) (*domain.Record, error) {
	return s.repo.Get(ctx, strings.ToUpper(strings.TrimSpace(id)))
}

// Track finds reports by id fragment. A blank query finds nothing.
func (s *DirectoryService) Track(ctx context.Context, query string) ([]*domain.Record, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []*domain.Record{}, nil
	}
	return s.repo.Track(ctx, q)
}

// List returns the dashboard view
func (s *DirectoryService) List(ctx context.Context, f domain.Filter) ([]*domain.Record, error) {
	return s.repo.List(ctx, f)
}

// StatusUpdate moves a report along its workflow
type StatusUpdate struct {
	Status  string `json:"status" validate:"required"`
	Message string `json:"message" validate:"required,max=500"`
}

// UpdateStatus records a status change authored by the actor in ctx
func (s *DirectoryService) UpdateStatus(ctx context.Context, id string, req StatusUpdate) (*domain.Record, error) {
	if err := httputil.Validate(&req); err != nil {
		return nil, err
	}
	status, ok := domain.ParseStatus(req.Status)
	if !ok {
		return nil, errors.Validation(map[string]string{"status": "must be one of Reported, In Progress, Resolved"})
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	author := actor.FromContext(ctx)
	now := s.now().UTC()
	var completedAt *time.Time
	if status == domain.StatusResolved {
		completedAt = &now
	}

	updated, err := s.repo.AppendUpdate(ctx, current.ID, domain.Update{
		Date:    now,
		Status:  status,
		Message: strings.TrimSpace(req.Message),
		Author:  author.DisplayName(),
	}, completedAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("report_id", updated.ID).
		Str("old_status", string(current.Status)).
		Str("new_status", string(status)).
		Msg("report status changed")

	s.publish(ctx, messaging.EventReportStatusChanged, messaging.ReportStatusChangedEvent{
		ReportID:   updated.ID,
		OldStatus:  string(current.Status),
		NewStatus:  string(status),
		Message:    strings.TrimSpace(req.Message),
		ChangedBy:  author.DisplayName(),
		ReporterID: updated.ReporterID,
	})
	return updated, nil
}

// Analytics summarizes every report
func (s *DirectoryService) Analytics(ctx context.Context) (*domain.Analytics, error) {
	recs, err := s.repo.List(ctx, domain.Filter{})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	a := &domain.Analytics{TotalReports: len(recs), TopIssueTypes: []domain.CategoryCount{}}
	counts := map[report.Category]int{}
	var resolvedHours float64
	var resolved int

	for _, r := range recs {
		counts[r.Classification.Category]++
		if r.Status != domain.StatusResolved {
			a.PendingReports++
			continue
		}
		if r.CompletedAt == nil {
			continue
		}
		if !r.CompletedAt.Before(today) {
			a.ResolvedToday++
		}
		resolvedHours += r.CompletedAt.Sub(r.SubmittedAt).Hours()
		resolved++
	}

	if resolved > 0 {
		a.AvgResolutionHours = round1(resolvedHours / float64(resolved))
	}
	for category, n := range counts {
		a.TopIssueTypes = append(a.TopIssueTypes, domain.CategoryCount{
			Type:       category,
			Count:      n,
			Percentage: round1(float64(n) * 100 / float64(len(recs))),
		})
	}
	sort.Slice(a.TopIssueTypes, func(i, j int) bool {
		if a.TopIssueTypes[i].Count == a.TopIssueTypes[j].Count {
			return a.TopIssueTypes[i].Type < a.TopIssueTypes[j].Type
		}
		return a.TopIssueTypes[i].Count > a.TopIssueTypes[j].Count
	})
	return a, nil
}

// ReserveIDs tells the identifier generator about ids already stored
func (s *DirectoryService) ReserveIDs(ctx context.Context, ids IDReserver) error {
	existing, err := s.repo.IDs(ctx)
	if err != nil {
		return fmt.Errorf("list report ids: %w", err)
	}
	ids.Reserve(existing...)
	s.logger.Debug().Int("count", len(existing)).Msg("reserved existing report ids")
	return nil
}

func (s *DirectoryService) publish(ctx context.Context, eventType string, data interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, data); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
