package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/pkg/errors"
)

// MemoryRepository keeps reports in process memory
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Record)}
}

// Create stores a new report
func (r *MemoryRepository) Create(_ context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return errors.Conflict("report " + rec.ID + " already exists")
	}
	r.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns one report
func (r *MemoryRepository) Get(_ context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, errors.NotFoundWithKey("report")
	}
	return rec.Clone(), nil
}

// Track returns reports whose id contains query, ignoring case
func (r *MemoryRepository) Track(_ context.Context, query string) ([]*domain.Record, error) {
	q := strings.ToLower(query)
	return r.collect(func(rec *domain.Record) bool {
		return strings.Contains(strings.ToLower(rec.ID), q)
	}), nil
}

// List returns reports passing the filter, newest first
func (r *MemoryRepository) List(_ context.Context, f domain.Filter) ([]*domain.Record, error) {
	return r.collect(f.Matches), nil
}

// AppendUpdate records a status change
func (r *MemoryRepository) AppendUpdate(_ context.Context, id string, u domain.Update, completedAt *time.Time) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, errors.NotFoundWithKey("report")
	}
	rec.Status = u.Status
	rec.UpdatedAt = u.Date
	if completedAt != nil {
		t := *completedAt
		rec.CompletedAt = &t
	}
	rec.Updates = append([]domain.Update{u}, rec.Updates...)
	return rec.Clone(), nil
}

// IDs returns every stored report id
func (r *MemoryRepository) IDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *MemoryRepository) collect(keep func(*domain.Record) bool) []*domain.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Record, 0)
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}
