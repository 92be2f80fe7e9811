package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// Registry keeps the in-flight drafts in memory. Drafts idle for longer than
// the TTL are closed and dropped by Sweep, which StartSweeper runs on a cron
// schedule.
type Registry struct {
	mu     sync.RWMutex
	drafts map[string]*Controller
	deps   Dependencies
	ttl    time.Duration
	logger *logger.Logger
	cron   *cron.Cron
}

// NewRegistry creates an empty registry. Every controller it creates shares deps.
func NewRegistry(deps Dependencies, ttl time.Duration, log *logger.Logger) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	deps.Logger = log
	return &Registry{
		drafts: make(map[string]*Controller),
		deps:   deps,
		ttl:    ttl,
		logger: log.WithComponent("wizard"),
	}
}

// Create starts a new draft
func (r *Registry) Create() *Controller {
	c := New(uuid.NewString(), r.deps)

	r.mu.Lock()
	r.drafts[c.ID()] = c
	r.mu.Unlock()

	r.logger.Debug().Str("wizard_id", c.ID()).Msg("draft created")
	return c
}

// Get returns the draft with the given id
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.drafts[id]
	if !ok {
		return nil, pkgerrors.NotFoundWithKey("wizard")
	}
	return c, nil
}

// Delete closes and removes a draft. It reports whether the draft existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	c, ok := r.drafts[id]
	delete(r.drafts, id)
	r.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

// Len returns the number of live drafts
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drafts)
}

// Sweep removes drafts idle for longer than the TTL and returns how many
// were removed. A zero TTL disables expiry.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.deps.Now().Add(-r.ttl)

	var expired []*Controller
	r.mu.Lock()
	for id, c := range r.drafts {
		if c.LastActivity().Before(cutoff) {
			expired = append(expired, c)
			delete(r.drafts, id)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		r.logger.Info().Int("count", len(expired)).Msg("expired idle drafts")
	}
	return len(expired)
}

// StartSweeper runs Sweep on the given cron schedule, for example "@every 1m"
func (r *Registry) StartSweeper(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { r.Sweep() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	r.logger.Info().Str("schedule", schedule).Dur("ttl", r.ttl).Msg("draft sweeper started")
	return nil
}

// Shutdown stops the sweeper, waiting for a running sweep up to ctx, and
// closes every remaining draft.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	drafts := r.drafts
	r.drafts = make(map[string]*Controller)
	r.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	for _, d := range drafts {
		d.Close()
	}
}
