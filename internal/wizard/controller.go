// Package wizard drives one civic issue report from photo capture to a
// committed record. A Controller is a small state machine:
//
//	Capture -> Describe -> Classify (analyzing, ready) -> Confirm -> Done
//
// Every operation either moves the machine forward, moves it back through an
// explicit back/cancel operation, or returns a rejection and leaves the state
// untouched. Rejections are *errors.AppError values wrapping one of the Err*
// causes in this package.
package wizard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	notification "github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/internal/report"
	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/logger"
)

// Classifier maps a description to a classification
type Classifier interface {
	Classify(description string) report.Classification
}

// IDGenerator mints report identifiers
type IDGenerator interface {
	Next() (string, error)
}

// Directory receives committed reports
type Directory interface {
	Store(ctx context.Context, r report.SubmittedReport) error
}

// Sink receives fire-and-forget notifications
type Sink interface {
	Notify(ctx context.Context, event notification.Event)
}

// Dependencies are shared by every controller. Directory and Sink may be nil.
type Dependencies struct {
	Classifier   Classifier
	IDs          IDGenerator
	Directory    Directory
	Sink         Sink
	Logger       *logger.Logger
	AnalyzeDelay time.Duration
	SubmitDelay  time.Duration
	Now          func() time.Time
}

// Draft is the in-progress report
type Draft struct {
	Image          *report.Image
	Location       *report.Location
	Description    string
	Classification *report.Classification
}

// Snapshot is a copy of the controller state safe to hand out
type Snapshot struct {
	ID             string                  `json:"id"`
	Stage          Stage                   `json:"stage"`
	Step           int                     `json:"step"`
	Phase          Phase                   `json:"phase,omitempty"`
	Image          *report.Image           `json:"image,omitempty"`
	Location       *report.Location        `json:"location,omitempty"`
	Description    string                  `json:"description"`
	Classification *report.Classification  `json:"classification,omitempty"`
	Report         *report.SubmittedReport `json:"report,omitempty"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// Controller owns one draft. It is safe for concurrent use; concurrent calls
// are serialized and the in-flight phases reject overlapping work.
type Controller struct {
	id   string
	deps Dependencies
	log  *logger.Logger

	mu        sync.Mutex
	stage     Stage
	phase     Phase
	draft     Draft
	result    *report.SubmittedReport
	createdAt time.Time
	updatedAt time.Time

	// generation invalidates classification results from earlier entries
	// into the Classify stage.
	generation uint64
	cancelTask context.CancelFunc
	taskDone   chan struct{}
}

// New starts a draft in the Capture stage
func New(id string, deps Dependencies) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	now := deps.Now()
	return &Controller{
		id:        id,
		deps:      deps,
		log:       deps.Logger.WithWizardID(id),
		stage:     StageCapture,
		createdAt: now,
		updatedAt: now,
	}
}

// ID returns the wizard identifier
func (c *Controller) ID() string {
	return c.id
}

// LastActivity is the time of the last accepted operation
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updatedAt
}

// Snapshot returns the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Result returns the committed report once the wizard is Done
func (c *Controller) Result() (report.SubmittedReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return report.SubmittedReport{}, false
	}
	return *c.result, true
}

// SetImage records the captured photo. Allowed only in Capture; a second
// image replaces the first.
func (c *Controller) SetImage(img report.Image) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageCapture {
		return c.snapshotLocked(), c.reject(invalidTransition(actionAttachPhoto, c.stage))
	}
	c.draft.Image = &img
	c.touch()
	c.log.Debug().Str("content_type", img.ContentType).Int("size", img.Size).Msg("image captured")
	return c.snapshotLocked(), nil
}

// SetLocation records where the issue is. Allowed only in Capture.
func (c *Controller) SetLocation(loc report.Location) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageCapture {
		return c.snapshotLocked(), c.reject(invalidTransition(actionSetLocation, c.stage))
	}
	c.draft.Location = &loc
	c.touch()
	c.log.Debug().Str("address", loc.Address).Msg("location set")
	return c.snapshotLocked(), nil
}

// AdvanceFromCapture moves to Describe once both image and location are set
func (c *Controller) AdvanceFromCapture() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageCapture {
		return c.snapshotLocked(), c.reject(invalidTransition(actionContinueToDescribe, c.stage))
	}
	if c.draft.Image == nil || c.draft.Location == nil {
		return c.snapshotLocked(), c.reject(missingCaptureData(c.draft.Image != nil, c.draft.Location != nil))
	}
	c.moveTo(StageDescribe, PhaseIdle)
	return c.snapshotLocked(), nil
}

// BackToCapture returns from Describe. Image, location and description are kept.
func (c *Controller) BackToCapture() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageDescribe {
		return c.snapshotLocked(), c.reject(invalidTransition(actionBackToCapture, c.stage))
	}
	c.moveTo(StageCapture, PhaseIdle)
	return c.snapshotLocked(), nil
}

// AdvanceFromDescribe stores the trimmed description, enters Classify and
// starts the classifier in the background. Use AwaitClassification or poll
// Snapshot to observe the result.
func (c *Controller) AdvanceFromDescribe(description string) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageDescribe {
		return c.snapshotLocked(), c.reject(invalidTransition(actionAnalyze, c.stage))
	}
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return c.snapshotLocked(), c.reject(emptyDescription())
	}

	c.draft.Description = trimmed
	c.draft.Classification = nil
	c.moveTo(StageClassify, PhaseAnalyzing)
	c.startClassification()
	return c.snapshotLocked(), nil
}

// CancelClassify abandons the analysis and returns to Describe. Any result
// still in flight is discarded.
func (c *Controller) CancelClassify() (Snapshot, error) {
	return c.returnToDescribe(actionCancelAnalysis, StageClassify)
}

// BackToDescribe returns to Describe from Classify or Confirm, discarding the
// classification. Re-entering Classify analyzes again.
func (c *Controller) BackToDescribe() (Snapshot, error) {
	return c.returnToDescribe(actionBackToDescribe, StageClassify, StageConfirm)
}

func (c *Controller) returnToDescribe(action string, from ...Stage) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	allowed := false
	for _, s := range from {
		if c.stage == s {
			allowed = true
		}
	}
	if !allowed || c.phase == PhaseSubmitting {
		return c.snapshotLocked(), c.reject(invalidTransition(action, c.stage))
	}

	c.abortTask()
	c.draft.Classification = nil
	c.moveTo(StageDescribe, PhaseIdle)
	return c.snapshotLocked(), nil
}

// AdvanceFromClassify moves to Confirm once the classification is ready
func (c *Controller) AdvanceFromClassify() (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageClassify {
		return c.snapshotLocked(), c.reject(invalidTransition(actionContinueToConfirm, c.stage))
	}
	if c.phase != PhaseReady || c.draft.Classification == nil {
		return c.snapshotLocked(), c.reject(classificationNotReady())
	}
	c.moveTo(StageConfirm, PhaseIdle)
	return c.snapshotLocked(), nil
}

// AwaitClassification blocks until the current analysis finishes, is
// cancelled, or ctx ends. It returns immediately when nothing is running.
func (c *Controller) AwaitClassification(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.taskDone
	c.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Submit commits the draft exactly once. After the simulated commit delay it
// mints an identifier, moves to Done, hands the report to the directory and
// then notifies the sink. A second call, concurrent or later, is rejected
// with ErrDuplicateSubmission. If ctx ends during the delay the wizard stays
// in Confirm and submit may be retried.
func (c *Controller) Submit(ctx context.Context) (report.SubmittedReport, error) {
	c.mu.Lock()
	switch {
	case c.stage == StageDone, c.stage == StageConfirm && c.phase == PhaseSubmitting:
		c.mu.Unlock()
		return report.SubmittedReport{}, c.reject(duplicateSubmission())
	case c.stage != StageConfirm:
		stage := c.stage
		c.mu.Unlock()
		return report.SubmittedReport{}, c.reject(invalidTransition(actionSubmit, stage))
	case c.draft.Image == nil || c.draft.Location == nil || c.draft.Classification == nil:
		c.mu.Unlock()
		return report.SubmittedReport{}, c.reject(classificationNotReady())
	}
	c.phase = PhaseSubmitting
	draft := Draft{
		Image:          c.draft.Image,
		Location:       c.draft.Location,
		Description:    c.draft.Description,
		Classification: c.draft.Classification,
	}
	c.mu.Unlock()

	if err := sleep(ctx, c.deps.SubmitDelay); err != nil {
		c.releaseSubmit()
		c.log.Info().Err(err).Msg("submission interrupted")
		return report.SubmittedReport{}, fmt.Errorf("submit interrupted: %w", err)
	}

	id, err := c.deps.IDs.Next()
	if err != nil {
		c.releaseSubmit()
		return report.SubmittedReport{}, fmt.Errorf("generate report id: %w", err)
	}

	r := report.SubmittedReport{
		ID:             id,
		Image:          *draft.Image,
		Location:       *draft.Location,
		Description:    draft.Description,
		Classification: *draft.Classification,
		SubmittedAt:    c.deps.Now().UTC(),
	}

	c.mu.Lock()
	c.result = &r
	c.moveTo(StageDone, PhaseIdle)
	c.mu.Unlock()

	c.log.Info().
		Str("report_id", r.ID).
		Str("category", string(r.Classification.Category)).
		Str("priority", string(r.Classification.Priority)).
		Msg("report submitted")

	// the request may end before the side effects finish; keep its values
	sideCtx := context.WithoutCancel(ctx)
	if c.deps.Directory != nil {
		if err := c.deps.Directory.Store(sideCtx, r); err != nil {
			c.log.Error().Err(err).Str("report_id", r.ID).Msg("failed to store report")
		}
	}
	if c.deps.Sink != nil {
		c.deps.Sink.Notify(sideCtx, SubmittedEvent(r))
	}
	return r, nil
}

// Close stops any running analysis. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortTask()
}

// SubmittedEvent describes a committed report for the notification sink
func SubmittedEvent(r report.SubmittedReport) notification.Event {
	return notification.Event{
		Title: "Report Submitted",
		Message: fmt.Sprintf("Report %s (%s, %s priority) has been sent to %s.",
			r.ID, r.Classification.Category, r.Classification.Priority, r.Classification.Authority),
		Kind:            notification.KindSuccess,
		RelatedReportID: r.ID,
		ActionURL:       "/track?q=" + r.ID,
	}
}

func (c *Controller) releaseSubmit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stage == StageConfirm && c.phase == PhaseSubmitting {
		c.phase = PhaseIdle
	}
}

// startClassification must be called with mu held
func (c *Controller) startClassification() {
	c.generation++
	gen := c.generation
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancelTask = cancel
	c.taskDone = done

	go c.classify(ctx, gen, c.draft.Description, done)
}

func (c *Controller) classify(ctx context.Context, gen uint64, description string, done chan struct{}) {
	defer close(done)

	if err := sleep(ctx, c.deps.AnalyzeDelay); err != nil {
		return
	}
	result := c.deps.Classifier.Classify(description)

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.stage != StageClassify || c.phase != PhaseAnalyzing {
		c.log.Debug().Uint64("generation", gen).Msg("discarding stale classification")
		return
	}
	c.draft.Classification = &result
	c.phase = PhaseReady
	if c.cancelTask != nil {
		c.cancelTask()
		c.cancelTask = nil
	}
	c.touch()
	c.log.Debug().
		Str("category", string(result.Category)).
		Str("priority", string(result.Priority)).
		Msg("classification ready")
}

// abortTask must be called with mu held
func (c *Controller) abortTask() {
	c.generation++
	if c.cancelTask != nil {
		c.cancelTask()
		c.cancelTask = nil
	}
}

func (c *Controller) moveTo(stage Stage, phase Phase) {
	c.log.Debug().Str("from", c.stage.String()).Str("to", stage.String()).Msg("stage transition")
	c.stage = stage
	c.phase = phase
	c.touch()
}

func (c *Controller) touch() {
	c.updatedAt = c.deps.Now()
}

func (c *Controller) reject(err *pkgerrors.AppError) error {
	c.log.Info().Str("code", err.Code).Msg(err.Message)
	return err
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:          c.id,
		Stage:       c.stage,
		Step:        int(c.stage),
		Phase:       c.phase,
		Description: c.draft.Description,
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.updatedAt,
	}
	if c.draft.Image != nil {
		img := *c.draft.Image
		s.Image = &img
	}
	if c.draft.Location != nil {
		loc := *c.draft.Location
		s.Location = &loc
	}
	if c.draft.Classification != nil {
		cl := *c.draft.Classification
		s.Classification = &cl
	}
	if c.result != nil {
		r := *c.result
		s.Report = &r
	}
	return s
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
