package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

// Storage keys. Authenticated users get their own feed under "<key>:<user id>".
const (
	NotificationsKey = "civictrack_notifications"
	PermissionKey    = "civictrack_notification_permission"
)

// Pusher delivers a notification outside the app
type Pusher interface {
	Push(ctx context.Context, userID string, n domain.Notification) error
}

// PushPreferences reports whether the current actor wants push delivery
type PushPreferences interface {
	PushEnabled(ctx context.Context) bool
}

type feed struct {
	items      []domain.Notification
	permission domain.Permission
}

// NotificationService stores notifications per actor, newest first, and
// pushes them when the actor allows it.
type NotificationService struct {
	store  kvstore.Store
	pusher Pusher
	events messaging.EventPublisher
	prefs  PushPreferences
	logger *logger.Logger
	now    func() time.Time

	mu    sync.Mutex
	feeds map[string]*feed
}

// NewNotificationService creates the service. A nil pusher makes push
// unsupported; a nil event publisher disables notification.created events.
func NewNotificationService(store kvstore.Store, pusher Pusher, events messaging.EventPublisher, log *logger.Logger) *NotificationService {
	return &NotificationService{
		store:  store,
		pusher: pusher,
		events: events,
		logger: log.WithComponent("notification"),
		now:    time.Now,
		feeds:  make(map[string]*feed),
	}
}

// UsePreferences sets the source of per-actor push preferences
func (s *NotificationService) UsePreferences(p PushPreferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
}

// Notify stores the event as an unread notification and pushes it when
// permitted. It never fails; storage and push errors are logged.
func (s *NotificationService) Notify(ctx context.Context, e domain.Event) {
	kind := e.Kind
	if !kind.Valid() {
		kind = domain.KindInfo
	}
	n := domain.Notification{
		ID:              uuid.NewString(),
		Title:           e.Title,
		Message:         e.Message,
		Type:            kind,
		Timestamp:       s.now().UTC(),
		ActionURL:       e.ActionURL,
		RelatedReportID: e.RelatedReportID,
	}
	owner := ownerOf(ctx)

	s.mu.Lock()
	f, err := s.feedLocked(ctx, owner)
	if err != nil {
		// the stored feed is unreadable right now; writing would replace it
		s.mu.Unlock()
		s.logger.Error().Err(err).Str("notification_id", n.ID).Msg("notification not stored")
		return
	}
	f.items = append([]domain.Notification{n}, f.items...)
	s.saveItemsLocked(ctx, owner, f)
	push := f.permission == domain.PermissionGranted && s.pusher != nil
	prefs := s.prefs
	s.mu.Unlock()

	if s.events != nil {
		err := s.events.Publish(ctx, messaging.EventNotificationCreated, messaging.NotificationEvent{
			NotificationID:  n.ID,
			Title:           n.Title,
			Message:         n.Message,
			Kind:            string(n.Type),
			RelatedReportID: n.RelatedReportID,
			UserID:          owner,
			CreatedAt:       n.Timestamp,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("failed to publish notification event")
		}
	}

	if push && prefs != nil && prefs.PushEnabled(ctx) {
		if err := s.pusher.Push(ctx, owner, n); err != nil {
			s.logger.Warn().Err(err).Str("notification_id", n.ID).Msg("push delivery failed")
		}
	}
}

// List returns the actor's notifications, newest first
func (s *NotificationService) List(ctx context.Context) []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.feedLocked(ctx, ownerOf(ctx))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load notifications")
		return []domain.Notification{}
	}
	return append([]domain.Notification{}, f.items...)
}

// UnreadCount returns how many notifications are unread
func (s *NotificationService) UnreadCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.feedLocked(ctx, ownerOf(ctx))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load notifications")
		return 0
	}
	count := 0
	for _, n := range f.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkAsRead marks one notification read
func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	owner := ownerOf(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.feedLocked(ctx, owner)
	if err != nil {
		return pkgerrors.Wrap(err, "INTERNAL_ERROR", "notifications are unavailable", http.StatusServiceUnavailable)
	}
	for i := range f.items {
		if f.items[i].ID == id {
			if !f.items[i].Read {
				f.items[i].Read = true
				s.saveItemsLocked(ctx, owner, f)
			}
			return nil
		}
	}
	return pkgerrors.NotFoundWithKey("notification")
}

// MarkAllAsRead marks every notification read and returns how many changed
func (s *NotificationService) MarkAllAsRead(ctx context.Context) int {
	owner := ownerOf(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.feedLocked(ctx, owner)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load notifications")
		return 0
	}
	changed := 0
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed++
		}
	}
	if changed > 0 {
		s.saveItemsLocked(ctx, owner, f)
	}
	return changed
}

// Permission returns the actor's push permission state
func (s *NotificationService) Permission(ctx context.Context) domain.Permission {
	if s.pusher == nil {
		return domain.PermissionUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.feedLocked(ctx, ownerOf(ctx))
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load push permission")
		return domain.PermissionDefault
	}
	return f.permission
}

// RequestPermission applies the client's answer to a push permission prompt.
// A granted permission is sticky and a denied one cannot be asked again. It
// reports whether push is now granted.
func (s *NotificationService) RequestPermission(ctx context.Context, answer domain.Permission) bool {
	if s.pusher == nil {
		s.Notify(ctx, domain.Event{
			Title:   "Notifications not supported",
			Message: "Push notifications are not available on this server.",
			Kind:    domain.KindError,
		})
		return false
	}

	owner := ownerOf(ctx)
	s.mu.Lock()
	f, err := s.feedLocked(ctx, owner)
	if err != nil {
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("failed to load push permission")
		return false
	}
	switch f.permission {
	case domain.PermissionGranted:
		s.mu.Unlock()
		return true
	case domain.PermissionDenied:
		s.mu.Unlock()
		return false
	}
	if answer != domain.PermissionGranted && answer != domain.PermissionDenied {
		s.mu.Unlock()
		return false
	}
	f.permission = answer
	if err := kvstore.SetJSON(ctx, s.store, key(PermissionKey, owner), f.permission); err != nil {
		s.logger.Error().Err(err).Msg("failed to save push permission")
	}
	s.mu.Unlock()

	if answer != domain.PermissionGranted {
		return false
	}
	s.Notify(ctx, domain.Event{
		Title:   "Notifications enabled",
		Message: "You'll now receive push notifications for updates.",
		Kind:    domain.KindSuccess,
	})
	return true
}

// feedLocked loads a feed on first use. A stored value that does not decode
// is deleted. Backend errors are returned and nothing is cached, so the next
// call loads again.
func (s *NotificationService) feedLocked(ctx context.Context, owner string) (*feed, error) {
	if f, ok := s.feeds[owner]; ok {
		return f, nil
	}
	f := &feed{permission: domain.PermissionDefault}

	var items []domain.Notification
	ok, err := s.load(ctx, key(NotificationsKey, owner), &items)
	if err != nil {
		return nil, err
	}
	if ok {
		f.items = items
	}

	var permission domain.Permission
	ok, err = s.load(ctx, key(PermissionKey, owner), &permission)
	if err != nil {
		return nil, err
	}
	if ok {
		f.permission = permission
	}

	s.feeds[owner] = f
	return f, nil
}

// load reads k into v and reports whether a usable value was found
func (s *NotificationService) load(ctx context.Context, k string, v interface{}) (bool, error) {
	err := kvstore.GetJSON(ctx, s.store, k, v)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kvstore.ErrNotFound):
		return false, nil
	case errors.Is(err, kvstore.ErrCorrupt):
		s.logger.Warn().Err(err).Str("key", k).Msg("discarding unreadable notification state")
		if err := s.store.Delete(ctx, k); err != nil {
			s.logger.Error().Err(err).Str("key", k).Msg("failed to delete notification state")
		}
		return false, nil
	default:
		return false, fmt.Errorf("load %s: %w", k, err)
	}
}

func (s *NotificationService) saveItemsLocked(ctx context.Context, owner string, f *feed) {
	if err := kvstore.SetJSON(context.WithoutCancel(ctx), s.store, key(NotificationsKey, owner), f.items); err != nil {
		s.logger.Error().Err(err).Msg("failed to save notifications")
	}
}

func ownerOf(ctx context.Context) string {
	if a := actor.FromContext(ctx); !a.IsAnonymous() {
		return a.ID
	}
	return ""
}

func key(base, owner string) string {
	if owner == "" {
		return base
	}
	return base + ":" + owner
}
