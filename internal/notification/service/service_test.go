package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	pkgerrors "github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
	"github.com/civictrack/civictrack-backend/pkg/testutil"
)

type prefs bool

func (p prefs) PushEnabled(context.Context) bool { return bool(p) }

type failingPusher struct{ calls int }

func (f *failingPusher) Push(context.Context, string, domain.Notification) error {
	f.calls++
	return errors.New("gateway down")
}

func newService(t *testing.T, store kvstore.Store, pusher Pusher, events messaging.EventPublisher) *NotificationService {
	t.Helper()
	if store == nil {
		store = kvstore.NewMemory()
	}
	svc := NewNotificationService(store, pusher, events, logger.Nop())
	clock := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func TestNotify_NewestFirstAndUnread(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	ctx := context.Background()

	svc.Notify(ctx, domain.Event{Title: "first", Kind: domain.KindInfo})
	svc.Notify(ctx, domain.Event{Title: "second", Kind: domain.KindSuccess, RelatedReportID: "CT-000001"})
	svc.Notify(ctx, domain.Event{Title: "third", Kind: "sparkly"})

	list := svc.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Title)
	assert.Equal(t, domain.KindInfo, list[0].Type, "unknown kinds become info")
	assert.Equal(t, "first", list[2].Title)
	assert.Equal(t, "CT-000001", list[1].RelatedReportID)
	assert.True(t, list[0].Timestamp.After(list[1].Timestamp))
	assert.NotEqual(t, list[0].ID, list[1].ID)
	assert.Equal(t, 3, svc.UnreadCount(ctx))
}

func TestMarkAsRead(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	ctx := context.Background()
	svc.Notify(ctx, domain.Event{Title: "a"})
	svc.Notify(ctx, domain.Event{Title: "b"})

	id := svc.List(ctx)[0].ID
	require.NoError(t, svc.MarkAsRead(ctx, id))
	require.NoError(t, svc.MarkAsRead(ctx, id))
	assert.Equal(t, 1, svc.UnreadCount(ctx))
	assert.True(t, svc.List(ctx)[0].Read)

	err := svc.MarkAsRead(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	assert.Equal(t, 1, svc.MarkAllAsRead(ctx))
	assert.Equal(t, 0, svc.MarkAllAsRead(ctx))
	assert.Zero(t, svc.UnreadCount(ctx))
}

func TestFeedsArePerActor(t *testing.T) {
	svc := newService(t, nil, nil, nil)
	anon := context.Background()
	ana := actor.WithActor(context.Background(), &actor.Actor{ID: "user_1"})

	svc.Notify(anon, domain.Event{Title: "anonymous"})
	svc.Notify(ana, domain.Event{Title: "for ana"})

	require.Len(t, svc.List(anon), 1)
	require.Len(t, svc.List(ana), 1)
	assert.Equal(t, "for ana", svc.List(ana)[0].Title)
}

func TestPersistenceAcrossInstances(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "user_1"})

	first := newService(t, store, nil, nil)
	first.Notify(ctx, domain.Event{Title: "kept"})
	first.Notify(ctx, domain.Event{Title: "read"})
	require.NoError(t, first.MarkAsRead(ctx, first.List(ctx)[0].ID))

	second := newService(t, store, nil, nil)
	list := second.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, "read", list[0].Title)
	assert.True(t, list[0].Read)
	assert.Equal(t, 1, second.UnreadCount(ctx))
}

func TestCorruptStateIsDiscarded(t *testing.T) {
	store := kvstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, NotificationsKey, []byte("{not json")))

	svc := newService(t, store, nil, nil)
	assert.Empty(t, svc.List(ctx))

	_, err := store.Get(ctx, NotificationsKey)
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestRequestPermission(t *testing.T) {
	t.Run("unsupported without pusher", func(t *testing.T) {
		svc := newService(t, nil, nil, nil)
		ctx := context.Background()

		assert.False(t, svc.RequestPermission(ctx, domain.PermissionGranted))
		assert.Equal(t, domain.PermissionUnsupported, svc.Permission(ctx))
		require.Len(t, svc.List(ctx), 1)
		assert.Equal(t, domain.KindError, svc.List(ctx)[0].Type)
	})

	t.Run("granted is sticky", func(t *testing.T) {
		store := kvstore.NewMemory()
		svc := newService(t, store, NewEventPusher(testutil.NewMockPublisher()), nil)
		ctx := context.Background()

		assert.Equal(t, domain.PermissionDefault, svc.Permission(ctx))
		assert.True(t, svc.RequestPermission(ctx, domain.PermissionGranted))
		assert.True(t, svc.RequestPermission(ctx, domain.PermissionDenied))
		assert.Equal(t, domain.PermissionGranted, svc.Permission(ctx))
		assert.Equal(t, "Notifications enabled", svc.List(ctx)[0].Title)

		reloaded := newService(t, store, NewEventPusher(testutil.NewMockPublisher()), nil)
		assert.Equal(t, domain.PermissionGranted, reloaded.Permission(ctx))
	})

	t.Run("denied cannot be asked again", func(t *testing.T) {
		svc := newService(t, nil, NewEventPusher(testutil.NewMockPublisher()), nil)
		ctx := context.Background()

		assert.False(t, svc.RequestPermission(ctx, domain.PermissionDenied))
		assert.False(t, svc.RequestPermission(ctx, domain.PermissionGranted))
		assert.Equal(t, domain.PermissionDenied, svc.Permission(ctx))
	})

	t.Run("dismissed prompt keeps default", func(t *testing.T) {
		svc := newService(t, nil, NewEventPusher(testutil.NewMockPublisher()), nil)
		ctx := context.Background()

		assert.False(t, svc.RequestPermission(ctx, domain.PermissionDefault))
		assert.Equal(t, domain.PermissionDefault, svc.Permission(ctx))
	})
}

func TestPushGating(t *testing.T) {
	tests := []struct {
		name     string
		grant    bool
		prefs    PushPreferences
		wantPush int
	}{
		{"granted and enabled", true, prefs(true), 1},
		{"granted but disabled", true, prefs(false), 0},
		{"granted without preferences", true, nil, 0},
		{"not granted", false, prefs(true), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := testutil.NewMockPublisher()
			svc := newService(t, nil, NewEventPusher(bus), nil)
			ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "user_7"})
			if tt.prefs != nil {
				svc.UsePreferences(tt.prefs)
			}
			if tt.grant {
				// the confirmation notification is pushed too when allowed
				svc.RequestPermission(ctx, domain.PermissionGranted)
				bus.Reset()
			}

			svc.Notify(ctx, domain.Event{Title: "Report Submitted", Kind: domain.KindSuccess, RelatedReportID: "CT-000042"})

			pushes := bus.Events(messaging.EventNotificationPush)
			require.Len(t, pushes, tt.wantPush)
			if tt.wantPush > 0 {
				payload := pushes[0].Payload.(messaging.NotificationEvent)
				assert.Equal(t, "user_7", payload.UserID)
				assert.Equal(t, "CT-000042", payload.RelatedReportID)
				assert.Equal(t, "success", payload.Kind)
			}
		})
	}
}

func TestPushFailureIsNotFatal(t *testing.T) {
	pusher := &failingPusher{}
	svc := newService(t, nil, pusher, nil)
	svc.UsePreferences(prefs(true))
	ctx := context.Background()

	require.True(t, svc.RequestPermission(ctx, domain.PermissionGranted))
	svc.Notify(ctx, domain.Event{Title: "x"})

	assert.Equal(t, 2, pusher.calls)
	assert.Len(t, svc.List(ctx), 2)
}

func TestNotificationCreatedEvents(t *testing.T) {
	events := testutil.NewMockPublisher()
	svc := newService(t, nil, nil, events)
	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "user_3"})

	svc.Notify(ctx, domain.Event{Title: "hello", Kind: domain.KindWarning})

	created := events.Events(messaging.EventNotificationCreated)
	require.Len(t, created, 1)
	payload := created[0].Payload.(messaging.NotificationEvent)
	assert.Equal(t, "hello", payload.Title)
	assert.Equal(t, "warning", payload.Kind)
	assert.Equal(t, "user_3", payload.UserID)
}

// flakyStore fails reads while down is set
type flakyStore struct {
	*kvstore.Memory
	down bool
}

func (f *flakyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.down {
		return nil, errors.New("connection reset by peer")
	}
	return f.Memory.Get(ctx, key)
}

func TestUnreachableStoreKeepsHistory(t *testing.T) {
	mem := kvstore.NewMemory()
	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "user_1"})

	first := newService(t, mem, nil, nil)
	first.Notify(ctx, domain.Event{Title: "one"})
	first.Notify(ctx, domain.Event{Title: "two"})

	store := &flakyStore{Memory: mem, down: true}
	restarted := newService(t, store, nil, nil)
	assert.Empty(t, restarted.List(ctx))
	assert.Zero(t, restarted.MarkAllAsRead(ctx))
	assert.Error(t, restarted.MarkAsRead(ctx, "any"))
	restarted.Notify(ctx, domain.Event{Title: "three"})

	_, err := mem.Get(context.Background(), NotificationsKey+":user_1")
	require.NoError(t, err, "stored feed must not be deleted")

	store.down = false
	restarted.Notify(ctx, domain.Event{Title: "four"})

	list := restarted.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "four", list[0].Title)
	assert.Equal(t, "one", list[2].Title)

	again := newService(t, mem, nil, nil)
	assert.Len(t, again.List(ctx), 3)
}
