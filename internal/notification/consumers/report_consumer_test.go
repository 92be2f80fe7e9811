package consumers

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-backend/internal/notification/domain"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
)

type delivery struct {
	owner *actor.Actor
	event domain.Event
}

type recordingSink struct {
	mu  sync.Mutex
	got []delivery
}

func (s *recordingSink) Notify(ctx context.Context, e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, delivery{owner: actor.FromContext(ctx), event: e})
}

func TestReportEventConsumer_StatusChanged(t *testing.T) {
	bus := messaging.NewLocalBus("test", logger.Nop())
	sink := &recordingSink{}
	NewReportEventConsumer(bus, sink, logger.Nop())

	ctx := actor.WithActor(context.Background(), &actor.Actor{ID: "authority_1", Role: actor.RoleAuthority})
	require.NoError(t, bus.Publish(ctx, messaging.EventReportStatusChanged, messaging.ReportStatusChangedEvent{
		ReportID:   "CT-001234",
		OldStatus:  "Reported",
		NewStatus:  "In Progress",
		Message:    "Crew dispatched",
		ChangedBy:  "Sarah Johnson",
		ReporterID: "user_42",
	}))
	require.NoError(t, bus.Publish(context.Background(), messaging.EventReportStatusChanged, messaging.ReportStatusChangedEvent{
		ReportID:  "CT-001235",
		NewStatus: "Resolved",
	}))

	require.Len(t, sink.got, 2)

	first := sink.got[0]
	require.NotNil(t, first.owner)
	assert.Equal(t, "user_42", first.owner.ID, "delivered to the reporter, not the authority")
	assert.Equal(t, "Report Update", first.event.Title)
	assert.Equal(t, "Report CT-001234 is now In Progress: Crew dispatched", first.event.Message)
	assert.Equal(t, domain.KindInfo, first.event.Kind)
	assert.Equal(t, "/track?q=CT-001234", first.event.ActionURL)

	second := sink.got[1]
	assert.True(t, second.owner.IsAnonymous())
	assert.Equal(t, domain.KindSuccess, second.event.Kind)
	assert.Equal(t, "Report CT-001235 is now Resolved.", second.event.Message)
}

func TestReportEventConsumer_IgnoresOtherEvents(t *testing.T) {
	bus := messaging.NewLocalBus("test", logger.Nop())
	sink := &recordingSink{}
	NewReportEventConsumer(bus, sink, logger.Nop())

	require.NoError(t, bus.Publish(context.Background(), messaging.EventReportSubmitted, messaging.ReportSubmittedEvent{ReportID: "CT-000001"}))
	assert.Empty(t, sink.got)
}
