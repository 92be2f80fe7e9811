package consumers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	directoryrepo "github.com/civictrack/civictrack-backend/internal/directory/repository"
	directoryservice "github.com/civictrack/civictrack-backend/internal/directory/service"
	"github.com/civictrack/civictrack-backend/internal/notification/consumers"
	notificationservice "github.com/civictrack/civictrack-backend/internal/notification/service"
	"github.com/civictrack/civictrack-backend/internal/session/jwt"
	sessionrepo "github.com/civictrack/civictrack-backend/internal/session/repository"
	sessionservice "github.com/civictrack/civictrack-backend/internal/session/service"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/config"
	"github.com/civictrack/civictrack-backend/pkg/kvstore"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
	"github.com/civictrack/civictrack-backend/pkg/testutil"
)

func TestStatusUpdateReachesReporterAfterNewLogin(t *testing.T) {
	store := kvstore.NewMemory()
	bus := messaging.NewLocalBus("test", logger.Nop())

	notifications := notificationservice.NewNotificationService(store, nil, nil, logger.Nop())
	consumers.NewReportEventConsumer(bus, notifications, logger.Nop())

	tokens := jwt.NewManager(&config.JWTConfig{Secret: "test-secret", SessionExpiry: time.Hour, Issuer: "civictrack"})
	sessions := sessionservice.NewSessionService(sessionrepo.NewUserRepository(store), tokens, notifications, 0, logger.Nop())
	directory := directoryservice.NewDirectoryService(directoryrepo.NewMemoryRepository(), bus, logger.Nop())

	signIn := func() (context.Context, string) {
		t.Helper()
		resp, err := sessions.Login(context.Background(), &sessionservice.LoginRequest{Email: "maria@example.com", Password: "x"})
		require.NoError(t, err)
		a, err := sessions.Authenticate(context.Background(), resp.Token)
		require.NoError(t, err)
		return actor.WithActor(context.Background(), a), resp.Token
	}

	reporter, token := signIn()
	require.NoError(t, directory.Store(reporter, testutil.NewReport("CT-000042")))
	require.NoError(t, sessions.Logout(context.Background(), token))

	again, _ := signIn()
	assert.Equal(t, actor.FromContext(reporter).ID, actor.FromContext(again).ID)

	authority := actor.WithActor(context.Background(), &actor.Actor{ID: "auth_1", Name: "Sarah Johnson", Role: actor.RoleAuthority})
	_, err := directory.UpdateStatus(authority, "CT-000042", directoryservice.StatusUpdate{Status: "In Progress", Message: "Crew dispatched"})
	require.NoError(t, err)

	list := notifications.List(again)
	require.NotEmpty(t, list)
	assert.Equal(t, "Report Update", list[0].Title)
	assert.Equal(t, "CT-000042", list[0].RelatedReportID)

	titles := make([]string, 0, len(list))
	for _, n := range list {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"Report Update", "Welcome back!", "Logged out", "Welcome back!"}, titles)
}
