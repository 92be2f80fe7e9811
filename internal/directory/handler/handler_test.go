package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-backend/internal/directory/domain"
	"github.com/civictrack/civictrack-backend/internal/directory/handler"
	"github.com/civictrack/civictrack-backend/internal/directory/repository"
	"github.com/civictrack/civictrack-backend/internal/directory/service"
	"github.com/civictrack/civictrack-backend/pkg/actor"
	"github.com/civictrack/civictrack-backend/pkg/errors"
	"github.com/civictrack/civictrack-backend/pkg/httputil"
	"github.com/civictrack/civictrack-backend/pkg/i18n"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/messaging"
	"github.com/civictrack/civictrack-backend/pkg/permissions"
	"github.com/civictrack/civictrack-backend/pkg/testutil"
)

type stubAuth map[string]*actor.Actor

func (s stubAuth) Authenticate(_ context.Context, token string) (*actor.Actor, error) {
	if a, ok := s[token]; ok {
		return a, nil
	}
	return nil, errors.TokenInvalid()
}

var tokens = stubAuth{
	"citizen":   {ID: "user_1", Name: "Ana Ruiz", Role: actor.RoleCitizen, Permissions: permissions.ForRole(actor.RoleCitizen)},
	"authority": {ID: "auth_1", Name: "Sarah Johnson", Role: actor.RoleAuthority, Permissions: permissions.ForRole(actor.RoleAuthority)},
}

func newRouter(t *testing.T) (http.Handler, *testutil.MockPublisher) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	require.NoError(t, repository.Seed(context.Background(), repo))
	pub := testutil.NewMockPublisher()
	svc := service.NewDirectoryService(repo, pub, logger.Nop())

	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Use(httputil.Authenticate(tokens))
	r.Route("/api/v1/reports", handler.NewReportHandler(svc, logger.Nop()).Register)
	return r, pub
}

func TestReportHandler_Track(t *testing.T) {
	router, _ := newRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/track?q=ct-00123", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.DecodeEnvelope[handler.TrackResponse](t, rr).Data
	assert.Equal(t, "ct-00123", resp.Query)
	assert.Len(t, resp.Reports, 4)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/track", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Empty(t, testutil.DecodeEnvelope[handler.TrackResponse](t, rr).Data.Reports)
}

func TestReportHandler_Get(t *testing.T) {
	router, _ := newRouter(t)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/CT-001189", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	rec := testutil.DecodeEnvelope[domain.Record](t, rr).Data
	assert.Equal(t, domain.StatusResolved, rec.Status)
	assert.Equal(t, "Park Avenue", rec.Location.Address)
	assert.Len(t, rec.Updates, 3)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/CT-000000", nil))
	testutil.AssertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestReportHandler_DashboardRequiresPermission(t *testing.T) {
	router, _ := newRouter(t)

	tests := []struct {
		name   string
		token  string
		status int
		code   string
	}{
		{"anonymous", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"citizen", "citizen", http.StatusForbidden, "FORBIDDEN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/v1/reports/", "/api/v1/reports/analytics"} {
				req := testutil.NewHTTPRequest(http.MethodGet, path, nil)
				if tt.token != "" {
					req = testutil.WithBearer(req, tt.token)
				}
				testutil.AssertErrorCode(t, testutil.ExecuteRequest(router, req), tt.status, tt.code)
			}
		})
	}
}

func TestReportHandler_List(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/?status=in%20progress&priority=high", nil), "authority")
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	recs := testutil.DecodeEnvelope[[]domain.Record](t, rr).Data
	require.Len(t, recs, 2)
	assert.Equal(t, "CT-001234", recs[0].ID)
	assert.Equal(t, "CT-001237", recs[1].ID)
}

func TestReportHandler_UpdateStatus(t *testing.T) {
	router, pub := newRouter(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPatch, "/api/v1/reports/CT-001234/status",
		service.StatusUpdate{Status: "Resolved", Message: "Pothole filled."}), "authority")
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rec := testutil.DecodeEnvelope[domain.Record](t, rr).Data
	assert.Equal(t, domain.StatusResolved, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
	assert.Equal(t, "Sarah Johnson", rec.Updates[0].Author)
	pub.AssertEventPublished(t, messaging.EventReportStatusChanged)

	req = testutil.WithBearer(testutil.NewHTTPRequest(http.MethodPatch, "/api/v1/reports/CT-001234/status",
		service.StatusUpdate{Status: "Closed", Message: "x"}), "authority")
	testutil.AssertErrorCode(t, testutil.ExecuteRequest(router, req), http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestReportHandler_Analytics(t *testing.T) {
	router, _ := newRouter(t)

	req := testutil.WithBearer(testutil.NewHTTPRequest(http.MethodGet, "/api/v1/reports/analytics", nil), "authority")
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	a := testutil.DecodeEnvelope[domain.Analytics](t, rr).Data
	assert.Equal(t, 5, a.TotalReports)
	assert.Equal(t, 3, a.PendingReports)
	assert.Len(t, a.TopIssueTypes, 4)
}
