package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civictrack/civictrack-backend/internal/capture"
	"github.com/civictrack/civictrack-backend/internal/classifier"
	"github.com/civictrack/civictrack-backend/internal/location"
	"github.com/civictrack/civictrack-backend/internal/report"
	"github.com/civictrack/civictrack-backend/internal/reportid"
	"github.com/civictrack/civictrack-backend/internal/wizard"
	"github.com/civictrack/civictrack-backend/internal/wizard/handler"
	"github.com/civictrack/civictrack-backend/pkg/i18n"
	"github.com/civictrack/civictrack-backend/pkg/logger"
	"github.com/civictrack/civictrack-backend/pkg/testutil"
)

func newRouter(t *testing.T, deps wizard.Dependencies) (http.Handler, *wizard.Registry) {
	t.Helper()
	log := logger.Nop()
	if deps.Classifier == nil {
		deps.Classifier = classifier.New()
	}
	if deps.IDs == nil {
		deps.IDs = reportid.New(reportid.SchemeUnique)
	}
	reg := wizard.NewRegistry(deps, time.Hour, log)
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	h := handler.NewWizardHandler(reg, capture.New(), location.NewResolver(nil, time.Second, log), log)
	r := chi.NewRouter()
	r.Use(i18n.Middleware)
	r.Route("/api/v1/wizards", h.Register)
	return r, reg
}

func create(t *testing.T, router http.Handler) string {
	t.Helper()
	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/", nil))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	env := testutil.DecodeEnvelope[wizard.Snapshot](t, rr)
	assert.Equal(t, wizard.StageCapture, env.Data.Stage)
	require.NotEmpty(t, env.Data.ID)
	return env.Data.ID
}

func upload(t *testing.T, router http.Handler, id string) {
	t.Helper()
	req := testutil.NewMultipartRequest(t, "/api/v1/wizards/"+id+"/image", "image", "pothole.png", testutil.PNGHeader)
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)
	env := testutil.DecodeEnvelope[wizard.Snapshot](t, rr)
	require.NotNil(t, env.Data.Image)
	assert.Equal(t, "image/png", env.Data.Image.ContentType)
	assert.Equal(t, "pothole.png", env.Data.Image.Filename)
}

func TestWizardHandler_FullFlow(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)
	base := "/api/v1/wizards/" + id

	upload(t, router, id)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/location",
		map[string]float64{"lat": 51.5007, "lng": -0.1246}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	loc := testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data.Location
	require.NotNil(t, loc)
	assert.InDelta(t, 51.5007, loc.Lat, 1e-9)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-capture", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/describe",
		handler.DescribeRequest{Description: "Large pothole on Main Street", Wait: true}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	snap := testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data
	assert.Equal(t, wizard.StageClassify, snap.Stage)
	assert.Equal(t, wizard.PhaseReady, snap.Phase)
	require.NotNil(t, snap.Classification)
	assert.Equal(t, report.CategoryRoadMaintenance, snap.Classification.Category)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-classify", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/submit", nil))
	testutil.AssertStatus(t, rr, http.StatusCreated)
	rep := testutil.DecodeEnvelope[report.SubmittedReport](t, rr).Data
	assert.True(t, reportid.Valid(rep.ID))
	assert.Equal(t, report.PriorityHigh, rep.Classification.Priority)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/submit", nil))
	testutil.AssertErrorCode(t, rr, http.StatusConflict, wizard.CodeDuplicateSubmission)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, base, nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	snap = testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data
	assert.Equal(t, wizard.StageDone, snap.Stage)
	require.NotNil(t, snap.Report)
	assert.Equal(t, rep.ID, snap.Report.ID)
}

func TestWizardHandler_LocationFallback(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)

	tests := []struct {
		name string
		body interface{}
	}{
		{"no body", nil},
		{"out of range", map[string]float64{"lat": 123, "lng": 500}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/"+id+"/location", tt.body))
			testutil.AssertStatus(t, rr, http.StatusOK)
			loc := testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data.Location
			require.NotNil(t, loc)
			assert.Equal(t, location.Fallback, *loc)
		})
	}

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/"+id+"/location",
		map[string]float64{"lat": 10}))
	testutil.AssertErrorCode(t, rr, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestWizardHandler_LocationStreamedEmptyBody(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})

	for _, body := range []string{"", " \n"} {
		id := create(t, router)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wizards/"+id+"/location", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.ContentLength = -1

		rr := testutil.ExecuteRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		loc := testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data.Location
		require.NotNil(t, loc)
		assert.Equal(t, location.Fallback, *loc)
	}

	id := create(t, router)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/wizards/"+id+"/location", strings.NewReader("{"))
	req.ContentLength = -1
	testutil.AssertErrorCode(t, testutil.ExecuteRequest(router, req), http.StatusBadRequest, "BAD_REQUEST")
}

func TestWizardHandler_Rejections(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)
	base := "/api/v1/wizards/" + id

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-capture", nil))
	testutil.AssertErrorCode(t, rr, http.StatusUnprocessableEntity, wizard.CodeMissingCaptureData)
	env := testutil.DecodeEnvelope[wizard.Snapshot](t, rr)
	assert.Equal(t, "required", env.Error.Details["image"])
	assert.Equal(t, "required", env.Error.Details["location"])

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/submit", nil))
	testutil.AssertErrorCode(t, rr, http.StatusConflict, wizard.CodeInvalidTransition)

	upload(t, router, id)
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/location", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-capture", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/describe",
		handler.DescribeRequest{Description: "   "}))
	testutil.AssertErrorCode(t, rr, http.StatusUnprocessableEntity, wizard.CodeEmptyDescription)
}

func TestWizardHandler_LocalizedRejection(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)

	req := testutil.WithLanguage(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/"+id+"/advance-capture", nil), "es")
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	env := testutil.DecodeEnvelope[wizard.Snapshot](t, rr)
	require.NotNil(t, env.Error)
	assert.Equal(t, i18n.TWithLocale("es", "wizard.missing_capture_data"), env.Error.Message)
}

func TestWizardHandler_LocalizedTransition(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)

	tests := []struct {
		lang string
		want string
	}{
		{"en", "cannot submit while the report is in the capture step"},
		{"es", "no se puede enviar mientras el reporte está en el paso de captura"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			req := testutil.WithLanguage(testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/"+id+"/submit", nil), tt.lang)
			rr := testutil.ExecuteRequest(router, req)
			testutil.AssertErrorCode(t, rr, http.StatusConflict, wizard.CodeInvalidTransition)
			env := testutil.DecodeEnvelope[wizard.Snapshot](t, rr)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.want, env.Error.Message)
		})
	}
}

func TestWizardHandler_ClassificationNotReady(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{AnalyzeDelay: time.Hour})
	id := create(t, router)
	base := "/api/v1/wizards/" + id

	upload(t, router, id)
	testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/location", nil))
	testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-capture", nil))

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/describe",
		handler.DescribeRequest{Description: "broken street lamp"}))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, wizard.PhaseAnalyzing, testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data.Phase)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/advance-classify", nil))
	testutil.AssertErrorCode(t, rr, http.StatusConflict, wizard.CodeClassificationNotReady)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, base+"/cancel-classify", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, wizard.StageDescribe, testutil.DecodeEnvelope[wizard.Snapshot](t, rr).Data.Stage)
}

func TestWizardHandler_UnknownWizard(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/api/v1/wizards/nope", nil))
	testutil.AssertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodDelete, "/api/v1/wizards/nope", nil))
	testutil.AssertErrorCode(t, rr, http.StatusNotFound, "NOT_FOUND")
}

func TestWizardHandler_Abandon(t *testing.T) {
	router, reg := newRouter(t, wizard.Dependencies{})
	id := create(t, router)
	require.Equal(t, 1, reg.Len())

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodDelete, "/api/v1/wizards/"+id, nil))
	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Zero(t, reg.Len())
}

func TestWizardHandler_ImageRequired(t *testing.T) {
	router, _ := newRouter(t, wizard.Dependencies{})
	id := create(t, router)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/api/v1/wizards/"+id+"/image", nil))
	testutil.AssertErrorCode(t, rr, http.StatusBadRequest, "BAD_REQUEST")
}
