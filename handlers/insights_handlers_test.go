package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon/api/insights"
	"beacon/api/models"
	"beacon/api/session"
	"beacon/api/tenant"
)

type fakeService struct {
	err      error
	gotKey   string
	gotID    string
	overview models.Overview
}

func (f *fakeService) Overview(ctx context.Context, apiKey string) (models.Overview, error) {
	f.gotKey = apiKey
	return f.overview, f.err
}

func (f *fakeService) SessionsFor(ctx context.Context, apiKey, identifyID string) ([]session.Session, error) {
	f.gotKey, f.gotID = apiKey, identifyID
	if f.err != nil {
		return nil, f.err
	}
	return []session.Session{}, nil
}

func (f *fakeService) NewJoiners(ctx context.Context, apiKey string) (map[insights.Bucket][]models.ProfileSummary, error) {
	f.gotKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return map[insights.Bucket][]models.ProfileSummary{
		insights.BucketToday:     {{IdentifyID: "a", Platform: models.PlatformWeb}},
		insights.BucketLastWeek:  {},
		insights.BucketLastMonth: {},
	}, nil
}

func (f *fakeService) DailyErrors(ctx context.Context, apiKey string) ([]insights.DailyErrors, error) {
	f.gotKey = apiKey
	return []insights.DailyErrors{}, f.err
}

func (f *fakeService) ActiveNow(ctx context.Context, apiKey string) (uint64, error) {
	f.gotKey = apiKey
	return 3, f.err
}

func setupRouter(svc InsightsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger, _ := logtest.NewNullLogger()
	h := NewInsightsHandlers(svc, logger)

	r := gin.New()
	r.GET("/health", Health)
	g := r.Group("/api/insights")
	g.GET("/overview", h.GetOverview)
	g.GET("/sessions/:identifyId", h.GetSessions)
	g.GET("/new-joiners", h.GetNewJoiners)
	g.GET("/errors/daily", h.GetDailyErrors)
	g.GET("/active-now", h.GetActiveNow)
	return r
}

func get(r http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetOverview(t *testing.T) {
	svc := &fakeService{overview: models.Overview{TotalUsers: 10, MAU: 120, MAUChange: 20}}
	w := get(setupRouter(svc), "/api/insights/overview", map[string]string{"X-API-KEY": "pk_live"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pk_live", svc.gotKey)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 120.0, body["mau"])
	assert.Equal(t, 20.0, body["mauChange"])
}

func TestAPIKeyFromQuery(t *testing.T) {
	svc := &fakeService{}
	w := get(setupRouter(svc), "/api/insights/active-now?apiKey=pk_test", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pk_test", svc.gotKey)
	assert.JSONEq(t, `{"activeNow":3}`, w.Body.String())
}

func TestGetSessions(t *testing.T) {
	svc := &fakeService{}
	w := get(setupRouter(svc), "/api/insights/sessions/device-7", map[string]string{"X-API-KEY": "pk_live"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "device-7", svc.gotID)
	assert.JSONEq(t, `{"identifyId":"device-7","sessions":[]}`, w.Body.String())
}

func TestGetNewJoiners(t *testing.T) {
	w := get(setupRouter(&fakeService{}), "/api/insights/new-joiners", map[string]string{"X-API-KEY": "pk_live"})

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["today"], 1)
	assert.Empty(t, body["lastWeek"])
	assert.Contains(t, body, "lastMonth")
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"invalid key", tenant.ErrInvalidAPIKey, http.StatusUnauthorized},
		{"wrapped invalid key", fmt.Errorf("%w: lookup failed", tenant.ErrInvalidAPIKey), http.StatusUnauthorized},
		{"not found", fmt.Errorf("%w: identity x", insights.ErrNotFound), http.StatusNotFound},
		{"aggregation", fmt.Errorf("%w: overview: timeout", insights.ErrAggregationFailed), http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(setupRouter(&fakeService{err: tt.err}), "/api/insights/sessions/x", nil)
			assert.Equal(t, tt.code, w.Code)
			assert.NotContains(t, w.Body.String(), "timeout")
		})
	}
}

func TestDailyErrorsFailureIsGeneric(t *testing.T) {
	w := get(setupRouter(&fakeService{err: fmt.Errorf("%w: daily_errors: clickhouse down", insights.ErrAggregationFailed)}), "/api/insights/errors/daily", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to compute insights"}`, w.Body.String())
}

func TestHealth(t *testing.T) {
	w := get(setupRouter(&fakeService{}), "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
