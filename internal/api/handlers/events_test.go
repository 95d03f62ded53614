package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
)

type fakeEventStore struct {
	events     []models.Event
	lastFilter models.EventFilter
	err        error
}

func (s *fakeEventStore) ListEvents(_ context.Context, filter models.EventFilter) ([]models.Event, error) {
	s.lastFilter = filter
	return s.events, s.err
}

func eventRouter(store *fakeEventStore) *gin.Engine {
	h := NewEventHandler(store, testLog())
	r := gin.New()
	r.GET("/api/events", h.List)
	return r
}

func TestEventListDefaults(t *testing.T) {
	store := &fakeEventStore{events: []models.Event{{ID: "e1", Type: models.EventLogin}}}

	w := perform(eventRouter(store), http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultListLimit, store.lastFilter.Limit)

	var body struct {
		Events []models.Event `json:"events"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "e1", body.Events[0].ID)
}

func TestEventListFilters(t *testing.T) {
	store := &fakeEventStore{}

	w := perform(eventRouter(store), http.MethodGet,
		"/api/events?type=login_event&source_ip=10.0.0.5&severity=high&start_date=2026-08-01&end_date=2026-08-15&flagged=true&limit=25", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, models.EventLogin, store.lastFilter.Type)
	assert.Equal(t, "10.0.0.5", store.lastFilter.SourceIP)
	assert.Equal(t, models.SeverityHigh, store.lastFilter.Severity)
	assert.Equal(t, 25, store.lastFilter.Limit)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.Since)
	assert.Equal(t, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC), store.lastFilter.Until)
	require.NotNil(t, store.lastFilter.Flagged)
	assert.True(t, *store.lastFilter.Flagged)
}

func TestEventListDateRange(t *testing.T) {
	store := &fakeEventStore{}

	w := perform(eventRouter(store), http.MethodGet,
		"/api/events?start_date=2026-08-01T00:00:00Z&end_date=2026-08-02T12:30:00Z", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), store.lastFilter.Since)
	assert.Equal(t, time.Date(2026, 8, 2, 12, 30, 0, 0, time.UTC), store.lastFilter.Until)
}

func TestEventListLimitBounds(t *testing.T) {
	for _, raw := range []string{"0", "501", "-1", "abc"} {
		w := perform(eventRouter(&fakeEventStore{}), http.MethodGet, "/api/events?limit="+raw, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", raw)
	}
}

func TestEventListEmptyIsArray(t *testing.T) {
	w := perform(eventRouter(&fakeEventStore{}), http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestEventListStoreError(t *testing.T) {
	w := perform(eventRouter(&fakeEventStore{err: assert.AnError}), http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeReportStore struct {
	reports   []models.ForensicReport
	lastLimit int
}

func (s *fakeReportStore) ListReports(_ context.Context, limit int) ([]models.ForensicReport, error) {
	s.lastLimit = limit
	return s.reports, nil
}

func (s *fakeReportStore) GetReportByIncident(_ context.Context, incidentID string) (*models.ForensicReport, error) {
	for i := range s.reports {
		if s.reports[i].IncidentID == incidentID {
			return &s.reports[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func reportRouter(store *fakeReportStore) *gin.Engine {
	h := NewReportHandler(store, testLog())
	r := gin.New()
	r.GET("/api/reports", h.List)
	r.GET("/api/report/:incident_id", h.GetByIncident)
	return r
}

func TestReportList(t *testing.T) {
	store := &fakeReportStore{reports: []models.ForensicReport{{ID: "rep-1", IncidentID: "inc-1"}}}

	w := perform(reportRouter(store), http.MethodGet, "/api/reports?limit=10", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, store.lastLimit)
	assert.Contains(t, w.Body.String(), `"rep-1"`)
}

func TestReportByIncident(t *testing.T) {
	store := &fakeReportStore{reports: []models.ForensicReport{{ID: "rep-1", IncidentID: "inc-1"}}}

	w := perform(reportRouter(store), http.MethodGet, "/api/report/inc-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report models.ForensicReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, "rep-1", report.ID)
}

func TestReportByIncidentNotFound(t *testing.T) {
	w := perform(reportRouter(&fakeReportStore{}), http.MethodGet, "/api/report/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
