package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
)

type fakeSummarizer struct {
	summary     string
	err         error
	gotSnapshot *models.Snapshot
	gotIncident *models.Incident
}

func (s *fakeSummarizer) SummarizeIncident(_ context.Context, incident *models.Incident, snapshot *models.Snapshot) (string, error) {
	s.gotIncident = incident
	s.gotSnapshot = snapshot
	return s.summary, s.err
}

type fakeSummaryStore struct {
	incident     *models.Incident
	report       *models.ForensicReport
	savedSummary string
}

func (s *fakeSummaryStore) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	if s.incident == nil || s.incident.ID != id {
		return nil, storage.ErrNotFound
	}
	return s.incident, nil
}

func (s *fakeSummaryStore) GetReportByIncident(_ context.Context, incidentID string) (*models.ForensicReport, error) {
	if s.report == nil {
		return nil, storage.ErrNotFound
	}
	return s.report, nil
}

func (s *fakeSummaryStore) SetReportSummary(_ context.Context, reportID, summary string) error {
	s.savedSummary = summary
	return nil
}

func summaryRouter(summarizer *fakeSummarizer, store *fakeSummaryStore) *gin.Engine {
	h := NewSummaryHandler(summarizer, store, testLog())
	r := gin.New()
	r.POST("/api/gemini/summarize/:incident_id", h.Summarize)
	return r
}

func TestSummarizeIncident(t *testing.T) {
	snapshot := &models.Snapshot{SnapshotID: "snap-1"}
	store := &fakeSummaryStore{
		incident: &models.Incident{ID: "inc-1", ThreatType: models.ThreatMalware},
		report:   &models.ForensicReport{ID: "rep-1", IncidentID: "inc-1", Snapshot: snapshot},
	}
	summarizer := &fakeSummarizer{summary: "## Executive Summary\nContained."}

	w := perform(summaryRouter(summarizer, store), http.MethodPost, "/api/gemini/summarize/inc-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, snapshot, summarizer.gotSnapshot)
	assert.Equal(t, "inc-1", summarizer.gotIncident.ID)
	assert.Equal(t, summarizer.summary, store.savedSummary)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "inc-1", body["incident_id"])
	assert.Equal(t, summarizer.summary, body["summary"])
	assert.NotEmpty(t, body["generated_at"])
}

func TestSummarizeIncidentNotFound(t *testing.T) {
	w := perform(summaryRouter(&fakeSummarizer{}, &fakeSummaryStore{}), http.MethodPost, "/api/gemini/summarize/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummarizeWithoutReport(t *testing.T) {
	store := &fakeSummaryStore{incident: &models.Incident{ID: "inc-1"}}
	summarizer := &fakeSummarizer{summary: "fallback text"}

	w := perform(summaryRouter(summarizer, store), http.MethodPost, "/api/gemini/summarize/inc-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Nil(t, summarizer.gotSnapshot)
	assert.Empty(t, store.savedSummary)
}
