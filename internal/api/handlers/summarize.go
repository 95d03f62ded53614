package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// IncidentSummarizer turns an incident plus its forensic snapshot into an
// analyst-facing narrative.
type IncidentSummarizer interface {
	SummarizeIncident(ctx context.Context, incident *models.Incident, snapshot *models.Snapshot) (string, error)
}

// SummaryStore reads the incident context and persists the generated text.
type SummaryStore interface {
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	GetReportByIncident(ctx context.Context, incidentID string) (*models.ForensicReport, error)
	SetReportSummary(ctx context.Context, reportID, summary string) error
}

type SummaryHandler struct {
	summarizer IncidentSummarizer
	store      SummaryStore
	logger     logger.Logger
}

func NewSummaryHandler(summarizer IncidentSummarizer, store SummaryStore, log logger.Logger) *SummaryHandler {
	return &SummaryHandler{summarizer: summarizer, store: store, logger: log}
}

// POST /api/gemini/summarize/:incident_id
func (h *SummaryHandler) Summarize(c *gin.Context) {
	ctx := c.Request.Context()
	incidentID := c.Param("incident_id")

	incident, err := h.store.GetIncident(ctx, incidentID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	if err != nil {
		h.logger.Error("incident lookup failed", "incident_id", incidentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "incident lookup failed"})
		return
	}

	var snapshot *models.Snapshot
	report, err := h.store.GetReportByIncident(ctx, incidentID)
	if err == nil {
		snapshot = report.Snapshot
	} else if !errors.Is(err, storage.ErrNotFound) {
		h.logger.Warn("report lookup failed", "incident_id", incidentID, "error", err)
	}

	summary, err := h.summarizer.SummarizeIncident(ctx, incident, snapshot)
	if err != nil {
		h.logger.Error("summary generation failed", "incident_id", incidentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary generation failed"})
		return
	}

	if report != nil {
		if err := h.store.SetReportSummary(ctx, report.ID, summary); err != nil {
			h.logger.Warn("summary persistence failed", "report_id", report.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"incident_id":  incidentID,
		"summary":      summary,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}
