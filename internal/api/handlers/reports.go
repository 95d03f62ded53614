package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// ReportStore reads forensic reports captured at incident creation.
type ReportStore interface {
	ListReports(ctx context.Context, limit int) ([]models.ForensicReport, error)
	GetReportByIncident(ctx context.Context, incidentID string) (*models.ForensicReport, error)
}

type ReportHandler struct {
	store  ReportStore
	logger logger.Logger
}

func NewReportHandler(store ReportStore, log logger.Logger) *ReportHandler {
	return &ReportHandler{store: store, logger: log}
}

// GET /api/reports
func (h *ReportHandler) List(c *gin.Context) {
	limit, err := parseLimit(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	reports, err := h.store.ListReports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("report listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report listing failed"})
		return
	}
	if reports == nil {
		reports = []models.ForensicReport{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports, "count": len(reports)})
}

// GET /api/report/:incident_id
func (h *ReportHandler) GetByIncident(c *gin.Context) {
	incidentID := c.Param("incident_id")
	report, err := h.store.GetReportByIncident(c.Request.Context(), incidentID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no forensic report for incident"})
		return
	}
	if err != nil {
		h.logger.Error("report lookup failed", "incident_id", incidentID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report lookup failed"})
		return
	}
	c.JSON(http.StatusOK, report)
}
