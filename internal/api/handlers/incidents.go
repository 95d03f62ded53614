package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/api/middleware"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

// IncidentStore is the incident read/write surface.
type IncidentStore interface {
	ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error)
	GetIncident(ctx context.Context, id string) (*models.Incident, error)
	ResolveIncident(ctx context.Context, id, resolvedBy, notes string) (*models.Incident, bool, error)
	MarkInvestigating(ctx context.Context, id, analyst string) (*models.Incident, error)
	GetReportByIncident(ctx context.Context, incidentID string) (*models.ForensicReport, error)
	Stats(ctx context.Context) (*models.Stats, error)
	AppendAudit(ctx context.Context, actor, action, target, detail string) error
}

// Broadcaster pushes operator-action updates to live subscribers.
type Broadcaster interface {
	Broadcast(messageType string, data interface{})
}

type IncidentHandler struct {
	store  IncidentStore
	hub    Broadcaster
	logger logger.Logger
}

func NewIncidentHandler(store IncidentStore, hub Broadcaster, log logger.Logger) *IncidentHandler {
	return &IncidentHandler{store: store, hub: hub, logger: log}
}

// GET /api/incidents
func (h *IncidentHandler) List(c *gin.Context) {
	limit, err := parseLimit(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	filter := models.IncidentFilter{
		Status:     c.Query("status"),
		ThreatType: models.ThreatType(c.Query("threat_type")),
		Severity:   models.Severity(c.Query("severity")),
		Limit:      limit,
	}

	incidents, err := h.store.ListIncidents(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("incident listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "incident listing failed"})
		return
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}

	c.JSON(http.StatusOK, gin.H{
		"incidents": incidents,
		"summary":   summarize(incidents),
	})
}

// summarize computes the dashboard block over the returned page.
func summarize(incidents []models.Incident) gin.H {
	byStatus := map[string]int{}
	bySeverity := map[models.Severity]int{}
	for i := range incidents {
		byStatus[incidents[i].Status]++
		bySeverity[incidents[i].Severity]++
	}
	return gin.H{
		"total":         len(incidents),
		"active":        byStatus[models.StatusActive],
		"investigating": byStatus[models.StatusInvestigating],
		"resolved":      byStatus[models.StatusResolved],
		"critical":      bySeverity[models.SeverityCritical],
		"high":          bySeverity[models.SeverityHigh],
		"medium":        bySeverity[models.SeverityMedium],
		"low":           bySeverity[models.SeverityLow],
	}
}

// GET /api/incident/:id
func (h *IncidentHandler) Get(c *gin.Context) {
	id := c.Param("id")
	incident, err := h.store.GetIncident(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	if err != nil {
		h.logger.Error("incident lookup failed", "incident_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "incident lookup failed"})
		return
	}

	out := gin.H{"incident": incident}
	if report, err := h.store.GetReportByIncident(c.Request.Context(), id); err == nil {
		out["forensic_report"] = report
	}
	c.JSON(http.StatusOK, out)
}

// POST /api/incident/:id/resolve
func (h *IncidentHandler) Resolve(c *gin.Context) {
	var req models.ResolveIncidentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id := c.Param("id")
	resolvedBy := actorEmail(c)

	incident, changed, err := h.store.ResolveIncident(c.Request.Context(), id, resolvedBy, req.ResolutionNotes)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
		return
	}
	if err != nil {
		h.logger.Error("incident resolution failed", "incident_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "incident resolution failed"})
		return
	}

	resolvedAt := time.Now().UTC()
	if incident.ResolvedAt != nil {
		resolvedAt = *incident.ResolvedAt
	}
	if incident.ResolvedBy != "" {
		resolvedBy = incident.ResolvedBy
	}

	// Re-resolving an already resolved incident is a no-op: no audit entry
	// and no broadcast, only the stored row echoed back.
	if changed {
		if err := h.store.AppendAudit(c.Request.Context(), resolvedBy, "incident_resolved", id, req.ResolutionNotes); err != nil {
			h.logger.Warn("audit append failed", "error", err)
		}
		h.hub.Broadcast(models.WSIncidentResolved, gin.H{
			"incident_id": id,
			"status":      models.StatusResolved,
			"resolved_by": resolvedBy,
			"resolved_at": resolvedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      models.StatusResolved,
		"incident_id": id,
		"resolved_at": resolvedAt.Format(time.RFC3339),
		"resolved_by": resolvedBy,
	})
}

// POST /api/incident/:id/investigate
func (h *IncidentHandler) Investigate(c *gin.Context) {
	id := c.Param("id")
	analyst := actorEmail(c)

	if _, err := h.store.MarkInvestigating(c.Request.Context(), id, analyst); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "incident not found"})
			return
		}
		h.logger.Error("incident investigation update failed", "incident_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "incident update failed"})
		return
	}

	if err := h.store.AppendAudit(c.Request.Context(), analyst, "incident_investigating", id, ""); err != nil {
		h.logger.Warn("audit append failed", "error", err)
	}

	h.hub.Broadcast(models.WSIncidentUpdated, gin.H{
		"incident_id":      id,
		"status":           models.StatusInvestigating,
		"investigating_by": analyst,
	})
	c.JSON(http.StatusOK, gin.H{"status": models.StatusInvestigating, "incident_id": id})
}

// GET /api/incidents/counts and GET /api/stats
func (h *IncidentHandler) Stats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func actorEmail(c *gin.Context) string {
	if user, ok := middleware.CurrentUser(c); ok && user.Email != "" {
		return user.Email
	}
	return "unknown"
}
