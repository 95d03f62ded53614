package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

var errBadLimit = errors.New("limit out of range")

// EventStore is the event read surface.
type EventStore interface {
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

type EventHandler struct {
	store  EventStore
	logger logger.Logger
}

func NewEventHandler(store EventStore, log logger.Logger) *EventHandler {
	return &EventHandler{store: store, logger: log}
}

// GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	limit, err := parseLimit(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
		return
	}

	filter := models.EventFilter{
		Type:     c.Query("type"),
		SourceIP: c.Query("source_ip"),
		Severity: models.Severity(c.Query("severity")),
		Limit:    limit,
	}
	if s := c.Query("start_date"); s != "" {
		if since, err := parseTimestamp(s); err == nil {
			filter.Since = since
		}
	}
	if s := c.Query("end_date"); s != "" {
		if until, err := parseTimestamp(s); err == nil {
			filter.Until = until
		}
	}
	if s := c.Query("flagged"); s != "" {
		if flagged, err := strconv.ParseBool(s); err == nil {
			filter.Flagged = &flagged
		}
	}

	events, err := h.store.ListEvents(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("event listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event listing failed"})
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func parseLimit(raw string) (int, error) {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		return 0, errBadLimit
	}
	return limit, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
