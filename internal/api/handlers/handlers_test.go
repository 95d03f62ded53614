package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arc-sentinel/sentinel-core/internal/api/middleware"
	"github.com/arc-sentinel/sentinel-core/internal/models"
	"github.com/arc-sentinel/sentinel-core/internal/storage"
	"github.com/arc-sentinel/sentinel-core/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLog() logger.Logger { return logger.New("error") }

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// asUser installs an authenticated user into the request context, standing in
// for the auth middleware.
func asUser(email string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.AuthUser{ID: "u-1", Email: email, Role: "analyst"})
		c.Next()
	}
}

// recordingHub collects broadcast message types and payloads in order.
type recordingHub struct {
	types    []string
	payloads []interface{}
}

func (h *recordingHub) Broadcast(messageType string, data interface{}) {
	h.types = append(h.types, messageType)
	h.payloads = append(h.payloads, data)
}

// memoryIncidentStore backs the incident handler tests.
type memoryIncidentStore struct {
	incidents map[string]*models.Incident
	reports   map[string]*models.ForensicReport
	audits    []string
	listErr   error
}

func newMemoryIncidentStore() *memoryIncidentStore {
	return &memoryIncidentStore{
		incidents: map[string]*models.Incident{},
		reports:   map[string]*models.ForensicReport{},
	}
}

func (s *memoryIncidentStore) add(inc models.Incident) {
	s.incidents[inc.ID] = &inc
}

func (s *memoryIncidentStore) ListIncidents(_ context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []models.Incident
	for _, inc := range s.incidents {
		if filter.Status != "" && inc.Status != filter.Status {
			continue
		}
		out = append(out, *inc)
	}
	return out, nil
}

func (s *memoryIncidentStore) GetIncident(_ context.Context, id string) (*models.Incident, error) {
	inc, ok := s.incidents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return inc, nil
}

func (s *memoryIncidentStore) ResolveIncident(_ context.Context, id, resolvedBy, notes string) (*models.Incident, bool, error) {
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, storage.ErrNotFound
	}
	if inc.Status == models.StatusResolved {
		return inc, false, nil
	}
	now := time.Now().UTC()
	inc.Status = models.StatusResolved
	inc.ResolvedBy = resolvedBy
	inc.ResolutionNotes = notes
	inc.ResolvedAt = &now
	return inc, true, nil
}

func (s *memoryIncidentStore) MarkInvestigating(_ context.Context, id, analyst string) (*models.Incident, error) {
	inc, ok := s.incidents[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	inc.Status = models.StatusInvestigating
	inc.InvestigatingBy = analyst
	return inc, nil
}

func (s *memoryIncidentStore) GetReportByIncident(_ context.Context, incidentID string) (*models.ForensicReport, error) {
	report, ok := s.reports[incidentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return report, nil
}

func (s *memoryIncidentStore) Stats(_ context.Context) (*models.Stats, error) {
	return &models.Stats{TotalEvents: 42, TotalIncidents: int64(len(s.incidents))}, nil
}

func (s *memoryIncidentStore) AppendAudit(_ context.Context, actor, action, target, detail string) error {
	s.audits = append(s.audits, action+":"+target)
	return nil
}
