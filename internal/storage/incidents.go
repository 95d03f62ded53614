package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

type incidentRow struct {
	ID                     string          `db:"id"`
	ThreatType             string          `db:"threat_type"`
	Status                 string          `db:"status"`
	Severity               string          `db:"severity"`
	Description            string          `db:"description"`
	Confidence             float64         `db:"confidence"`
	Indicators             json.RawMessage `db:"indicators"`
	EventID                string          `db:"event_id"`
	SourceIP               string          `db:"source_ip"`
	AnomalyScore           float64         `db:"anomaly_score"`
	MLFlagged              bool            `db:"ml_flagged"`
	CreatedAt              time.Time       `db:"created_at"`
	UpdatedAt              time.Time       `db:"updated_at"`
	ResolvedAt             *time.Time      `db:"resolved_at"`
	ResolvedBy             string          `db:"resolved_by"`
	ResolutionNotes        string          `db:"resolution_notes"`
	InvestigatingBy        string          `db:"investigating_by"`
	InvestigationStartedAt *time.Time      `db:"investigation_started_at"`
}

const incidentColumns = `id, threat_type, status, severity, description, confidence, indicators,
	event_id, source_ip, anomaly_score, ml_flagged, created_at, updated_at,
	resolved_at, resolved_by, resolution_notes, investigating_by, investigation_started_at`

func (r incidentRow) toModel() (models.Incident, error) {
	inc := models.Incident{
		ID:                     r.ID,
		ThreatType:             models.ThreatType(r.ThreatType),
		Status:                 r.Status,
		Severity:               models.Severity(r.Severity),
		Description:            r.Description,
		Confidence:             r.Confidence,
		EventID:                r.EventID,
		SourceIP:               r.SourceIP,
		AnomalyScore:           r.AnomalyScore,
		MLFlagged:              r.MLFlagged,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
		ResolvedAt:             r.ResolvedAt,
		ResolvedBy:             r.ResolvedBy,
		ResolutionNotes:        r.ResolutionNotes,
		InvestigatingBy:        r.InvestigatingBy,
		InvestigationStartedAt: r.InvestigationStartedAt,
	}
	if len(r.Indicators) > 0 {
		if err := json.Unmarshal(r.Indicators, &inc.Indicators); err != nil {
			return inc, fmt.Errorf("decode incident indicators: %w", err)
		}
	}
	return inc, nil
}

// InsertIncident persists a newly materialized incident.
func (g *Gateway) InsertIncident(ctx context.Context, inc *models.Incident) error {
	indicators, err := json.Marshal(inc.Indicators)
	if err != nil {
		return fmt.Errorf("encode incident indicators: %w", err)
	}
	if inc.Indicators == nil {
		indicators = []byte("[]")
	}

	_, err = g.execute("insert", "incidents", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO incidents (id, threat_type, status, severity, description, confidence,
				indicators, event_id, source_ip, anomaly_score, ml_flagged, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			inc.ID, string(inc.ThreatType), inc.Status, string(inc.Severity), inc.Description,
			inc.Confidence, indicators, inc.EventID, inc.SourceIP, inc.AnomalyScore,
			inc.MLFlagged, inc.CreatedAt, inc.UpdatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}
	return nil
}

// GetIncident fetches one incident by id.
func (g *Gateway) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	result, err := g.execute("select", "incidents", func() (interface{}, error) {
		var row incidentRow
		err := g.db.GetContext(ctx, &row,
			"SELECT "+incidentColumns+" FROM incidents WHERE id = $1", id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incident %s: %w", id, err)
	}
	inc, err := result.(incidentRow).toModel()
	if err != nil {
		return nil, err
	}
	return &inc, nil
}

// ListIncidents returns incidents newest-first, narrowed by the filter.
func (g *Gateway) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]models.Incident, error) {
	query := strings.Builder{}
	query.WriteString("SELECT " + incidentColumns + " FROM incidents")

	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		clauses = append(clauses, "status = "+arg(filter.Status))
	}
	if filter.ThreatType != "" {
		clauses = append(clauses, "threat_type = "+arg(string(filter.ThreatType)))
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = "+arg(string(filter.Severity)))
	}
	if len(clauses) > 0 {
		query.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	query.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query.WriteString(" LIMIT " + arg(limit))
	if filter.Offset > 0 {
		query.WriteString(" OFFSET " + arg(filter.Offset))
	}

	result, err := g.execute("select", "incidents", func() (interface{}, error) {
		var rows []incidentRow
		err := g.db.SelectContext(ctx, &rows, query.String(), args...)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}

	rows := result.([]incidentRow)
	incidents := make([]models.Incident, 0, len(rows))
	for _, r := range rows {
		inc, err := r.toModel()
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}

// ResolveIncident marks an incident resolved. Resolving an already resolved
// incident is a no-op that returns the stored row unchanged, so retries are
// safe and the original resolver is never overwritten. The bool reports
// whether this call actually transitioned the incident.
func (g *Gateway) ResolveIncident(ctx context.Context, id, resolvedBy, notes string) (*models.Incident, bool, error) {
	result, err := g.execute("update", "incidents", func() (interface{}, error) {
		res, err := g.db.ExecContext(ctx, `
			UPDATE incidents
			SET status = $2, resolved_at = $3, resolved_by = $4, resolution_notes = $5, updated_at = $3
			WHERE id = $1 AND status <> $2`,
			id, models.StatusResolved, time.Now().UTC(), resolvedBy, notes)
		if err != nil {
			return nil, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return nil, false, fmt.Errorf("resolve incident %s: %w", id, err)
	}
	incident, err := g.GetIncident(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return incident, result.(int64) > 0, nil
}

// MarkInvestigating transitions an active incident to investigating.
func (g *Gateway) MarkInvestigating(ctx context.Context, id, analyst string) (*models.Incident, error) {
	_, err := g.execute("update", "incidents", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			UPDATE incidents
			SET status = $2, investigating_by = $3, investigation_started_at = $4, updated_at = $4
			WHERE id = $1 AND status = $5`,
			id, models.StatusInvestigating, analyst, time.Now().UTC(), models.StatusActive)
	})
	if err != nil {
		return nil, fmt.Errorf("mark incident %s investigating: %w", id, err)
	}
	return g.GetIncident(ctx, id)
}

// CountIncidentsByStatus returns a status -> count mapping.
func (g *Gateway) CountIncidentsByStatus(ctx context.Context) (map[string]int64, error) {
	result, err := g.execute("count", "incidents", func() (interface{}, error) {
		var rows []struct {
			Status string `db:"status"`
			N      int64  `db:"n"`
		}
		err := g.db.SelectContext(ctx, &rows,
			"SELECT status, COUNT(*) AS n FROM incidents GROUP BY status")
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("count incidents by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, r := range result.([]struct {
		Status string `db:"status"`
		N      int64  `db:"n"`
	}) {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// Stats aggregates the dashboard counters in one round trip each.
func (g *Gateway) Stats(ctx context.Context) (*models.Stats, error) {
	result, err := g.execute("count", "stats", func() (interface{}, error) {
		var s models.Stats
		err := g.db.GetContext(ctx, &s, `
			SELECT
				(SELECT COUNT(*) FROM events)                                   AS total_events,
				(SELECT COUNT(*) FROM incidents)                                AS total_incidents,
				(SELECT COUNT(*) FROM incidents WHERE status <> 'resolved')     AS active_incidents,
				(SELECT COUNT(*) FROM events WHERE ml_flagged)                  AS ml_flagged`)
		return &s, err
	})
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	return result.(*models.Stats), nil
}
