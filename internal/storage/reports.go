package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/arc-sentinel/sentinel-core/internal/models"
)

type reportRow struct {
	ID            string          `db:"id"`
	IncidentID    string          `db:"incident_id"`
	ForensicData  json.RawMessage `db:"forensic_data"`
	GeminiSummary string          `db:"gemini_summary"`
	CreatedAt     time.Time       `db:"created_at"`
}

func (r reportRow) toModel() (models.ForensicReport, error) {
	rep := models.ForensicReport{
		ID:            r.ID,
		IncidentID:    r.IncidentID,
		GeminiSummary: r.GeminiSummary,
		CreatedAt:     r.CreatedAt,
	}
	if len(r.ForensicData) > 0 {
		if err := json.Unmarshal(r.ForensicData, &rep.Snapshot); err != nil {
			return rep, fmt.Errorf("decode forensic data: %w", err)
		}
	}
	return rep, nil
}

// InsertReport persists a forensic report.
func (g *Gateway) InsertReport(ctx context.Context, rep *models.ForensicReport) error {
	data, err := json.Marshal(rep.Snapshot)
	if err != nil {
		return fmt.Errorf("encode forensic data: %w", err)
	}

	_, err = g.execute("insert", "forensic_reports", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO forensic_reports (id, incident_id, forensic_data, gemini_summary, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rep.ID, rep.IncidentID, data, rep.GeminiSummary, rep.CreatedAt)
	})
	if err != nil {
		return fmt.Errorf("insert report %s: %w", rep.ID, err)
	}
	return nil
}

// GetReportByIncident fetches the newest report attached to an incident.
func (g *Gateway) GetReportByIncident(ctx context.Context, incidentID string) (*models.ForensicReport, error) {
	result, err := g.execute("select", "forensic_reports", func() (interface{}, error) {
		var row reportRow
		err := g.db.GetContext(ctx, &row, `
			SELECT id, incident_id, forensic_data, gemini_summary, created_at
			FROM forensic_reports WHERE incident_id = $1
			ORDER BY created_at DESC LIMIT 1`, incidentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get report for incident %s: %w", incidentID, err)
	}
	rep, err := result.(reportRow).toModel()
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// ListReports returns reports newest-first.
func (g *Gateway) ListReports(ctx context.Context, limit int) ([]models.ForensicReport, error) {
	if limit <= 0 {
		limit = 50
	}
	result, err := g.execute("select", "forensic_reports", func() (interface{}, error) {
		var rows []reportRow
		err := g.db.SelectContext(ctx, &rows, `
			SELECT id, incident_id, forensic_data, gemini_summary, created_at
			FROM forensic_reports ORDER BY created_at DESC LIMIT $1`, limit)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	rows := result.([]reportRow)
	reports := make([]models.ForensicReport, 0, len(rows))
	for _, r := range rows {
		rep, err := r.toModel()
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// SetReportSummary attaches an LLM summary to an existing report.
func (g *Gateway) SetReportSummary(ctx context.Context, reportID, summary string) error {
	_, err := g.execute("update", "forensic_reports", func() (interface{}, error) {
		return g.db.ExecContext(ctx,
			`UPDATE forensic_reports SET gemini_summary = $2 WHERE id = $1`, reportID, summary)
	})
	if err != nil {
		return fmt.Errorf("set report summary %s: %w", reportID, err)
	}
	return nil
}
