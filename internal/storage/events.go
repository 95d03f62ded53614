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

type eventRow struct {
	ID           string          `db:"id"`
	Timestamp    time.Time       `db:"timestamp"`
	Type         string          `db:"type"`
	SourceIP     string          `db:"source_ip"`
	Severity     string          `db:"severity"`
	Details      json.RawMessage `db:"details"`
	AnomalyScore float64         `db:"anomaly_score"`
	MLFlagged    bool            `db:"ml_flagged"`
}

func (r eventRow) toModel() (models.Event, error) {
	ev := models.Event{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		Type:         r.Type,
		SourceIP:     r.SourceIP,
		Severity:     models.Severity(r.Severity),
		AnomalyScore: r.AnomalyScore,
		MLFlagged:    r.MLFlagged,
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &ev.Details); err != nil {
			return ev, fmt.Errorf("decode event details: %w", err)
		}
	}
	return ev, nil
}

// InsertEvent persists one event. Details are stored as JSONB.
func (g *Gateway) InsertEvent(ctx context.Context, ev *models.Event) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return fmt.Errorf("encode event details: %w", err)
	}

	_, err = g.execute("insert", "events", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO events (id, timestamp, type, source_ip, severity, details, anomaly_score, ml_flagged)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ev.ID, ev.Timestamp, ev.Type, ev.SourceIP, string(ev.Severity),
			details, ev.AnomalyScore, ev.MLFlagged)
	})
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// GetEvent fetches a single event by id.
func (g *Gateway) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	result, err := g.execute("select", "events", func() (interface{}, error) {
		var row eventRow
		err := g.db.GetContext(ctx, &row, `
			SELECT id, timestamp, type, source_ip, severity, details, anomaly_score, ml_flagged
			FROM events WHERE id = $1`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	ev, err := result.(eventRow).toModel()
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// ListEvents returns events newest-first, narrowed by the filter.
func (g *Gateway) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT id, timestamp, type, source_ip, severity, details, anomaly_score, ml_flagged FROM events`)

	var clauses []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Type != "" {
		clauses = append(clauses, "type = "+arg(filter.Type))
	}
	if filter.SourceIP != "" {
		clauses = append(clauses, "source_ip = "+arg(filter.SourceIP))
	}
	if filter.Severity != "" {
		clauses = append(clauses, "severity = "+arg(string(filter.Severity)))
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "timestamp >= "+arg(filter.Since))
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "timestamp <= "+arg(filter.Until))
	}
	if filter.Flagged != nil {
		clauses = append(clauses, "ml_flagged = "+arg(*filter.Flagged))
	}
	if len(clauses) > 0 {
		query.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	query.WriteString(" ORDER BY timestamp DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query.WriteString(" LIMIT " + arg(limit))
	if filter.Offset > 0 {
		query.WriteString(" OFFSET " + arg(filter.Offset))
	}

	result, err := g.execute("select", "events", func() (interface{}, error) {
		var rows []eventRow
		err := g.db.SelectContext(ctx, &rows, query.String(), args...)
		return rows, err
	})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	rows := result.([]eventRow)
	events := make([]models.Event, 0, len(rows))
	for _, r := range rows {
		ev, err := r.toModel()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (g *Gateway) countEvents(ctx context.Context, where string, args ...interface{}) (int, error) {
	query := "SELECT COUNT(*) FROM events"
	if where != "" {
		query += " WHERE " + where
	}
	result, err := g.execute("count", "events", func() (interface{}, error) {
		var n int
		err := g.db.GetContext(ctx, &n, query, args...)
		return n, err
	})
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return result.(int), nil
}

// CountEvents returns the total number of stored events.
func (g *Gateway) CountEvents(ctx context.Context) (int, error) {
	return g.countEvents(ctx, "")
}

// CountEventsWithType counts events of one kind.
func (g *Gateway) CountEventsWithType(ctx context.Context, eventType string) (int, error) {
	return g.countEvents(ctx, "type = $1", eventType)
}

// CountEventsWithSource counts events originating from one IP.
func (g *Gateway) CountEventsWithSource(ctx context.Context, sourceIP string) (int, error) {
	return g.countEvents(ctx, "source_ip = $1", sourceIP)
}

// CountEventsSince counts events from one IP at or after the cutoff.
func (g *Gateway) CountEventsSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	return g.countEvents(ctx, "source_ip = $1 AND timestamp >= $2", sourceIP, since)
}
