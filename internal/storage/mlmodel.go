package storage

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

// The trained anomaly model lives in a single row with id 1; saving always
// replaces the previous snapshot.
const mlModelRowID = 1

// SaveModelBlob stores the serialized model, base64-encoded.
func (g *Gateway) SaveModelBlob(ctx context.Context, blob []byte) error {
	encoded := base64.StdEncoding.EncodeToString(blob)
	_, err := g.execute("upsert", "ml_model", func() (interface{}, error) {
		return g.db.ExecContext(ctx, `
			INSERT INTO ml_model (id, model_data, trained_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET model_data = EXCLUDED.model_data, trained_at = EXCLUDED.trained_at`,
			mlModelRowID, encoded, time.Now().UTC())
	})
	if err != nil {
		return fmt.Errorf("save model blob: %w", err)
	}
	return nil
}

// LoadModelBlob returns the stored model bytes and training time, or
// ErrNotFound when no model has been trained yet.
func (g *Gateway) LoadModelBlob(ctx context.Context) ([]byte, time.Time, error) {
	type modelRow struct {
		ModelData string    `db:"model_data"`
		TrainedAt time.Time `db:"trained_at"`
	}
	result, err := g.execute("select", "ml_model", func() (interface{}, error) {
		var row modelRow
		err := g.db.GetContext(ctx, &row,
			"SELECT model_data, trained_at FROM ml_model WHERE id = $1", mlModelRowID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return row, err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, fmt.Errorf("load model blob: %w", err)
	}

	row := result.(modelRow)
	blob, err := base64.StdEncoding.DecodeString(row.ModelData)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("decode model blob: %w", err)
	}
	return blob, row.TrainedAt, nil
}
