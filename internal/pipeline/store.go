package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/HerbHall/driftwatch/pkg/stream"
)

// PipelineStore provides database access for the pipeline plugin.
type PipelineStore struct {
	db *sql.DB
}

// NewPipelineStore creates a PipelineStore backed by the given database.
func NewPipelineStore(db *sql.DB) *PipelineStore {
	return &PipelineStore{db: db}
}

// InsertAnomaly appends a record to the anomaly audit log.
func (s *PipelineStore) InsertAnomaly(ctx context.Context, a *stream.AnomalyRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_anomalies (
			id, sample_index, value, expected, z_score, severity, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Index, a.Value, a.Expected, a.ZScore, a.Severity, a.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// ListAnomalies returns the most recent anomalies, newest first.
func (s *PipelineStore) ListAnomalies(ctx context.Context, limit int) ([]stream.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sample_index, value, expected, z_score, severity, detected_at
		FROM stream_anomalies ORDER BY detected_at DESC, sample_index DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var records []stream.AnomalyRecord
	for rows.Next() {
		var a stream.AnomalyRecord
		if err := rows.Scan(
			&a.ID, &a.Index, &a.Value, &a.Expected, &a.ZScore, &a.Severity, &a.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("scan anomaly row: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// UpsertBaseline checkpoints the running baseline. A single row, replaced
// on every call.
func (s *PipelineStore) UpsertBaseline(ctx context.Context, b stream.BaselineSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO stream_baseline (id, ema, std_dev, samples, updated_at)
		VALUES (1, ?, ?, ?, ?)`,
		b.EMA, b.StdDev, b.Samples, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert baseline: %w", err)
	}
	return nil
}

// GetBaseline returns the last checkpointed baseline, or nil when none has
// been written yet.
func (s *PipelineStore) GetBaseline(ctx context.Context) (*stream.BaselineSnapshot, error) {
	var b stream.BaselineSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT ema, std_dev, samples, updated_at FROM stream_baseline WHERE id = 1`,
	).Scan(&b.EMA, &b.StdDev, &b.Samples, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get baseline: %w", err)
	}
	return &b, nil
}

// DeleteOldAnomalies removes audit records detected before the cutoff.
// Returns the number of rows deleted.
func (s *PipelineStore) DeleteOldAnomalies(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM stream_anomalies WHERE detected_at < ?`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("delete old anomalies: %w", err)
	}
	return result.RowsAffected()
}
