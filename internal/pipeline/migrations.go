package pipeline

import (
	"database/sql"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

// migrations returns the pipeline module's database migrations.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create stream tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS stream_anomalies (
						id           TEXT PRIMARY KEY,
						sample_index INTEGER NOT NULL,
						value        REAL NOT NULL,
						expected     REAL NOT NULL,
						z_score      REAL NOT NULL,
						severity     TEXT NOT NULL DEFAULT 'warning',
						detected_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
					`CREATE INDEX IF NOT EXISTS idx_stream_anomalies_detected ON stream_anomalies(detected_at)`,
					`CREATE INDEX IF NOT EXISTS idx_stream_anomalies_index ON stream_anomalies(sample_index)`,

					`CREATE TABLE IF NOT EXISTS stream_baseline (
						id         INTEGER PRIMARY KEY CHECK (id = 1),
						ema        REAL NOT NULL DEFAULT 0,
						std_dev    REAL NOT NULL DEFAULT 0,
						samples    INTEGER NOT NULL DEFAULT 0,
						updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
					)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
