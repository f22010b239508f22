// Package store provides the SQLite-backed plugin.Store used for the
// anomaly audit log and baseline checkpoints.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/HerbHall/driftwatch/pkg/plugin"
	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrSchemaAhead is returned when the database on disk was written by a
// newer driftwatch build than the one currently running.
var ErrSchemaAhead = errors.New("database schema is ahead of this binary")

var _ plugin.Store = (*SQLite)(nil)

// SQLite implements plugin.Store on top of modernc.org/sqlite.
type SQLite struct {
	db        *sql.DB
	migrateMu sync.Mutex // one migrator at a time
	trackInit sync.Once  // _migrations table creation
}

// Open opens or creates the database at path and applies the pragmas the
// detector workload needs: WAL for concurrent readers, a busy timeout so
// short write contention retries instead of failing, and foreign keys on.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// A single write connection avoids SQLITE_BUSY under write load.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite takes pragmas as statements, not DSN parameters.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA cache_size=-20000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return &SQLite{db: db}, nil
}

// DB exposes the underlying *sql.DB for plugin queries.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Tx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *SQLite) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Migrate applies the plugin's pending migrations in order. Applied
// migrations are recorded in the shared _migrations table keyed by
// (plugin, version) and never re-run.
func (s *SQLite) Migrate(ctx context.Context, pluginName string, migrations []plugin.Migration) error {
	if err := s.ensureTrackingTable(ctx); err != nil {
		return err
	}

	s.migrateMu.Lock()
	defer s.migrateMu.Unlock()

	for _, m := range migrations {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM _migrations WHERE plugin_name = ? AND version = ?",
			pluginName, m.Version,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("check migration %s/%d: %w", pluginName, m.Version, err)
		}
		if n > 0 {
			continue
		}

		err = s.Tx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO _migrations (plugin_name, version, description) VALUES (?, ?, ?)",
				pluginName, m.Version, m.Description,
			)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", pluginName, m.Version, m.Description, err)
		}
	}

	return nil
}

// CheckVersion refuses to open a database written by a newer binary and
// records the running version otherwise. The version "dev" bypasses the
// comparison in either direction.
func (s *SQLite) CheckVersion(ctx context.Context, current string) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version  TEXT     NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema meta table: %w", err)
	}

	var stored string
	err = s.db.QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1",
	).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)",
			current,
		)
		if err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("query schema version: %w", err)
	}

	if stored != "dev" && current != "dev" &&
		semver.Compare(semverize(current), semverize(stored)) < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrSchemaAhead, stored, current)
	}

	if stored != current {
		_, err = s.db.ExecContext(ctx,
			"UPDATE _schema_meta SET app_version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1",
			current,
		)
		if err != nil {
			return fmt.Errorf("update schema version: %w", err)
		}
	}

	return nil
}

func (s *SQLite) ensureTrackingTable(ctx context.Context) error {
	var err error
	s.trackInit.Do(func() {
		_, err = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS _migrations (
				plugin_name TEXT    NOT NULL,
				version     INTEGER NOT NULL,
				description TEXT    NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (plugin_name, version)
			)
		`)
	})
	return err
}

// semverize prefixes "v" so golang.org/x/mod/semver accepts plain versions.
func semverize(v string) string {
	if v != "" && v[0] != 'v' {
		return "v" + v
	}
	return v
}
