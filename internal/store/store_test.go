package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/HerbHall/driftwatch/pkg/plugin"
)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	path := filepath.Join(t.TempDir(), "driftwatch.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/dir/driftwatch.db"); err == nil {
		t.Error("expected error for unwritable path, got nil")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	var mode string
	if err := s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want %q", mode, "wal")
	}

	var fk int
	if err := s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestTx_CommitAndRollback(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE probes (id INTEGER PRIMARY KEY, z REAL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO probes (id, z) VALUES (1, 3.7)")
		return err
	})
	if err != nil {
		t.Fatalf("Tx commit: %v", err)
	}

	err = s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO probes (id, z) VALUES (2, 4.1)"); err != nil {
			return err
		}
		return sql.ErrNoRows // force rollback
	})
	if err != sql.ErrNoRows {
		t.Fatalf("expected ErrNoRows out of Tx, got %v", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM probes").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d rows, want 1 (rollback leaked)", count)
	}
}

func TestMigrate_TracksAndSkips(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	runs := 0
	migrations := []plugin.Migration{
		{
			Version:     1,
			Description: "create anomalies table",
			Up: func(tx *sql.Tx) error {
				runs++
				_, err := tx.Exec("CREATE TABLE pipeline_anomalies (id TEXT PRIMARY KEY, z_score REAL)")
				return err
			},
		},
		{
			Version:     2,
			Description: "add severity column",
			Up: func(tx *sql.Tx) error {
				runs++
				_, err := tx.Exec("ALTER TABLE pipeline_anomalies ADD COLUMN severity TEXT")
				return err
			},
		},
	}

	if err := s.Migrate(ctx, "pipeline", migrations); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if runs != 2 {
		t.Fatalf("ran %d migrations, want 2", runs)
	}

	// Second pass is a no-op.
	if err := s.Migrate(ctx, "pipeline", migrations); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if runs != 2 {
		t.Errorf("migrations re-ran: runs=%d, want 2", runs)
	}

	_, err := s.DB().ExecContext(ctx,
		"INSERT INTO pipeline_anomalies (id, z_score, severity) VALUES ('a1', 4.2, 'critical')")
	if err != nil {
		t.Fatalf("insert after migration: %v", err)
	}
}

func TestMigrate_PluginsIsolated(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	mk := func(table string) []plugin.Migration {
		return []plugin.Migration{
			{Version: 1, Description: "create " + table, Up: func(tx *sql.Tx) error {
				_, err := tx.Exec("CREATE TABLE " + table + " (id INTEGER)")
				return err
			}},
		}
	}

	if err := s.Migrate(ctx, "pipeline", mk("pipeline_data")); err != nil {
		t.Fatalf("pipeline Migrate: %v", err)
	}
	if err := s.Migrate(ctx, "alert", mk("alert_data")); err != nil {
		t.Fatalf("alert Migrate: %v", err)
	}

	for _, table := range []string{"pipeline_data", "alert_data"} {
		var name string
		err := s.DB().QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestMigrate_FailureNotRecorded(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	migrations := []plugin.Migration{
		{Version: 1, Description: "create ok", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE ok_table (id INTEGER)")
			return err
		}},
		{Version: 2, Description: "broken", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("NOT VALID SQL")
			return err
		}},
	}

	if err := s.Migrate(ctx, "broken", migrations); err == nil {
		t.Fatal("expected error from broken migration")
	}

	// The first migration commits, the broken one leaves no record.
	var count int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM _migrations WHERE plugin_name = 'broken'").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("got %d recorded migrations, want 1", count)
	}
}

func TestCheckVersion(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	// First run records the version.
	if err := s.CheckVersion(ctx, "0.2.0"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	var stored string
	if err := s.DB().QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored); err != nil {
		t.Fatalf("query stored version: %v", err)
	}
	if stored != "0.2.0" {
		t.Errorf("stored version = %q, want %q", stored, "0.2.0")
	}

	// Same and newer binaries pass, patch included.
	if err := s.CheckVersion(ctx, "0.2.0"); err != nil {
		t.Fatalf("same version: %v", err)
	}
	if err := s.CheckVersion(ctx, "0.2.1"); err != nil {
		t.Fatalf("patch upgrade: %v", err)
	}
	if err := s.CheckVersion(ctx, "0.3.0"); err != nil {
		t.Fatalf("minor upgrade: %v", err)
	}

	// Older binary refuses the newer database.
	err := s.CheckVersion(ctx, "0.2.0")
	if !errors.Is(err, ErrSchemaAhead) {
		t.Errorf("expected ErrSchemaAhead for downgrade, got: %v", err)
	}
}

func TestCheckVersion_DevBypasses(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	if err := s.CheckVersion(ctx, "0.9.0"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := s.CheckVersion(ctx, "dev"); err != nil {
		t.Fatalf("dev against 0.9.0: %v", err)
	}
	if err := s.CheckVersion(ctx, "0.1.0"); err != nil {
		t.Fatalf("anything against dev: %v", err)
	}
}
