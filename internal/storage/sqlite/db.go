// Package sqlite
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"gitdeploy/internal/logger"

	_ "github.com/mattn/go-sqlite3"
)

func NewSqliteDB(dbPath string, log logger.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database not responding: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info("sqlite connection established successfully", "path", dbPath)

	if err := runMigration(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func runMigration(db *sql.DB) error {
	migrations := []struct {
		table string
		query string
	}{
		{
			table: "backups",
			query: `
			CREATE TABLE IF NOT EXISTS backups (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				commit_hash TEXT NOT NULL,
				branch TEXT NOT NULL,
				saved_at INTEGER NOT NULL
			);`,
		},
		{
			table: "deployments",
			query: `
			CREATE TABLE IF NOT EXISTS deployments (
				id TEXT PRIMARY KEY,
				action TEXT NOT NULL,
				source TEXT NOT NULL,
				success INTEGER NOT NULL,
				commit_before TEXT NOT NULL DEFAULT '',
				commit_after TEXT NOT NULL DEFAULT '',
				started_at INTEGER NOT NULL,
				duration_ns INTEGER NOT NULL,
				error TEXT NOT NULL DEFAULT '',
				result TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_deployments_started_at ON deployments (started_at DESC);`,
		},
	}

	for _, m := range migrations {
		if _, err := db.Exec(m.query); err != nil {
			return fmt.Errorf("failed to migrate %s table: %w", m.table, err)
		}
	}

	return nil
}
