package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gitdeploy/internal/domain"
)

// BackupRepository keeps the single backup record in the backups table.
type BackupRepository struct {
	db *sql.DB
}

func NewBackupRepository(db *sql.DB) *BackupRepository {
	return &BackupRepository{db: db}
}

func (r *BackupRepository) Save(ctx context.Context, record domain.BackupRecord) error {
	query := `
	INSERT INTO backups (id, commit_hash, branch, saved_at) VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		commit_hash = excluded.commit_hash,
		branch = excluded.branch,
		saved_at = excluded.saved_at`

	if _, err := r.db.ExecContext(ctx, query, record.CommitHash, record.Branch, record.SavedAt.Unix()); err != nil {
		return fmt.Errorf("failed to save backup: %w", err)
	}
	return nil
}

func (r *BackupRepository) Load(ctx context.Context) (*domain.BackupRecord, error) {
	query := `SELECT commit_hash, branch, saved_at FROM backups WHERE id = 1`

	var (
		rec     domain.BackupRecord
		savedAt int64
	)
	if err := r.db.QueryRowContext(ctx, query).Scan(&rec.CommitHash, &rec.Branch, &savedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load backup: %w", err)
	}

	rec.SavedAt = time.Unix(savedAt, 0)
	return &rec, nil
}

func (r *BackupRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM backups`); err != nil {
		return fmt.Errorf("failed to clear backup: %w", err)
	}
	return nil
}
