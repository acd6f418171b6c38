package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gitdeploy/internal/domain"

	"github.com/google/uuid"
)

const maxHistoryLimit = 500

type DeploymentRepository struct {
	db *sql.DB
}

func NewDeploymentRepository(db *sql.DB) domain.DeploymentRepository {
	return &DeploymentRepository{db: db}
}

func (r *DeploymentRepository) Create(ctx context.Context, record *domain.DeploymentRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	query := `
	INSERT INTO deployments (id, action, source, success, commit_before, commit_after, started_at, duration_ns, error, result)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var result any
	if len(record.Result) > 0 {
		result = string(record.Result)
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID.String(),
		record.Action,
		record.Source,
		record.Success,
		record.CommitBefore,
		record.CommitAfter,
		record.StartedAt.UnixNano(),
		int64(record.Duration),
		record.Error,
		result,
	)
	if err != nil {
		return fmt.Errorf("failed to insert deployment: %w", err)
	}

	return nil
}

func (r *DeploymentRepository) List(ctx context.Context, limit int) ([]domain.DeploymentRecord, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	query := `
	SELECT id, action, source, success, commit_before, commit_after, started_at, duration_ns, error, result
	FROM deployments
	ORDER BY started_at DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	records := []domain.DeploymentRecord{}
	for rows.Next() {
		rec, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *DeploymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeploymentRecord, error) {
	query := `
	SELECT id, action, source, success, commit_before, commit_after, started_at, duration_ns, error, result
	FROM deployments WHERE id = ?`

	rec, err := scanDeployment(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDeploymentNotFound
		}
		return nil, err
	}

	return rec, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(s scanner) (*domain.DeploymentRecord, error) {
	var (
		rec       domain.DeploymentRecord
		id        string
		startedAt int64
		duration  int64
		result    sql.NullString
	)

	err := s.Scan(
		&id,
		&rec.Action,
		&rec.Source,
		&rec.Success,
		&rec.CommitBefore,
		&rec.CommitAfter,
		&startedAt,
		&duration,
		&rec.Error,
		&result,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid deployment id %q: %w", id, err)
	}

	rec.ID = parsed
	rec.StartedAt = time.Unix(0, startedAt)
	rec.Duration = domain.Elapsed(duration)
	if result.Valid {
		rec.Result = []byte(result.String)
	}

	return &rec, nil
}
