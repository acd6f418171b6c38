package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewSqliteDB(filepath.Join(t.TempDir(), "deploy.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBackupRepositoryKeepsSingleRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewBackupRepository(openTestDB(t))

	rec, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)

	first := time.Unix(1_700_000_000, 0)
	require.NoError(t, repo.Save(ctx, domain.BackupRecord{CommitHash: "aaaaaaa", Branch: "main", SavedAt: first}))
	require.NoError(t, repo.Save(ctx, domain.BackupRecord{CommitHash: "bbbbbbb", Branch: "develop", SavedAt: first.Add(time.Hour)}))

	rec, err = repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "bbbbbbb", rec.CommitHash)
	assert.Equal(t, "develop", rec.Branch)
	assert.Equal(t, first.Add(time.Hour).Unix(), rec.SavedAt.Unix())

	require.NoError(t, repo.Clear(ctx))
	rec, err = repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeploymentRepositoryCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewDeploymentRepository(openTestDB(t))
	base := time.Now().Add(-time.Hour)

	older := &domain.DeploymentRecord{
		Action:    domain.ActionPull,
		Source:    domain.SourceWebhook,
		Success:   true,
		StartedAt: base,
		Duration:  domain.Elapsed(2 * time.Second),
		Result:    json.RawMessage(`{"action":"pull"}`),
	}
	newer := &domain.DeploymentRecord{
		Action:    domain.ActionReset,
		Source:    domain.SourceAPI,
		Success:   false,
		StartedAt: base.Add(time.Minute),
		Error:     "git error",
	}

	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	assert.NotEqual(t, uuid.Nil, older.ID)

	records, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, newer.ID, records[0].ID)
	assert.Equal(t, "git error", records[0].Error)
	assert.Nil(t, records[0].Result)
	assert.Equal(t, older.ID, records[1].ID)
	assert.JSONEq(t, `{"action":"pull"}`, string(records[1].Result))
	assert.Equal(t, 2.0, records[1].Duration.Seconds())

	got, err := repo.GetByID(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWebhook, got.Source)
	assert.True(t, got.Success)
}

func TestDeploymentRepositoryGetByIDNotFound(t *testing.T) {
	repo := NewDeploymentRepository(openTestDB(t))

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.True(t, errors.Is(err, domain.ErrDeploymentNotFound))
}
