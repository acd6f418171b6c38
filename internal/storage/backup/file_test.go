package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), ".git-deploy-backup"), time.UTC, logger.Discard())
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	savedAt := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, domain.BackupRecord{
		CommitHash: "abc1234",
		Branch:     "main",
		SavedAt:    savedAt,
	}))

	rec, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "abc1234", rec.CommitHash)
	assert.Equal(t, "main", rec.Branch)
	assert.True(t, savedAt.Equal(rec.SavedAt))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "2024-03-01 12:30:00", raw["timestamp"])
	assert.EqualValues(t, savedAt.Unix(), raw["saved_at"])
}

func TestFileStoreLoadMissing(t *testing.T) {
	rec, err := newStore(t).Load(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	store := newStore(t)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0o644))

	rec, err := store.Load(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestFileStoreClear(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Save(ctx, domain.BackupRecord{CommitHash: "abc1234", Branch: "main", SavedAt: time.Now()}))
	require.NoError(t, store.Clear(ctx))

	_, err := os.Stat(store.Path())
	assert.True(t, os.IsNotExist(err))
}
