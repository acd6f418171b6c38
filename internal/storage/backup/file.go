// Package backup
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const timestampLayout = "2006-01-02 15:04:05"

// fileRecord is the on-disk layout of the backup file.
type fileRecord struct {
	Commit    string `json:"commit"`
	Branch    string `json:"branch"`
	Timestamp string `json:"timestamp"`
	SavedAt   int64  `json:"saved_at"`
}

type FileStore struct {
	path     string
	location *time.Location
	log      logger.Logger
}

func NewFileStore(path string, location *time.Location, log logger.Logger) *FileStore {
	if location == nil {
		location = time.UTC
	}
	return &FileStore{path: path, location: location, log: log}
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(_ context.Context, record domain.BackupRecord) error {
	data, err := json.MarshalIndent(fileRecord{
		Commit:    record.CommitHash,
		Branch:    record.Branch,
		Timestamp: record.SavedAt.In(s.location).Format(timestampLayout),
		SavedAt:   record.SavedAt.Unix(),
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".git-deploy-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write backup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace backup file: %w", err)
	}

	return nil
}

// Load returns nil when the file is missing or cannot be parsed.
func (s *FileStore) Load(_ context.Context) (*domain.BackupRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn("ignoring unreadable backup file", "path", s.path, "error", err)
		return nil, nil
	}

	if rec.Commit == "" || rec.SavedAt == 0 {
		s.log.Warn("ignoring incomplete backup file", "path", s.path)
		return nil, nil
	}

	return &domain.BackupRecord{
		CommitHash: rec.Commit,
		Branch:     rec.Branch,
		SavedAt:    time.Unix(rec.SavedAt, 0),
	}, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove backup file: %w", err)
	}
	return nil
}
