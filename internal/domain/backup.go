package domain

import (
	"context"
	"regexp"
	"time"
)

var commitHashPattern = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

type BackupRecord struct {
	CommitHash string    `json:"commit"`
	Branch     string    `json:"branch"`
	SavedAt    time.Time `json:"saved_at"`
}

// ValidHash reports whether the stored reference looks like an
// abbreviated or full commit hash.
func (r BackupRecord) ValidHash() bool {
	return commitHashPattern.MatchString(r.CommitHash)
}

func (r BackupRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.SavedAt)
}

// BackupStore keeps a single last-known-good commit reference.
// Load returns nil without error when nothing usable is stored.
type BackupStore interface {
	Save(ctx context.Context, record BackupRecord) error
	Load(ctx context.Context) (*BackupRecord, error)
	Clear(ctx context.Context) error
}

type BackupInfo struct {
	Commit         string  `json:"commit"`
	Branch         string  `json:"branch"`
	Timestamp      string  `json:"timestamp"`
	BackupAgeHours float64 `json:"backup_age_hours"`
}

type RollbackResult struct {
	Success         bool     `json:"success"`
	RollbackCommit  string   `json:"rollback_commit"`
	RollbackBranch  string   `json:"rollback_branch"`
	BackupTimestamp string   `json:"backup_timestamp"`
	Result          []string `json:"result"`
}
