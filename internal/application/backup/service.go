// Package backup
package backup

import (
	"context"
	"fmt"
	"math"
	"time"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const timestampLayout = "2006-01-02 15:04:05"

type Options struct {
	Enabled  bool
	MaxAge   time.Duration
	Location *time.Location
}

// Service records the last known good commit before a pull and restores
// it on request.
type Service struct {
	store    domain.BackupStore
	git      domain.GitRepository
	log      logger.Logger
	enabled  bool
	maxAge   time.Duration
	location *time.Location
	now      func() time.Time
}

func NewService(store domain.BackupStore, git domain.GitRepository, log logger.Logger, opts Options) *Service {
	location := opts.Location
	if location == nil {
		location = time.UTC
	}

	return &Service{
		store:    store,
		git:      git,
		log:      log,
		enabled:  opts.Enabled,
		maxAge:   opts.MaxAge,
		location: location,
		now:      time.Now,
	}
}

func (s *Service) Enabled() bool {
	return s.enabled
}

// SaveCurrent stores the current branch and HEAD. It is a no-op when
// backups are disabled.
func (s *Service) SaveCurrent(ctx context.Context) error {
	if !s.enabled {
		return nil
	}

	commit, err := s.git.CurrentCommitHash(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current commit: %w", err)
	}

	branch, err := s.git.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current branch: %w", err)
	}

	record := domain.BackupRecord{
		CommitHash: commit,
		Branch:     branch,
		SavedAt:    s.now().Truncate(time.Second),
	}

	if err := s.store.Save(ctx, record); err != nil {
		return err
	}

	s.log.Info("backup saved", "commit", commit, "branch", branch)
	return nil
}

func (s *Service) Rollback(ctx context.Context) (*domain.RollbackResult, error) {
	record, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: no backup commit found", domain.ErrRollback)
	}
	if !record.ValidHash() {
		return nil, fmt.Errorf("%w: invalid backup data: %q is not a commit hash", domain.ErrRollback, record.CommitHash)
	}

	out, err := s.git.ResetToCommit(ctx, record.CommitHash)
	if err != nil {
		return nil, fmt.Errorf("rollback failed: %w", err)
	}

	s.log.Info("rolled back to backup commit", "commit", record.CommitHash, "branch", record.Branch)

	return &domain.RollbackResult{
		Success:         true,
		RollbackCommit:  record.CommitHash,
		RollbackBranch:  record.Branch,
		BackupTimestamp: s.format(record.SavedAt),
		Result:          out,
	}, nil
}

// ExpireIfStale removes the backup once it is older than the configured
// maximum age. It reports whether a record was removed.
func (s *Service) ExpireIfStale(ctx context.Context) (bool, error) {
	if s.maxAge <= 0 {
		return false, nil
	}

	record, err := s.store.Load(ctx)
	if err != nil || record == nil {
		return false, err
	}

	age := record.Age(s.now())
	if age <= s.maxAge {
		return false, nil
	}

	if err := s.store.Clear(ctx); err != nil {
		return false, err
	}

	s.log.Info("expired stale backup", "commit", record.CommitHash, "age_hours", ageHours(age))
	return true, nil
}

// Info returns nil when no backup is stored.
func (s *Service) Info(ctx context.Context) (*domain.BackupInfo, error) {
	record, err := s.store.Load(ctx)
	if err != nil || record == nil {
		return nil, err
	}

	return &domain.BackupInfo{
		Commit:         record.CommitHash,
		Branch:         record.Branch,
		Timestamp:      s.format(record.SavedAt),
		BackupAgeHours: ageHours(record.Age(s.now())),
	}, nil
}

// Run expires stale backups on every tick until ctx is done.
func (s *Service) Run(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ExpireIfStale(ctx); err != nil {
				s.log.Warn("backup expiry failed", "error", err)
			}
		}
	}
}

func (s *Service) format(t time.Time) string {
	return t.In(s.location).Format(timestampLayout)
}

func ageHours(d time.Duration) float64 {
	return math.Round(d.Hours()*10) / 10
}
