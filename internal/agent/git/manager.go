// Package git
package git

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const logFormat = "%h|%s|%an|%ae|%ad|%cn|%ce|%cd"

const logFieldCount = 8

type Manager struct {
	log           logger.Logger
	runner        domain.CommandRunner
	binary        string
	stashExcludes []string
}

// NewManager checks the git binary and opens the repository at the
// runner's work directory. It fails fast so a misconfigured agent never
// accepts requests.
func NewManager(ctx context.Context, log logger.Logger, runner domain.CommandRunner, binary string, stashExcludes []string) (*Manager, error) {
	if _, err := os.Stat(binary); err != nil {
		return nil, fmt.Errorf("%w: git binary not found at: %s", domain.ErrGit, binary)
	}

	m := &Manager{
		log:           log,
		runner:        runner,
		binary:        binary,
		stashExcludes: stashExcludes,
	}

	out, err := m.runGitCommand(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || len(out) == 0 || out[0] != "true" {
		return nil, fmt.Errorf("%w: failed to open Git repository at %s", domain.ErrGit, runner.WorkDir())
	}

	m.log.Debug("git repository opened", "dir", runner.WorkDir())
	return m, nil
}

func (m *Manager) CurrentBranch(ctx context.Context) (string, error) {
	out, err := m.runGitCommand(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return firstLine(out), nil
}

func (m *Manager) CurrentCommitHash(ctx context.Context) (string, error) {
	out, err := m.runGitCommand(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to get current commit hash: %w", err)
	}
	return firstLine(out), nil
}

func (m *Manager) Status(ctx context.Context) (*domain.RepositoryStatus, error) {
	out, err := m.runGitCommand(ctx, "status", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("failed to get repository status: %w", err)
	}

	status := ParseStatus(out)

	if status.Branch, err = m.CurrentBranch(ctx); err != nil {
		return nil, err
	}
	if status.Commit, err = m.CurrentCommitHash(ctx); err != nil {
		return nil, err
	}

	return status, nil
}

func (m *Manager) CommitLog(ctx context.Context, limit int) (*domain.CommitLog, error) {
	out, err := m.runGitCommand(ctx, "log", "--pretty=format:"+logFormat, "--date=iso", "-n", strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}

	commits := ParseCommitLog(out)

	branch, err := m.CurrentBranch(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.CommitLog{
		Commits:      commits,
		Branch:       branch,
		TotalCommits: len(commits),
	}, nil
}

func (m *Manager) Stash(ctx context.Context) ([]string, error) {
	args := []string{"stash", "push", "--keep-index", "--", "."}
	for _, exclude := range m.stashExcludes {
		args = append(args, ":!"+exclude)
	}

	out, err := m.runGitCommand(ctx, args...)
	if err != nil {
		return out, fmt.Errorf("failed to stash changes: %w", err)
	}
	return out, nil
}

func (m *Manager) Pull(ctx context.Context) ([]string, error) {
	out, err := m.runGitCommand(ctx, "pull")
	if err != nil {
		return out, fmt.Errorf("failed to pull changes: %w", err)
	}

	m.log.Info("repository updated", "dir", m.runner.WorkDir())
	return out, nil
}

func (m *Manager) ResetToCommit(ctx context.Context, commit string) ([]string, error) {
	out, err := m.runGitCommand(ctx, "reset", "--hard", commit)
	if err != nil {
		return out, fmt.Errorf("failed to reset to commit %s: %w", commit, err)
	}

	m.log.Info("repository reset", "commit", commit)
	return out, nil
}

// ChangedFiles lists the paths touched by a single commit.
func (m *Manager) ChangedFiles(ctx context.Context, rev string) ([]string, error) {
	out, err := m.runGitCommand(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", rev)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed files: %w", err)
	}
	return out, nil
}

func (m *Manager) RawCommand(ctx context.Context, args ...string) ([]string, error) {
	out, err := m.runGitCommand(ctx, args...)
	if err != nil {
		return out, fmt.Errorf("failed to execute git command: %w", err)
	}
	return out, nil
}

func (m *Manager) runGitCommand(ctx context.Context, args ...string) ([]string, error) {
	m.log.Debug("running git command", "args", args, "dir", m.runner.WorkDir())

	outcome, err := m.runner.Run(ctx, m.binary, args...)
	if err != nil {
		m.log.Error("git command could not run", "args", args, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrGit, err)
	}

	if !outcome.Success {
		output := strings.Join(outcome.Output, "\n")
		m.log.Error("git command failed",
			"args", args,
			"exit_code", outcome.ExitCode,
			"output", output,
		)
		return outcome.Output, fmt.Errorf("%w: git %s exited with %d: %s", domain.ErrGit, args[0], outcome.ExitCode, output)
	}

	return outcome.Output, nil
}

// ParseStatus buckets `git status --porcelain` lines. Unrecognised codes
// are ignored.
func ParseStatus(lines []string) *domain.RepositoryStatus {
	status := &domain.RepositoryStatus{
		Modified:  []string{},
		Added:     []string{},
		Deleted:   []string{},
		Untracked: []string{},
	}

	for _, line := range lines {
		if len(line) < 4 {
			continue
		}

		code := strings.TrimSpace(line[:2])
		file := strings.TrimSpace(line[3:])

		if strings.HasPrefix(code, "R") {
			if _, to, ok := strings.Cut(file, " -> "); ok {
				file = to
			}
			code = "M"
		}

		switch code {
		case "M", "MM", "AM", "T":
			status.Modified = append(status.Modified, file)
		case "A":
			status.Added = append(status.Added, file)
		case "D", "AD", "MD":
			status.Deleted = append(status.Deleted, file)
		case "??":
			status.Untracked = append(status.Untracked, file)
		}
	}

	status.Clean = len(status.Modified) == 0 &&
		len(status.Added) == 0 &&
		len(status.Deleted) == 0 &&
		len(status.Untracked) == 0

	return status
}

// ParseCommitLog reads records produced with logFormat. Lines that do
// not split into exactly eight fields are skipped.
func ParseCommitLog(lines []string) []domain.Commit {
	commits := []domain.Commit{}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}

		parts := strings.Split(line, "|")
		if len(parts) != logFieldCount {
			continue
		}

		commits = append(commits, domain.Commit{
			Hash:           parts[0],
			Message:        parts[1],
			AuthorName:     parts[2],
			AuthorEmail:    parts[3],
			AuthorDate:     parts[4],
			CommitterName:  parts[5],
			CommitterEmail: parts[6],
			CommitDate:     parts[7],
		})
	}

	return commits
}

func firstLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[0])
}
