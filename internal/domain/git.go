package domain

import "context"

type Commit struct {
	Hash           string `json:"hash"`
	Message        string `json:"message"`
	AuthorName     string `json:"author_name"`
	AuthorEmail    string `json:"author_email"`
	AuthorDate     string `json:"author_date"`
	CommitterName  string `json:"committer_name"`
	CommitterEmail string `json:"committer_email"`
	CommitDate     string `json:"commit_date"`
}

type CommitLog struct {
	Commits      []Commit `json:"commits"`
	Branch       string   `json:"branch"`
	TotalCommits int      `json:"total_commits"`
}

type RepositoryStatus struct {
	Branch    string   `json:"branch"`
	Commit    string   `json:"commit"`
	Modified  []string `json:"modified"`
	Added     []string `json:"added"`
	Deleted   []string `json:"deleted"`
	Untracked []string `json:"untracked"`
	Clean     bool     `json:"clean"`
}

// GitRepository is the set of git operations the deploy flow relies on.
type GitRepository interface {
	CurrentBranch(ctx context.Context) (string, error)
	CurrentCommitHash(ctx context.Context) (string, error)
	Status(ctx context.Context) (*RepositoryStatus, error)
	CommitLog(ctx context.Context, limit int) (*CommitLog, error)
	Stash(ctx context.Context) ([]string, error)
	Pull(ctx context.Context) ([]string, error)
	ResetToCommit(ctx context.Context, commit string) ([]string, error)
	ChangedFiles(ctx context.Context, rev string) ([]string, error)
	RawCommand(ctx context.Context, args ...string) ([]string, error)
}
