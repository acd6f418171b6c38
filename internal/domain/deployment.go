package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDeploymentNotFound = errors.New("deployment not found")

const (
	TaskCacheClear   = "cache_clear"
	TaskPermissions  = "permissions"
	TaskCustomScript = "custom_script"
)

type DeploymentResult struct {
	Success           bool                      `json:"success"`
	DeploymentTime    string                    `json:"deployment_time"`
	DependencyChanges bool                      `json:"composer_changes"`
	DependencyInstall *CommandOutcome           `json:"composer_install"`
	AdditionalTasks   map[string]CommandOutcome `json:"additional_tasks,omitempty"`
	ExecutionTime     Elapsed                   `json:"execution_time"`
	Error             string                    `json:"error,omitempty"`

	Timestamp time.Time `json:"-"`
}

// Deployer runs the post-pull deployment steps. It always returns a
// result; failures of individual steps are recorded inside it.
type Deployer interface {
	Deploy(ctx context.Context, forceDependencyInstall bool) DeploymentResult
}

type DeploymentRecord struct {
	ID           uuid.UUID       `json:"id"`
	Action       string          `json:"action"`
	Source       string          `json:"source"`
	Success      bool            `json:"success"`
	CommitBefore string          `json:"commit_before,omitempty"`
	CommitAfter  string          `json:"commit_after,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	Duration     Elapsed         `json:"duration"`
	Error        string          `json:"error,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}

type DeploymentRepository interface {
	Create(ctx context.Context, record *DeploymentRecord) error
	List(ctx context.Context, limit int) ([]DeploymentRecord, error)
	GetByID(ctx context.Context, id uuid.UUID) (*DeploymentRecord, error)
}
