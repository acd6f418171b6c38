package dispatch

import (
	"errors"
	"net/http"

	"gitdeploy/internal/domain"
)

// Response is the body returned for every request. Only the fields of
// the executed action are populated.
type Response struct {
	Action string `json:"action"`

	Stash      []string                 `json:"stash,omitempty"`
	Pull       string                   `json:"pull,omitempty"`
	Deployment *domain.DeploymentResult `json:"deployment,omitempty"`
	Forced     *bool                    `json:"forced,omitempty"`

	CommitID string   `json:"commit_id,omitempty"`
	Result   []string `json:"result,omitempty"`

	Data *domain.CommitLog `json:"data,omitempty"`

	GitStatus *domain.RepositoryStatus `json:"git_status,omitempty"`
	Config    *StatusConfig            `json:"config,omitempty"`

	Rollback *domain.RollbackResult `json:"rollback,omitempty"`

	NextToken string `json:"next_token,omitempty"`

	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

type StatusConfig struct {
	DeploymentEnabled bool               `json:"deployment_enabled"`
	TelegramEnabled   bool               `json:"telegram_enabled"`
	ProjectRoot       string             `json:"project_root"`
	CurrentBranch     string             `json:"current_branch"`
	BackupEnabled     bool               `json:"backup_enabled"`
	Backup            *domain.BackupInfo `json:"backup"`
}

// succeeded reports whether the action's own work succeeded, including
// a deployment that ran as part of it.
func (r *Response) succeeded() bool {
	return r != nil && (r.Deployment == nil || r.Deployment.Success)
}

// StatusFor maps an error to its HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrRollback):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func errorTitle(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "Forbidden"
	case http.StatusInternalServerError:
		return "Internal Server Error"
	default:
		return "Bad Request"
	}
}
