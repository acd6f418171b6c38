package domain

import (
	"fmt"
	"strings"
)

const (
	ActionPull     = "pull"
	ActionReset    = "reset"
	ActionLog      = "log"
	ActionDeploy   = "deploy"
	ActionStatus   = "status"
	ActionRollback = "rollback"
)

const (
	SourceWebhook = "GitLab Webhook"
	SourceAPI     = "API Call"
)

const (
	DefaultLogLimit = 10
	MaxLogLimit     = 100
)

var ValidActions = []string{ActionPull, ActionReset, ActionLog, ActionDeploy, ActionStatus, ActionRollback}

// Action is one of the request variants below. The unexported method
// keeps the set closed to this package.
type Action interface {
	Name() string
	Mutating() bool
	action()
}

type PullAction struct {
	Source    string
	Event     string
	EventUUID string
}

type ResetAction struct {
	CommitID string
}

type LogAction struct {
	Limit int
}

type DeployAction struct {
	Force bool
}

type StatusAction struct{}

type RollbackAction struct{}

func (PullAction) Name() string     { return ActionPull }
func (ResetAction) Name() string    { return ActionReset }
func (LogAction) Name() string      { return ActionLog }
func (DeployAction) Name() string   { return ActionDeploy }
func (StatusAction) Name() string   { return ActionStatus }
func (RollbackAction) Name() string { return ActionRollback }

func (PullAction) Mutating() bool     { return true }
func (ResetAction) Mutating() bool    { return true }
func (LogAction) Mutating() bool      { return false }
func (DeployAction) Mutating() bool   { return true }
func (StatusAction) Mutating() bool   { return false }
func (RollbackAction) Mutating() bool { return true }

func (PullAction) action()     {}
func (ResetAction) action()    {}
func (LogAction) action()      {}
func (DeployAction) action()   {}
func (StatusAction) action()   {}
func (RollbackAction) action() {}

type ActionRequest struct {
	Action        string `json:"action" validate:"required,oneof=pull reset log deploy status rollback"`
	CommitID      string `json:"commit_id" validate:"required_if=Action reset"`
	ForceComposer bool   `json:"force_composer"`
	Limit         int    `json:"limit" validate:"omitempty,min=1,max=100"`
}

// BuildAction turns an already validated request into its variant.
func BuildAction(req ActionRequest) (Action, error) {
	switch req.Action {
	case ActionPull:
		return PullAction{Source: SourceAPI}, nil
	case ActionReset:
		commit := strings.TrimSpace(req.CommitID)
		if commit == "" {
			return nil, fmt.Errorf("%w: commit_id is required for reset action", ErrValidation)
		}
		if strings.HasPrefix(commit, "-") || strings.ContainsAny(commit, " \t\r\n") {
			return nil, fmt.Errorf("%w: invalid commit_id: %s", ErrValidation, commit)
		}
		return ResetAction{CommitID: commit}, nil
	case ActionLog:
		limit := req.Limit
		if limit <= 0 {
			limit = DefaultLogLimit
		}
		return LogAction{Limit: min(limit, MaxLogLimit)}, nil
	case ActionDeploy:
		return DeployAction{Force: req.ForceComposer}, nil
	case ActionStatus:
		return StatusAction{}, nil
	case ActionRollback:
		return RollbackAction{}, nil
	case "":
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	default:
		return nil, fmt.Errorf("%w: invalid action: %s. Valid actions: %s", ErrValidation, req.Action, strings.Join(ValidActions, ", "))
	}
}
