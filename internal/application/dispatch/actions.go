package dispatch

import (
	"context"
	"fmt"

	"gitdeploy/internal/domain"
)

const pullSuccessful = "Pull successful"

// pull saves a backup, stashes local changes, pulls and then deploys.
// Backup and deployment problems are reported in the response; git
// failures abort the action.
func (d *Dispatcher) pull(ctx context.Context, a domain.PullAction, host string) (*Response, error) {
	if d.deps.Backups.Enabled() {
		removed, err := d.deps.Backups.ExpireIfStale(ctx)
		if err != nil {
			d.log.Warn("backup expiry failed", "error", err)
		}
		if removed && d.deps.Recorder != nil {
			d.deps.Recorder.ObserveBackupExpired()
		}

		if err := d.deps.Backups.SaveCurrent(ctx); err != nil {
			d.log.Warn("failed to save backup before pull", "error", err)
		}
	}

	stash, err := d.deps.Git.Stash(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := d.deps.Git.Pull(ctx); err != nil {
		return nil, err
	}

	resp := &Response{
		Action: domain.ActionPull,
		Stash:  stash,
		Pull:   pullSuccessful,
	}

	if d.opts.DeploymentEnabled {
		result := d.deps.Deployer.Deploy(ctx, false)
		resp.Deployment = &result
	}

	branch, err := d.deps.Git.CurrentBranch(ctx)
	if err != nil {
		d.log.Warn("could not read branch for notification", "error", err)
	}

	if a.Event != "" {
		d.log.Info("webhook pull completed", "event", a.Event, "event_uuid", a.EventUUID)
	}

	d.notify(ctx, pullMessage(pullSummary{
		Host:       host,
		Branch:     branch,
		Time:       d.now(),
		Source:     a.Source,
		Stash:      stash,
		Deployment: resp.Deployment,
	}))

	return resp, nil
}

func (d *Dispatcher) reset(ctx context.Context, a domain.ResetAction, host string) (*Response, error) {
	out, err := d.deps.Git.ResetToCommit(ctx, a.CommitID)
	if err != nil {
		return nil, err
	}

	d.notify(ctx, resetMessage(a.CommitID, host, d.now()))

	return &Response{
		Action:   domain.ActionReset,
		CommitID: a.CommitID,
		Result:   out,
	}, nil
}

func (d *Dispatcher) commitLog(ctx context.Context, a domain.LogAction) (*Response, error) {
	log, err := d.deps.Git.CommitLog(ctx, a.Limit)
	if err != nil {
		return nil, err
	}

	return &Response{
		Action: domain.ActionLog,
		Data:   log,
	}, nil
}

func (d *Dispatcher) deploy(ctx context.Context, a domain.DeployAction) (*Response, error) {
	result := d.deps.Deployer.Deploy(ctx, a.Force)

	d.notify(ctx, deployMessage(result, a.Force))

	forced := a.Force
	return &Response{
		Action:     domain.ActionDeploy,
		Deployment: &result,
		Forced:     &forced,
	}, nil
}

func (d *Dispatcher) status(ctx context.Context) (*Response, error) {
	status, err := d.deps.Git.Status(ctx)
	if err != nil {
		return nil, err
	}

	info, err := d.deps.Backups.Info(ctx)
	if err != nil {
		d.log.Warn("could not read backup info", "error", err)
	}

	return &Response{
		Action:    domain.ActionStatus,
		GitStatus: status,
		Config: &StatusConfig{
			DeploymentEnabled: d.opts.DeploymentEnabled,
			TelegramEnabled:   d.deps.Notifier != nil && d.deps.Notifier.Enabled(),
			ProjectRoot:       d.opts.ProjectRoot,
			CurrentBranch:     status.Branch,
			BackupEnabled:     d.deps.Backups.Enabled(),
			Backup:            info,
		},
	}, nil
}

func (d *Dispatcher) rollback(ctx context.Context, host string) (*Response, error) {
	result, err := d.deps.Backups.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}

	d.notify(ctx, rollbackMessage(*result, host, d.now()))

	return &Response{
		Action:   domain.ActionRollback,
		Rollback: result,
	}, nil
}
