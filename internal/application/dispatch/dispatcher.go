// Package dispatch
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"gitdeploy/internal/application/auth"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const timeLayout = "2006-01-02 15:04:05"

const notifyTimeout = 15 * time.Second

type Authenticator interface {
	Authenticate(req domain.InboundRequest) (*domain.AuthContext, error)
}

type BackupService interface {
	Enabled() bool
	SaveCurrent(ctx context.Context) error
	ExpireIfStale(ctx context.Context) (bool, error)
	Rollback(ctx context.Context) (*domain.RollbackResult, error)
	Info(ctx context.Context) (*domain.BackupInfo, error)
}

type Validator interface {
	Validate(data any) map[string]string
}

type Recorder interface {
	ObserveAction(action, source string, success bool, elapsed time.Duration)
	ObserveNotification(success bool)
	ObserveBackupExpired()
}

type Options struct {
	DeploymentEnabled bool
	ProjectRoot       string
	Hostname          string
	Location          *time.Location
}

type Deps struct {
	Auth      Authenticator
	Tokens    domain.TokenIssuer
	Git       domain.GitRepository
	Deployer  domain.Deployer
	Backups   BackupService
	Notifier  domain.Notifier
	Validator Validator

	// Optional.
	History  domain.DeploymentRepository
	Events   domain.EventPublisher
	Recorder Recorder
}

// Dispatcher runs one request through authenticate, resolve, execute
// and respond. Mutating actions are serialised.
type Dispatcher struct {
	deps Deps
	opts Options
	log  logger.Logger
	mu   sync.Mutex
}

func New(deps Deps, opts Options, log logger.Logger) *Dispatcher {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Dispatcher{
		deps: deps,
		opts: opts,
		log:  log,
	}
}

// Handle never returns a nil response. The int is the HTTP status.
func (d *Dispatcher) Handle(ctx context.Context, req domain.InboundRequest) (int, *Response) {
	authCtx, err := d.deps.Auth.Authenticate(req)
	if err != nil {
		d.log.Warn("request rejected", "stage", "authenticate", "remote", req.RemoteAddr, "error", err)
		return d.fail(ctx, req, requestedAction(req), err)
	}

	action, err := d.resolve(req, authCtx)
	if err != nil {
		d.log.Warn("request rejected", "stage", "resolve", "error", err)
		return d.fail(ctx, req, requestedAction(req), err)
	}

	if action.Mutating() {
		d.mu.Lock()
		defer d.mu.Unlock()
	}

	// A disconnecting client must not abort a deploy half way.
	execCtx := context.WithoutCancel(ctx)

	source := sourceOf(authCtx)
	start := time.Now()
	d.publishAction(domain.WsEventActionStarted, action.Name(), source, nil, "")

	var commitBefore string
	if action.Mutating() {
		commitBefore, _ = d.deps.Git.CurrentCommitHash(execCtx)
	}

	resp, err := d.execute(execCtx, action, req)
	elapsed := time.Since(start)
	success := err == nil && resp.succeeded()

	d.log.Info("action finished",
		"action", action.Name(),
		"source", source,
		"success", success,
		"duration", elapsed,
	)

	if d.deps.Recorder != nil {
		d.deps.Recorder.ObserveAction(action.Name(), source, success, elapsed)
	}

	errText := ""
	if err != nil {
		errText = err.Error()
	}
	d.publishAction(domain.WsEventActionFinished, action.Name(), source, &success, errText)

	if action.Mutating() {
		d.recordHistory(execCtx, action.Name(), source, success, commitBefore, start, elapsed, resp, errText)
	}

	if err != nil {
		return d.fail(execCtx, req, action.Name(), err)
	}

	token, err := d.deps.Tokens.GenerateToken(nil)
	if err != nil {
		return d.fail(execCtx, req, action.Name(), fmt.Errorf("failed to issue next token: %w", err))
	}
	resp.NextToken = token

	return http.StatusOK, resp
}

func (d *Dispatcher) resolve(req domain.InboundRequest, authCtx *domain.AuthContext) (domain.Action, error) {
	if authCtx.IsWebhook() {
		return domain.PullAction{
			Source:    domain.SourceWebhook,
			Event:     authCtx.Event,
			EventUUID: authCtx.EventUUID,
		}, nil
	}

	var body domain.ActionRequest
	if len(bytes.TrimSpace(req.Body)) > 0 {
		if err := json.Unmarshal(req.Body, &body); err != nil {
			return nil, fmt.Errorf("%w: invalid request body", domain.ErrValidation)
		}
	}

	action, err := domain.BuildAction(body)
	if err != nil {
		return nil, err
	}

	if errs := d.deps.Validator.Validate(&body); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, firstMessage(errs))
	}

	return action, nil
}

func (d *Dispatcher) execute(ctx context.Context, action domain.Action, req domain.InboundRequest) (*Response, error) {
	host := d.host(req)

	switch a := action.(type) {
	case domain.PullAction:
		return d.pull(ctx, a, host)
	case domain.ResetAction:
		return d.reset(ctx, a, host)
	case domain.LogAction:
		return d.commitLog(ctx, a)
	case domain.DeployAction:
		return d.deploy(ctx, a)
	case domain.StatusAction:
		return d.status(ctx)
	case domain.RollbackAction:
		return d.rollback(ctx, host)
	default:
		return nil, fmt.Errorf("unsupported action: %s", action.Name())
	}
}

func (d *Dispatcher) fail(ctx context.Context, req domain.InboundRequest, action string, err error) (int, *Response) {
	status := StatusFor(err)

	if status == http.StatusInternalServerError {
		d.log.Error("action failed", "action", action, "error", err)
	}

	where := "WebhookHandler"
	if action != "" {
		where = action + " action"
	}
	d.notify(ctx, errorMessage(where, d.host(req), d.now(), err))

	return status, &Response{
		Action:  action,
		Error:   errorTitle(status),
		Message: err.Error(),
	}
}

// notify delivers a message on a best-effort basis; failures are only
// logged.
func (d *Dispatcher) notify(ctx context.Context, message string) {
	if d.deps.Notifier == nil || !d.deps.Notifier.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := d.deps.Notifier.Send(ctx, message)
	if d.deps.Recorder != nil {
		d.deps.Recorder.ObserveNotification(err == nil)
	}
	if err != nil {
		d.log.Warn("notification failed", "error", err)
	}
}

func (d *Dispatcher) recordHistory(ctx context.Context, action, source string, success bool, commitBefore string, start time.Time, elapsed time.Duration, resp *Response, errText string) {
	if d.deps.History == nil {
		return
	}

	record := &domain.DeploymentRecord{
		Action:       action,
		Source:       source,
		Success:      success,
		CommitBefore: commitBefore,
		StartedAt:    start,
		Duration:     domain.Elapsed(elapsed),
		Error:        errText,
	}
	record.CommitAfter, _ = d.deps.Git.CurrentCommitHash(ctx)

	if resp != nil {
		if raw, err := json.Marshal(resp); err == nil {
			record.Result = raw
		}
	}

	if err := d.deps.History.Create(ctx, record); err != nil {
		d.log.Warn("failed to record deployment history", "action", action, "error", err)
	}
}

func (d *Dispatcher) publishAction(event, action, source string, success *bool, errText string) {
	if d.deps.Events == nil {
		return
	}

	d.deps.Events.Publish(&domain.WsServerEvent{
		Channel: domain.WsChannelActions,
		Event:   event,
		Payload: domain.ActionEventPayload{
			Action:  action,
			Source:  source,
			Success: success,
			Error:   errText,
		},
	})
}

func (d *Dispatcher) host(req domain.InboundRequest) string {
	if req.Host != "" {
		return req.Host
	}
	return d.opts.Hostname
}

func (d *Dispatcher) now() string {
	return time.Now().In(d.opts.Location).Format(timeLayout)
}

func sourceOf(authCtx *domain.AuthContext) string {
	if authCtx.IsWebhook() {
		return domain.SourceWebhook
	}
	return domain.SourceAPI
}

// requestedAction names the action for error bodies produced before the
// action was resolved.
func requestedAction(req domain.InboundRequest) string {
	if auth.IsWebhook(req.Header) {
		return domain.ActionPull
	}

	var peek struct {
		Action string `json:"action"`
	}
	_ = json.Unmarshal(req.Body, &peek)
	return peek.Action
}

func firstMessage(errs map[string]string) string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return errs[keys[0]]
}
