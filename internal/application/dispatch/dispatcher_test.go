package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"gitdeploy/internal/adapters/http/validator"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	ctx *domain.AuthContext
	err error
}

func (f *fakeAuth) Authenticate(domain.InboundRequest) (*domain.AuthContext, error) {
	return f.ctx, f.err
}

type fakeTokens struct{}

func (fakeTokens) GenerateToken(map[string]any) (string, error) { return "next.jwt.token", nil }

type fakeGit struct {
	mu      sync.Mutex
	calls   []string
	pullErr error
	inPull  chan struct{}
	release chan struct{}
}

func (g *fakeGit) record(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, name)
}

func (g *fakeGit) called(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGit) CurrentBranch(context.Context) (string, error) { return "main", nil }

func (g *fakeGit) CurrentCommitHash(context.Context) (string, error) { return "abc123", nil }

func (g *fakeGit) Status(context.Context) (*domain.RepositoryStatus, error) {
	g.record("status")
	return &domain.RepositoryStatus{
		Branch: "main", Commit: "abc123", Clean: true,
		Modified: []string{}, Added: []string{}, Deleted: []string{}, Untracked: []string{},
	}, nil
}

func (g *fakeGit) CommitLog(_ context.Context, limit int) (*domain.CommitLog, error) {
	g.record(fmt.Sprintf("log %d", limit))
	return &domain.CommitLog{Branch: "main", Commits: []domain.Commit{{Hash: "abc123"}}, TotalCommits: 1}, nil
}

func (g *fakeGit) Stash(context.Context) ([]string, error) {
	g.record("stash")
	return []string{"No local changes to save"}, nil
}

func (g *fakeGit) Pull(context.Context) ([]string, error) {
	g.record("pull")
	if g.inPull != nil {
		g.inPull <- struct{}{}
		<-g.release
	}
	if g.pullErr != nil {
		return nil, g.pullErr
	}
	return []string{"Already up to date."}, nil
}

func (g *fakeGit) ResetToCommit(_ context.Context, commit string) ([]string, error) {
	g.record("reset " + commit)
	return []string{"HEAD is now at " + commit}, nil
}

func (g *fakeGit) ChangedFiles(context.Context, string) ([]string, error) { return nil, nil }

func (g *fakeGit) RawCommand(context.Context, ...string) ([]string, error) { return nil, nil }

type fakeDeployer struct {
	forced []bool
	result domain.DeploymentResult
}

func (f *fakeDeployer) Deploy(_ context.Context, force bool) domain.DeploymentResult {
	f.forced = append(f.forced, force)
	return f.result
}

type fakeBackups struct {
	enabled     bool
	saved       int
	expired     bool
	rollback    *domain.RollbackResult
	rollbackErr error
}

func (f *fakeBackups) Enabled() bool { return f.enabled }

func (f *fakeBackups) SaveCurrent(context.Context) error {
	f.saved++
	return nil
}

func (f *fakeBackups) ExpireIfStale(context.Context) (bool, error) { return f.expired, nil }

func (f *fakeBackups) Rollback(context.Context) (*domain.RollbackResult, error) {
	return f.rollback, f.rollbackErr
}

func (f *fakeBackups) Info(context.Context) (*domain.BackupInfo, error) { return nil, nil }

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Enabled() bool { return true }

func (n *fakeNotifier) Send(_ context.Context, msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.DeploymentRecord
}

func (h *memoryHistory) Create(_ context.Context, r *domain.DeploymentRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	r.ID = uuid.New()
	h.records = append(h.records, *r)
	return nil
}

func (h *memoryHistory) List(context.Context, int) ([]domain.DeploymentRecord, error) {
	return h.records, nil
}

func (h *memoryHistory) GetByID(context.Context, uuid.UUID) (*domain.DeploymentRecord, error) {
	return nil, domain.ErrDeploymentNotFound
}

type recordingEvents struct {
	mu     sync.Mutex
	events []*domain.WsServerEvent
}

func (r *recordingEvents) Publish(ev *domain.WsServerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type harness struct {
	auth     *fakeAuth
	git      *fakeGit
	deployer *fakeDeployer
	backups  *fakeBackups
	notifier *fakeNotifier
	history  *memoryHistory
	events   *recordingEvents
	d        *Dispatcher
}

func newHarness(deploymentEnabled bool) *harness {
	h := &harness{
		auth:     &fakeAuth{ctx: &domain.AuthContext{Method: domain.AuthBearer}},
		git:      &fakeGit{},
		deployer: &fakeDeployer{result: domain.DeploymentResult{Success: true}},
		backups:  &fakeBackups{},
		notifier: &fakeNotifier{},
		history:  &memoryHistory{},
		events:   &recordingEvents{},
	}

	h.d = New(Deps{
		Auth:      h.auth,
		Tokens:    fakeTokens{},
		Git:       h.git,
		Deployer:  h.deployer,
		Backups:   h.backups,
		Notifier:  h.notifier,
		Validator: validator.NewValidator(),
		History:   h.history,
		Events:    h.events,
	}, Options{DeploymentEnabled: deploymentEnabled, ProjectRoot: "/srv/app", Hostname: "deploy-host"}, logger.Discard())

	return h
}

func bearerRequest(body string) domain.InboundRequest {
	return domain.InboundRequest{Header: http.Header{}, Body: []byte(body), RemoteAddr: "10.0.0.1:5000"}
}

func toMap(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestStatusAction(t *testing.T) {
	h := newHarness(true)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"status"}`))

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "status", resp.Action)
	require.NotNil(t, resp.GitStatus)
	assert.Equal(t, "main", resp.GitStatus.Branch)
	assert.Equal(t, "abc123", resp.GitStatus.Commit)
	assert.True(t, resp.GitStatus.Clean)
	assert.Equal(t, "next.jwt.token", resp.NextToken)

	require.NotNil(t, resp.Config)
	assert.True(t, resp.Config.DeploymentEnabled)
	assert.True(t, resp.Config.TelegramEnabled)
	assert.Equal(t, "/srv/app", resp.Config.ProjectRoot)
	assert.Equal(t, "main", resp.Config.CurrentBranch)

	assert.Empty(t, h.history.records, "read-only actions are not recorded")
}

func TestWebhookAlwaysPulls(t *testing.T) {
	h := newHarness(true)
	h.auth.ctx = &domain.AuthContext{Method: domain.AuthWebhook, Event: "Push Hook", EventUUID: "uuid-1"}
	h.backups.enabled = true

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"reset","commit_id":"deadbeef"}`))

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pull", resp.Action)
	assert.Equal(t, "Pull successful", resp.Pull)
	assert.Equal(t, []string{"No local changes to save"}, resp.Stash)
	require.NotNil(t, resp.Deployment)
	assert.True(t, resp.Deployment.Success)

	assert.Equal(t, 0, h.git.called("reset deadbeef"))
	assert.Equal(t, 1, h.git.called("pull"))
	assert.Equal(t, 1, h.backups.saved)
	assert.Equal(t, []bool{false}, h.deployer.forced)

	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "GitLab Webhook")

	require.Len(t, h.history.records, 1)
	rec := h.history.records[0]
	assert.Equal(t, "pull", rec.Action)
	assert.Equal(t, domain.SourceWebhook, rec.Source)
	assert.True(t, rec.Success)
	assert.Equal(t, "abc123", rec.CommitBefore)
}

func TestPullWithoutDeployment(t *testing.T) {
	h := newHarness(false)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"pull"}`))

	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, resp.Deployment)
	assert.Empty(t, h.deployer.forced)
	assert.Equal(t, 0, h.backups.saved, "backups disabled")
	assert.NotContains(t, toMap(t, resp), "deployment")
}

func TestResetRequiresCommit(t *testing.T) {
	h := newHarness(true)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"reset"}`))

	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "reset", resp.Action)
	assert.Equal(t, "Bad Request", resp.Error)
	assert.Contains(t, resp.Message, "commit_id is required for reset action")
	assert.Empty(t, h.git.calls)
}

func TestResetAction(t *testing.T) {
	h := newHarness(true)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"reset","commit_id":"deadbeef"}`))

	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "deadbeef", resp.CommitID)
	assert.Equal(t, []string{"HEAD is now at deadbeef"}, resp.Result)
	assert.Equal(t, 1, h.git.called("reset deadbeef"))
	require.Len(t, h.notifier.messages, 1)
	assert.Contains(t, h.notifier.messages[0], "deadbeef")
}

func TestLogAction(t *testing.T) {
	tests := []struct {
		body string
		want string
		code int
	}{
		{`{"action":"log"}`, "log 10", http.StatusOK},
		{`{"action":"log","limit":25}`, "log 25", http.StatusOK},
		{`{"action":"log","limit":1000}`, "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			h := newHarness(true)
			code, resp := h.d.Handle(context.Background(), bearerRequest(tt.body))

			assert.Equal(t, tt.code, code)
			if tt.want == "" {
				assert.Empty(t, h.git.calls)
				return
			}
			assert.Equal(t, 1, h.git.called(tt.want))
			require.NotNil(t, resp.Data)
			assert.Equal(t, 1, resp.Data.TotalCommits)
		})
	}
}

func TestDeployAction(t *testing.T) {
	h := newHarness(true)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"deploy","force_composer":true}`))

	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, resp.Forced)
	assert.True(t, *resp.Forced)
	assert.Equal(t, []bool{true}, h.deployer.forced)
	assert.Equal(t, true, toMap(t, resp)["forced"])
}

func TestFailedDeploymentIsRecordedButStillOK(t *testing.T) {
	h := newHarness(true)
	h.deployer.result = domain.DeploymentResult{Success: false, Error: "composer exploded"}

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"deploy"}`))

	assert.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Deployment.Success)
	require.Len(t, h.history.records, 1)
	assert.False(t, h.history.records[0].Success)
}

func TestRollbackAction(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := newHarness(true)
		h.backups.rollback = &domain.RollbackResult{Success: true, RollbackCommit: "abc1234", RollbackBranch: "main"}

		code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"rollback"}`))

		require.Equal(t, http.StatusOK, code)
		require.NotNil(t, resp.Rollback)
		assert.Equal(t, "abc1234", resp.Rollback.RollbackCommit)
	})

	t.Run("no backup", func(t *testing.T) {
		h := newHarness(true)
		h.backups.rollbackErr = fmt.Errorf("%w: no backup commit found", domain.ErrRollback)

		code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"rollback"}`))

		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, resp.Message, "no backup commit found")
		assert.Empty(t, resp.NextToken)
	})
}

func TestFailureBodyShape(t *testing.T) {
	h := newHarness(true)
	h.git.pullErr = fmt.Errorf("%w: git pull failed: conflict", domain.ErrGit)

	code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"pull"}`))

	assert.Equal(t, http.StatusInternalServerError, code)

	body := toMap(t, resp)
	assert.Equal(t, "pull", body["action"])
	assert.Equal(t, "Internal Server Error", body["error"])
	assert.Contains(t, body["message"], "conflict")
	assert.NotContains(t, body, "next_token")

	require.NotEmpty(t, h.notifier.messages)
	assert.Contains(t, h.notifier.messages[len(h.notifier.messages)-1], "GitDeploy error")
}

func TestInvalidRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"unknown action", `{"action":"explode"}`, "invalid action: explode"},
		{"missing action", `{}`, "action is required"},
		{"empty body", ``, "action is required"},
		{"malformed json", `{"action":`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(true)
			code, resp := h.d.Handle(context.Background(), bearerRequest(tt.body))

			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, resp.Message, tt.message)
			assert.Empty(t, h.git.calls)
		})
	}
}

func TestAuthenticationFailures(t *testing.T) {
	tests := []struct {
		err   error
		code  int
		title string
	}{
		{fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized), http.StatusUnauthorized, "Unauthorized"},
		{fmt.Errorf("%w: invalid webhook token", domain.ErrForbidden), http.StatusForbidden, "Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			h := newHarness(true)
			h.auth.ctx, h.auth.err = nil, tt.err

			code, resp := h.d.Handle(context.Background(), bearerRequest(`{"action":"status"}`))

			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.title, resp.Error)
			assert.Equal(t, "status", resp.Action)
			assert.Empty(t, resp.NextToken)
			assert.Empty(t, h.git.calls)
		})
	}
}

func TestMutatingActionsAreSerialised(t *testing.T) {
	h := newHarness(false)
	h.git.inPull = make(chan struct{})
	h.git.release = make(chan struct{})

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.d.Handle(context.Background(), bearerRequest(`{"action":"pull"}`))
		}()
	}

	<-h.git.inPull

	select {
	case <-h.git.inPull:
		t.Fatal("second pull started while the first was running")
	case <-time.After(50 * time.Millisecond):
	}

	// Read-only actions are not blocked by a running pull.
	code, _ := h.d.Handle(context.Background(), bearerRequest(`{"action":"status"}`))
	assert.Equal(t, http.StatusOK, code)

	h.git.release <- struct{}{}
	<-h.git.inPull
	h.git.release <- struct{}{}

	wg.Wait()
	assert.Equal(t, 2, h.git.called("pull"))
}

func TestActionEventsPublished(t *testing.T) {
	h := newHarness(true)

	h.d.Handle(context.Background(), bearerRequest(`{"action":"status"}`))

	require.Len(t, h.events.events, 2)
	assert.Equal(t, domain.WsEventActionStarted, h.events.events[0].Event)
	assert.Equal(t, domain.WsEventActionFinished, h.events.events[1].Event)

	payload, ok := h.events.events[1].Payload.(domain.ActionEventPayload)
	require.True(t, ok)
	require.NotNil(t, payload.Success)
	assert.True(t, *payload.Success)
}

func TestStatusForWrappedErrors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(fmt.Errorf("rollback: %w", domain.ErrRollback)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
