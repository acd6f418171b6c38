package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"gitdeploy/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestPullMessage(t *testing.T) {
	stash := make([]string, 30)
	for i := range stash {
		stash[i] = fmt.Sprintf("line %d", i)
	}

	msg := pullMessage(pullSummary{
		Host:   "deploy-host",
		Branch: "main",
		Time:   "2024-01-02 03:04:05",
		Source: domain.SourceAPI,
		Stash:  stash,
		Deployment: &domain.DeploymentResult{
			Success:           false,
			DependencyChanges: true,
			DependencyInstall: &domain.CommandOutcome{Success: false},
			Error:             "install failed",
		},
	})

	assert.Contains(t, msg, "`deploy-host`")
	assert.Contains(t, msg, "`main`")
	assert.Contains(t, msg, "line 19\n...")
	assert.NotContains(t, msg, "line 20")
	assert.Contains(t, msg, "Dependency install: `❌ Failed`")
	assert.Contains(t, msg, "`install failed`")
	assert.Len(t, stash, 30, "input slice must not be modified")
}

func TestPullMessageEmptyStash(t *testing.T) {
	msg := pullMessage(pullSummary{Host: "h", Stash: nil})

	assert.Contains(t, msg, "No local changes to save")
	assert.NotContains(t, msg, "Deployment")
}

func TestErrorMessageEscapesBackticks(t *testing.T) {
	msg := errorMessage("pull action", "", "now", errors.New("bad `ref`"))

	assert.Contains(t, msg, "`bad 'ref'`")
	assert.Contains(t, msg, "*Host:* `-`")
	assert.Equal(t, 8, strings.Count(msg, "`"))
}
