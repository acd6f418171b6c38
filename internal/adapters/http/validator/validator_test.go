package validator

import (
	"testing"

	"gitdeploy/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestValidateActionRequest(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		req  domain.ActionRequest
		want map[string]string
	}{
		{
			name: "valid status",
			req:  domain.ActionRequest{Action: "status"},
			want: map[string]string{},
		},
		{
			name: "unknown action",
			req:  domain.ActionRequest{Action: "explode"},
			want: map[string]string{"action": "action must be one of: pull, reset, log, deploy, status, rollback"},
		},
		{
			name: "reset without commit",
			req:  domain.ActionRequest{Action: "reset"},
			want: map[string]string{"commit_id": "commit_id is required for reset action"},
		},
		{
			name: "limit too large",
			req:  domain.ActionRequest{Action: "log", Limit: 500},
			want: map[string]string{"limit": "limit must be at most 100"},
		},
		{
			name: "negative limit",
			req:  domain.ActionRequest{Action: "log", Limit: -1},
			want: map[string]string{"limit": "limit must be at least 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Validate(&tt.req))
		})
	}
}

func TestValidateMissingAction(t *testing.T) {
	errs := NewValidator().Validate(&domain.ActionRequest{})
	assert.Equal(t, "action is required", errs["action"])
}
