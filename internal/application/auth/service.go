// Package auth
package auth

import (
	"gitdeploy/internal/domain"
)

// Service picks exactly one authentication path per request. GitLab
// webhook headers take precedence over a bearer token.
type Service struct {
	webhook *WebhookAuthenticator
	bearer  *JWTAuthenticator
}

func NewService(webhook *WebhookAuthenticator, bearer *JWTAuthenticator) *Service {
	return &Service{
		webhook: webhook,
		bearer:  bearer,
	}
}

func (s *Service) Authenticate(req domain.InboundRequest) (*domain.AuthContext, error) {
	if IsWebhook(req.Header) {
		return s.webhook.Validate(req)
	}
	return s.bearer.Validate(req.Header)
}

// ValidateBearer is used by endpoints that never accept webhooks.
func (s *Service) ValidateBearer(req domain.InboundRequest) (*domain.AuthContext, error) {
	return s.bearer.Validate(req.Header)
}

func (s *Service) GenerateToken(extra map[string]any) (string, error) {
	return s.bearer.GenerateToken(extra)
}
