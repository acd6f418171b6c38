package domain

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

type AuthMethod string

const (
	AuthWebhook AuthMethod = "webhook"
	AuthBearer  AuthMethod = "bearer"
)

// AuthContext describes how a request proved its identity. It lives
// only for the duration of the request.
type AuthContext struct {
	Method    AuthMethod
	Event     string
	EventUUID string
	Claims    jwt.MapClaims
}

func (a *AuthContext) IsWebhook() bool {
	return a != nil && a.Method == AuthWebhook
}

// InboundRequest is the transport-neutral view of a request that the
// authenticators and the dispatcher work on.
type InboundRequest struct {
	Header     http.Header
	Body       []byte
	RemoteAddr string
	Host       string
}

type TokenIssuer interface {
	GenerateToken(extra map[string]any) (string, error)
}

type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, message string) error
}
