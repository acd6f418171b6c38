package middleware

import (
	"context"
	"net/http"

	"gitdeploy/internal/domain"
)

type contextKey string

const AuthContextKey contextKey = "auth_context"

type BearerValidator interface {
	ValidateBearer(req domain.InboundRequest) (*domain.AuthContext, error)
}

// Bearer rejects requests without a valid bearer token. Webhook headers
// are not accepted here.
func Bearer(v BearerValidator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, err := v.ValidateBearer(domain.InboundRequest{
				Header:     r.Header,
				RemoteAddr: r.RemoteAddr,
				Host:       r.Host,
			})
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Unauthorized"}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetAuthContext(ctx context.Context) (*domain.AuthContext, bool) {
	a, ok := ctx.Value(AuthContextKey).(*domain.AuthContext)
	return a, ok
}
