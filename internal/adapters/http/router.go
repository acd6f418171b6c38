// Package http
package http

import (
	"net/http"

	"gitdeploy/internal/adapters/http/middleware"
	"gitdeploy/internal/adapters/ws"
)

type RouterDeps struct {
	Webhook *WebhookHandler
	History *HistoryHandler
	Ws      *ws.Handler

	Auth     middleware.BearerValidator
	Metrics  http.Handler
	Recorder middleware.RequestRecorder
}

func NewRouter(allowedOrigins []string, deps *RouterDeps) http.Handler {
	mux := http.NewServeMux()

	globalMw := middleware.New()
	globalMw.Use(middleware.CORS(allowedOrigins))
	if deps.Recorder != nil {
		globalMw.Use(middleware.Metrics(deps.Recorder))
	}

	bearer := middleware.New().Use(middleware.Bearer(deps.Auth))
	private := bearer.Extend(middleware.NoStore)

	// HEALTH
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	// WEBHOOK / ACTIONS
	mux.HandleFunc("POST /{$}", deps.Webhook.Handle)
	mux.HandleFunc("POST /webhook", deps.Webhook.Handle)

	// HISTORY
	mux.Handle("GET /deployments", private.ThenFunc(deps.History.Index))
	mux.Handle("GET /deployments/{id}", private.ThenFunc(deps.History.Show))

	// WEBSOCKET
	if deps.Ws != nil {
		mux.HandleFunc("GET /ws/logs", deps.Ws.Serve)
	}

	return globalMw.Apply(mux)
}
