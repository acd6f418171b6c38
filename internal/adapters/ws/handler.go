package ws

import (
	"net/http"
	"slices"

	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/gorilla/websocket"
)

type BearerValidator interface {
	ValidateBearer(req domain.InboundRequest) (*domain.AuthContext, error)
}

type Handler struct {
	hub      *Hub
	auth     BearerValidator
	upgrader websocket.Upgrader
	log      logger.Logger
}

func NewHandler(hub *Hub, auth BearerValidator, allowedOrigins []string, log logger.Logger) *Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			if !slices.Contains(allowedOrigins, origin) {
				log.Warn("ws: origin rejected", "origin", origin)
				return false
			}
			return true
		},
	}

	return &Handler{
		hub:      hub,
		auth:     auth,
		upgrader: upgrader,
		log:      log,
	}
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	header := r.Header
	if token := r.URL.Query().Get("token"); token != "" && header.Get("Authorization") == "" {
		header = header.Clone()
		header.Set("Authorization", "Bearer "+token)
	}

	if _, err := h.auth.ValidateBearer(domain.InboundRequest{Header: header, RemoteAddr: r.RemoteAddr}); err != nil {
		h.log.Warn("ws: authentication failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("ws: upgrade failed", "error", err)
		return
	}

	c := NewClient(h.hub, conn, h.log)
	send(h.hub, h.hub.register, c)

	go c.writePump()
	go c.readPump()
}
