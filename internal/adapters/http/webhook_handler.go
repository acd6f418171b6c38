package http

import (
	"context"
	"errors"
	"net/http"

	"gitdeploy/internal/adapters/http/request"
	"gitdeploy/internal/adapters/http/response"
	"gitdeploy/internal/application/dispatch"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

type Dispatcher interface {
	Handle(ctx context.Context, req domain.InboundRequest) (int, *dispatch.Response)
}

type WebhookHandler struct {
	dispatcher Dispatcher
	body       request.BodyReader
	writer     response.ResponseWriter
	log        logger.Logger
}

func NewWebhookHandler(dispatcher Dispatcher, body request.BodyReader, writer response.ResponseWriter, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		dispatcher: dispatcher,
		body:       body,
		writer:     writer,
		log:        log,
	}
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := h.body.Read(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, request.ErrBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.log.Warn("failed to read request body", "remote", r.RemoteAddr, "error", err)
		h.writer.WriteIndented(w, status, &dispatch.Response{
			Error:   http.StatusText(status),
			Message: err.Error(),
		})
		return
	}

	status, resp := h.dispatcher.Handle(r.Context(), domain.InboundRequest{
		Header:     r.Header,
		Body:       body,
		RemoteAddr: r.RemoteAddr,
		Host:       r.Host,
	})

	h.writer.WriteIndented(w, status, resp)
}
