package http

import (
	"errors"
	"net/http"

	"gitdeploy/internal/adapters/http/response"
	"gitdeploy/internal/adapters/http/validator"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"

	"github.com/google/uuid"
)

const defaultHistoryLimit = 50

type historyQuery struct {
	Limit int `json:"limit" validate:"min=1,max=500"`
}

type HistoryHandler struct {
	repo      domain.DeploymentRepository
	validator validator.Validator
	writer    response.ResponseWriter
	log       logger.Logger
}

func NewHistoryHandler(repo domain.DeploymentRepository, v validator.Validator, writer response.ResponseWriter, log logger.Logger) *HistoryHandler {
	return &HistoryHandler{
		repo:      repo,
		validator: v,
		writer:    writer,
		log:       log,
	}
}

func (h *HistoryHandler) Index(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writer.Write(w, http.StatusNotFound, &response.Response{Message: "deployment history is disabled"})
		return
	}

	limit, err := GetInt(r.URL.Query(), "limit", defaultHistoryLimit)
	if err != nil {
		h.writer.WriteValidationError(w, map[string]string{"limit": "limit must be a number"})
		return
	}

	query := historyQuery{Limit: limit}
	if errs := h.validator.Validate(&query); len(errs) > 0 {
		h.writer.WriteValidationError(w, errs)
		return
	}

	records, err := h.repo.List(r.Context(), query.Limit)
	if err != nil {
		h.log.Error("failed to list deployments", "error", err)
		h.writer.Write(w, http.StatusInternalServerError, &response.Response{Message: "failed to list deployments"})
		return
	}

	h.writer.Write(w, http.StatusOK, &response.Response{
		Message: "OK",
		Data:    records,
	})
}

func (h *HistoryHandler) Show(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writer.Write(w, http.StatusNotFound, &response.Response{Message: "deployment history is disabled"})
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writer.Write(w, http.StatusBadRequest, &response.Response{Message: "invalid deployment id"})
		return
	}

	record, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDeploymentNotFound) {
			h.writer.Write(w, http.StatusNotFound, &response.Response{Message: "deployment not found"})
			return
		}
		h.log.Error("failed to get deployment", "id", id, "error", err)
		h.writer.Write(w, http.StatusInternalServerError, &response.Response{Message: "failed to get deployment"})
		return
	}

	h.writer.Write(w, http.StatusOK, &response.Response{
		Message: "OK",
		Data:    record,
	})
}
