package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"brianhub/internal/handlers/dto"
	"brianhub/internal/logger"
)

func (h *TaskHandler) PostDependency(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.DependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	if err := h.TaskService.AddDependency(ctx, tc, request.TaskID, request.DependsOnID); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusCreated, toPayload("status", "ok"))
}

func (h *TaskHandler) DeleteDependency(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.DependencyRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	if err := h.TaskService.RemoveDependency(ctx, tc, request.TaskID, request.DependsOnID); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}

func (h *TaskHandler) GetDependencies(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var taskID *uuid.UUID
	if raw := r.URL.Query().Get("task_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			responseWithError(w, http.StatusBadRequest, "неверное значение task_id")
			return
		}
		taskID = &parsed
	}

	tc, ctx := tenantFromRequest(r)
	deps, err := h.TaskService.ListDependencies(ctx, tc, taskID)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("dependencies", deps))
}
