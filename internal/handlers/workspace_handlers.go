package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"brianhub/internal/handlers/dto"
	"brianhub/internal/logger"
	"brianhub/internal/service"
)

type WorkspaceHandler struct {
	WorkspaceService *service.WorkspaceService
}

func NewWorkspaceHandler(workspaceService *service.WorkspaceService) WorkspaceHandler {
	return WorkspaceHandler{
		WorkspaceService: workspaceService,
	}
}

func (h *WorkspaceHandler) PostWorkspace(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	created, err := h.WorkspaceService.CreateWorkspace(ctx, tc, request.Name, request.Type)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Воркспейс создан",
		zap.String("workspace_id", created.ID.String()),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusCreated, toPayload("workspace", dto.FromWorkspace(created)))
}

func (h *WorkspaceHandler) GetWorkspaces(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	tc, ctx := tenantFromRequest(r)
	workspaces, err := h.WorkspaceService.ListWorkspaces(ctx, tc)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("workspaces", dto.FromWorkspaceList(workspaces)))
}

func (h *WorkspaceHandler) GetWorkspaceByID(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	tc, ctx := tenantFromRequest(r)
	found, err := h.WorkspaceService.GetWorkspace(ctx, tc, id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("workspace", dto.FromWorkspace(found)))
}

func (h *WorkspaceHandler) RenameWorkspace(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var request dto.RenameWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	updated, err := h.WorkspaceService.RenameWorkspace(ctx, tc, id, request.Name)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("workspace", dto.FromWorkspace(updated)))
}

func (h *WorkspaceHandler) ArchiveWorkspace(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	tc, ctx := tenantFromRequest(r)
	if err := h.WorkspaceService.ArchiveWorkspace(ctx, tc, id); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}
