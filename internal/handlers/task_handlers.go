package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"brianhub/internal/handlers/dto"
	"brianhub/internal/logger"
	"brianhub/internal/models/task"
	"brianhub/internal/repository/inter"
	"brianhub/internal/service"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type TaskHandler struct {
	TaskService *service.TaskService
	Health      HealthChecker
}

func NewTaskHandler(taskService *service.TaskService, health HealthChecker) TaskHandler {
	return TaskHandler{
		TaskService: taskService,
		Health:      health,
	}
}

func (h *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		logger.Warn("HTTP: Неверный тип контента",
			zap.String("expected", "application/json"),
			zap.String("received", r.Header.Get("Content-Type")),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	created, err := h.TaskService.CreateTask(ctx, tc, service.CreateTaskInput{
		Title:         request.Title,
		DescriptionMD: request.DescriptionMD,
		Status:        request.Status,
		Priority:      request.Priority,
		Urgency:       request.Urgency,
		TaskType:      request.TaskType,
		ParentID:      request.ParentID,
		ProjectID:     request.ProjectID,
		StartAt:       request.StartAt,
		DueAt:         request.DueAt,
		Recurrence:    request.Recurrence,
	})
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "create_task"),
			zap.Duration("ms", time.Since(start)))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.ID.String()),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusCreated, toPayload("task", dto.FromTask(created)))
}

func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	filter := inter.ListFilter{
		Search: r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := task.Status(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("task_type"); raw != "" {
		filter.TaskType = &raw
	}
	if raw := r.URL.Query().Get("project_id"); raw != "" {
		projectID, err := uuid.Parse(raw)
		if err != nil {
			responseWithError(w, http.StatusBadRequest, "неверное значение project_id")
			return
		}
		filter.ProjectID = &projectID
	}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	tc, ctx := tenantFromRequest(r)
	tasks, err := h.TaskService.ListTasks(ctx, tc, filter)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("tasks", dto.FromTaskList(tasks)))
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	tc, ctx := tenantFromRequest(r)
	t, err := h.TaskService.GetTask(ctx, tc, id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t)))
}

func (h *TaskHandler) GetTaskTree(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	tc, ctx := tenantFromRequest(r)
	nodes, err := h.TaskService.GetTaskTree(ctx, tc, id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("tree", dto.FromTree(nodes)))
}

// PatchTask принимает произвольное подмножество полей задачи. Тот же
// payload уйдёт в change log, поэтому тело не перекладывается в DTO.
func (h *TaskHandler) PatchTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if !checkContentType(r, "application/json") {
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var patch task.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		logger.Warn("HTTP: ошибка чтения JSON",
			zap.Error(err),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	updated, err := h.TaskService.UpdateTask(ctx, tc, id, patch)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err,
			zap.String("operation", "update_task"),
			zap.Duration("ms", time.Since(start)))
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated)))
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	tc, ctx := tenantFromRequest(r)
	ids, err := h.TaskService.DeleteTask(ctx, tc, id)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Задача удалена с поддеревом",
		zap.String("task_id", id.String()),
		zap.Int("deleted", len(ids)),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("deleted_ids", ids))
}

func (h *TaskHandler) ReparentTask(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var request dto.ReparentRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	if err := h.TaskService.ReparentTask(ctx, tc, id, request.ParentID); err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}

func (h *TaskHandler) CheckInTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var request dto.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	result, err := h.TaskService.CheckIn(ctx, tc, id, task.CheckInResponse(request.Response))
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Check-in применён",
		zap.String("task_id", id.String()),
		zap.String("response", request.Response),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK,
		toPayload("task", dto.FromTask(result.Task)),
		toPayload("rescheduled_ids", result.RescheduledID))
}

func (h *TaskHandler) RescheduleTask(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var request dto.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}
	if request.DeltaHours == 0 {
		responseWithError(w, http.StatusBadRequest, "delta_hours не может быть нулём")
		return
	}

	tc, ctx := tenantFromRequest(r)
	delta := time.Duration(request.DeltaHours * float64(time.Hour))
	ids, err := h.TaskService.RescheduleTask(ctx, tc, id, delta)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	responseWithJSON(w, http.StatusOK, toPayload("rescheduled_ids", ids))
}

func (h *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.Health.HealthCheck(r.Context()); err != nil {
		responseWithError(w, http.StatusServiceUnavailable, "хранилище недоступно")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("status", "ok"))
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		logger.Warn("HTTP: Неверный id в пути",
			zap.String("raw", chi.URLParam(r, "id")),
			zap.String("client_ip", r.RemoteAddr))
		responseWithError(w, http.StatusBadRequest, "id должен быть UUID")
		return uuid.Nil, false
	}
	return id, true
}
