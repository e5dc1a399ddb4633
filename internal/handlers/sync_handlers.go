package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"brianhub/internal/handlers/dto"
	"brianhub/internal/logger"
	"brianhub/internal/service"
)

type SyncHandler struct {
	SyncService *service.SyncService
}

func NewSyncHandler(syncService *service.SyncService) SyncHandler {
	return SyncHandler{
		SyncService: syncService,
	}
}

// Push принимает очередь клиента. При частичном сбое возвращаем число
// применённых изменений и 409: клиент перезапишет хвост и повторит.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if !checkContentType(r, "application/json") {
		responseWithError(w, http.StatusUnsupportedMediaType, "Content-Type должен быть application/json")
		return
	}

	var request dto.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		responseWithError(w, http.StatusBadRequest, "неверное тело запроса: "+err.Error())
		return
	}

	tc, ctx := tenantFromRequest(r)
	applied, err := h.SyncService.Push(ctx, tc, request.Changes)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка реплея очереди", err,
			zap.Int("applied", applied),
			zap.Int("total", len(request.Changes)))
		responseWithJSON(w, http.StatusConflict,
			toPayload("applied", applied),
			toPayload("error", err.Error()))
		return
	}

	logger.Info("HTTP_OUT: Очередь применена",
		zap.Int("applied", applied),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK, toPayload("applied", applied))
}

func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	cursor, err := strconv.ParseInt(r.URL.Query().Get("cursor"), 10, 64)
	if err != nil && r.URL.Query().Get("cursor") != "" {
		responseWithError(w, http.StatusBadRequest, "неверное значение cursor")
		return
	}

	tc, ctx := tenantFromRequest(r)
	changes, next, err := h.SyncService.Pull(ctx, tc, cursor)
	if err != nil {
		if handleBusinessError(w, err) {
			return
		}
		logger.Error("HTTP: Ошибка Service", err)
		responseWithError(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.Info("HTTP_OUT: Изменения выданы",
		zap.Int("count", len(changes)),
		zap.Int64("next_cursor", next),
		zap.Duration("ms", time.Since(start)))
	responseWithJSON(w, http.StatusOK,
		toPayload("changes", changes),
		toPayload("next_cursor", next))
}
