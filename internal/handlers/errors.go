package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/service"
)

func handleBusinessError(w http.ResponseWriter, err error) bool {
	var businessErr *service.BusinessError
	if errors.As(err, &businessErr) {
		statusCode := mapBusinessErrorToHTTP(businessErr.Code)

		logger.Warn("HTTP: Бизнес-ошибка",
			zap.String("error_code", businessErr.Code),
			zap.Int("http_status", statusCode))

		responseWithJSON(w, statusCode,
			toPayload("error", businessErr.Code),
			toPayload("message", businessErr.Message),
			toPayload("details", businessErr.Details),
		)
		return true
	}
	return false
}

func mapBusinessErrorToHTTP(code string) int {
	switch code {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "VALIDATION_ERROR", "UNSUPPORTED_RESPONSE":
		return http.StatusBadRequest
	case "INVALID_TRANSITION", "SELF_PARENT", "CYCLE_DETECTED", "DEPENDENCIES_INCOMPLETE":
		return http.StatusConflict
	case "TENANT_REQUIRED":
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
