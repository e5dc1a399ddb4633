package service

import "fmt"

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	BusErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		BusErr.Details[detail.Key] = detail.Payload
	}

	return BusErr
}

func NewNotFound(resource string, id string) *BusinessError {
	return &BusinessError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewInvalidTransition(from, to string) *BusinessError {
	return &BusinessError{
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("Переход статуса %s -> %s не разрешён", from, to),
		Details: map[string]any{
			"from": from,
			"to":   to,
		},
	}
}

func NewUnsupportedResponse(response string) *BusinessError {
	return &BusinessError{
		Code:    "UNSUPPORTED_RESPONSE",
		Message: fmt.Sprintf("Неизвестный ответ на check-in: %q", response),
		Details: map[string]any{
			"response": response,
		},
	}
}

func NewSelfParent(id string) *BusinessError {
	return &BusinessError{
		Code:    "SELF_PARENT",
		Message: "Задача не может быть родителем самой себя",
		Details: map[string]any{
			"id": id,
		},
	}
}

func NewCycleDetected(id, parentID string) *BusinessError {
	return &BusinessError{
		Code:    "CYCLE_DETECTED",
		Message: "Перенос создал бы цикл в иерархии",
		Details: map[string]any{
			"id":        id,
			"parent_id": parentID,
		},
	}
}

func NewDependenciesIncomplete(id string) *BusinessError {
	return &BusinessError{
		Code:    "DEPENDENCIES_INCOMPLETE",
		Message: "У задачи остались незавершённые зависимости",
		Details: map[string]any{
			"id": id,
		},
	}
}

func NewTenantRequired() *BusinessError {
	return &BusinessError{
		Code:    "TENANT_REQUIRED",
		Message: "Запрос без скоупа арендатора отклонён",
		Details: map[string]any{},
	}
}
