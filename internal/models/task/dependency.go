package task

import (
	"time"

	"github.com/google/uuid"
)

// Dependency - ребро "task_id зависит от depends_on_id". Циклы здесь не
// запрещаются на уровне хранилища; завершение блокируется на границе сервиса.
type Dependency struct {
	TaskID      uuid.UUID `json:"task_id" db:"task_id"`
	DependsOnID uuid.UUID `json:"depends_on_id" db:"depends_on_id"`
	WorkspaceID uuid.UUID `json:"workspace_id" db:"workspace_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
