package inter

import (
	"context"
	"time"

	"github.com/google/uuid"

	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/models/workspace"
)

type ListFilter struct {
	Status    *task.Status
	TaskType  *string
	ProjectID *uuid.UUID
	Search    string
	Page      int
	Limit     int
}

type TaskRepository interface {
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, t *task.Task, payload map[string]any) error
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*task.Task, error)
	List(ctx context.Context, workspaceID uuid.UUID, filter ListFilter) ([]*task.Task, error)
	GetSubtree(ctx context.Context, workspaceID, rootID uuid.UUID) ([]*task.Task, error)
	GetDescendantIDs(ctx context.Context, rootID uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, workspaceID, id uuid.UUID) ([]uuid.UUID, error)
	Reparent(ctx context.Context, workspaceID, id uuid.UUID, newParentID *uuid.UUID) error
	RescheduleSubtree(ctx context.Context, workspaceID, rootID uuid.UUID, delta time.Duration) ([]uuid.UUID, error)
	RecordCheckin(ctx context.Context, t *task.Task, response task.CheckInResponse) error
	GetDueCheckins(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error)
	MarkReminderSent(ctx context.Context, ids []uuid.UUID, at time.Time) error

	AddDependency(ctx context.Context, dep *task.Dependency) error
	RemoveDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error
	ListDependencies(ctx context.Context, workspaceID uuid.UUID, taskID *uuid.UUID) ([]*task.Dependency, error)
	HasIncompleteDependencies(ctx context.Context, taskID uuid.UUID) (bool, error)

	RecordChange(ctx context.Context, c *change.Change) error
	PullChanges(ctx context.Context, workspaceID uuid.UUID, cursor int64, limit int) ([]change.Change, error)
}

type WorkspaceRepository interface {
	CreateWorkspace(ctx context.Context, w *workspace.Workspace) error
	UpdateWorkspace(ctx context.Context, w *workspace.Workspace) error
	GetWorkspace(ctx context.Context, orgID string, id uuid.UUID) (*workspace.Workspace, error)
	ListWorkspaces(ctx context.Context, orgID string) ([]*workspace.Workspace, error)
	ArchiveWorkspace(ctx context.Context, orgID string, id uuid.UUID) error
}
