package dto

import (
	"time"

	"github.com/google/uuid"

	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/models/workspace"
	"brianhub/internal/tree"
)

type CreateTaskRequest struct {
	Title         string               `json:"title"`
	DescriptionMD string               `json:"description_md"`
	Status        task.Status          `json:"status,omitempty"`
	Priority      task.Priority        `json:"priority,omitempty"`
	Urgency       bool                 `json:"urgency,omitempty"`
	TaskType      string               `json:"task_type,omitempty"`
	ParentID      *uuid.UUID           `json:"parent_id,omitempty"`
	ProjectID     *uuid.UUID           `json:"project_id,omitempty"`
	StartAt       *time.Time           `json:"start_at,omitempty"`
	DueAt         *time.Time           `json:"due_at,omitempty"`
	Recurrence    *task.RecurrenceInfo `json:"recurrence,omitempty"`
}

type ReparentRequest struct {
	ParentID *uuid.UUID `json:"parent_id"`
}

type CheckInRequest struct {
	Response string `json:"response"`
}

type RescheduleRequest struct {
	DeltaHours float64 `json:"delta_hours"`
}

type DependencyRequest struct {
	TaskID      uuid.UUID `json:"task_id"`
	DependsOnID uuid.UUID `json:"depends_on_id"`
}

type CreateWorkspaceRequest struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type RenameWorkspaceRequest struct {
	Name string `json:"name"`
}

type PushRequest struct {
	Changes []change.Change `json:"changes"`
}

type PushResponse struct {
	Applied int `json:"applied"`
}

type PullResponse struct {
	Changes    []change.Change `json:"changes"`
	NextCursor int64           `json:"next_cursor"`
}

type TaskResponse struct {
	*task.Task
}

func FromTask(t *task.Task) TaskResponse {
	return TaskResponse{Task: t}
}

func FromTaskList(tasks []*task.Task) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t)
	}
	return result
}

// TreeNodeResponse - задача с вложенными детьми, уже отсортированными
// компаратором приоритета.
type TreeNodeResponse struct {
	*task.Task
	Children []TreeNodeResponse `json:"children"`
}

func FromTree(nodes []*tree.Node) []TreeNodeResponse {
	result := make([]TreeNodeResponse, len(nodes))
	for i, node := range nodes {
		result[i] = TreeNodeResponse{
			Task:     node.Task,
			Children: FromTree(node.Children),
		}
	}
	return result
}

type WorkspaceResponse struct {
	*workspace.Workspace
}

func FromWorkspace(w *workspace.Workspace) WorkspaceResponse {
	return WorkspaceResponse{Workspace: w}
}

func FromWorkspaceList(workspaces []*workspace.Workspace) []WorkspaceResponse {
	result := make([]WorkspaceResponse, len(workspaces))
	for i, w := range workspaces {
		result[i] = FromWorkspace(w)
	}
	return result
}
