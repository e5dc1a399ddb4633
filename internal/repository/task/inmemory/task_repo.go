// Package inmemory - хранилище для тестов и запуска без PostgreSQL.
// Вместо таблицы замыкания потомки и циклы считаются пакетом tree по
// parent-связям на каждом вызове.
package inmemory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/models/workspace"
	repo "brianhub/internal/repository"
	"brianhub/internal/repository/inter"
	"brianhub/internal/tenant"
	"brianhub/internal/tree"
)

type depKey struct {
	taskID      uuid.UUID
	dependsOnID uuid.UUID
}

type TaskStorage struct {
	mtx        *sync.RWMutex
	tasks      map[uuid.UUID]*task.Task
	workspaces map[uuid.UUID]*workspace.Workspace
	deps       map[depKey]*task.Dependency
	changes    []change.Change
	seq        int64
}

func NewTaskStorage() *TaskStorage {
	return &TaskStorage{
		mtx:        &sync.RWMutex{},
		tasks:      make(map[uuid.UUID]*task.Task),
		workspaces: make(map[uuid.UUID]*workspace.Workspace),
		deps:       make(map[depKey]*task.Dependency),
	}
}

func (s *TaskStorage) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *TaskStorage) Close() {}

func (s *TaskStorage) logChange(ctx context.Context, workspaceID uuid.UUID, entityType change.EntityType, entityID string, action change.Action, payload map[string]any) {
	s.seq++
	s.changes = append(s.changes, change.Change{
		Seq:         s.seq,
		WorkspaceID: workspaceID.String(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Payload:     payload,
		ClientID:    tenant.ClientID(ctx),
		CreatedAt:   time.Now(),
	})
}

func (s *TaskStorage) Create(ctx context.Context, t *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t.CreatedAt = time.Now()
	s.tasks[t.ID] = t.Clone()
	// в журнал уходит полная строка: клиент на pull вставляет её как есть
	s.logChange(ctx, t.WorkspaceID, change.EntityTask, t.ID.String(), change.ActionCreate, taskPayload(t))
	return nil
}

// taskPayload сериализует задачу в карту для записи create в журнал.
func taskPayload(t *task.Task) map[string]any {
	raw, err := json.Marshal(t)
	if err != nil {
		return map[string]any{}
	}
	payload := map[string]any{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

func (s *TaskStorage) Update(ctx context.Context, t *task.Task, payload map[string]any) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.tasks[t.ID]
	if !ok || existing.WorkspaceID != t.WorkspaceID {
		return repo.ErrNotFound
	}

	now := time.Now()
	t.UpdatedAt = &now
	s.tasks[t.ID] = t.Clone()
	s.logChange(ctx, t.WorkspaceID, change.EntityTask, t.ID.String(), change.ActionUpdate, payload)
	return nil
}

func (s *TaskStorage) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	t, ok := s.tasks[id]
	if !ok || t.WorkspaceID != workspaceID {
		return nil, repo.ErrNotFound
	}
	return t.Clone(), nil
}

func (s *TaskStorage) List(ctx context.Context, workspaceID uuid.UUID, filter inter.ListFilter) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	tasks := []*task.Task{}
	for _, t := range s.tasks {
		if t.WorkspaceID != workspaceID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		if filter.TaskType != nil && t.TaskType != *filter.TaskType {
			continue
		}
		if filter.ProjectID != nil && (t.ProjectID == nil || *t.ProjectID != *filter.ProjectID) {
			continue
		}
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(t.Title), needle) &&
				!strings.Contains(strings.ToLower(t.DescriptionMD), needle) {
				continue
			}
		}
		tasks = append(tasks, t.Clone())
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].SortOrder != tasks[j].SortOrder {
			return tasks[i].SortOrder < tasks[j].SortOrder
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit
	if offset >= len(tasks) {
		return []*task.Task{}, nil
	}
	end := offset + limit
	if end > len(tasks) {
		end = len(tasks)
	}
	return tasks[offset:end], nil
}

func (s *TaskStorage) workspaceTasks(workspaceID uuid.UUID) []*task.Task {
	tasks := []*task.Task{}
	for _, t := range s.tasks {
		if t.WorkspaceID == workspaceID {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func (s *TaskStorage) descendantIDs(rootID uuid.UUID) []uuid.UUID {
	root, ok := s.tasks[rootID]
	if !ok {
		return nil
	}

	ids := []uuid.UUID{}
	for _, edge := range tree.ComputeClosure(s.workspaceTasks(root.WorkspaceID)) {
		if edge.AncestorID == rootID {
			ids = append(ids, edge.DescendantID)
		}
	}
	return ids
}

func (s *TaskStorage) GetSubtree(ctx context.Context, workspaceID, rootID uuid.UUID) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	root, ok := s.tasks[rootID]
	if !ok || root.WorkspaceID != workspaceID {
		return nil, repo.ErrNotFound
	}

	tasks := []*task.Task{}
	for _, id := range s.descendantIDs(rootID) {
		tasks = append(tasks, s.tasks[id].Clone())
	}
	return tasks, nil
}

func (s *TaskStorage) GetDescendantIDs(ctx context.Context, rootID uuid.UUID) ([]uuid.UUID, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.descendantIDs(rootID), nil
}

func (s *TaskStorage) Delete(ctx context.Context, workspaceID, id uuid.UUID) ([]uuid.UUID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	root, ok := s.tasks[id]
	if !ok || root.WorkspaceID != workspaceID {
		return nil, repo.ErrNotFound
	}

	ids := s.descendantIDs(id)
	idStrings := make([]string, len(ids))
	for i, deleted := range ids {
		delete(s.tasks, deleted)
		idStrings[i] = deleted.String()
	}

	s.logChange(ctx, workspaceID, change.EntityTask, id.String(), change.ActionDelete, map[string]any{"ids": idStrings})
	return ids, nil
}

func (s *TaskStorage) Reparent(ctx context.Context, workspaceID, id uuid.UUID, newParentID *uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.WorkspaceID != workspaceID {
		return repo.ErrNotFound
	}

	next, err := tree.Reparent(s.workspaceTasks(workspaceID), id, newParentID)
	if err != nil {
		switch err {
		case tree.ErrSelfParent:
			return repo.ErrSelfParent
		case tree.ErrCycleDetected:
			return repo.ErrCycleDetected
		case tree.ErrTaskNotFound, tree.ErrParentNotFound:
			return repo.ErrNotFound
		}
		return err
	}

	now := time.Now()
	for _, moved := range next {
		if moved.ID == id {
			moved.UpdatedAt = &now
		}
		s.tasks[moved.ID] = moved
	}

	payload := map[string]any{"parent_id": nil}
	if newParentID != nil {
		payload["parent_id"] = newParentID.String()
	}
	s.logChange(ctx, workspaceID, change.EntityTask, id.String(), change.ActionReparent, payload)
	return nil
}

func (s *TaskStorage) RescheduleSubtree(ctx context.Context, workspaceID, rootID uuid.UUID, delta time.Duration) ([]uuid.UUID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	root, ok := s.tasks[rootID]
	if !ok || root.WorkspaceID != workspaceID {
		return nil, repo.ErrNotFound
	}

	now := time.Now()
	ids := s.descendantIDs(rootID)
	idStrings := make([]string, len(ids))
	for i, id := range ids {
		t := s.tasks[id]
		shiftTime(&t.StartAt, delta)
		shiftTime(&t.DueAt, delta)
		shiftTime(&t.NextCheckinAt, delta)
		t.UpdatedAt = &now
		idStrings[i] = id.String()
	}

	s.logChange(ctx, workspaceID, change.EntityTask, rootID.String(), change.ActionReschedule,
		map[string]any{"ids": idStrings, "delta_seconds": delta.Seconds()})
	return ids, nil
}

func shiftTime(t **time.Time, delta time.Duration) {
	if *t == nil {
		return
	}
	shifted := (*t).Add(delta)
	*t = &shifted
}

func (s *TaskStorage) RecordCheckin(ctx context.Context, t *task.Task, response task.CheckInResponse) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.tasks[t.ID]
	if !ok || existing.WorkspaceID != t.WorkspaceID {
		return repo.ErrNotFound
	}

	now := time.Now()
	t.UpdatedAt = &now
	s.tasks[t.ID] = t.Clone()

	s.logChange(ctx, t.WorkspaceID, change.EntityTask, t.ID.String(), change.ActionCheckIn,
		map[string]any{"response": string(response), "status": string(t.Status)})
	return nil
}

func (s *TaskStorage) GetDueCheckins(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	due := []*task.Task{}
	for _, t := range s.tasks {
		if t.NextCheckinAt == nil || t.NextCheckinAt.After(deadline) {
			continue
		}
		// контрольная точка уже отработана напоминанием
		if t.ReminderSentAt != nil && !t.ReminderSentAt.Before(*t.NextCheckinAt) {
			continue
		}
		if t.Status == task.StatusDone || t.Status == task.StatusCanceled {
			continue
		}
		due = append(due, t.Clone())
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (s *TaskStorage) MarkReminderSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			stamped := at
			t.ReminderSentAt = &stamped
		}
	}
	return nil
}

func (s *TaskStorage) AddDependency(ctx context.Context, dep *task.Dependency) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := depKey{taskID: dep.TaskID, dependsOnID: dep.DependsOnID}
	if _, ok := s.deps[key]; ok {
		return nil
	}
	dep.CreatedAt = time.Now()
	s.deps[key] = dep

	s.logChange(ctx, dep.WorkspaceID, change.EntityDependency, dep.TaskID.String(), change.ActionCreate,
		map[string]any{"task_id": dep.TaskID.String(), "depends_on_id": dep.DependsOnID.String()})
	return nil
}

func (s *TaskStorage) RemoveDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := depKey{taskID: taskID, dependsOnID: dependsOnID}
	dep, ok := s.deps[key]
	if !ok {
		return nil
	}
	delete(s.deps, key)

	s.logChange(ctx, dep.WorkspaceID, change.EntityDependency, taskID.String(), change.ActionDelete,
		map[string]any{"task_id": taskID.String(), "depends_on_id": dependsOnID.String()})
	return nil
}

func (s *TaskStorage) ListDependencies(ctx context.Context, workspaceID uuid.UUID, taskID *uuid.UUID) ([]*task.Dependency, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	deps := []*task.Dependency{}
	for _, dep := range s.deps {
		if dep.WorkspaceID != workspaceID {
			continue
		}
		if taskID != nil && dep.TaskID != *taskID {
			continue
		}
		deps = append(deps, dep)
	}
	sort.Slice(deps, func(i, j int) bool {
		return deps[i].CreatedAt.Before(deps[j].CreatedAt)
	})
	return deps, nil
}

func (s *TaskStorage) HasIncompleteDependencies(ctx context.Context, taskID uuid.UUID) (bool, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	for key := range s.deps {
		if key.taskID != taskID {
			continue
		}
		blocker, ok := s.tasks[key.dependsOnID]
		if !ok {
			continue
		}
		if blocker.Status != task.StatusDone && blocker.Status != task.StatusCanceled {
			return true, nil
		}
	}
	return false, nil
}

func (s *TaskStorage) RecordChange(ctx context.Context, c *change.Change) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.seq++
	c.Seq = s.seq
	c.CreatedAt = time.Now()
	s.changes = append(s.changes, *c)
	return nil
}

func (s *TaskStorage) PullChanges(ctx context.Context, workspaceID uuid.UUID, cursor int64, limit int) ([]change.Change, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	changes := []change.Change{}
	for _, c := range s.changes {
		if c.WorkspaceID != workspaceID.String() || c.Seq <= cursor {
			continue
		}
		changes = append(changes, c)
		if len(changes) == limit {
			break
		}
	}
	return changes, nil
}

func (s *TaskStorage) CreateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	w.CreatedAt = time.Now()
	stored := *w
	s.workspaces[w.ID] = &stored

	s.logChange(ctx, w.ID, change.EntityWorkspace, w.ID.String(), change.ActionCreate,
		map[string]any{"name": w.Name, "type": w.Type})
	return nil
}

func (s *TaskStorage) UpdateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existing, ok := s.workspaces[w.ID]
	if !ok || existing.OrgID != w.OrgID {
		return repo.ErrNotFound
	}

	now := time.Now()
	w.UpdatedAt = &now
	stored := *w
	s.workspaces[w.ID] = &stored

	s.logChange(ctx, w.ID, change.EntityWorkspace, w.ID.String(), change.ActionUpdate,
		map[string]any{"name": w.Name, "type": w.Type, "archived": w.Archived})
	return nil
}

func (s *TaskStorage) GetWorkspace(ctx context.Context, orgID string, id uuid.UUID) (*workspace.Workspace, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	w, ok := s.workspaces[id]
	if !ok || w.OrgID != orgID {
		return nil, repo.ErrNotFound
	}
	// копия: чужие мутации не должны трогать хранимое состояние
	cp := *w
	return &cp, nil
}

func (s *TaskStorage) ListWorkspaces(ctx context.Context, orgID string) ([]*workspace.Workspace, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	workspaces := []*workspace.Workspace{}
	for _, w := range s.workspaces {
		if w.OrgID != orgID || w.Archived {
			continue
		}
		cp := *w
		workspaces = append(workspaces, &cp)
	}
	sort.Slice(workspaces, func(i, j int) bool {
		return workspaces[i].CreatedAt.Before(workspaces[j].CreatedAt)
	})
	return workspaces, nil
}

func (s *TaskStorage) ArchiveWorkspace(ctx context.Context, orgID string, id uuid.UUID) error {
	w, err := s.GetWorkspace(ctx, orgID, id)
	if err != nil {
		return err
	}
	w.Archived = true
	return s.UpdateWorkspace(ctx, w)
}
