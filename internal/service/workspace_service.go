package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/models/workspace"
	rep "brianhub/internal/repository"
	"brianhub/internal/repository/inter"
	"brianhub/internal/tenant"
)

// WorkspaceStore - воркспейсы плюс журнал изменений: новые воркспейсы
// засеваются справочниками через change log.
type WorkspaceStore interface {
	inter.WorkspaceRepository
	RecordChange(ctx context.Context, c *change.Change) error
}

// Справочники нового воркспейса. Клиент собирает их из журнала на pull,
// kind связывает пользовательский статус со встроенной машиной.
var defaultStatuses = []map[string]any{
	{"key": string(task.StatusInbox), "label": "Inbox", "kind": string(task.StatusInbox), "sort_order": 10},
	{"key": string(task.StatusPlanned), "label": "Planned", "kind": string(task.StatusPlanned), "sort_order": 20},
	{"key": string(task.StatusInProgress), "label": "In Progress", "kind": string(task.StatusInProgress), "sort_order": 30},
	{"key": string(task.StatusWaiting), "label": "Waiting", "kind": string(task.StatusWaiting), "sort_order": 40},
	{"key": string(task.StatusBlocked), "label": "Blocked", "kind": string(task.StatusBlocked), "sort_order": 50},
	{"key": string(task.StatusDone), "label": "Done", "kind": string(task.StatusDone), "sort_order": 60},
	{"key": string(task.StatusCanceled), "label": "Canceled", "kind": string(task.StatusCanceled), "sort_order": 70},
}

var defaultTaskTypes = []map[string]any{
	{"name": "General", "is_default": true},
	{"name": "Bill Due", "is_default": true},
}

type WorkspaceService struct {
	repo WorkspaceStore
}

func NewWorkspaceService(repo WorkspaceStore) WorkspaceService {
	return WorkspaceService{repo: repo}
}

func (s *WorkspaceService) CreateWorkspace(ctx context.Context, tc tenant.Context, name, wsType string) (*workspace.Workspace, error) {
	if err := tc.Require(); err != nil {
		return nil, NewTenantRequired()
	}
	if name == "" {
		return nil, NewValidationError("name", "пустое название")
	}
	if wsType == "" {
		wsType = "personal"
	}

	w := &workspace.Workspace{
		ID:    uuid.New(),
		OrgID: tc.OrgID,
		Name:  name,
		Type:  wsType,
	}
	if err := s.repo.CreateWorkspace(ctx, w); err != nil {
		return nil, fmt.Errorf("создание воркспейса: %w", err)
	}

	if err := s.seedDefaults(ctx, w.ID); err != nil {
		logger.Warn("Service: Не удалось засеять справочники воркспейса",
			zap.String("workspace_id", w.ID.String()), zap.Error(err))
	}
	return w, nil
}

// seedDefaults записывает стартовые статусы и типы задач в журнал.
func (s *WorkspaceService) seedDefaults(ctx context.Context, workspaceID uuid.UUID) error {
	for _, status := range defaultStatuses {
		if err := s.recordSeed(ctx, workspaceID, change.EntityStatus, status); err != nil {
			return err
		}
	}
	for _, taskType := range defaultTaskTypes {
		if err := s.recordSeed(ctx, workspaceID, change.EntityTaskType, taskType); err != nil {
			return err
		}
	}
	return nil
}

func (s *WorkspaceService) recordSeed(ctx context.Context, workspaceID uuid.UUID, entityType change.EntityType, payload map[string]any) error {
	return s.repo.RecordChange(ctx, &change.Change{
		WorkspaceID: workspaceID.String(),
		EntityType:  entityType,
		EntityID:    uuid.NewString(),
		Action:      change.ActionCreate,
		Payload:     payload,
		ClientID:    tenant.ClientID(ctx),
	})
}

func (s *WorkspaceService) GetWorkspace(ctx context.Context, tc tenant.Context, id uuid.UUID) (*workspace.Workspace, error) {
	if err := tc.Require(); err != nil {
		return nil, NewTenantRequired()
	}

	w, err := s.repo.GetWorkspace(ctx, tc.OrgID, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("воркспейс", id.String())
		}
		return nil, fmt.Errorf("получение воркспейса: %w", err)
	}
	return w, nil
}

func (s *WorkspaceService) ListWorkspaces(ctx context.Context, tc tenant.Context) ([]*workspace.Workspace, error) {
	if err := tc.Require(); err != nil {
		return nil, NewTenantRequired()
	}

	workspaces, err := s.repo.ListWorkspaces(ctx, tc.OrgID)
	if err != nil {
		return nil, fmt.Errorf("получение воркспейсов: %w", err)
	}
	return workspaces, nil
}

func (s *WorkspaceService) RenameWorkspace(ctx context.Context, tc tenant.Context, id uuid.UUID, name string) (*workspace.Workspace, error) {
	if err := tc.Require(); err != nil {
		return nil, NewTenantRequired()
	}
	if name == "" {
		return nil, NewValidationError("name", "пустое название")
	}

	w, err := s.GetWorkspace(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	w.Name = name
	if err := s.repo.UpdateWorkspace(ctx, w); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("воркспейс", id.String())
		}
		return nil, fmt.Errorf("обновление воркспейса: %w", err)
	}
	return w, nil
}

func (s *WorkspaceService) ArchiveWorkspace(ctx context.Context, tc tenant.Context, id uuid.UUID) error {
	if err := tc.Require(); err != nil {
		return NewTenantRequired()
	}

	if err := s.repo.ArchiveWorkspace(ctx, tc.OrgID, id); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return NewNotFound("воркспейс", id.String())
		}
		return fmt.Errorf("архивация воркспейса: %w", err)
	}
	return nil
}
