package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/repository/inter"
	"brianhub/internal/tenant"
)

// SyncService - серверная сторона офлайн-синхронизации: приём очереди
// клиента и выдача хвоста change log по курсору.
type SyncService struct {
	repo        inter.TaskRepository
	tasks       *TaskService
	waitingDays int
	pullBatch   int
}

func NewSyncService(repo inter.TaskRepository, tasks *TaskService, waitingDays, pullBatch int) SyncService {
	if pullBatch <= 0 {
		pullBatch = 500
	}
	return SyncService{
		repo:        repo,
		tasks:       tasks,
		waitingDays: waitingDays,
		pullBatch:   pullBatch,
	}
}

// Push проигрывает очередь клиента строго по порядку. Изменения одной
// сущности некоммутативны, поэтому первый сбой останавливает реплей:
// клиент повторит хвост целиком.
func (s *SyncService) Push(ctx context.Context, tc tenant.Context, changes []change.Change) (int, error) {
	if _, err := requireWorkspace(tc); err != nil {
		return 0, err
	}

	applied := 0
	for _, c := range changes {
		if err := s.applyChange(ctx, tc, c); err != nil {
			logger.Warn("Sync: Реплей остановлен на изменении",
				zap.Int64("seq", c.Seq),
				zap.String("entity_id", c.EntityID),
				zap.String("action", string(c.Action)),
				zap.Error(err))
			return applied, err
		}
		applied++
	}
	return applied, nil
}

func (s *SyncService) applyChange(ctx context.Context, tc tenant.Context, c change.Change) error {
	if c.EntityType != change.EntityTask {
		// сущности без серверной таблицы проходят транзитом через журнал
		return s.repo.RecordChange(ctx, &change.Change{
			WorkspaceID: tc.WorkspaceID,
			EntityType:  c.EntityType,
			EntityID:    c.EntityID,
			Action:      c.Action,
			Payload:     c.Payload,
			ClientID:    tenant.ClientID(ctx),
		})
	}

	id, err := uuid.Parse(c.EntityID)
	if err != nil {
		return NewValidationError("entity_id", "не UUID")
	}

	switch c.Action {
	case change.ActionCreate:
		return s.applyCreate(ctx, tc, id, c.Payload)

	case change.ActionUpdate:
		_, err := s.tasks.UpdateTask(ctx, tc, id, task.Patch(c.Payload))
		return err

	case change.ActionDelete:
		_, err := s.tasks.DeleteTask(ctx, tc, id)
		// удаление идемпотентно: задача могла уйти другим клиентом
		var be *BusinessError
		if errors.As(err, &be) && be.Code == "NOT_FOUND" {
			return nil
		}
		return err

	case change.ActionReparent:
		var parentID *uuid.UUID
		if raw, ok := c.Payload["parent_id"].(string); ok && raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				return NewValidationError("parent_id", "не UUID")
			}
			parentID = &parsed
		}
		return s.tasks.ReparentTask(ctx, tc, id, parentID)

	case change.ActionCheckIn:
		response, _ := c.Payload["response"].(string)
		_, err := s.tasks.CheckIn(ctx, tc, id, task.CheckInResponse(response))
		return err

	case change.ActionReschedule:
		seconds, _ := c.Payload["delta_seconds"].(float64)
		_, err := s.tasks.RescheduleTask(ctx, tc, id, time.Duration(seconds)*time.Second)
		return err
	}

	return NewValidationError("action", fmt.Sprintf("неизвестное действие %q", c.Action))
}

// applyCreate сохраняет id, выбранный клиентом офлайн: иначе ссылки
// parent_id в его очереди потеряют смысл.
func (s *SyncService) applyCreate(ctx context.Context, tc tenant.Context, id uuid.UUID, payload map[string]any) error {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return err
	}

	base := &task.Task{
		ID:          id,
		WorkspaceID: workspaceID,
		Status:      task.StatusInbox,
		Priority:    task.PriorityMedium,
		TaskType:    "task",
	}
	merged, err := task.Patch(payload).Merge(base)
	if err != nil {
		return NewValidationError("payload", err.Error())
	}

	if merged.Title == "" {
		return NewValidationError("title", "пустое название")
	}
	if !task.ValidStatus(merged.Status) {
		return NewValidationError("status", fmt.Sprintf("неизвестный статус %q", merged.Status))
	}

	if raw, ok := payload["parent_id"].(string); ok && raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return NewValidationError("parent_id", "не UUID")
		}
		merged.ParentID = &parsed
	}

	merged = task.ApplyStatusSideEffects(merged, time.Now(), s.waitingDays, false, false)
	return s.repo.Create(ctx, merged)
}

// Pull отдаёт хвост журнала строго после cursor вместе с новым курсором.
func (s *SyncService) Pull(ctx context.Context, tc tenant.Context, cursor int64) ([]change.Change, int64, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, cursor, err
	}

	changes, err := s.repo.PullChanges(ctx, workspaceID, cursor, s.pullBatch)
	if err != nil {
		return nil, cursor, fmt.Errorf("чтение change log: %w", err)
	}

	next := cursor
	for _, c := range changes {
		if c.Seq > next {
			next = c.Seq
		}
	}
	return changes, next, nil
}
