// здесь происходит проверка ошибок бизнес-логики
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/task"
	rep "brianhub/internal/repository"
	"brianhub/internal/repository/inter"
	"brianhub/internal/tenant"
	"brianhub/internal/tree"
)

type TaskService struct {
	repo        inter.TaskRepository
	waitingDays int
}

func NewTaskService(repo inter.TaskRepository, waitingDays int) TaskService {
	if waitingDays <= 0 {
		waitingDays = task.DefaultWaitingDays
	}
	return TaskService{
		repo:        repo,
		waitingDays: waitingDays,
	}
}

type CreateTaskInput struct {
	Title         string
	DescriptionMD string
	Status        task.Status
	Priority      task.Priority
	Urgency       bool
	TaskType      string
	ParentID      *uuid.UUID
	ProjectID     *uuid.UUID
	StartAt       *time.Time
	DueAt         *time.Time
	Recurrence    *task.RecurrenceInfo
}

func (s *TaskService) CreateTask(ctx context.Context, tc tenant.Context, input CreateTaskInput) (*task.Task, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	if input.Title == "" {
		return nil, NewValidationError("title", "пустое название")
	}

	status := input.Status
	if status == "" {
		status = task.StatusInbox
	}
	if !task.ValidStatus(status) {
		return nil, NewValidationError("status", fmt.Sprintf("неизвестный статус %q", status))
	}

	priority := input.Priority
	if priority == "" {
		priority = task.PriorityMedium
	}
	if !task.ValidPriority(priority) {
		return nil, NewValidationError("priority", fmt.Sprintf("неизвестный приоритет %q", priority))
	}

	taskType := input.TaskType
	if taskType == "" {
		taskType = "task"
	}

	if input.Recurrence != nil && !task.ValidRecurrenceUnit(input.Recurrence.Unit) {
		return nil, NewValidationError("recurrence", fmt.Sprintf("неизвестная единица %q", input.Recurrence.Unit))
	}

	t := &task.Task{
		ID:            uuid.New(),
		WorkspaceID:   workspaceID,
		ParentID:      input.ParentID,
		ProjectID:     input.ProjectID,
		Title:         input.Title,
		DescriptionMD: input.DescriptionMD,
		Status:        status,
		Priority:      priority,
		Urgency:       input.Urgency,
		TaskType:      taskType,
		StartAt:       input.StartAt,
		DueAt:         input.DueAt,
		Recurrence:    input.Recurrence,
	}

	t = task.ApplyStatusSideEffects(t, time.Now(), s.waitingDays, false, false)

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("создание задачи: %w", err)
	}
	return t, nil
}

func (s *TaskService) GetTask(ctx context.Context, tc tenant.Context, id uuid.UUID) (*task.Task, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	t, err := s.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.String("target_id", id.String()))
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, tc tenant.Context, filter inter.ListFilter) ([]*task.Task, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repo.List(ctx, workspaceID, filter)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// GetTaskTree отдаёт поддерево в виде дерева, уровни отсортированы
// компаратором приоритета.
func (s *TaskService) GetTaskTree(ctx context.Context, tc tenant.Context, rootID uuid.UUID) ([]*tree.Node, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	tasks, err := s.repo.GetSubtree(ctx, workspaceID, rootID)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", rootID.String())
		}
		return nil, fmt.Errorf("получение поддерева: %w", err)
	}

	return tree.BuildAdjacency(tasks, task.ComparePriority), nil
}

// UpdateTask накладывает patch, прогоняет машину статусов и проверяет
// зависимости перед завершением. В change log уходит исходный patch.
func (s *TaskService) UpdateTask(ctx context.Context, tc tenant.Context, id uuid.UUID, patch task.Patch) (*task.Task, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.String("target_id", id.String()))
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	merged, err := patch.Merge(existing)
	if err != nil {
		return nil, NewValidationError("patch", err.Error())
	}

	wasDone := existing.Status == task.StatusDone
	if merged.Status != existing.Status {
		if !task.ValidStatus(merged.Status) {
			return nil, NewValidationError("status", fmt.Sprintf("неизвестный статус %q", merged.Status))
		}
		transitioned, err := task.Transition(existing, merged.Status)
		if err != nil {
			var invalid *task.InvalidTransitionError
			if errors.As(err, &invalid) {
				return nil, NewInvalidTransition(string(invalid.From), string(invalid.To))
			}
			return nil, err
		}
		// остальные поля из patch поверх разрешённого перехода
		merged.Status = transitioned.Status

		if merged.Status == task.StatusDone {
			blocked, err := s.repo.HasIncompleteDependencies(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("проверка зависимостей: %w", err)
			}
			if blocked {
				return nil, NewDependenciesIncomplete(id.String())
			}
		}
	}

	// побочные эффекты только при смене статуса: патч без status не
	// должен двигать next_checkin_at ожидающей задачи
	now := time.Now()
	if merged.Status != existing.Status {
		merged = task.ApplyStatusSideEffects(merged, now, s.waitingDays,
			patch.Has("next_checkin_at"), patch.Has("completed_at"))
	}

	if err := s.repo.Update(ctx, merged, patch); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("обновление задачи: %w", err)
	}

	if !wasDone && merged.Status == task.StatusDone {
		if err := s.generateRecurrence(ctx, merged, now); err != nil {
			logger.Warn("Service: Не удалось создать повтор задачи",
				zap.String("task_id", id.String()), zap.Error(err))
		}
	}

	return merged, nil
}

// generateRecurrence создаёт следующую итерацию повторяющейся задачи.
// recurrence_generated_at гарантирует ровно одну генерацию на завершение.
func (s *TaskService) generateRecurrence(ctx context.Context, done *task.Task, now time.Time) error {
	if done.Recurrence == nil || done.Recurrence.GeneratedAt != nil {
		return nil
	}
	// без опорной даты интервал не к чему прибавлять
	if done.StartAt == nil && done.DueAt == nil {
		return nil
	}

	rec := done.Recurrence
	successor := done.Clone()
	successor.ID = uuid.New()
	successor.Status = task.StatusPlanned
	successor.CompletedAt = nil
	successor.NextCheckinAt = nil
	successor.ReminderSentAt = nil
	successor.UpdatedAt = nil

	if successor.StartAt != nil {
		shifted := task.AddInterval(*successor.StartAt, rec.Interval, rec.Unit)
		successor.StartAt = &shifted
	}
	if successor.DueAt != nil {
		shifted := task.AddInterval(*successor.DueAt, rec.Interval, rec.Unit)
		successor.DueAt = &shifted
	}

	// преемник ссылается на непосредственный источник, не на корень цепочки
	sourceID := done.ID
	successor.Recurrence = &task.RecurrenceInfo{
		Interval: rec.Interval,
		Unit:     rec.Unit,
		ParentID: &sourceID,
	}

	if err := s.repo.Create(ctx, successor); err != nil {
		return fmt.Errorf("создание повтора: %w", err)
	}

	// штамп на исходной задаче, чтобы повторное done её не размножило
	stamped := done.Clone()
	stamped.Recurrence = &task.RecurrenceInfo{
		Interval:    rec.Interval,
		Unit:        rec.Unit,
		ParentID:    rec.ParentID,
		GeneratedAt: &now,
	}
	if err := s.repo.Update(ctx, stamped, map[string]any{
		"recurrence_generated_at": now.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("штамп генерации: %w", err)
	}

	done.Recurrence = stamped.Recurrence
	logger.Info("Service: Создан повтор задачи",
		zap.String("task_id", done.ID.String()),
		zap.String("successor_id", successor.ID.String()))
	return nil
}

// DeleteTask удаляет задачу со всем поддеревом и возвращает полный список
// удалённых id для клиентских кэшей.
func (s *TaskService) DeleteTask(ctx context.Context, tc tenant.Context, id uuid.UUID) ([]uuid.UUID, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	ids, err := s.repo.Delete(ctx, workspaceID, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("удаление задачи: %w", err)
	}
	return ids, nil
}

func (s *TaskService) ReparentTask(ctx context.Context, tc tenant.Context, id uuid.UUID, newParentID *uuid.UUID) error {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return err
	}

	err = s.repo.Reparent(ctx, workspaceID, id, newParentID)
	if err != nil {
		switch {
		case errors.Is(err, rep.ErrSelfParent):
			return NewSelfParent(id.String())
		case errors.Is(err, rep.ErrCycleDetected):
			parent := ""
			if newParentID != nil {
				parent = newParentID.String()
			}
			return NewCycleDetected(id.String(), parent)
		case errors.Is(err, rep.ErrNotFound):
			return NewNotFound("задача", id.String())
		}
		return fmt.Errorf("перенос задачи: %w", err)
	}
	return nil
}

type CheckInResult struct {
	Task          *task.Task
	RescheduledID []uuid.UUID
}

// CheckIn разрешает запланированный follow-up. Ответ "no" дополнительно
// сдвигает всё поддерево на сутки вперёд.
func (s *TaskService) CheckIn(ctx context.Context, tc tenant.Context, id uuid.UUID, response task.CheckInResponse) (*CheckInResult, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByID(ctx, workspaceID, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	now := time.Now()
	updated, err := task.ApplyCheckIn(existing, response, now)
	if err != nil {
		var unsupported *task.UnsupportedResponseError
		if errors.As(err, &unsupported) {
			return nil, NewUnsupportedResponse(string(unsupported.Response))
		}
		return nil, err
	}

	if updated.Status == task.StatusDone {
		blocked, err := s.repo.HasIncompleteDependencies(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("проверка зависимостей: %w", err)
		}
		if blocked {
			return nil, NewDependenciesIncomplete(id.String())
		}
	}

	if err := s.repo.RecordCheckin(ctx, updated, response); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("применение check-in: %w", err)
	}

	result := &CheckInResult{Task: updated}

	if response == task.CheckInNo {
		ids, err := s.repo.RescheduleSubtree(ctx, workspaceID, id, 24*time.Hour)
		if err != nil {
			logger.Warn("Service: Не удалось сдвинуть поддерево после check-in",
				zap.String("task_id", id.String()), zap.Error(err))
		} else {
			result.RescheduledID = ids
		}
	}

	if existing.Status != task.StatusDone && updated.Status == task.StatusDone {
		if err := s.generateRecurrence(ctx, updated, now); err != nil {
			logger.Warn("Service: Не удалось создать повтор задачи",
				zap.String("task_id", id.String()), zap.Error(err))
		}
	}

	return result, nil
}

func (s *TaskService) RescheduleTask(ctx context.Context, tc tenant.Context, id uuid.UUID, delta time.Duration) ([]uuid.UUID, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}

	ids, err := s.repo.RescheduleSubtree(ctx, workspaceID, id, delta)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound("задача", id.String())
		}
		return nil, fmt.Errorf("сдвиг задачи: %w", err)
	}
	return ids, nil
}

func (s *TaskService) AddDependency(ctx context.Context, tc tenant.Context, taskID, dependsOnID uuid.UUID) error {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return err
	}

	if taskID == dependsOnID {
		return NewValidationError("depends_on_id", "задача не может зависеть от самой себя")
	}

	// обе задачи должны существовать в воркспейсе
	if _, err := s.repo.GetByID(ctx, workspaceID, taskID); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return NewNotFound("задача", taskID.String())
		}
		return fmt.Errorf("получение задачи: %w", err)
	}
	if _, err := s.repo.GetByID(ctx, workspaceID, dependsOnID); err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			return NewNotFound("задача", dependsOnID.String())
		}
		return fmt.Errorf("получение задачи: %w", err)
	}

	dep := &task.Dependency{
		TaskID:      taskID,
		DependsOnID: dependsOnID,
		WorkspaceID: workspaceID,
	}
	if err := s.repo.AddDependency(ctx, dep); err != nil {
		return fmt.Errorf("добавление зависимости: %w", err)
	}
	return nil
}

func (s *TaskService) RemoveDependency(ctx context.Context, tc tenant.Context, taskID, dependsOnID uuid.UUID) error {
	if _, err := requireWorkspace(tc); err != nil {
		return err
	}
	if err := s.repo.RemoveDependency(ctx, taskID, dependsOnID); err != nil {
		return fmt.Errorf("удаление зависимости: %w", err)
	}
	return nil
}

func (s *TaskService) ListDependencies(ctx context.Context, tc tenant.Context, taskID *uuid.UUID) ([]*task.Dependency, error) {
	workspaceID, err := requireWorkspace(tc)
	if err != nil {
		return nil, err
	}
	deps, err := s.repo.ListDependencies(ctx, workspaceID, taskID)
	if err != nil {
		return nil, fmt.Errorf("получение зависимостей: %w", err)
	}
	return deps, nil
}

func requireWorkspace(tc tenant.Context) (uuid.UUID, error) {
	if err := tc.RequireWorkspace(); err != nil {
		return uuid.Nil, NewTenantRequired()
	}
	workspaceID, err := uuid.Parse(tc.WorkspaceID)
	if err != nil {
		return uuid.Nil, NewValidationError("workspace_id", "не UUID")
	}
	return workspaceID, nil
}
