package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	repo "brianhub/internal/repository"
	"brianhub/internal/tenant"
)

// GetSubtree возвращает корень и всех его потомков одним запросом по
// таблице замыкания, без рекурсии.
func (s *Storage) GetSubtree(ctx context.Context, workspaceID, rootID uuid.UUID) ([]*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + `
			FROM tasks
			JOIN task_edges ON task_edges.descendant_id = tasks.id
			WHERE task_edges.ancestor_id = $1 AND tasks.workspace_id = $2
			ORDER BY task_edges.depth ASC, tasks.sort_order ASC`

	rows, err := s.pool.Query(ctx, query, rootID, workspaceID)
	if err != nil {
		logger.Error("Repository: Не удалось получить поддерево", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение поддерева: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Warn("Repository: Ошибка сканирования задачи", zap.Error(err))
			continue
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if len(tasks) == 0 {
		return nil, repo.ErrNotFound
	}
	return tasks, nil
}

func (s *Storage) GetDescendantIDs(ctx context.Context, rootID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT descendant_id FROM task_edges WHERE ancestor_id = $1`, rootID)
	if err != nil {
		logger.Error("Repository: Не удалось получить потомков", err)
		return nil, fmt.Errorf("получение потомков: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("скан потомка: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete удаляет задачу вместе со всем поддеревом и возвращает полный
// список удалённых id. Рёбра замыкания уходят каскадом по FK.
func (s *Storage) Delete(ctx context.Context, workspaceID, id uuid.UUID) ([]uuid.UUID, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return nil, fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)`,
		id, workspaceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("проверка задачи: %w", err)
	}
	if !exists {
		return nil, repo.ErrNotFound
	}

	rows, err := tx.Query(ctx,
		`SELECT descendant_id FROM task_edges WHERE ancestor_id = $1`, id)
	if err != nil {
		logger.Error("Repository: Не удалось получить потомков", err)
		return nil, fmt.Errorf("получение потомков: %w", err)
	}

	ids := []uuid.UUID{}
	for rows.Next() {
		var descID uuid.UUID
		if err := rows.Scan(&descID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("скан потомка: %w", err)
		}
		ids = append(ids, descID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по потомкам: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM tasks WHERE id = ANY($1)`, ids)
	if err != nil {
		logger.Error("Repository: Не удалось удалить поддерево", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("удаление поддерева: %w", err)
	}

	idStrings := make([]string, len(ids))
	for i, deleted := range ids {
		idStrings[i] = deleted.String()
	}
	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: workspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    id.String(),
		Action:      change.ActionDelete,
		Payload:     map[string]any{"ids": idStrings},
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось закоммитить транзакцию", err)
		return nil, fmt.Errorf("коммит транзакции: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return ids, nil
}

// Reparent перевешивает поддерево в четыре шага внутри одной транзакции:
// проверки, срез старых рёбер, декартово произведение новых, parent_id.
func (s *Storage) Reparent(ctx context.Context, workspaceID, id uuid.UUID, newParentID *uuid.UUID) error {
	start := time.Now()

	if newParentID != nil && *newParentID == id {
		return repo.ErrSelfParent
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)`,
		id, workspaceID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("проверка задачи: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}

	if newParentID != nil {
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)`,
			*newParentID, workspaceID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("проверка родителя: %w", err)
		}
		if !exists {
			return repo.ErrNotFound
		}

		// новый родитель внутри собственного поддерева = цикл
		var inSubtree bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM task_edges WHERE ancestor_id = $1 AND descendant_id = $2)`,
			id, *newParentID).Scan(&inSubtree)
		if err != nil {
			return fmt.Errorf("проверка цикла: %w", err)
		}
		if inSubtree {
			logger.Warn("Repository: Отклонён reparent с циклом",
				zap.String("task_id", id.String()),
				zap.String("new_parent_id", newParentID.String()))
			return repo.ErrCycleDetected
		}
	}

	// рвём связи поддерева со старыми предками, self-рёбра и внутренние
	// рёбра поддерева не трогаем
	_, err = tx.Exec(ctx, `
		DELETE FROM task_edges
		WHERE descendant_id IN (SELECT descendant_id FROM task_edges WHERE ancestor_id = $1)
		  AND ancestor_id NOT IN (SELECT descendant_id FROM task_edges WHERE ancestor_id = $1)`,
		id)
	if err != nil {
		logger.Error("Repository: Не удалось срезать старые рёбра", err)
		return fmt.Errorf("срез старых рёбер: %w", err)
	}

	if newParentID != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO task_edges (ancestor_id, descendant_id, depth)
			SELECT super.ancestor_id, sub.descendant_id, super.depth + sub.depth + 1
			FROM task_edges AS super
			JOIN task_edges AS sub ON sub.ancestor_id = $1
			WHERE super.descendant_id = $2`,
			id, *newParentID)
		if err != nil {
			logger.Error("Repository: Не удалось пришить новые рёбра", err)
			return fmt.Errorf("вставка новых рёбер: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE tasks SET parent_id = $2, updated_at = NOW() WHERE id = $1`,
		id, newParentID)
	if err != nil {
		logger.Error("Repository: Не удалось обновить parent_id", err)
		return fmt.Errorf("обновление parent_id: %w", err)
	}

	payload := map[string]any{"parent_id": nil}
	if newParentID != nil {
		payload["parent_id"] = newParentID.String()
	}
	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: workspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    id.String(),
		Action:      change.ActionReparent,
		Payload:     payload,
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось закоммитить транзакцию", err)
		return fmt.Errorf("коммит транзакции: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленная операция", zap.Duration("ms", time.Since(start)))
	}
	return nil
}

// RescheduleSubtree сдвигает start_at, due_at и next_checkin_at всего
// поддерева на delta. NULL-поля остаются NULL.
func (s *Storage) RescheduleSubtree(ctx context.Context, workspaceID, rootID uuid.UUID, delta time.Duration) ([]uuid.UUID, error) {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return nil, fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1 AND workspace_id = $2)`,
		rootID, workspaceID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("проверка задачи: %w", err)
	}
	if !exists {
		return nil, repo.ErrNotFound
	}

	rows, err := tx.Query(ctx, `
		UPDATE tasks SET
			start_at = start_at + make_interval(secs => $2),
			due_at = due_at + make_interval(secs => $2),
			next_checkin_at = next_checkin_at + make_interval(secs => $2),
			updated_at = NOW()
		WHERE id IN (SELECT descendant_id FROM task_edges WHERE ancestor_id = $1)
		RETURNING id`,
		rootID, delta.Seconds())
	if err != nil {
		logger.Error("Repository: Не удалось сдвинуть поддерево", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("сдвиг поддерева: %w", err)
	}

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("скан задачи: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	idStrings := make([]string, len(ids))
	for i, shifted := range ids {
		idStrings[i] = shifted.String()
	}
	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: workspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    rootID.String(),
		Action:      change.ActionReschedule,
		Payload:     map[string]any{"ids": idStrings, "delta_seconds": delta.Seconds()},
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось закоммитить транзакцию", err)
		return nil, fmt.Errorf("коммит транзакции: %w", err)
	}
	return ids, nil
}
