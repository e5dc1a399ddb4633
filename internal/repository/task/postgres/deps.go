package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/tenant"
)

// AddDependency идемпотентна: повторная вставка той же пары молча
// игнорируется.
func (s *Storage) AddDependency(ctx context.Context, dep *task.Dependency) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO task_dependencies (task_id, depends_on_id, workspace_id, created_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (task_id, depends_on_id) DO NOTHING`,
		dep.TaskID, dep.DependsOnID, dep.WorkspaceID)
	if err != nil {
		logger.Error("Repository: Не удалось добавить зависимость", err)
		return fmt.Errorf("добавление зависимости: %w", err)
	}

	if tag.RowsAffected() > 0 {
		if err := s.logChangeTx(ctx, tx, &change.Change{
			WorkspaceID: dep.WorkspaceID.String(),
			EntityType:  change.EntityDependency,
			EntityID:    dep.TaskID.String(),
			Action:      change.ActionCreate,
			Payload: map[string]any{
				"task_id":       dep.TaskID.String(),
				"depends_on_id": dep.DependsOnID.String(),
			},
			ClientID: tenant.ClientID(ctx),
		}); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Storage) RemoveDependency(ctx context.Context, taskID, dependsOnID uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var workspaceID uuid.UUID
	err = tx.QueryRow(ctx,
		`DELETE FROM task_dependencies WHERE task_id = $1 AND depends_on_id = $2
		 RETURNING workspace_id`,
		taskID, dependsOnID).Scan(&workspaceID)
	if err != nil {
		// удаление несуществующей пары не ошибка
		if errors.Is(err, pgx.ErrNoRows) {
			logger.Debug("Repository: Зависимость не найдена при удалении",
				zap.String("task_id", taskID.String()))
			return nil
		}
		logger.Error("Repository: Не удалось удалить зависимость", err)
		return fmt.Errorf("удаление зависимости: %w", err)
	}

	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: workspaceID.String(),
		EntityType:  change.EntityDependency,
		EntityID:    taskID.String(),
		Action:      change.ActionDelete,
		Payload: map[string]any{
			"task_id":       taskID.String(),
			"depends_on_id": dependsOnID.String(),
		},
		ClientID: tenant.ClientID(ctx),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Storage) ListDependencies(ctx context.Context, workspaceID uuid.UUID, taskID *uuid.UUID) ([]*task.Dependency, error) {
	query := `SELECT task_id, depends_on_id, workspace_id, created_at
			FROM task_dependencies WHERE workspace_id = $1`
	args := []any{workspaceID}
	if taskID != nil {
		args = append(args, *taskID)
		query += " AND task_id = $2"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить зависимости", err)
		return nil, fmt.Errorf("получение зависимостей: %w", err)
	}
	defer rows.Close()

	deps := []*task.Dependency{}
	for rows.Next() {
		dep := &task.Dependency{}
		if err := rows.Scan(&dep.TaskID, &dep.DependsOnID, &dep.WorkspaceID, &dep.CreatedAt); err != nil {
			return nil, fmt.Errorf("скан зависимости: %w", err)
		}
		deps = append(deps, dep)
	}
	return deps, rows.Err()
}

// HasIncompleteDependencies: задача не может стать done, пока среди её
// зависимостей есть незавершённые.
func (s *Storage) HasIncompleteDependencies(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var blocked bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM task_dependencies d
			JOIN tasks t ON t.id = d.depends_on_id
			WHERE d.task_id = $1 AND t.status NOT IN ('done', 'canceled')
		)`, taskID).Scan(&blocked)
	if err != nil {
		logger.Error("Repository: Не удалось проверить зависимости", err)
		return false, fmt.Errorf("проверка зависимостей: %w", err)
	}
	return blocked, nil
}
