package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	repo "brianhub/internal/repository"
	"brianhub/internal/tenant"
)

// RecordCheckin сохраняет результат check-in: обновлённую задачу и строку
// истории ответов в одной транзакции.
func (s *Storage) RecordCheckin(ctx context.Context, t *task.Task, response task.CheckInResponse) error {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE tasks SET
			status = $3,
			completed_at = $4,
			next_checkin_at = $5,
			updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING updated_at`

	err = tx.QueryRow(ctx, query,
		t.ID, t.WorkspaceID, t.Status, t.CompletedAt, t.NextCheckinAt,
	).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось применить check-in", err)
		return fmt.Errorf("применение check-in: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO task_checkins (id, task_id, workspace_id, response, created_at)
		 VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), t.ID, t.WorkspaceID, string(response))
	if err != nil {
		logger.Error("Repository: Не удалось записать историю check-in", err)
		return fmt.Errorf("запись истории check-in: %w", err)
	}

	payload := map[string]any{
		"response": string(response),
		"status":   string(t.Status),
	}
	if t.NextCheckinAt != nil {
		payload["next_checkin_at"] = t.NextCheckinAt.UTC().Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		payload["completed_at"] = t.CompletedAt.UTC().Format(time.RFC3339)
	}
	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: t.WorkspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    t.ID.String(),
		Action:      change.ActionCheckIn,
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

// GetDueCheckins отдаёт задачи с наступившим next_checkin_at для фонового
// воркера.
func (s *Storage) GetDueCheckins(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error) {
	start := time.Now()

	// одно напоминание на контрольную точку: после сдвига
	// next_checkin_at вперёд задача снова попадёт в выборку
	query := `SELECT ` + taskColumns + ` FROM tasks
			WHERE next_checkin_at IS NOT NULL
			  AND next_checkin_at <= $1
			  AND (reminder_sent_at IS NULL OR reminder_sent_at < next_checkin_at)
			  AND status NOT IN ('done', 'canceled')
			ORDER BY next_checkin_at ASC
			LIMIT $2`

	rows, err := s.pool.Query(ctx, query, deadline, limit)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задач: %w", err)
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
	return tasks, nil
}

// MarkReminderSent отмечает разосланные напоминания, чтобы воркер не
// повторял их на каждом тике.
func (s *Storage) MarkReminderSent(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET reminder_sent_at = $2 WHERE id = ANY($1)`, ids, at)
	if err != nil {
		logger.Error("Repository: Не удалось отметить напоминания", err)
		return fmt.Errorf("отметка напоминаний: %w", err)
	}
	return nil
}
