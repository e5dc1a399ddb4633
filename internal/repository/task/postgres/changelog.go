package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
)

func (s *Storage) logChangeTx(ctx context.Context, tx pgx.Tx, c *change.Change) error {
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return fmt.Errorf("сериализация payload: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO change_log (workspace_id, entity_type, entity_id, action, payload, client_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING seq, created_at`,
		c.WorkspaceID, string(c.EntityType), c.EntityID, string(c.Action), payload, c.ClientID,
	).Scan(&c.Seq, &c.CreatedAt)
	if err != nil {
		logger.Error("Repository: Не удалось записать change log", err)
		return fmt.Errorf("запись change log: %w", err)
	}
	return nil
}

// RecordChange пишет запись вне транзакции мутации задач; используется
// сущностями без собственной таблицы (воркспейсы, списки покупок).
func (s *Storage) RecordChange(ctx context.Context, c *change.Change) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.logChangeTx(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// PullChanges отдаёт хвост журнала воркспейса строго после cursor, в
// порядке возрастания seq.
func (s *Storage) PullChanges(ctx context.Context, workspaceID uuid.UUID, cursor int64, limit int) ([]change.Change, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx,
		`SELECT seq, workspace_id, entity_type, entity_id, action, payload, client_id, created_at
		 FROM change_log
		 WHERE workspace_id = $1 AND seq > $2
		 ORDER BY seq ASC
		 LIMIT $3`,
		workspaceID, cursor, limit)
	if err != nil {
		logger.Error("Repository: Не удалось прочитать change log", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("чтение change log: %w", err)
	}
	defer rows.Close()

	changes := []change.Change{}
	for rows.Next() {
		var (
			c       change.Change
			payload []byte
		)
		if err := rows.Scan(&c.Seq, &c.WorkspaceID, &c.EntityType, &c.EntityID, &c.Action, &payload, &c.ClientID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("скан change log: %w", err)
		}
		if err := json.Unmarshal(payload, &c.Payload); err != nil {
			c.Payload = map[string]any{}
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}
	return changes, nil
}
