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
	"brianhub/internal/models/workspace"
	repo "brianhub/internal/repository"
	"brianhub/internal/tenant"
)

func (s *Storage) CreateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO workspaces (id, org_id, name, type, archived, created_at)
		 VALUES ($1, $2, $3, $4, FALSE, NOW())
		 RETURNING created_at`,
		w.ID, w.OrgID, w.Name, w.Type).Scan(&w.CreatedAt)
	if err != nil {
		logger.Error("Repository: Не удалось создать воркспейс", err)
		return fmt.Errorf("создание воркспейса: %w", err)
	}

	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: w.ID.String(),
		EntityType:  change.EntityWorkspace,
		EntityID:    w.ID.String(),
		Action:      change.ActionCreate,
		Payload:     map[string]any{"name": w.Name, "type": w.Type},
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Storage) UpdateWorkspace(ctx context.Context, w *workspace.Workspace) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`UPDATE workspaces SET name = $3, type = $4, archived = $5, updated_at = NOW()
		 WHERE id = $1 AND org_id = $2
		 RETURNING updated_at`,
		w.ID, w.OrgID, w.Name, w.Type, w.Archived).Scan(&w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить воркспейс", err)
		return fmt.Errorf("обновление воркспейса: %w", err)
	}

	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: w.ID.String(),
		EntityType:  change.EntityWorkspace,
		EntityID:    w.ID.String(),
		Action:      change.ActionUpdate,
		Payload:     map[string]any{"name": w.Name, "type": w.Type, "archived": w.Archived},
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (s *Storage) GetWorkspace(ctx context.Context, orgID string, id uuid.UUID) (*workspace.Workspace, error) {
	w := &workspace.Workspace{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, org_id, name, type, archived, created_at, updated_at
		 FROM workspaces WHERE id = $1 AND org_id = $2`,
		id, orgID).Scan(&w.ID, &w.OrgID, &w.Name, &w.Type, &w.Archived, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить воркспейс", err)
		return nil, fmt.Errorf("получение воркспейса: %w", err)
	}
	return w, nil
}

func (s *Storage) ListWorkspaces(ctx context.Context, orgID string) ([]*workspace.Workspace, error) {
	start := time.Now()

	rows, err := s.pool.Query(ctx,
		`SELECT id, org_id, name, type, archived, created_at, updated_at
		 FROM workspaces WHERE org_id = $1 AND archived = FALSE
		 ORDER BY created_at ASC`,
		orgID)
	if err != nil {
		logger.Error("Repository: Не удалось получить воркспейсы", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение воркспейсов: %w", err)
	}
	defer rows.Close()

	workspaces := []*workspace.Workspace{}
	for rows.Next() {
		w := &workspace.Workspace{}
		if err := rows.Scan(&w.ID, &w.OrgID, &w.Name, &w.Type, &w.Archived, &w.CreatedAt, &w.UpdatedAt); err != nil {
			logger.Warn("Repository: Ошибка сканирования воркспейса", zap.Error(err))
			continue
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

func (s *Storage) ArchiveWorkspace(ctx context.Context, orgID string, id uuid.UUID) error {
	w, err := s.GetWorkspace(ctx, orgID, id)
	if err != nil {
		return err
	}
	w.Archived = true
	return s.UpdateWorkspace(ctx, w)
}
