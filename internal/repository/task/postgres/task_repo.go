package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	repo "brianhub/internal/repository"
	"brianhub/internal/repository/inter"
	"brianhub/internal/tenant"
)

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

const taskColumns = `
	id, workspace_id, parent_id, project_id,
	title, description_md, status, priority, urgency, type_label, sort_order, task_type,
	start_at, due_at, completed_at, waiting_followup_at, next_checkin_at, reminder_sent_at,
	reminder_offset_days, auto_debit,
	recurrence_interval, recurrence_unit, recurrence_parent_id, recurrence_generated_at,
	template_id, template_state, template_event_date, template_lead_days, template_defer_until, template_prompt_pending,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	t := &task.Task{}
	var (
		recInterval    *int
		recUnit        *string
		recParentID    *uuid.UUID
		recGeneratedAt *time.Time

		tplID            *uuid.UUID
		tplState         *string
		tplEventDate     *time.Time
		tplLeadDays      *int
		tplDeferUntil    *time.Time
		tplPromptPending bool
	)

	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.ParentID, &t.ProjectID,
		&t.Title, &t.DescriptionMD, &t.Status, &t.Priority, &t.Urgency, &t.TypeLabel, &t.SortOrder, &t.TaskType,
		&t.StartAt, &t.DueAt, &t.CompletedAt, &t.WaitingFollowupAt, &t.NextCheckinAt, &t.ReminderSentAt,
		&t.ReminderOffsetDays, &t.AutoDebit,
		&recInterval, &recUnit, &recParentID, &recGeneratedAt,
		&tplID, &tplState, &tplEventDate, &tplLeadDays, &tplDeferUntil, &tplPromptPending,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if recInterval != nil && recUnit != nil {
		t.Recurrence = &task.RecurrenceInfo{
			Interval:    *recInterval,
			Unit:        task.RecurrenceUnit(*recUnit),
			ParentID:    recParentID,
			GeneratedAt: recGeneratedAt,
		}
	}
	if tplID != nil {
		t.Template = &task.TemplateLink{
			ID:            *tplID,
			State:         tplState,
			EventDate:     tplEventDate,
			LeadDays:      tplLeadDays,
			DeferUntil:    tplDeferUntil,
			PromptPending: tplPromptPending,
		}
	}
	return t, nil
}

func taskArgs(t *task.Task) []any {
	var (
		recInterval    *int
		recUnit        *string
		recParentID    *uuid.UUID
		recGeneratedAt *time.Time

		tplID            *uuid.UUID
		tplState         *string
		tplEventDate     *time.Time
		tplLeadDays      *int
		tplDeferUntil    *time.Time
		tplPromptPending bool
	)
	if t.Recurrence != nil {
		recInterval = &t.Recurrence.Interval
		unit := string(t.Recurrence.Unit)
		recUnit = &unit
		recParentID = t.Recurrence.ParentID
		recGeneratedAt = t.Recurrence.GeneratedAt
	}
	if t.Template != nil {
		tplID = &t.Template.ID
		tplState = t.Template.State
		tplEventDate = t.Template.EventDate
		tplLeadDays = t.Template.LeadDays
		tplDeferUntil = t.Template.DeferUntil
		tplPromptPending = t.Template.PromptPending
	}

	return []any{
		t.ID, t.WorkspaceID, t.ParentID, t.ProjectID,
		t.Title, t.DescriptionMD, t.Status, t.Priority, t.Urgency, t.TypeLabel, t.SortOrder, t.TaskType,
		t.StartAt, t.DueAt, t.CompletedAt, t.WaitingFollowupAt, t.NextCheckinAt, t.ReminderSentAt,
		t.ReminderOffsetDays, t.AutoDebit,
		recInterval, recUnit, recParentID, recGeneratedAt,
		tplID, tplState, tplEventDate, tplLeadDays, tplDeferUntil, tplPromptPending,
	}
}

func (s *Storage) Create(ctx context.Context, t *task.Task) error {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO tasks (` + taskColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
					$13, $14, $15, $16, $17, $18, $19, $20,
					$21, $22, $23, $24, $25, $26, $27, $28, $29, $30,
					$31, NULL)
			RETURNING created_at`

	args := append(taskArgs(t), time.Now())
	err = tx.QueryRow(ctx, query, args...).Scan(&t.CreatedAt)
	if err != nil {
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}

	// self-ребро замыкания
	_, err = tx.Exec(ctx,
		`INSERT INTO task_edges (ancestor_id, descendant_id, depth) VALUES ($1, $1, 0)`, t.ID)
	if err != nil {
		logger.Error("Repository: Не удалось создать self-ребро", err)
		return fmt.Errorf("вставка self-ребра: %w", err)
	}

	// рёбра от всех предков родителя к новой задаче
	if t.ParentID != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO task_edges (ancestor_id, descendant_id, depth)
			 SELECT ancestor_id, $1, depth + 1 FROM task_edges WHERE descendant_id = $2`,
			t.ID, *t.ParentID)
		if err != nil {
			logger.Error("Repository: Не удалось создать рёбра предков", err)
			return fmt.Errorf("вставка рёбер предков: %w", err)
		}
	}

	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: t.WorkspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    t.ID.String(),
		Action:      change.ActionCreate,
		Payload:     taskPayload(t),
		ClientID:    tenant.ClientID(ctx),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось закоммитить транзакцию", err)
		return fmt.Errorf("коммит транзакции: %w", err)
	}

	if time.Since(start) > time.Millisecond*50 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return nil
}

// Update переписывает строку целиком, а в change log кладёт исходный patch:
// реплеи на других клиентах работают по payload, а не по снимку строки.
func (s *Storage) Update(ctx context.Context, t *task.Task, payload map[string]any) error {
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось открыть транзакцию", err)
		return fmt.Errorf("открытие транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `UPDATE tasks SET
			parent_id = $3, project_id = $4,
			title = $5, description_md = $6, status = $7, priority = $8, urgency = $9,
			type_label = $10, sort_order = $11, task_type = $12,
			start_at = $13, due_at = $14, completed_at = $15, waiting_followup_at = $16,
			next_checkin_at = $17, reminder_sent_at = $18,
			reminder_offset_days = $19, auto_debit = $20,
			recurrence_interval = $21, recurrence_unit = $22, recurrence_parent_id = $23, recurrence_generated_at = $24,
			template_id = $25, template_state = $26, template_event_date = $27,
			template_lead_days = $28, template_defer_until = $29, template_prompt_pending = $30,
			updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2
		RETURNING updated_at`

	err = tx.QueryRow(ctx, query, taskArgs(t)...).Scan(&t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}

	if payload == nil {
		payload = taskPayload(t)
	}
	if err := s.logChangeTx(ctx, tx, &change.Change{
		WorkspaceID: t.WorkspaceID.String(),
		EntityType:  change.EntityTask,
		EntityID:    t.ID.String(),
		Action:      change.ActionUpdate,
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

func (s *Storage) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1 AND workspace_id = $2`

	t, err := scanTask(s.pool.QueryRow(ctx, query, id, workspaceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	if time.Since(start) > time.Millisecond*100 {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return t, nil
}

func (s *Storage) List(ctx context.Context, workspaceID uuid.UUID, filter inter.ListFilter) ([]*task.Task, error) {
	start := time.Now()

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE workspace_id = $1`
	args := []any{workspaceID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.TaskType != nil {
		args = append(args, *filter.TaskType)
		query += fmt.Sprintf(" AND task_type = $%d", len(args))
	}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description_md ILIKE $%d)", len(args), len(args))
	}

	query += " ORDER BY sort_order ASC, created_at ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
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

	if time.Since(start) > time.Millisecond*50+time.Millisecond*10*time.Duration(limit) {
		logger.Warn("Repository: Медленный запрос", zap.Duration("ms", time.Since(start)))
	}
	return tasks, nil
}

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

func (s *Storage) Migrate(ctx context.Context) error {
	logger.Info("Попытка миграций")

	initUp, err := os.ReadFile("internal/migrations/001_init.up.sql")
	if err != nil {
		logger.Error("failed to read 001_init.up.sql", err)
		return err
	}

	indexesUp, err := os.ReadFile("internal/migrations/002_indexes.up.sql")
	if err != nil {
		logger.Error("failed to read 002_indexes.up.sql", err)
		return err
	}

	_, err = s.pool.Exec(ctx, string(initUp))
	if err != nil {
		logger.Error("failed to apply 001_init", err)
		return err
	}

	_, err = s.pool.Exec(ctx, string(indexesUp))
	if err != nil {
		logger.Error("failed to apply 002_indexes", err)
		return err
	}

	logger.Info("Миграции применены")
	return nil
}

func (s *Storage) Down(ctx context.Context) error {
	logger.Info("Откат миграций")

	indexesDown, err := os.ReadFile("internal/migrations/002_indexes.down.sql")
	if err != nil {
		logger.Error("failed to read 002_indexes.down.sql", err)
		return err
	}

	initDown, err := os.ReadFile("internal/migrations/001_init.down.sql")
	if err != nil {
		logger.Error("failed to read 001_init.down.sql", err)
		return err
	}

	_, err = s.pool.Exec(ctx, string(indexesDown))
	if err != nil {
		logger.Error("failed to rollback 002_indexes", err)
		return err
	}

	_, err = s.pool.Exec(ctx, string(initDown))
	if err != nil {
		logger.Error("failed to rollback 001_init", err)
		return err
	}

	logger.Info("Миграции откатаны")
	return nil
}
