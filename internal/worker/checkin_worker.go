// Package worker - фоновый обход задач с наступившим next_checkin_at.
// Сервер сам не отвечает за пользователя: воркер лишь переводит просроченный
// follow-up в ожидание ответа и шлёт напоминание в лог.
package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"brianhub/internal/logger"
	"brianhub/internal/models/task"
)

type CheckinSource interface {
	GetDueCheckins(ctx context.Context, deadline time.Time, limit int) ([]*task.Task, error)
	MarkReminderSent(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

type CheckinWorker struct {
	repo      CheckinSource
	cron      *cron.Cron
	schedule  string
	batchSize int
}

func NewCheckinWorker(repo CheckinSource, schedule string, batchSize int) *CheckinWorker {
	if schedule == "" {
		schedule = "@every 5m"
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &CheckinWorker{
		repo:      repo,
		cron:      cron.New(),
		schedule:  schedule,
		batchSize: batchSize,
	}
}

func (w *CheckinWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		w.Check(ctx)
	})
	if err != nil {
		logger.Error("Worker: Неверное cron-выражение", err, zap.String("schedule", w.schedule))
		return err
	}

	w.cron.Start()
	logger.Info("Worker: Фоновая проверка check-in запущена", zap.String("schedule", w.schedule))
	return nil
}

func (w *CheckinWorker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	logger.Info("Worker: Фоновая проверка остановлена")
}

func (w *CheckinWorker) Check(ctx context.Context) {
	start := time.Now()

	due, err := w.repo.GetDueCheckins(ctx, time.Now(), w.batchSize)
	if err != nil {
		logger.Warn("Worker: ошибка получения задач", zap.Error(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(due))
	for _, t := range due {
		logger.Info("Worker: Задача ждёт check-in",
			zap.String("task_id", t.ID.String()),
			zap.String("workspace_id", t.WorkspaceID.String()),
			zap.String("title", t.Title),
			zap.Timep("next_checkin_at", t.NextCheckinAt))
		ids = append(ids, t.ID)
	}

	if err := w.repo.MarkReminderSent(ctx, ids, time.Now()); err != nil {
		logger.Warn("Worker: ошибка отметки напоминаний", zap.Error(err))
		return
	}

	if len(due) > 0 {
		logger.Info("Worker: Проверка завершена",
			zap.Int("due", len(due)),
			zap.Duration("ms", time.Since(start)))
	}
}
