package worker_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/logger"
	"brianhub/internal/models/task"
	"brianhub/internal/repository/task/inmemory"
	"brianhub/internal/worker"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

// TestCheck_StampsReminder тестирует отметку reminder_sent_at: задача
// напоминается один раз на контрольную точку, а не каждый тик
func TestCheck_StampsReminder(t *testing.T) {
	storage := inmemory.NewTaskStorage()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	waiting := &task.Task{
		ID:            uuid.New(),
		WorkspaceID:   uuid.New(),
		Title:         "Жду ответа",
		Status:        task.StatusWaiting,
		Priority:      task.PriorityMedium,
		TaskType:      "task",
		NextCheckinAt: &past,
	}
	require.NoError(t, storage.Create(ctx, waiting))

	w := worker.NewCheckinWorker(storage, "", 0)
	w.Check(ctx)

	stamped, err := storage.GetByID(ctx, waiting.WorkspaceID, waiting.ID)
	require.NoError(t, err)
	require.NotNil(t, stamped.ReminderSentAt)
	assert.WithinDuration(t, time.Now(), *stamped.ReminderSentAt, time.Minute)

	// второй тик ту же контрольную точку не поднимает
	due, err := storage.GetDueCheckins(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// сдвиг follow-up вперёд открывает новую контрольную точку
	_, err = storage.RescheduleSubtree(ctx, waiting.WorkspaceID, waiting.ID, time.Hour+time.Minute)
	require.NoError(t, err)
	due, err = storage.GetDueCheckins(ctx, time.Now().Add(2*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}
