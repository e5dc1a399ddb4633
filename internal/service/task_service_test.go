package service_test

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
	"brianhub/internal/repository/inter"
	"brianhub/internal/repository/task/inmemory"
	"brianhub/internal/service"
	"brianhub/internal/tenant"
)

func TestMain(m *testing.M) {
	logger.Init(true)
	os.Exit(m.Run())
}

func newFixture() (*inmemory.TaskStorage, service.TaskService, tenant.Context) {
	storage := inmemory.NewTaskStorage()
	svc := service.NewTaskService(storage, 3)
	tc := tenant.Context{
		OrgID:       "org-1",
		WorkspaceID: uuid.NewString(),
		ClientID:    "web-test",
	}
	return storage, svc, tc
}

func mustCreate(t *testing.T, svc *service.TaskService, tc tenant.Context, input service.CreateTaskInput) *task.Task {
	t.Helper()
	created, err := svc.CreateTask(context.Background(), tc, input)
	require.NoError(t, err)
	return created
}

func assertBusinessCode(t *testing.T, err error, code string) {
	t.Helper()
	var be *service.BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, code, be.Code)
}

// TestCreateTask тестирует значения по умолчанию при создании
func TestCreateTask(t *testing.T) {
	_, svc, tc := newFixture()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Новая задача"})

	assert.Equal(t, task.StatusInbox, created.Status)
	assert.Equal(t, task.PriorityMedium, created.Priority)
	assert.Equal(t, "task", created.TaskType)
	assert.Equal(t, tc.WorkspaceID, created.WorkspaceID.String())
}

// TestCreateTask_Validation тестирует отказы валидации
func TestCreateTask_Validation(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, tc, service.CreateTaskInput{})
	assertBusinessCode(t, err, "VALIDATION_ERROR")

	_, err = svc.CreateTask(ctx, tc, service.CreateTaskInput{Title: "x", Status: "unknown"})
	assertBusinessCode(t, err, "VALIDATION_ERROR")

	_, err = svc.CreateTask(ctx, tc, service.CreateTaskInput{Title: "x", Priority: "urgent"})
	assertBusinessCode(t, err, "VALIDATION_ERROR")
}

// TestCreateTask_TenantRequired тестирует отказ без скоупа арендатора
func TestCreateTask_TenantRequired(t *testing.T) {
	_, svc, _ := newFixture()

	_, err := svc.CreateTask(context.Background(), tenant.Context{}, service.CreateTaskInput{Title: "x"})
	assertBusinessCode(t, err, "TENANT_REQUIRED")

	_, err = svc.CreateTask(context.Background(), tenant.Context{OrgID: "org-1", WorkspaceID: "не-uuid"},
		service.CreateTaskInput{Title: "x"})
	assertBusinessCode(t, err, "VALIDATION_ERROR")
}

// TestCreateTask_WaitingSideEffects тестирует follow-up при создании сразу
// в waiting
func TestCreateTask_WaitingSideEffects(t *testing.T) {
	_, svc, tc := newFixture()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду ответа", Status: task.StatusWaiting})

	require.NotNil(t, created.NextCheckinAt)
	expected := time.Now().AddDate(0, 0, 3)
	assert.WithinDuration(t, expected, *created.NextCheckinAt, time.Minute)
}

// TestUpdateTask_Transition тестирует машину статусов при обновлении
func TestUpdateTask_Transition(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Задача"})

	updated, err := svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "planned"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusPlanned, updated.Status)

	// inbox -> done запрещён
	_, err = svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "waiting"})
	require.NoError(t, err)
	_, err = svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "inbox"})
	assertBusinessCode(t, err, "INVALID_TRANSITION")
}

// TestUpdateTask_TitlePatchKeepsCheckin тестирует, что патч без смены
// статуса не пересчитывает follow-up ожидающей задачи
func TestUpdateTask_TitlePatchKeepsCheckin(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду ответа", Status: task.StatusWaiting})
	require.NotNil(t, created.NextCheckinAt)
	checkpoint := *created.NextCheckinAt

	updated, err := svc.UpdateTask(ctx, tc, created.ID, task.Patch{"title": "Жду ответа от банка"})
	require.NoError(t, err)
	require.NotNil(t, updated.NextCheckinAt)
	assert.True(t, checkpoint.Equal(*updated.NextCheckinAt),
		"next_checkin_at сдвинулся: %v -> %v", checkpoint, *updated.NextCheckinAt)

	// sort_order с клиента (drag-and-drop) тоже не трогает контрольную точку
	updated, err = svc.UpdateTask(ctx, tc, created.ID, task.Patch{"sort_order": float64(42)})
	require.NoError(t, err)
	require.NotNil(t, updated.NextCheckinAt)
	assert.True(t, checkpoint.Equal(*updated.NextCheckinAt))
}

// TestUpdateTask_DoneStampsCompleted тестирует штамп completed_at
func TestUpdateTask_DoneStampsCompleted(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Задача", Status: task.StatusInProgress})

	updated, err := svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "done"})
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.WithinDuration(t, time.Now(), *updated.CompletedAt, time.Minute)
}

// TestUpdateTask_BlockedByDependencies тестирует запрет done при незакрытых
// зависимостях
func TestUpdateTask_BlockedByDependencies(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	blocker := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "blocker", Status: task.StatusPlanned})
	blocked := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "blocked", Status: task.StatusInProgress})

	require.NoError(t, svc.AddDependency(ctx, tc, blocked.ID, blocker.ID))

	_, err := svc.UpdateTask(ctx, tc, blocked.ID, task.Patch{"status": "done"})
	assertBusinessCode(t, err, "DEPENDENCIES_INCOMPLETE")

	// закрываем блокер, теперь можно
	_, err = svc.UpdateTask(ctx, tc, blocker.ID, task.Patch{"status": "canceled"})
	require.NoError(t, err)

	done, err := svc.UpdateTask(ctx, tc, blocked.ID, task.Patch{"status": "done"})
	require.NoError(t, err)
	assert.Equal(t, task.StatusDone, done.Status)
}

// TestUpdateTask_RecurrenceOnce тестирует ровно одну генерацию повтора на
// завершение
func TestUpdateTask_RecurrenceOnce(t *testing.T) {
	storage, svc, tc := newFixture()
	ctx := context.Background()

	due := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	created := mustCreate(t, &svc, tc, service.CreateTaskInput{
		Title:      "Оплатить аренду",
		Status:     task.StatusPlanned,
		DueAt:      &due,
		Recurrence: &task.RecurrenceInfo{Interval: 1, Unit: task.UnitMonth},
	})

	done, err := svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "done"})
	require.NoError(t, err)
	require.NotNil(t, done.Recurrence)
	assert.NotNil(t, done.Recurrence.GeneratedAt)

	workspaceID := uuid.MustParse(tc.WorkspaceID)
	all, err := storage.List(ctx, workspaceID, inter.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	var successor *task.Task
	for _, item := range all {
		if item.ID != created.ID {
			successor = item
		}
	}
	require.NotNil(t, successor)
	assert.Equal(t, task.StatusPlanned, successor.Status)
	assert.Nil(t, successor.CompletedAt)
	require.NotNil(t, successor.DueAt)
	assert.Equal(t, due.AddDate(0, 1, 0), *successor.DueAt)
	require.NotNil(t, successor.Recurrence)
	require.NotNil(t, successor.Recurrence.ParentID)
	assert.Equal(t, created.ID, *successor.Recurrence.ParentID)

	// повторное done (через reopen запрещён, поэтому патчим тот же статус)
	// не плодит новый повтор: штамп generated_at уже стоит
	_, err = svc.UpdateTask(ctx, tc, created.ID, task.Patch{"title": "Оплатить аренду за январь"})
	require.NoError(t, err)
	all, err = storage.List(ctx, workspaceID, inter.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// TestUpdateTask_RecurrenceChainParent тестирует, что преемник второго
// поколения ссылается на непосредственный источник, а не на корень цепочки
func TestUpdateTask_RecurrenceChainParent(t *testing.T) {
	storage, svc, tc := newFixture()
	ctx := context.Background()
	workspaceID := uuid.MustParse(tc.WorkspaceID)

	due := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	first := mustCreate(t, &svc, tc, service.CreateTaskInput{
		Title:      "Оплатить аренду",
		Status:     task.StatusPlanned,
		DueAt:      &due,
		Recurrence: &task.RecurrenceInfo{Interval: 1, Unit: task.UnitMonth},
	})

	_, err := svc.UpdateTask(ctx, tc, first.ID, task.Patch{"status": "done"})
	require.NoError(t, err)

	all, err := storage.List(ctx, workspaceID, inter.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	var second *task.Task
	for _, item := range all {
		if item.ID != first.ID {
			second = item
		}
	}
	require.NotNil(t, second)

	_, err = svc.UpdateTask(ctx, tc, second.ID, task.Patch{"status": "done"})
	require.NoError(t, err)

	all, err = storage.List(ctx, workspaceID, inter.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	var third *task.Task
	for _, item := range all {
		if item.ID != first.ID && item.ID != second.ID {
			third = item
		}
	}
	require.NotNil(t, third)
	require.NotNil(t, third.Recurrence)
	require.NotNil(t, third.Recurrence.ParentID)
	assert.Equal(t, second.ID, *third.Recurrence.ParentID)
	assert.Equal(t, due.AddDate(0, 2, 0), *third.DueAt)
}

// TestUpdateTask_RecurrenceNeedsDate тестирует, что без опорной даты
// преемник не создаётся
func TestUpdateTask_RecurrenceNeedsDate(t *testing.T) {
	storage, svc, tc := newFixture()
	ctx := context.Background()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{
		Title:      "Без даты",
		Status:     task.StatusPlanned,
		Recurrence: &task.RecurrenceInfo{Interval: 1, Unit: task.UnitWeek},
	})

	done, err := svc.UpdateTask(ctx, tc, created.ID, task.Patch{"status": "done"})
	require.NoError(t, err)
	require.NotNil(t, done.Recurrence)
	assert.Nil(t, done.Recurrence.GeneratedAt)

	all, err := storage.List(ctx, uuid.MustParse(tc.WorkspaceID), inter.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

// TestDeleteTask тестирует каскад и список удалённых id
func TestDeleteTask(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	root := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "root"})
	child := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "child", ParentID: &root.ID})

	ids, err := svc.DeleteTask(ctx, tc, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{root.ID, child.ID}, ids)

	_, err = svc.GetTask(ctx, tc, child.ID)
	assertBusinessCode(t, err, "NOT_FOUND")
}

// TestReparentTask тестирует бизнес-ошибки переноса
func TestReparentTask(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	root := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "root"})
	child := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "child", ParentID: &root.ID})

	err := svc.ReparentTask(ctx, tc, root.ID, &root.ID)
	assertBusinessCode(t, err, "SELF_PARENT")

	err = svc.ReparentTask(ctx, tc, root.ID, &child.ID)
	assertBusinessCode(t, err, "CYCLE_DETECTED")

	require.NoError(t, svc.ReparentTask(ctx, tc, child.ID, nil))
	moved, err := svc.GetTask(ctx, tc, child.ID)
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

// TestGetTaskTree тестирует сборку дерева с сортировкой по приоритету
func TestGetTaskTree(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	root := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "root"})
	mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "low", ParentID: &root.ID, Priority: task.PriorityLow})
	critical := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "critical", ParentID: &root.ID, Priority: task.PriorityCritical})

	nodes, err := svc.GetTaskTree(ctx, tc, root.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 2)
	assert.Equal(t, critical.ID, nodes[0].Children[0].ID)
}

// TestCheckIn тестирует три ответа на follow-up
func TestCheckIn(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	t.Run("yes завершает задачу", func(t *testing.T) {
		created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду", Status: task.StatusWaiting})

		result, err := svc.CheckIn(ctx, tc, created.ID, task.CheckInYes)
		require.NoError(t, err)
		assert.Equal(t, task.StatusDone, result.Task.Status)
		assert.NotNil(t, result.Task.CompletedAt)
		assert.Empty(t, result.RescheduledID)
	})

	t.Run("in-progress переносит follow-up на сутки", func(t *testing.T) {
		created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду", Status: task.StatusWaiting})

		result, err := svc.CheckIn(ctx, tc, created.ID, task.CheckInInProgress)
		require.NoError(t, err)
		assert.Equal(t, task.StatusInProgress, result.Task.Status)
		require.NotNil(t, result.Task.NextCheckinAt)
		assert.WithinDuration(t, time.Now().Add(24*time.Hour), *result.Task.NextCheckinAt, time.Minute)
	})

	t.Run("no сдвигает поддерево на сутки", func(t *testing.T) {
		due := time.Now().Add(48 * time.Hour)
		created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду", Status: task.StatusWaiting})
		child := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "child", ParentID: &created.ID, DueAt: &due})

		result, err := svc.CheckIn(ctx, tc, created.ID, task.CheckInNo)
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{created.ID, child.ID}, result.RescheduledID)

		shifted, err := svc.GetTask(ctx, tc, child.ID)
		require.NoError(t, err)
		require.NotNil(t, shifted.DueAt)
		assert.WithinDuration(t, due.Add(24*time.Hour), *shifted.DueAt, time.Second)
	})

	t.Run("неизвестный ответ", func(t *testing.T) {
		created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Жду", Status: task.StatusWaiting})

		_, err := svc.CheckIn(ctx, tc, created.ID, task.CheckInResponse("maybe"))
		assertBusinessCode(t, err, "UNSUPPORTED_RESPONSE")
	})
}

// TestCheckIn_YesBlockedByDependencies тестирует запрет завершения через
// check-in при незакрытых зависимостях
func TestCheckIn_YesBlockedByDependencies(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	blocker := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "blocker", Status: task.StatusPlanned})
	waiting := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "waiting", Status: task.StatusWaiting})
	require.NoError(t, svc.AddDependency(ctx, tc, waiting.ID, blocker.ID))

	_, err := svc.CheckIn(ctx, tc, waiting.ID, task.CheckInYes)
	assertBusinessCode(t, err, "DEPENDENCIES_INCOMPLETE")
}

// TestAddDependency_Validation тестирует отказы при добавлении зависимости
func TestAddDependency_Validation(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Задача"})

	err := svc.AddDependency(ctx, tc, created.ID, created.ID)
	assertBusinessCode(t, err, "VALIDATION_ERROR")

	err = svc.AddDependency(ctx, tc, created.ID, uuid.New())
	assertBusinessCode(t, err, "NOT_FOUND")
}

// TestRescheduleTask тестирует сдвиг через сервис
func TestRescheduleTask(t *testing.T) {
	_, svc, tc := newFixture()
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	created := mustCreate(t, &svc, tc, service.CreateTaskInput{Title: "Задача", DueAt: &due})

	ids, err := svc.RescheduleTask(ctx, tc, created.ID, -30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{created.ID}, ids)

	shifted, err := svc.GetTask(ctx, tc, created.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, due.Add(-30*time.Minute), *shifted.DueAt, time.Second)

	_, err = svc.RescheduleTask(ctx, tc, uuid.New(), time.Hour)
	assertBusinessCode(t, err, "NOT_FOUND")
}
