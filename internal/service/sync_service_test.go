package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
	"brianhub/internal/repository/task/inmemory"
	"brianhub/internal/service"
	"brianhub/internal/tenant"
)

func newSyncFixture() (*inmemory.TaskStorage, service.TaskService, service.SyncService, tenant.Context) {
	storage := inmemory.NewTaskStorage()
	tasks := service.NewTaskService(storage, 3)
	sync := service.NewSyncService(storage, &tasks, 3, 500)
	tc := tenant.Context{
		OrgID:       "org-1",
		WorkspaceID: uuid.NewString(),
		ClientID:    "web-test",
	}
	return storage, tasks, sync, tc
}

// TestPush тестирует реплей очереди клиента по порядку
func TestPush(t *testing.T) {
	_, tasks, sync, tc := newSyncFixture()
	ctx := context.Background()

	taskID := uuid.NewString()
	applied, err := sync.Push(ctx, tc, []change.Change{
		{Seq: 1, EntityType: change.EntityTask, EntityID: taskID, Action: change.ActionCreate,
			Payload: map[string]any{"title": "Офлайн задача"}},
		{Seq: 2, EntityType: change.EntityTask, EntityID: taskID, Action: change.ActionUpdate,
			Payload: map[string]any{"status": "planned"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	// клиентский UUID сохранён
	got, err := tasks.GetTask(ctx, tc, uuid.MustParse(taskID))
	require.NoError(t, err)
	assert.Equal(t, "Офлайн задача", got.Title)
	assert.Equal(t, task.StatusPlanned, got.Status)
}

// TestPush_PreservesParentLink тестирует ссылки parent_id внутри одной
// очереди
func TestPush_PreservesParentLink(t *testing.T) {
	_, tasks, sync, tc := newSyncFixture()
	ctx := context.Background()

	parentID := uuid.NewString()
	childID := uuid.NewString()
	applied, err := sync.Push(ctx, tc, []change.Change{
		{Seq: 1, EntityType: change.EntityTask, EntityID: parentID, Action: change.ActionCreate,
			Payload: map[string]any{"title": "parent"}},
		{Seq: 2, EntityType: change.EntityTask, EntityID: childID, Action: change.ActionCreate,
			Payload: map[string]any{"title": "child", "parent_id": parentID}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	child, err := tasks.GetTask(ctx, tc, uuid.MustParse(childID))
	require.NoError(t, err)
	require.NotNil(t, child.ParentID)
	assert.Equal(t, parentID, child.ParentID.String())
}

// TestPush_StopsOnFirstFailure тестирует остановку реплея на первом сбое
func TestPush_StopsOnFirstFailure(t *testing.T) {
	_, tasks, sync, tc := newSyncFixture()
	ctx := context.Background()

	okID := uuid.NewString()
	applied, err := sync.Push(ctx, tc, []change.Change{
		{Seq: 1, EntityType: change.EntityTask, EntityID: okID, Action: change.ActionCreate,
			Payload: map[string]any{"title": "первая"}},
		{Seq: 2, EntityType: change.EntityTask, EntityID: uuid.NewString(), Action: change.ActionCreate,
			Payload: map[string]any{"title": ""}},
		{Seq: 3, EntityType: change.EntityTask, EntityID: okID, Action: change.ActionDelete},
	})
	require.Error(t, err)
	assert.Equal(t, 1, applied)

	// хвост после сбоя не применился: первая задача жива
	_, err = tasks.GetTask(ctx, tc, uuid.MustParse(okID))
	assert.NoError(t, err)
}

// TestPush_DeleteMissingIsIdempotent тестирует повторное удаление: задача
// могла уже уйти другим клиентом, реплей не должен застревать
func TestPush_DeleteMissingIsIdempotent(t *testing.T) {
	_, _, sync, tc := newSyncFixture()

	applied, err := sync.Push(context.Background(), tc, []change.Change{
		{Seq: 1, EntityType: change.EntityTask, EntityID: uuid.NewString(), Action: change.ActionDelete},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
}

// TestPush_PassThroughEntities тестирует транзит сущностей без серверной
// таблицы
func TestPush_PassThroughEntities(t *testing.T) {
	_, _, sync, tc := newSyncFixture()
	ctx := tenant.With(context.Background(), tc)

	applied, err := sync.Push(ctx, tc, []change.Change{
		{Seq: 1, EntityType: change.EntityShoppingItem, EntityID: uuid.NewString(), Action: change.ActionCreate,
			Payload: map[string]any{"name": "Молоко"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	changes, next, err := sync.Pull(ctx, tc, 0)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, change.EntityShoppingItem, changes[0].EntityType)
	assert.Equal(t, "web-test", changes[0].ClientID)
	assert.Equal(t, changes[0].Seq, next)
}

// TestPush_CheckInAndReschedule тестирует реплей check-in и сдвига
func TestPush_CheckInAndReschedule(t *testing.T) {
	_, tasks, sync, tc := newSyncFixture()
	ctx := context.Background()

	due := time.Now().Add(24 * time.Hour)
	created, err := tasks.CreateTask(ctx, tc, service.CreateTaskInput{
		Title:  "Жду ответа",
		Status: task.StatusWaiting,
		DueAt:  &due,
	})
	require.NoError(t, err)

	applied, err := sync.Push(ctx, tc, []change.Change{
		{Seq: 1, EntityType: change.EntityTask, EntityID: created.ID.String(), Action: change.ActionCheckIn,
			Payload: map[string]any{"response": "in-progress"}},
		{Seq: 2, EntityType: change.EntityTask, EntityID: created.ID.String(), Action: change.ActionReschedule,
			Payload: map[string]any{"delta_seconds": float64(3600)}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	got, err := tasks.GetTask(ctx, tc, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)
	assert.WithinDuration(t, due.Add(time.Hour), *got.DueAt, time.Second)
}

// TestPull тестирует выдачу хвоста журнала по курсору
func TestPull(t *testing.T) {
	_, tasks, sync, tc := newSyncFixture()
	ctx := context.Background()

	first, err := tasks.CreateTask(ctx, tc, service.CreateTaskInput{Title: "первая"})
	require.NoError(t, err)
	_, err = tasks.CreateTask(ctx, tc, service.CreateTaskInput{Title: "вторая"})
	require.NoError(t, err)

	changes, next, err := sync.Pull(ctx, tc, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, first.ID.String(), changes[0].EntityID)
	assert.Equal(t, changes[1].Seq, next)

	// курсор строго отсекает виденное
	tail, next2, err := sync.Pull(ctx, tc, changes[0].Seq)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, next, next2)

	// пустой хвост не двигает курсор
	empty, same, err := sync.Pull(ctx, tc, next)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, next, same)
}

// TestPush_TenantRequired тестирует отказ без скоупа
func TestPush_TenantRequired(t *testing.T) {
	_, _, sync, _ := newSyncFixture()

	_, err := sync.Push(context.Background(), tenant.Context{}, nil)
	assertBusinessCode(t, err, "TENANT_REQUIRED")
}
