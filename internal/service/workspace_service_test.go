package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/models/change"
	"brianhub/internal/repository/task/inmemory"
	"brianhub/internal/service"
	"brianhub/internal/tenant"
)

// TestWorkspaceLifecycle тестирует создание, переименование и архивацию
func TestWorkspaceLifecycle(t *testing.T) {
	storage := inmemory.NewTaskStorage()
	svc := service.NewWorkspaceService(storage)
	tc := tenant.Context{OrgID: "org-1"}
	ctx := context.Background()

	created, err := svc.CreateWorkspace(ctx, tc, "Личное", "")
	require.NoError(t, err)
	assert.Equal(t, "personal", created.Type)
	assert.Equal(t, "org-1", created.OrgID)

	renamed, err := svc.RenameWorkspace(ctx, tc, created.ID, "Дом")
	require.NoError(t, err)
	assert.Equal(t, "Дом", renamed.Name)

	list, err := svc.ListWorkspaces(ctx, tc)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Дом", list[0].Name)

	require.NoError(t, svc.ArchiveWorkspace(ctx, tc, created.ID))

	// архивные не выдаются списком, но живы по id
	list, err = svc.ListWorkspaces(ctx, tc)
	require.NoError(t, err)
	assert.Empty(t, list)

	got, err := svc.GetWorkspace(ctx, tc, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
}

// TestCreateWorkspace_SeedsDefaults тестирует засев справочников: клиент
// собирает статусы и типы задач из журнала на первом pull
func TestCreateWorkspace_SeedsDefaults(t *testing.T) {
	storage := inmemory.NewTaskStorage()
	svc := service.NewWorkspaceService(storage)
	ctx := context.Background()

	created, err := svc.CreateWorkspace(ctx, tenant.Context{OrgID: "org-1"}, "Личное", "")
	require.NoError(t, err)

	changes, err := storage.PullChanges(ctx, created.ID, 0, 100)
	require.NoError(t, err)

	statuses := []map[string]any{}
	taskTypes := 0
	for _, c := range changes {
		switch c.EntityType {
		case change.EntityStatus:
			statuses = append(statuses, c.Payload)
		case change.EntityTaskType:
			taskTypes++
		}
		assert.Equal(t, change.ActionCreate, c.Action)
	}

	require.Len(t, statuses, 7)
	assert.Equal(t, 2, taskTypes)

	// kind связывает статус со встроенной машиной
	assert.Equal(t, "inbox", statuses[0]["key"])
	assert.Equal(t, "inbox", statuses[0]["kind"])
	assert.Equal(t, "waiting", statuses[3]["kind"])
	assert.Equal(t, "done", statuses[5]["kind"])
}

// TestWorkspace_Errors тестирует отказы сервиса воркспейсов
func TestWorkspace_Errors(t *testing.T) {
	storage := inmemory.NewTaskStorage()
	svc := service.NewWorkspaceService(storage)
	ctx := context.Background()

	_, err := svc.CreateWorkspace(ctx, tenant.Context{}, "Личное", "")
	assertBusinessCode(t, err, "TENANT_REQUIRED")

	tc := tenant.Context{OrgID: "org-1"}
	_, err = svc.CreateWorkspace(ctx, tc, "", "")
	assertBusinessCode(t, err, "VALIDATION_ERROR")

	_, err = svc.GetWorkspace(ctx, tc, uuid.New())
	assertBusinessCode(t, err, "NOT_FOUND")

	// чужая организация воркспейс не видит
	created, err := svc.CreateWorkspace(ctx, tc, "Личное", "")
	require.NoError(t, err)
	_, err = svc.GetWorkspace(ctx, tenant.Context{OrgID: "org-2"}, created.ID)
	assertBusinessCode(t, err, "NOT_FOUND")
}
