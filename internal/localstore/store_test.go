package localstore_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/localstore"
	"brianhub/internal/models/change"
	"brianhub/internal/sync"
)

func openStore(t *testing.T) (*localstore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.db")
	store, err := localstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

// TestClientID тестирует стабильность идентификатора установки
func TestClientID(t *testing.T) {
	store, path := openStore(t)
	ctx := context.Background()

	first, err := store.ClientID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first, "web-"))

	second, err := store.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// переживает переоткрытие файла
	require.NoError(t, store.Close())
	reopened, err := localstore.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	third, err := reopened.ClientID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

// TestSnapshotRoundtrip тестирует сохранение и чтение снимка
func TestSnapshotRoundtrip(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	// пустая база отдаёт чистый снимок
	empty, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Tasks)

	snap := sync.NewSnapshot()
	snap.Tasks["t1"] = sync.Entity{"id": "t1", "title": "Задача"}
	snap.Projects = append(snap.Projects, sync.Entity{"id": "p1", "name": "Дом"})
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	loaded, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Задача", loaded.Tasks["t1"]["title"])
	require.Len(t, loaded.Projects, 1)
	assert.Equal(t, "Дом", loaded.Projects[0]["name"])

	// повторное сохранение перезаписывает единственную строку
	snap.Tasks["t2"] = sync.Entity{"id": "t2"}
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	loaded, err = store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded.Tasks, 2)
}

// TestQueueRoundtrip тестирует перезапись очереди целиком
func TestQueueRoundtrip(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	state := sync.QueueState{}
	state = sync.RecordLocalChange(state, change.Change{
		EntityType: change.EntityTask,
		EntityID:   "t1",
		Action:     change.ActionCreate,
		Payload:    map[string]any{"title": "Офлайн"},
	}, time.Now())
	state = sync.RecordLocalChange(state, change.Change{
		EntityType: change.EntityTask,
		EntityID:   "t1",
		Action:     change.ActionUpdate,
		Payload:    map[string]any{"status": "planned"},
	}, time.Now())

	require.NoError(t, store.SaveQueue(ctx, state))

	loaded, err := store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.LocalSeq)
	require.Len(t, loaded.PendingChanges, 2)
	assert.Equal(t, int64(1), loaded.PendingChanges[0].Seq)
	assert.Equal(t, "Офлайн", loaded.PendingChanges[0].Payload["title"])

	// после подтверждения сервером очередь пустеет, но seq сохраняется
	require.NoError(t, store.SaveQueue(ctx, sync.QueueState{LocalSeq: 2}))
	loaded, err = store.LoadQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loaded.LocalSeq)
	assert.Empty(t, loaded.PendingChanges)
}

// TestCursor тестирует монотонность серверного курсора
func TestCursor(t *testing.T) {
	store, _ := openStore(t)
	ctx := context.Background()

	cursor, err := store.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor)

	require.NoError(t, store.SetCursor(ctx, 42))
	cursor, err = store.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)

	// откат назад игнорируется
	require.NoError(t, store.SetCursor(ctx, 7))
	cursor, err = store.Cursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)
}
