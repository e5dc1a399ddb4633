package sync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/models/change"
	"brianhub/internal/sync"
)

type fakeServer struct {
	pushed  []change.Change
	pull    sync.PullResponse
	pushWS  string
	pullWS  string
	cursors []string
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sync/push", func(w http.ResponseWriter, r *http.Request) {
		f.pushWS = r.Header.Get("X-Workspace-Id")
		var req sync.PushRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.pushed = append(f.pushed, req.Changes...)
		_ = json.NewEncoder(w).Encode(sync.PushResponse{Applied: len(req.Changes)})
	})
	mux.HandleFunc("GET /sync/pull", func(w http.ResponseWriter, r *http.Request) {
		f.pullWS = r.Header.Get("X-Workspace-Id")
		f.cursors = append(f.cursors, r.URL.Query().Get("cursor"))
		_ = json.NewEncoder(w).Encode(f.pull)
	})
	return mux
}

// TestSyncNow тестирует полный цикл push + pull
func TestSyncNow(t *testing.T) {
	fake := &fakeServer{
		pull: sync.PullResponse{
			Changes: []change.Change{
				{Seq: 11, EntityType: change.EntityTask, EntityID: "remote", Action: change.ActionCreate,
					Payload: map[string]any{"title": "чужая"}, ClientID: "web-other"},
			},
			NextCursor: 11,
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := sync.NewClient(srv.URL, "web-self", srv.Client())
	snap := sync.NewSnapshot()
	queue := sync.RecordLocalChange(sync.QueueState{}, change.Change{
		EntityType: change.EntityTask,
		EntityID:   "local",
		Action:     change.ActionCreate,
	}, time.Now())

	nextQueue, result, err := client.SyncNow(context.Background(), "ws-1", snap, queue, 7, mergeCtx())
	require.NoError(t, err)

	// очередь ушла одним запросом и очистилась, LocalSeq сохранился
	require.Len(t, fake.pushed, 1)
	assert.Equal(t, "local", fake.pushed[0].EntityID)
	assert.Empty(t, nextQueue.PendingChanges)
	assert.Equal(t, int64(1), nextQueue.LocalSeq)

	assert.Equal(t, "ws-1", fake.pushWS)
	assert.Equal(t, "ws-1", fake.pullWS)
	assert.Equal(t, []string{"7"}, fake.cursors)

	assert.Equal(t, 1, result.Pushed)
	assert.Equal(t, 1, result.Pulled)
	assert.Equal(t, int64(11), result.NextCursor)
	assert.Contains(t, snap.Tasks, "remote")
}

// TestSyncNow_FiltersOwnChanges тестирует фильтрацию своих записей по
// client_id
func TestSyncNow_FiltersOwnChanges(t *testing.T) {
	fake := &fakeServer{
		pull: sync.PullResponse{
			Changes: []change.Change{
				{Seq: 1, EntityType: change.EntityTask, EntityID: "mine", Action: change.ActionCreate, ClientID: "web-self"},
				{Seq: 2, EntityType: change.EntityTask, EntityID: "theirs", Action: change.ActionCreate, ClientID: "web-other"},
			},
			NextCursor: 2,
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := sync.NewClient(srv.URL, "web-self", srv.Client())
	snap := sync.NewSnapshot()

	_, result, err := client.SyncNow(context.Background(), "ws-1", snap, sync.QueueState{}, 0, mergeCtx())
	require.NoError(t, err)

	// свои записи не применяются второй раз, но в Pulled считаются
	assert.Equal(t, 2, result.Pulled)
	assert.NotContains(t, snap.Tasks, "mine")
	assert.Contains(t, snap.Tasks, "theirs")
}

// TestSyncNow_MonotonicCursor тестирует, что курсор не откатывается назад
func TestSyncNow_MonotonicCursor(t *testing.T) {
	fake := &fakeServer{pull: sync.PullResponse{NextCursor: 3}}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := sync.NewClient(srv.URL, "web-self", srv.Client())

	_, result, err := client.SyncNow(context.Background(), "ws-1", sync.NewSnapshot(), sync.QueueState{}, 10, mergeCtx())
	require.NoError(t, err)
	assert.Equal(t, int64(10), result.NextCursor)
}

// TestSyncNow_PushError тестирует, что при сбое push очередь не теряется
func TestSyncNow_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	client := sync.NewClient(srv.URL, "web-self", srv.Client())
	queue := sync.RecordLocalChange(sync.QueueState{}, change.Change{EntityID: "local"}, time.Now())

	nextQueue, _, err := client.SyncNow(context.Background(), "ws-1", sync.NewSnapshot(), queue, 0, mergeCtx())
	require.Error(t, err)
	assert.Len(t, nextQueue.PendingChanges, 1)
}
