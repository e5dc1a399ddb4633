package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brianhub/internal/models/change"
	"brianhub/internal/sync"
)

// TestRecordLocalChange тестирует монотонный seq очереди
func TestRecordLocalChange(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	state := sync.QueueState{}

	state = sync.RecordLocalChange(state, change.Change{
		EntityType: change.EntityTask,
		EntityID:   "t1",
		Action:     change.ActionCreate,
	}, now)
	state = sync.RecordLocalChange(state, change.Change{
		EntityType: change.EntityTask,
		EntityID:   "t1",
		Action:     change.ActionUpdate,
	}, now.Add(time.Minute))

	assert.Equal(t, int64(2), state.LocalSeq)
	require.Len(t, state.PendingChanges, 2)
	assert.Equal(t, int64(1), state.PendingChanges[0].Seq)
	assert.Equal(t, int64(2), state.PendingChanges[1].Seq)
	assert.Equal(t, now, state.PendingChanges[0].CreatedAt)
}

// TestRecordLocalChange_Pure тестирует, что исходное состояние не мутируется
func TestRecordLocalChange_Pure(t *testing.T) {
	original := sync.QueueState{
		LocalSeq: 5,
		PendingChanges: []change.Change{
			{Seq: 5, EntityID: "t1", Action: change.ActionCreate},
		},
	}

	next := sync.RecordLocalChange(original, change.Change{EntityID: "t2"}, time.Now())

	assert.Equal(t, int64(5), original.LocalSeq)
	assert.Len(t, original.PendingChanges, 1)
	assert.Equal(t, int64(6), next.LocalSeq)
	assert.Len(t, next.PendingChanges, 2)
}

// TestReplayPendingChanges тестирует проигрывание очереди по порядку
func TestReplayPendingChanges(t *testing.T) {
	pending := []change.Change{
		{Seq: 1, EntityID: "t1", Action: change.ActionCreate},
		{Seq: 2, EntityID: "t1", Action: change.ActionUpdate},
		{Seq: 3, EntityID: "t1", Action: change.ActionDelete},
	}

	var seen []int64
	result := sync.ReplayPendingChanges(context.Background(), pending, func(_ context.Context, c change.Change) error {
		seen = append(seen, c.Seq)
		return nil
	})

	require.NoError(t, result.Err)
	assert.Equal(t, []int64{1, 2, 3}, seen)
	assert.Len(t, result.Applied, 3)
	assert.Empty(t, result.Remaining)
}

// TestReplayPendingChanges_PartialFailure тестирует заморозку хвоста после
// первого сбоя
func TestReplayPendingChanges_PartialFailure(t *testing.T) {
	pending := []change.Change{
		{Seq: 1, EntityID: "t1", Action: change.ActionCreate},
		{Seq: 2, EntityID: "t2", Action: change.ActionCreate},
		{Seq: 3, EntityID: "t2", Action: change.ActionUpdate},
	}

	failure := errors.New("конфликт на сервере")
	calls := 0
	result := sync.ReplayPendingChanges(context.Background(), pending, func(_ context.Context, c change.Change) error {
		calls++
		if c.Seq == 2 {
			return failure
		}
		return nil
	})

	// после сбоя итерация прекращается, третье изменение не проверяется
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, result.Err, failure)

	require.Len(t, result.Applied, 1)
	assert.Equal(t, int64(1), result.Applied[0].Seq)

	// упавшее и непроверенные уходят в Remaining в исходном порядке
	require.Len(t, result.Remaining, 2)
	assert.Equal(t, int64(2), result.Remaining[0].Seq)
	assert.Equal(t, int64(3), result.Remaining[1].Seq)
}

// TestReplayPendingChanges_Empty тестирует пустую очередь
func TestReplayPendingChanges_Empty(t *testing.T) {
	result := sync.ReplayPendingChanges(context.Background(), nil, func(_ context.Context, _ change.Change) error {
		t.Fatal("apply не должен вызываться")
		return nil
	})
	require.NoError(t, result.Err)
	assert.Empty(t, result.Applied)
	assert.Empty(t, result.Remaining)
}
