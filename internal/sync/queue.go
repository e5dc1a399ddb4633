// Package sync - офлайн-очередь изменений и слияние серверного change log
// в локальный снимок. Всё здесь - чистые операции над данными; сеть и
// персистентность остаются за вызывающим.
package sync

import (
	"context"
	"time"

	"brianhub/internal/models/change"
)

// QueueState - локальная очередь одного клиента: монотонный локальный seq
// и накопленные, ещё не подтверждённые сервером изменения.
type QueueState struct {
	LocalSeq       int64           `json:"local_seq"`
	PendingChanges []change.Change `json:"pending_changes"`
}

// RecordLocalChange назначает следующий локальный seq и добавляет запись в
// хвост. Исходное состояние не мутируется.
func RecordLocalChange(state QueueState, c change.Change, now time.Time) QueueState {
	c.Seq = state.LocalSeq + 1
	c.CreatedAt = now

	pending := make([]change.Change, 0, len(state.PendingChanges)+1)
	pending = append(pending, state.PendingChanges...)
	pending = append(pending, c)

	return QueueState{
		LocalSeq:       c.Seq,
		PendingChanges: pending,
	}
}

type ReplayResult struct {
	Applied   []change.Change
	Remaining []change.Change
	Err       error
}

// ApplyFunc отправляет одну мутацию на сервер и вливает его ответ в
// локальное состояние.
type ApplyFunc func(ctx context.Context, c change.Change) error

// ReplayPendingChanges проигрывает очередь строго в порядке seq. Мутации
// одной сущности некоммутативны (reparent после delete бессмыслен), поэтому
// первый сбой замораживает хвост: упавшее изменение и все непроверенные
// уходят в Remaining в исходном порядке, итерация прекращается сразу.
// Повторная попытка - забота вызывающего, и всегда целым хвостом.
func ReplayPendingChanges(ctx context.Context, pending []change.Change, apply ApplyFunc) ReplayResult {
	result := ReplayResult{
		Applied:   []change.Change{},
		Remaining: []change.Change{},
	}

	for i, c := range pending {
		if err := apply(ctx, c); err != nil {
			result.Err = err
			result.Remaining = append(result.Remaining, pending[i:]...)
			break
		}
		result.Applied = append(result.Applied, c)
	}
	return result
}
