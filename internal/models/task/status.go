package task

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusInbox      Status = "inbox"
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in-progress"
	StatusWaiting    Status = "waiting"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
)

// DefaultWaitingDays - сколько дней ждём до follow-up, если срок не задан явно.
const DefaultWaitingDays = 3

var transitions = map[Status][]Status{
	StatusInbox:      {StatusPlanned, StatusInProgress, StatusCanceled},
	StatusPlanned:    {StatusInProgress, StatusWaiting, StatusBlocked, StatusDone, StatusCanceled},
	StatusInProgress: {StatusWaiting, StatusBlocked, StatusDone, StatusCanceled},
	StatusWaiting:    {StatusPlanned, StatusInProgress, StatusCanceled},
	StatusBlocked:    {StatusInProgress, StatusPlanned, StatusCanceled},
	StatusDone:       {},
	StatusCanceled:   {},
}

func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	for _, next := range allowed {
		if next == to {
			return true
		}
	}
	return false
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("недопустимый переход статуса: %s -> %s", e.From, e.To)
}

// Transition - чистая функция: меняет только статус, побочные эффекты
// (completed_at, next_checkin_at) раскладывает вызывающая сторона.
func Transition(t *Task, next Status) (*Task, error) {
	if t.Status == next {
		return t, nil
	}
	if !CanTransition(t.Status, next) {
		return nil, &InvalidTransitionError{From: t.Status, To: next}
	}
	updated := t.Clone()
	updated.Status = next
	return updated, nil
}

type CheckInResponse string

const (
	CheckInYes        CheckInResponse = "yes"
	CheckInNo         CheckInResponse = "no"
	CheckInInProgress CheckInResponse = "in-progress"
)

type UnsupportedResponseError struct {
	Response CheckInResponse
}

func (e *UnsupportedResponseError) Error() string {
	return fmt.Sprintf("неизвестный ответ на check-in: %q", e.Response)
}

// ApplyCheckIn разрешает запланированный follow-up ответом пользователя.
func ApplyCheckIn(t *Task, response CheckInResponse, now time.Time) (*Task, error) {
	updated := t.Clone()
	switch response {
	case CheckInYes:
		completed := now
		updated.Status = StatusDone
		updated.CompletedAt = &completed
		updated.NextCheckinAt = nil
	case CheckInInProgress:
		next := now.AddDate(0, 0, 1)
		updated.Status = StatusInProgress
		updated.NextCheckinAt = &next
	case CheckInNo:
		next := now.AddDate(0, 0, 1)
		updated.Status = StatusPlanned
		updated.NextCheckinAt = &next
	default:
		return nil, &UnsupportedResponseError{Response: response}
	}
	return updated, nil
}

// WaitingFollowupTime выбирает явный срок follow-up либо now + defaultDays.
func WaitingFollowupTime(explicit *time.Time, now time.Time, defaultDays int) time.Time {
	if explicit != nil {
		return *explicit
	}
	if defaultDays <= 0 {
		defaultDays = DefaultWaitingDays
	}
	return now.AddDate(0, 0, defaultDays)
}

// ApplyWaitingFollowup проставляет next_checkin_at задаче в статусе waiting.
func ApplyWaitingFollowup(t *Task, now time.Time, defaultDays int) *Task {
	if t.Status != StatusWaiting {
		return t
	}
	updated := t.Clone()
	followup := WaitingFollowupTime(t.WaitingFollowupAt, now, defaultDays)
	updated.NextCheckinAt = &followup
	return updated
}

// ApplyStatusSideEffects применяется при каждой смене статуса поверх
// уже прошедшего Transition результата. explicitCheckin/explicitCompleted
// сообщают, задал ли вызывающий соответствующие поля сам.
func ApplyStatusSideEffects(t *Task, now time.Time, waitingDays int, explicitCheckin, explicitCompleted bool) *Task {
	updated := t.Clone()
	if updated.Status == StatusWaiting && !explicitCheckin {
		followup := WaitingFollowupTime(updated.WaitingFollowupAt, now, waitingDays)
		updated.NextCheckinAt = &followup
	}
	if updated.Status == StatusDone && updated.CompletedAt == nil {
		completed := now
		updated.CompletedAt = &completed
	}
	if updated.Status != StatusDone && !explicitCompleted {
		updated.CompletedAt = nil
	}
	return updated
}
