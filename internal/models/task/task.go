package task

import (
	"time"

	"github.com/google/uuid"
)

type Task struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	WorkspaceID uuid.UUID  `json:"workspace_id" db:"workspace_id"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty" db:"parent_id"`
	ProjectID   *uuid.UUID `json:"project_id,omitempty" db:"project_id"`

	Title         string   `json:"title" db:"title"`
	DescriptionMD string   `json:"description_md" db:"description_md"`
	Status        Status   `json:"status" db:"status"`
	Priority      Priority `json:"priority" db:"priority"`
	Urgency       bool     `json:"urgency" db:"urgency"`
	TypeLabel     *string  `json:"type_label,omitempty" db:"type_label"`
	SortOrder     int      `json:"sort_order" db:"sort_order"`
	TaskType      string   `json:"task_type" db:"task_type"`

	StartAt           *time.Time `json:"start_at,omitempty" db:"start_at"`
	DueAt             *time.Time `json:"due_at,omitempty" db:"due_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	WaitingFollowupAt *time.Time `json:"waiting_followup_at,omitempty" db:"waiting_followup_at"`
	NextCheckinAt     *time.Time `json:"next_checkin_at,omitempty" db:"next_checkin_at"`
	ReminderSentAt    *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`

	ReminderOffsetDays *int `json:"reminder_offset_days,omitempty" db:"reminder_offset_days"`
	AutoDebit          bool `json:"auto_debit" db:"auto_debit"`

	Recurrence *RecurrenceInfo `json:"recurrence,omitempty"`
	Template   *TemplateLink   `json:"template,omitempty"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// RecurrenceInfo присутствует, только если заданы обе части правила повторения.
type RecurrenceInfo struct {
	Interval    int            `json:"interval" db:"recurrence_interval"`
	Unit        RecurrenceUnit `json:"unit" db:"recurrence_unit"`
	ParentID    *uuid.UUID     `json:"parent_id,omitempty" db:"recurrence_parent_id"`
	GeneratedAt *time.Time     `json:"generated_at,omitempty" db:"recurrence_generated_at"`
}

// TemplateLink связывает сгенерированную задачу-напоминание с её шаблоном.
type TemplateLink struct {
	ID            uuid.UUID  `json:"id" db:"template_id"`
	State         *string    `json:"state,omitempty" db:"template_state"`
	EventDate     *time.Time `json:"event_date,omitempty" db:"template_event_date"`
	LeadDays      *int       `json:"lead_days,omitempty" db:"template_lead_days"`
	DeferUntil    *time.Time `json:"defer_until,omitempty" db:"template_defer_until"`
	PromptPending bool       `json:"prompt_pending" db:"template_prompt_pending"`
}

type RecurrenceUnit string

const (
	UnitDay   RecurrenceUnit = "day"
	UnitWeek  RecurrenceUnit = "week"
	UnitMonth RecurrenceUnit = "month"
	UnitYear  RecurrenceUnit = "year"
)

func ValidRecurrenceUnit(unit RecurrenceUnit) bool {
	switch unit {
	case UnitDay, UnitWeek, UnitMonth, UnitYear:
		return true
	}
	return false
}

// AddInterval двигает дату по календарю, а не на фиксированное число миллисекунд.
func AddInterval(t time.Time, interval int, unit RecurrenceUnit) time.Time {
	switch unit {
	case UnitDay:
		return t.AddDate(0, 0, interval)
	case UnitWeek:
		return t.AddDate(0, 0, interval*7)
	case UnitMonth:
		return t.AddDate(0, interval, 0)
	case UnitYear:
		return t.AddDate(interval, 0, 0)
	}
	return t
}

func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	next := *t
	next.ParentID = cloneUUIDPtr(t.ParentID)
	next.ProjectID = cloneUUIDPtr(t.ProjectID)
	next.TypeLabel = cloneStringPtr(t.TypeLabel)
	next.StartAt = cloneTimePtr(t.StartAt)
	next.DueAt = cloneTimePtr(t.DueAt)
	next.CompletedAt = cloneTimePtr(t.CompletedAt)
	next.WaitingFollowupAt = cloneTimePtr(t.WaitingFollowupAt)
	next.NextCheckinAt = cloneTimePtr(t.NextCheckinAt)
	next.ReminderSentAt = cloneTimePtr(t.ReminderSentAt)
	next.ReminderOffsetDays = cloneIntPtr(t.ReminderOffsetDays)
	next.UpdatedAt = cloneTimePtr(t.UpdatedAt)
	if t.Recurrence != nil {
		rec := *t.Recurrence
		rec.ParentID = cloneUUIDPtr(t.Recurrence.ParentID)
		rec.GeneratedAt = cloneTimePtr(t.Recurrence.GeneratedAt)
		next.Recurrence = &rec
	}
	if t.Template != nil {
		tpl := *t.Template
		tpl.State = cloneStringPtr(t.Template.State)
		tpl.EventDate = cloneTimePtr(t.Template.EventDate)
		tpl.LeadDays = cloneIntPtr(t.Template.LeadDays)
		tpl.DeferUntil = cloneTimePtr(t.Template.DeferUntil)
		next.Template = &tpl
	}
	return &next
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneUUIDPtr(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneIntPtr(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
