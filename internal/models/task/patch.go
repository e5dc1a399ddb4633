package task

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patch - карта полей как она пришла с клиента (и как она уходит в change
// log): реплеи работают по payload, а не по снимку строки.
type Patch map[string]any

func (p Patch) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Merge накладывает patch на копию задачи. Неизвестные ключи игнорируются,
// известные приводятся к типам колонок (boolean-ish целые, ISO-8601 строки).
func (p Patch) Merge(existing *Task) (*Task, error) {
	next := existing.Clone()

	if v, ok := p["title"]; ok {
		s, err := asString(v, "title")
		if err != nil {
			return nil, err
		}
		next.Title = s
	}
	if v, ok := p["description_md"]; ok {
		s, err := asString(v, "description_md")
		if err != nil {
			return nil, err
		}
		next.DescriptionMD = s
	}
	if v, ok := p["status"]; ok {
		s, err := asString(v, "status")
		if err != nil {
			return nil, err
		}
		next.Status = Status(s)
	}
	if v, ok := p["priority"]; ok {
		s, err := asString(v, "priority")
		if err != nil {
			return nil, err
		}
		next.Priority = Priority(s)
	}
	if v, ok := p["urgency"]; ok {
		next.Urgency = asBool(v)
	}
	if v, ok := p["auto_debit"]; ok {
		next.AutoDebit = asBool(v)
	}
	if v, ok := p["type_label"]; ok {
		s, err := asStringPtr(v, "type_label")
		if err != nil {
			return nil, err
		}
		next.TypeLabel = s
	}
	if v, ok := p["task_type"]; ok {
		s, err := asString(v, "task_type")
		if err != nil {
			return nil, err
		}
		next.TaskType = s
	}
	if v, ok := p["sort_order"]; ok {
		n, err := asInt(v, "sort_order")
		if err != nil {
			return nil, err
		}
		next.SortOrder = n
	}
	if v, ok := p["project_id"]; ok {
		id, err := asUUIDPtr(v, "project_id")
		if err != nil {
			return nil, err
		}
		next.ProjectID = id
	}
	if v, ok := p["reminder_offset_days"]; ok {
		n, err := asIntPtr(v, "reminder_offset_days")
		if err != nil {
			return nil, err
		}
		next.ReminderOffsetDays = n
	}

	timeFields := map[string]**time.Time{
		"start_at":            &next.StartAt,
		"due_at":              &next.DueAt,
		"completed_at":        &next.CompletedAt,
		"waiting_followup_at": &next.WaitingFollowupAt,
		"next_checkin_at":     &next.NextCheckinAt,
		"reminder_sent_at":    &next.ReminderSentAt,
	}
	for key, field := range timeFields {
		if v, ok := p[key]; ok {
			t, err := asTimePtr(v, key)
			if err != nil {
				return nil, err
			}
			*field = t
		}
	}

	if err := mergeRecurrence(p, next); err != nil {
		return nil, err
	}
	if err := mergeTemplate(p, next); err != nil {
		return nil, err
	}
	return next, nil
}

func mergeRecurrence(p Patch, next *Task) error {
	if !p.Has("recurrence_interval") && !p.Has("recurrence_unit") &&
		!p.Has("recurrence_parent_id") && !p.Has("recurrence_generated_at") {
		return nil
	}
	rec := next.Recurrence
	if rec == nil {
		rec = &RecurrenceInfo{}
	}
	if v, ok := p["recurrence_interval"]; ok {
		if v == nil {
			next.Recurrence = nil
			return nil
		}
		n, err := asInt(v, "recurrence_interval")
		if err != nil {
			return err
		}
		rec.Interval = n
	}
	if v, ok := p["recurrence_unit"]; ok {
		if v == nil {
			next.Recurrence = nil
			return nil
		}
		s, err := asString(v, "recurrence_unit")
		if err != nil {
			return err
		}
		rec.Unit = RecurrenceUnit(s)
	}
	if v, ok := p["recurrence_parent_id"]; ok {
		id, err := asUUIDPtr(v, "recurrence_parent_id")
		if err != nil {
			return err
		}
		rec.ParentID = id
	}
	if v, ok := p["recurrence_generated_at"]; ok {
		t, err := asTimePtr(v, "recurrence_generated_at")
		if err != nil {
			return err
		}
		rec.GeneratedAt = t
	}
	if rec.Interval > 0 && ValidRecurrenceUnit(rec.Unit) {
		next.Recurrence = rec
	}
	return nil
}

func mergeTemplate(p Patch, next *Task) error {
	if !p.Has("template_id") && !p.Has("template_state") && !p.Has("template_event_date") &&
		!p.Has("template_lead_days") && !p.Has("template_defer_until") && !p.Has("template_prompt_pending") {
		return nil
	}
	tpl := next.Template
	if v, ok := p["template_id"]; ok {
		if v == nil {
			next.Template = nil
			return nil
		}
		id, err := asUUIDPtr(v, "template_id")
		if err != nil {
			return err
		}
		if tpl == nil {
			tpl = &TemplateLink{}
		}
		tpl.ID = *id
	}
	if tpl == nil {
		// patch трогает детали шаблона у задачи без привязки - игнорируем
		return nil
	}
	if v, ok := p["template_state"]; ok {
		s, err := asStringPtr(v, "template_state")
		if err != nil {
			return err
		}
		tpl.State = s
	}
	if v, ok := p["template_event_date"]; ok {
		t, err := asTimePtr(v, "template_event_date")
		if err != nil {
			return err
		}
		tpl.EventDate = t
	}
	if v, ok := p["template_lead_days"]; ok {
		n, err := asIntPtr(v, "template_lead_days")
		if err != nil {
			return err
		}
		tpl.LeadDays = n
	}
	if v, ok := p["template_defer_until"]; ok {
		t, err := asTimePtr(v, "template_defer_until")
		if err != nil {
			return err
		}
		tpl.DeferUntil = t
	}
	if v, ok := p["template_prompt_pending"]; ok {
		tpl.PromptPending = asBool(v)
	}
	next.Template = tpl
	return nil
}

func asString(v any, field string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("поле %s: ожидалась строка, получено %T", field, v)
	}
	return s, nil
}

func asStringPtr(v any, field string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s, err := asString(v, field)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// asBool принимает как настоящие bool, так и boolean-ish целые колонки.
func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	}
	return false
}

func asInt(v any, field string) (int, error) {
	switch val := v.(type) {
	case float64:
		return int(val), nil
	case int:
		return val, nil
	case int64:
		return int(val), nil
	}
	return 0, fmt.Errorf("поле %s: ожидалось число, получено %T", field, v)
}

func asIntPtr(v any, field string) (*int, error) {
	if v == nil {
		return nil, nil
	}
	n, err := asInt(v, field)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func asTimePtr(v any, field string) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case time.Time:
		return &val, nil
	case string:
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, fmt.Errorf("поле %s: неверный формат времени %q", field, val)
		}
		return &t, nil
	}
	return nil, fmt.Errorf("поле %s: ожидалась ISO-8601 строка, получено %T", field, v)
}

func asUUIDPtr(v any, field string) (*uuid.UUID, error) {
	if v == nil {
		return nil, nil
	}
	s, err := asString(v, field)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("поле %s: неверный uuid %q", field, s)
	}
	return &id, nil
}
