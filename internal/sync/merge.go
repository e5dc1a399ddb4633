package sync

import (
	"time"

	"brianhub/internal/models/change"
	"brianhub/internal/models/task"
)

// Entity - запись снимка в сыром виде (как пришла в payload). Слияние
// работает по полям payload-а, поэтому снимок держит карты, а не структуры.
type Entity = map[string]any

// Snapshot - плоское локальное состояние клиента. Замыкания здесь нет:
// структурная корректность после reparent восстанавливается полным
// рефрешем, офлайн-проверки циклов делает пакет tree.
type Snapshot struct {
	Workspaces       []Entity          `json:"workspaces"`
	Projects         []Entity          `json:"projects"`
	Statuses         []Entity          `json:"statuses"`
	TaskTypes        []Entity          `json:"task_types"`
	Tasks            map[string]Entity `json:"tasks"`
	TaskDependencies []Entity          `json:"task_dependencies"`
	Templates        []Entity          `json:"templates"`
	Notices          []Entity          `json:"notices"`
	NoticeTypes      []Entity          `json:"notice_types"`
	StoreRules       []Entity          `json:"store_rules"`
	ShoppingLists    []Entity          `json:"shopping_lists"`
	ShoppingItems    map[string]Entity `json:"shopping_items"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Workspaces:       []Entity{},
		Projects:         []Entity{},
		Statuses:         []Entity{},
		TaskTypes:        []Entity{},
		Tasks:            map[string]Entity{},
		TaskDependencies: []Entity{},
		Templates:        []Entity{},
		Notices:          []Entity{},
		NoticeTypes:      []Entity{},
		StoreRules:       []Entity{},
		ShoppingLists:    []Entity{},
		ShoppingItems:    map[string]Entity{},
	}
}

func (s *Snapshot) normalize() {
	if s.Workspaces == nil {
		s.Workspaces = []Entity{}
	}
	if s.Projects == nil {
		s.Projects = []Entity{}
	}
	if s.Statuses == nil {
		s.Statuses = []Entity{}
	}
	if s.TaskTypes == nil {
		s.TaskTypes = []Entity{}
	}
	if s.Tasks == nil {
		s.Tasks = map[string]Entity{}
	}
	if s.TaskDependencies == nil {
		s.TaskDependencies = []Entity{}
	}
	if s.Templates == nil {
		s.Templates = []Entity{}
	}
	if s.Notices == nil {
		s.Notices = []Entity{}
	}
	if s.NoticeTypes == nil {
		s.NoticeTypes = []Entity{}
	}
	if s.StoreRules == nil {
		s.StoreRules = []Entity{}
	}
	if s.ShoppingLists == nil {
		s.ShoppingLists = []Entity{}
	}
	if s.ShoppingItems == nil {
		s.ShoppingItems = map[string]Entity{}
	}
}

// MergeContext повторяет на клиенте те же входы, с которыми сервер считал
// побочные эффекты смены статуса.
type MergeContext struct {
	Now         time.Time
	WaitingDays int
}

// ApplyRemoteChange вливает одну запись серверного change log в снимок.
// NeedsRefresh=true означает, что изменение слишком сквозное для локального
// слияния и вызывающий обязан перечитать состояние целиком.
func ApplyRemoteChange(s *Snapshot, c change.Change, mc MergeContext) bool {
	s.normalize()
	switch c.EntityType {
	case change.EntityTask:
		return applyTaskChange(s, c, mc)
	case change.EntityProject:
		applyListChange(&s.Projects, c)
	case change.EntityStatus:
		applyListChange(&s.Statuses, c)
	case change.EntityTaskType:
		applyListChange(&s.TaskTypes, c)
	case change.EntityTemplate:
		applyListChange(&s.Templates, c)
	case change.EntityNotice:
		applyListChange(&s.Notices, c)
	case change.EntityNoticeType:
		applyListChange(&s.NoticeTypes, c)
	case change.EntityStoreRule:
		applyListChange(&s.StoreRules, c)
	case change.EntityShoppingList:
		applyListChange(&s.ShoppingLists, c)
	case change.EntityShoppingItem:
		applyMapChange(s.ShoppingItems, c)
	case change.EntityDependency:
		applyDependencyChange(s, c)
	case change.EntityWorkspace:
		// смена воркспейса инвалидирует все остальные коллекции
		return true
	}
	return false
}

// ApplyRemoteChanges сворачивает список в порядке серверного seq (по
// возрастанию) и накапливает флаг needsRefresh.
func ApplyRemoteChanges(s *Snapshot, changes []change.Change, mc MergeContext) bool {
	needsRefresh := false
	for _, c := range changes {
		if ApplyRemoteChange(s, c, mc) {
			needsRefresh = true
		}
	}
	return needsRefresh
}

func applyTaskChange(s *Snapshot, c change.Change, mc MergeContext) bool {
	switch c.Action {
	case change.ActionCreate:
		entity := cloneEntity(c.Payload)
		entity["id"] = c.EntityID
		s.Tasks[c.EntityID] = entity
	case change.ActionUpdate:
		existing, ok := s.Tasks[c.EntityID]
		if !ok {
			// патч по невиданной задаче сливается на голую заготовку
			existing = Entity{"id": c.EntityID}
		}
		s.Tasks[c.EntityID] = mergeTaskPatch(existing, c.Payload, s, mc)
	case change.ActionReparent:
		if existing, ok := s.Tasks[c.EntityID]; ok {
			existing["parent_id"] = c.Payload["parent_id"]
		}
	case change.ActionDelete:
		for _, id := range deletedIDs(c) {
			delete(s.Tasks, id)
		}
	case change.ActionCheckIn, change.ActionReschedule:
		// сквозные эффекты (сдвиг поддерева, строки check-in) не
		// воспроизводятся на клиенте - нужен полный рефреш
		return true
	}
	return false
}

// mergeTaskPatch повторяет серверные правила побочных эффектов смены
// статуса поверх уже слитого патча, чтобы локальное состояние совпало с
// тем, что посчитал бы сервер.
func mergeTaskPatch(existing Entity, patch map[string]any, s *Snapshot, mc MergeContext) Entity {
	merged := cloneEntity(existing)
	for key, value := range patch {
		merged[key] = value
	}
	if _, ok := merged["updated_at"]; !ok {
		merged["updated_at"] = mc.Now.Format(time.RFC3339)
	}

	statusValue, statusPatched := patch["status"]
	if !statusPatched {
		return merged
	}
	key, _ := statusValue.(string)
	kind := statusKind(s, key)

	if kind == string(task.StatusWaiting) {
		if _, ok := patch["next_checkin_at"]; !ok {
			explicit := entityTime(merged, "waiting_followup_at")
			followup := task.WaitingFollowupTime(explicit, mc.Now, mc.WaitingDays)
			merged["next_checkin_at"] = followup.Format(time.RFC3339)
		}
	}
	if kind == string(task.StatusDone) {
		if isEmpty(merged["completed_at"]) {
			merged["completed_at"] = mc.Now.Format(time.RFC3339)
		}
	} else if _, ok := patch["completed_at"]; !ok {
		merged["completed_at"] = nil
	}
	return merged
}

// statusKind смотрит kind статуса в снимке; неизвестный ключ трактуется
// как и есть (встроенные статусы совпадают с kind).
func statusKind(s *Snapshot, key string) string {
	if key == "" {
		return ""
	}
	for _, status := range s.Statuses {
		if status["key"] == key {
			if kind, ok := status["kind"].(string); ok {
				return kind
			}
			break
		}
	}
	return key
}

func applyListChange(list *[]Entity, c change.Change) {
	switch c.Action {
	case change.ActionCreate, change.ActionUpdate:
		entity := cloneEntity(c.Payload)
		entity["id"] = c.EntityID
		*list = upsertByID(*list, entity)
	case change.ActionDelete:
		*list = removeByID(*list, c.EntityID)
	}
}

func applyMapChange(m map[string]Entity, c change.Change) {
	switch c.Action {
	case change.ActionCreate:
		entity := cloneEntity(c.Payload)
		entity["id"] = c.EntityID
		m[c.EntityID] = entity
	case change.ActionUpdate:
		existing, ok := m[c.EntityID]
		if !ok {
			existing = Entity{"id": c.EntityID}
		}
		merged := cloneEntity(existing)
		for key, value := range c.Payload {
			merged[key] = value
		}
		m[c.EntityID] = merged
	case change.ActionDelete:
		delete(m, c.EntityID)
	}
}

func applyDependencyChange(s *Snapshot, c change.Change) {
	switch c.Action {
	case change.ActionCreate:
		for _, dep := range s.TaskDependencies {
			if dep["task_id"] == c.Payload["task_id"] && dep["depends_on_id"] == c.Payload["depends_on_id"] {
				return
			}
		}
		s.TaskDependencies = append(s.TaskDependencies, cloneEntity(c.Payload))
	case change.ActionDelete:
		next := s.TaskDependencies[:0]
		for _, dep := range s.TaskDependencies {
			if dep["task_id"] == c.Payload["task_id"] && dep["depends_on_id"] == c.Payload["depends_on_id"] {
				continue
			}
			next = append(next, dep)
		}
		s.TaskDependencies = next
	}
}

// deletedIDs: серверный delete несёт полный список каскадно удалённых id;
// одиночный entity_id - запасной вариант.
func deletedIDs(c change.Change) []string {
	raw, ok := c.Payload["ids"]
	if !ok {
		return []string{c.EntityID}
	}
	list, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]string); ok {
			return typed
		}
		return []string{c.EntityID}
	}
	ids := make([]string, 0, len(list))
	for _, item := range list {
		if id, ok := item.(string); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{c.EntityID}
	}
	return ids
}

func upsertByID(list []Entity, entity Entity) []Entity {
	for i, item := range list {
		if item["id"] == entity["id"] {
			merged := cloneEntity(item)
			for key, value := range entity {
				merged[key] = value
			}
			next := make([]Entity, len(list))
			copy(next, list)
			next[i] = merged
			return next
		}
	}
	return append(list, entity)
}

func removeByID(list []Entity, id string) []Entity {
	next := make([]Entity, 0, len(list))
	for _, item := range list {
		if item["id"] == id {
			continue
		}
		next = append(next, item)
	}
	return next
}

func cloneEntity(e map[string]any) Entity {
	clone := make(Entity, len(e))
	for key, value := range e {
		clone[key] = value
	}
	return clone
}

func entityTime(e Entity, key string) *time.Time {
	raw, ok := e[key].(string)
	if !ok || raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	return &t
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
