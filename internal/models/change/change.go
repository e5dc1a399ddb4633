// Package change - записи журнала изменений. Один и тот же тип описывает
// и серверный change log (seq назначает сервер), и локальную очередь
// клиента (seq назначает клиент при постановке).
package change

import "time"

type EntityType string

const (
	EntityTask         EntityType = "task"
	EntityProject      EntityType = "project"
	EntityStatus       EntityType = "status"
	EntityTaskType     EntityType = "task_type"
	EntityTemplate     EntityType = "template"
	EntityNotice       EntityType = "notice"
	EntityNoticeType   EntityType = "notice_type"
	EntityStoreRule    EntityType = "store_rule"
	EntityShoppingList EntityType = "shopping_list"
	EntityShoppingItem EntityType = "shopping_item"
	EntityWorkspace    EntityType = "workspace"
	EntityDependency   EntityType = "task_dependency"
)

type Action string

const (
	ActionCreate     Action = "create"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionReparent   Action = "reparent"
	ActionCheckIn    Action = "checkin"
	ActionReschedule Action = "reschedule"
)

type Change struct {
	Seq         int64          `json:"seq"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	EntityType  EntityType     `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Action      Action         `json:"action"`
	Payload     map[string]any `json:"payload,omitempty"`
	ClientID    string         `json:"client_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
