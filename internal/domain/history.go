package domain

import "time"

// EntityType names the kind of entity a history entry belongs to.
type EntityType string

const (
	EntityTicket   EntityType = "TICKET"
	EntitySession  EntityType = "SESSION"
	EntityQueue    EntityType = "QUEUE"
	EntityResource EntityType = "RESOURCE"
	EntityAgent    EntityType = "AGENT"
)

// ChangeType captures what changed in a history entry.
type ChangeType string

const (
	ChangeTypeCreated ChangeType = "CREATED"
	ChangeTypeStatus  ChangeType = "STATUS_CHANGE"
	ChangeTypeDeleted ChangeType = "DELETED"
)

// HistoryEntry is an immutable audit trail entry.
type HistoryEntry struct {
	ID         string
	TenantID   string
	EntityType EntityType
	EntityID   string
	ActorID    string
	ChangeType ChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}

// StatusChange builds a status history entry.
func StatusChange(tenantID string, entity EntityType, entityID string, actor Actor, from, to string, now time.Time, extra map[string]any) *HistoryEntry {
	newValue := map[string]any{"status": to}
	for k, v := range extra {
		newValue[k] = v
	}
	return &HistoryEntry{
		TenantID:   tenantID,
		EntityType: entity,
		EntityID:   entityID,
		ActorID:    actor.ID(),
		ChangeType: ChangeTypeStatus,
		OldValue:   map[string]any{"status": from},
		NewValue:   newValue,
		CreatedAt:  now,
	}
}
