package events

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket.created"
	EventTicketCalled       EventType = "ticket.called"
	EventTicketStarted      EventType = "ticket.started"
	EventTicketCompleted    EventType = "ticket.completed"
	EventTicketCancelled    EventType = "ticket.cancelled"
	EventTicketNoShow       EventType = "ticket.no_show"
	EventSessionStarted     EventType = "session.started"
	EventSessionPaused      EventType = "session.paused"
	EventSessionResumed     EventType = "session.resumed"
	EventSessionCompleted   EventType = "session.completed"
	EventSessionCancelled   EventType = "session.cancelled"
	EventQueueStatusChanged EventType = "queue.status_changed"
)

// AllEventTypes lists every type the core emits.
var AllEventTypes = []EventType{
	EventTicketCreated, EventTicketCalled, EventTicketStarted, EventTicketCompleted,
	EventTicketCancelled, EventTicketNoShow, EventSessionStarted, EventSessionPaused,
	EventSessionResumed, EventSessionCompleted, EventSessionCancelled, EventQueueStatusChanged,
}

// eventNamespace seeds the name-based event ids.
var eventNamespace = uuid.MustParse("8f0c4cf5-5c7e-4b8e-9a51-2f7d0f3c1a10")

// Event is the envelope delivered to downstream consumers.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"event"`
	TenantID  string    `json:"tenantId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// EventID derives a stable id for one logical transition of an entity. The entity
// version changes on every committed update, so each transition gets its own id
// while redelivery of the same transition repeats it.
func EventID(tenantID string, eventType EventType, entityID string, version int64) string {
	name := tenantID + "|" + string(eventType) + "|" + entityID + "|" + strconv.FormatInt(version, 10)
	return uuid.NewSHA1(eventNamespace, []byte(name)).String()
}

// New builds an envelope with a derived id and a UTC timestamp.
func New(eventType EventType, tenantID, entityID string, version int64, at time.Time, data any) Event {
	return Event{
		ID:        EventID(tenantID, eventType, entityID, version),
		Type:      eventType,
		TenantID:  tenantID,
		Data:      data,
		Timestamp: at.UTC(),
	}
}

// TicketSnapshot is the payload of ticket.* events.
type TicketSnapshot struct {
	ID              string                `json:"id"`
	QueueID         string                `json:"queueId"`
	ServiceID       string                `json:"serviceId"`
	UnitID          string                `json:"unitId"`
	Number          string                `json:"number"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	IssuedAt        time.Time             `json:"issuedAt"`
	CalledAt        *time.Time            `json:"calledAt,omitempty"`
	StartedAt       *time.Time            `json:"startedAt,omitempty"`
	CompletedAt     *time.Time            `json:"completedAt,omitempty"`
	CancelReason    string                `json:"cancelReason,omitempty"`
	CompletionNotes string                `json:"completionNotes,omitempty"`
	Customer        domain.CustomerInfo   `json:"customer"`
	Version         int64                 `json:"version"`
}

// SessionSnapshot is the payload of session.* events.
type SessionSnapshot struct {
	ID                    string               `json:"id"`
	TicketID              string               `json:"ticketId"`
	UserID                string               `json:"userId"`
	ResourceID            *string              `json:"resourceId,omitempty"`
	QueueID               string               `json:"queueId"`
	Status                domain.SessionStatus `json:"status"`
	StartedAt             time.Time            `json:"startedAt"`
	PausedAt              *time.Time           `json:"pausedAt,omitempty"`
	PausedDurationSeconds int64                `json:"pausedDurationSeconds"`
	CompletedAt           *time.Time           `json:"completedAt,omitempty"`
	TotalDurationSeconds  int64                `json:"totalDurationSeconds"`
	Version               int64                `json:"version"`
}

// QueueStatusSnapshot is the payload of queue.status_changed.
type QueueStatusSnapshot struct {
	ID                 string             `json:"id"`
	UnitID             string             `json:"unitId"`
	Code               string             `json:"code"`
	OldStatus          domain.QueueStatus `json:"oldStatus"`
	NewStatus          domain.QueueStatus `json:"newStatus"`
	IsAcceptingTickets bool               `json:"isAcceptingTickets"`
	Reason             string             `json:"reason,omitempty"`
	ChangedBy          string             `json:"changedBy"`
	Version            int64              `json:"version"`
}

// SnapshotTicket copies the event-relevant ticket fields.
func SnapshotTicket(t *domain.Ticket) TicketSnapshot {
	return TicketSnapshot{
		ID:              t.ID,
		QueueID:         t.QueueID,
		ServiceID:       t.ServiceID,
		UnitID:          t.UnitID,
		Number:          t.Number,
		Status:          t.Status,
		Priority:        t.Priority,
		IssuedAt:        t.IssuedAt,
		CalledAt:        t.CalledAt,
		StartedAt:       t.StartedAt,
		CompletedAt:     t.CompletedAt,
		CancelReason:    t.CancelReason,
		CompletionNotes: t.CompletionNotes,
		Customer:        t.Customer,
		Version:         t.Version,
	}
}

// SnapshotSession copies the event-relevant session fields.
func SnapshotSession(s *domain.Session, now time.Time) SessionSnapshot {
	return SessionSnapshot{
		ID:                    s.ID,
		TicketID:              s.TicketID,
		UserID:                s.UserID,
		ResourceID:            s.ResourceID,
		QueueID:               s.QueueID,
		Status:                s.Status,
		StartedAt:             s.StartedAt,
		PausedAt:              s.PausedAt,
		PausedDurationSeconds: int64(s.PausedDuration / time.Second),
		CompletedAt:           s.CompletedAt,
		TotalDurationSeconds:  int64(s.TotalDuration(now) / time.Second),
		Version:               s.Version,
	}
}

// Decode reads an envelope back from its stored JSON form. Data is kept as raw JSON
// so re-encoding reproduces the original payload.
func Decode(payload []byte) (Event, error) {
	var wire struct {
		ID        string          `json:"id"`
		Type      EventType       `json:"event"`
		TenantID  string          `json:"tenantId"`
		Data      json.RawMessage `json:"data"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Event{}, err
	}
	return Event{
		ID:        wire.ID,
		Type:      wire.Type,
		TenantID:  wire.TenantID,
		Data:      wire.Data,
		Timestamp: wire.Timestamp,
	}, nil
}
