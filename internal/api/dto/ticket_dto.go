package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EnqueueRequest payload.
type EnqueueRequest struct {
	QueueID   string              `json:"queue_id"`
	ServiceID string              `json:"service_id"`
	Priority  string              `json:"priority"`
	Customer  domain.CustomerInfo `json:"customer"`
}

// StartTicketRequest payload. An empty user_id starts the session for the caller.
type StartTicketRequest struct {
	UserID     string  `json:"user_id"`
	ResourceID *string `json:"resource_id"`
}

// NotesRequest carries completion notes.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// ReasonRequest carries a cancellation or status change reason.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID              string                `json:"id"`
	QueueID         string                `json:"queue_id"`
	ServiceID       string                `json:"service_id"`
	UnitID          string                `json:"unit_id"`
	Number          string                `json:"number"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	IssuedAt        time.Time             `json:"issued_at"`
	CalledAt        *time.Time            `json:"called_at,omitempty"`
	StartedAt       *time.Time            `json:"started_at,omitempty"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CancelReason    string                `json:"cancel_reason,omitempty"`
	CompletionNotes string                `json:"completion_notes,omitempty"`
	Customer        domain.CustomerInfo   `json:"customer"`
	Version         int64                 `json:"version"`
}

// StartTicketResponse returns the started ticket with its session.
type StartTicketResponse struct {
	Ticket  TicketResponse  `json:"ticket"`
	Session SessionResponse `json:"session"`
}

// PositionResponse is a waiting ticket's place in line.
type PositionResponse struct {
	TicketID string `json:"ticket_id"`
	Position int    `json:"position"`
}

// EstimateResponse carries the wait time inputs and result.
type EstimateResponse struct {
	TicketID              string  `json:"ticket_id"`
	Position              int     `json:"position"`
	AverageServiceMinutes float64 `json:"average_service_minutes"`
	ActiveAgents          int     `json:"active_agents"`
	EstimatedWaitMinutes  int     `json:"estimated_wait_minutes"`
}

// HistoryResponse is one audit trail entry.
type HistoryResponse struct {
	ID         string            `json:"id"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	ActorID    string            `json:"actor_id"`
	ChangeType domain.ChangeType `json:"change_type"`
	OldValue   map[string]any    `json:"old_value,omitempty"`
	NewValue   map[string]any    `json:"new_value,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
