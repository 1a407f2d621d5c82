package dto

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// SessionResponse represents a session with durations computed at response time.
type SessionResponse struct {
	ID                    string               `json:"id"`
	TicketID              string               `json:"ticket_id"`
	UserID                string               `json:"user_id"`
	ResourceID            *string              `json:"resource_id,omitempty"`
	QueueID               string               `json:"queue_id"`
	Status                domain.SessionStatus `json:"status"`
	StartedAt             time.Time            `json:"started_at"`
	PausedAt              *time.Time           `json:"paused_at,omitempty"`
	CompletedAt           *time.Time           `json:"completed_at,omitempty"`
	PauseCount            int                  `json:"pause_count"`
	PausedSeconds         int64                `json:"paused_seconds"`
	TotalDurationSeconds  int64                `json:"total_duration_seconds"`
	ActiveDurationSeconds int64                `json:"active_duration_seconds"`
	Notes                 string               `json:"notes,omitempty"`
	Version               int64                `json:"version"`
}
