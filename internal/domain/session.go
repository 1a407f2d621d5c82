package domain

import (
	"strings"
	"time"

	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// SessionStatus enumerates states of an agent's work on a ticket.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusPaused     SessionStatus = "PAUSED"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// IsTerminal reports whether the session has ended.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusCancelled
}

// Session binds an agent, and optionally a resource, to a ticket being served.
// QueueID, ServiceID and UnitID are copied from the ticket for indexed lookups.
type Session struct {
	ID             string
	TenantID       string
	TicketID       string
	UserID         string
	ResourceID     *string
	QueueID        string
	ServiceID      string
	UnitID         string
	Status         SessionStatus
	StartedAt      time.Time
	PausedAt       *time.Time
	PausedDuration time.Duration
	PauseCount     int
	CompletedAt    *time.Time
	Notes          string
	Audit
}

func (s *Session) AuditInfo() *Audit { return &s.Audit }

func (s *Session) invalid(operation string) error {
	return apperrors.NewInvalidStateTransition("session", string(s.Status), operation)
}

// Pause suspends an in-progress session.
func (s *Session) Pause(actor Actor, now time.Time) error {
	if s.Status != SessionStatusInProgress {
		return s.invalid("pause")
	}
	s.Status = SessionStatusPaused
	s.PausedAt = &now
	s.PauseCount++
	s.Touch(actor, now)
	return nil
}

// Resume folds the open pause interval into PausedDuration.
func (s *Session) Resume(actor Actor, now time.Time) error {
	if s.Status != SessionStatusPaused {
		return s.invalid("resume")
	}
	s.foldPause(now)
	s.Status = SessionStatusInProgress
	s.Touch(actor, now)
	return nil
}

// Complete ends the session successfully.
func (s *Session) Complete(actor Actor, now time.Time, notes string) error {
	if s.Status.IsTerminal() {
		return s.invalid("complete")
	}
	s.finish(SessionStatusCompleted, actor, now, notes)
	return nil
}

// Cancel abandons the session.
func (s *Session) Cancel(actor Actor, now time.Time, reason string) error {
	if s.Status.IsTerminal() {
		return s.invalid("cancel")
	}
	s.finish(SessionStatusCancelled, actor, now, reason)
	return nil
}

func (s *Session) finish(status SessionStatus, actor Actor, now time.Time, notes string) {
	s.foldPause(now)
	s.Status = status
	s.CompletedAt = &now
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		s.Notes = trimmed
	}
	s.Touch(actor, now)
}

func (s *Session) foldPause(now time.Time) {
	if s.PausedAt == nil {
		return
	}
	if gap := now.Sub(*s.PausedAt); gap > 0 {
		s.PausedDuration += gap
	}
	s.PausedAt = nil
}

// TotalDuration is (CompletedAt or now) - StartedAt - paused time, floored at zero.
// An open pause interval counts as paused time.
func (s *Session) TotalDuration(now time.Time) time.Duration {
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	paused := s.PausedDuration
	if s.PausedAt != nil && end.After(*s.PausedAt) {
		paused += end.Sub(*s.PausedAt)
	}
	total := end.Sub(s.StartedAt) - paused
	if total < 0 {
		return 0
	}
	return total
}

// ActiveDuration currently equals TotalDuration; no further non-productive
// intervals are tracked.
func (s *Session) ActiveDuration(now time.Time) time.Duration {
	return s.TotalDuration(now)
}
