package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusCalled     TicketStatus = "CALLED"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusCompleted  TicketStatus = "COMPLETED"
	TicketStatusCancelled  TicketStatus = "CANCELLED"
	TicketStatusNoShow     TicketStatus = "NO_SHOW"
)

// IsTerminal reports whether no further transition is possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusCancelled || s == TicketStatusNoShow
}

// TicketPriority enumerates admission urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityNormal TicketPriority = "NORMAL"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:    0,
	TicketPriorityNormal: 1,
	TicketPriorityHigh:   2,
	TicketPriorityUrgent: 3,
}

// Rank orders priorities; higher is served first.
func (p TicketPriority) Rank() int {
	return priorityRank[p]
}

// ParsePriority validates a priority, defaulting empty input to NORMAL.
func ParsePriority(raw string) (TicketPriority, error) {
	if strings.TrimSpace(raw) == "" {
		return TicketPriorityNormal, nil
	}
	p := TicketPriority(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := priorityRank[p]; !ok {
		return "", apperrors.NewValidationError("priority out of range", map[string]any{"priority": raw})
	}
	return p, nil
}

// CustomerInfo holds optional customer identity fields.
type CustomerInfo struct {
	Name      string `json:"name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Ticket is a customer's request for a service within a queue.
// QueueID and ServiceID never change after creation.
type Ticket struct {
	ID              string
	TenantID        string
	QueueID         string
	ServiceID       string
	UnitID          string
	Number          string
	IssueDay        string
	Sequence        int
	Status          TicketStatus
	Priority        TicketPriority
	IssuedAt        time.Time
	CalledAt        *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
	CancelReason    string
	CompletionNotes string
	Customer        CustomerInfo
	Audit
}

func (t *Ticket) AuditInfo() *Audit { return &t.Audit }

// FormatTicketNumber renders prefix plus a zero-padded daily sequence, e.g. A001.
func FormatTicketNumber(prefix string, sequence int) string {
	return fmt.Sprintf("%s%03d", prefix, sequence)
}

func (t *Ticket) invalid(operation string) error {
	return apperrors.NewInvalidStateTransition("ticket", string(t.Status), operation)
}

// Call moves a waiting ticket to CALLED.
func (t *Ticket) Call(actor Actor, now time.Time) error {
	if t.Status != TicketStatusWaiting {
		return t.invalid("call")
	}
	t.Status = TicketStatusCalled
	t.CalledAt = &now
	t.Touch(actor, now)
	return nil
}

// Start moves a called ticket to IN_PROGRESS.
func (t *Ticket) Start(actor Actor, now time.Time) error {
	if t.Status != TicketStatusCalled {
		return t.invalid("start")
	}
	t.Status = TicketStatusInProgress
	t.StartedAt = &now
	t.Touch(actor, now)
	return nil
}

// Complete finishes an in-progress ticket.
func (t *Ticket) Complete(actor Actor, now time.Time, notes string) error {
	if t.Status != TicketStatusInProgress {
		return t.invalid("complete")
	}
	t.Status = TicketStatusCompleted
	t.CompletedAt = &now
	t.CompletionNotes = strings.TrimSpace(notes)
	t.Touch(actor, now)
	return nil
}

// Cancel terminates a ticket that has not reached a terminal status.
func (t *Ticket) Cancel(actor Actor, now time.Time, reason string) error {
	if t.Status.IsTerminal() {
		return t.invalid("cancel")
	}
	t.Status = TicketStatusCancelled
	t.CancelledAt = &now
	t.CancelReason = strings.TrimSpace(reason)
	t.Touch(actor, now)
	return nil
}

// MarkNoShow records that a called customer did not appear.
func (t *Ticket) MarkNoShow(actor Actor, now time.Time) error {
	if t.Status != TicketStatusCalled {
		return t.invalid("mark no-show")
	}
	t.Status = TicketStatusNoShow
	t.Touch(actor, now)
	return nil
}

// Precedes is the strict total order used for selection and position:
// higher priority first, then earlier issue time, then smaller id.
func (t *Ticket) Precedes(other *Ticket) bool {
	if t.Priority.Rank() != other.Priority.Rank() {
		return t.Priority.Rank() > other.Priority.Rank()
	}
	if !t.IssuedAt.Equal(other.IssuedAt) {
		return t.IssuedAt.Before(other.IssuedAt)
	}
	return t.ID < other.ID
}
