package domain

import (
	"regexp"
	"strings"
	"time"

	apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"
)

// QueueStatus enumerates admission states for a queue.
type QueueStatus string

const (
	QueueStatusOpen   QueueStatus = "OPEN"
	QueueStatusPaused QueueStatus = "PAUSED"
	QueueStatusClosed QueueStatus = "CLOSED"
)

const (
	MinQueueCapacity = 1
	MaxQueueCapacity = 10000
)

var queueCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// Queue is an ordered admission point for tickets within a unit.
type Queue struct {
	ID          string
	TenantID    string
	UnitID      string
	Code        string
	Name        string
	MaxCapacity int
	Status      QueueStatus
	IsActive    bool
	Audit
}

func (q *Queue) AuditInfo() *Audit { return &q.Audit }

// IsAcceptingTickets is true only for active, open queues.
func (q *Queue) IsAcceptingTickets() bool {
	return q.IsActive && !q.IsDeleted() && q.Status == QueueStatusOpen
}

var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusOpen:   {QueueStatusPaused, QueueStatusClosed},
	QueueStatusPaused: {QueueStatusOpen, QueueStatusClosed},
	QueueStatusClosed: {QueueStatusOpen},
}

// CanTransitionQueue reports whether from -> to is a legal queue status change.
func CanTransitionQueue(from, to QueueStatus) bool {
	for _, candidate := range queueTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// ChangeStatus moves the queue to status to. Waiting tickets are left untouched.
func (q *Queue) ChangeStatus(to QueueStatus, actor Actor, now time.Time) error {
	if !CanTransitionQueue(q.Status, to) {
		return apperrors.NewInvalidStateTransition("queue", string(q.Status), "move to "+string(to))
	}
	q.Status = to
	q.Touch(actor, now)
	return nil
}

// NormalizeQueueCode upper-cases and trims a queue code.
func NormalizeQueueCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateQueue checks the attributes supplied on creation.
func ValidateQueue(q *Queue) error {
	details := map[string]any{}
	if !queueCodePattern.MatchString(q.Code) {
		details["code"] = "must be 1-10 upper-case letters or digits"
	}
	if strings.TrimSpace(q.Name) == "" {
		details["name"] = "required"
	}
	if q.MaxCapacity < MinQueueCapacity || q.MaxCapacity > MaxQueueCapacity {
		details["max_capacity"] = "must be between 1 and 10000"
	}
	if q.UnitID == "" {
		details["unit_id"] = "required"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid queue", details)
	}
	return nil
}

// ParseQueueStatus validates a status name.
func ParseQueueStatus(raw string) (QueueStatus, error) {
	status := QueueStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch status {
	case QueueStatusOpen, QueueStatusPaused, QueueStatusClosed:
		return status, nil
	}
	return "", apperrors.NewValidationError("unknown queue status", map[string]any{"status": raw})
}
