package domain

import "time"

// OutboxEvent is an event recorded with its triggering change and delivered later.
type OutboxEvent struct {
	ID            string
	TenantID      string
	Type          string
	Payload       []byte
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	NextAttemptAt time.Time
	DeliveredAt   *time.Time
}
