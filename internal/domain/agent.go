package domain

import apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"

// AgentStatus reflects availability for new session assignment.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "AVAILABLE"
	AgentStatusBusy      AgentStatus = "BUSY"
	AgentStatusAway      AgentStatus = "AWAY"
	AgentStatusOffline   AgentStatus = "OFFLINE"
)

// Agent is a user who serves tickets.
type Agent struct {
	ID       string
	TenantID string
	UnitID   string
	Name     string
	Status   AgentStatus
	Audit
}

func (a *Agent) AuditInfo() *Audit { return &a.Audit }

// CanTakeSession reports whether the agent may be bound to a new session.
// The one-open-session rule is enforced separately against stored sessions.
func (a *Agent) CanTakeSession() bool {
	if a.IsDeleted() {
		return false
	}
	return a.Status == AgentStatusAvailable || a.Status == AgentStatusBusy
}

// ParseAgentStatus validates an agent status name.
func ParseAgentStatus(raw string) (AgentStatus, error) {
	status := AgentStatus(raw)
	switch status {
	case AgentStatusAvailable, AgentStatusBusy, AgentStatusAway, AgentStatusOffline:
		return status, nil
	}
	return "", apperrors.NewValidationError("unknown agent status", map[string]any{"status": raw})
}
