package dto

import (
	"encoding/json"

	"github.com/spec-kit/queue-service/internal/domain"
)

// CreateUnitRequest payload.
type CreateUnitRequest struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// UnitResponse represents a unit.
type UnitResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
}

// CreateServiceRequest payload.
type CreateServiceRequest struct {
	UnitID           string          `json:"unit_id"`
	Name             string          `json:"name"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	Color            string          `json:"color"`
	Settings         json.RawMessage `json:"settings"`
}

// ServiceResponse represents a service.
type ServiceResponse struct {
	ID               string          `json:"id"`
	UnitID           string          `json:"unit_id"`
	Name             string          `json:"name"`
	EstimatedMinutes int             `json:"estimated_minutes"`
	Color            string          `json:"color,omitempty"`
	Settings         json.RawMessage `json:"settings,omitempty"`
}

// CreateQueueRequest payload.
type CreateQueueRequest struct {
	UnitID      string `json:"unit_id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	MaxCapacity int    `json:"max_capacity"`
	Status      string `json:"status"`
}

// UpdateQueueRequest payload. Omitted fields are unchanged.
type UpdateQueueRequest struct {
	Name        *string `json:"name"`
	MaxCapacity *int    `json:"max_capacity"`
	IsActive    *bool   `json:"is_active"`
}

// ChangeQueueStatusRequest payload.
type ChangeQueueStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// QueueResponse represents a queue.
type QueueResponse struct {
	ID                 string             `json:"id"`
	UnitID             string             `json:"unit_id"`
	Code               string             `json:"code"`
	Name               string             `json:"name"`
	MaxCapacity        int                `json:"max_capacity"`
	Status             domain.QueueStatus `json:"status"`
	IsActive           bool               `json:"is_active"`
	IsAcceptingTickets bool               `json:"is_accepting_tickets"`
	Version            int64              `json:"version"`
}

// CreateResourceRequest payload.
type CreateResourceRequest struct {
	UnitID string `json:"unit_id"`
	Name   string `json:"name"`
}

// ResourceResponse represents a resource.
type ResourceResponse struct {
	ID     string                `json:"id"`
	UnitID string                `json:"unit_id"`
	Name   string                `json:"name"`
	Status domain.ResourceStatus `json:"status"`
}

// CreateAgentRequest payload. The id is the user id carried in access tokens.
type CreateAgentRequest struct {
	ID     string `json:"id"`
	UnitID string `json:"unit_id"`
	Name   string `json:"name"`
}

// AgentResponse represents an agent.
type AgentResponse struct {
	ID     string             `json:"id"`
	UnitID string             `json:"unit_id"`
	Name   string             `json:"name"`
	Status domain.AgentStatus `json:"status"`
}

// StatusRequest carries a target status for resources and agents.
type StatusRequest struct {
	Status string `json:"status"`
}
