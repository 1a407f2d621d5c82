package domain

import apperrors "github.com/spec-kit/queue-service/pkg/util/errorutil"

// ResourceStatus enumerates availability of a physical resource (desk, counter, room).
type ResourceStatus string

const (
	ResourceStatusAvailable   ResourceStatus = "AVAILABLE"
	ResourceStatusOccupied    ResourceStatus = "OCCUPIED"
	ResourceStatusMaintenance ResourceStatus = "MAINTENANCE"
	ResourceStatusOutOfOrder  ResourceStatus = "OUT_OF_ORDER"
)

// Resource belongs to a unit and is bound to at most one open session.
type Resource struct {
	ID       string
	TenantID string
	UnitID   string
	Name     string
	Status   ResourceStatus
	Audit
}

func (r *Resource) AuditInfo() *Audit { return &r.Audit }

// Occupy binds an available resource.
func (r *Resource) Occupy() error {
	if r.Status != ResourceStatusAvailable {
		return apperrors.NewConcurrencyConflict("resource not available", map[string]any{
			"resource_id": r.ID,
			"status":      r.Status,
		})
	}
	r.Status = ResourceStatusOccupied
	return nil
}

// Release returns an occupied resource to service. Resources put into
// maintenance while occupied keep that status.
func (r *Resource) Release() {
	if r.Status == ResourceStatusOccupied {
		r.Status = ResourceStatusAvailable
	}
}

// ParseResourceStatus validates a resource status name.
func ParseResourceStatus(raw string) (ResourceStatus, error) {
	status := ResourceStatus(raw)
	switch status {
	case ResourceStatusAvailable, ResourceStatusOccupied, ResourceStatusMaintenance, ResourceStatusOutOfOrder:
		return status, nil
	}
	return "", apperrors.NewValidationError("unknown resource status", map[string]any{"status": raw})
}
