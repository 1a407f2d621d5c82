package domain

import "time"

// SystemActorID marks mutations performed without an authenticated caller.
const SystemActorID = "system"

// Actor identifies the caller of an operation and the tenant it is scoped to.
type Actor struct {
	TenantID string
	UserID   string
	Role     Role
}

// ID returns the actor id used in audit fields.
func (a Actor) ID() string {
	if a.UserID == "" {
		return SystemActorID
	}
	return a.UserID
}

// Role enumerates caller roles carried in access tokens.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleSupervisor Role = "SUPERVISOR"
	RoleAdmin      Role = "ADMIN"
	RoleKiosk      Role = "KIOSK"
)

// Audit is the creation, update and soft-delete metadata attached to every entity.
// Version is bumped by the repository on each successful update.
type Audit struct {
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
	DeletedAt *time.Time
	DeletedBy string
	Version   int64
}

// Audited is implemented by every persisted entity.
type Audited interface {
	AuditInfo() *Audit
}

// NewAudit stamps creation metadata.
func NewAudit(actor Actor, now time.Time) Audit {
	return Audit{
		CreatedAt: now,
		CreatedBy: actor.ID(),
		UpdatedAt: now,
		UpdatedBy: actor.ID(),
		Version:   1,
	}
}

// Touch records an update by actor.
func (a *Audit) Touch(actor Actor, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = actor.ID()
}

// MarkDeleted flags the entity as removed from active queries.
func (a *Audit) MarkDeleted(actor Actor, now time.Time) {
	a.DeletedAt = &now
	a.DeletedBy = actor.ID()
	a.Touch(actor, now)
}

// IsDeleted reports whether the soft-delete flag is set.
func (a *Audit) IsDeleted() bool {
	return a.DeletedAt != nil
}

// Stamp applies Touch through the Audited capability.
func Stamp(entity Audited, actor Actor, now time.Time) {
	entity.AuditInfo().Touch(actor, now)
}
