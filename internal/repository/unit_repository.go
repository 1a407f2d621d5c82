package repository

import (
	"context"

	"github.com/spec-kit/queue-service/internal/domain"
)

type unitRepository struct {
	db DBTX
}

// NewUnitRepository constructs repository.
func NewUnitRepository(db DBTX) UnitRepository {
	return &unitRepository{db: db}
}

func (r *unitRepository) Create(ctx context.Context, unit *domain.Unit) error {
	const query = `
        INSERT INTO units (id, tenant_id, name, timezone, ` + auditColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	args := append([]any{unit.ID, unit.TenantID, unit.Name, unit.Timezone}, auditArgs(&unit.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *unitRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Unit, error) {
	const query = `
        SELECT id, tenant_id, name, timezone, ` + auditColumns + `
        FROM units WHERE id=$1`
	var unit domain.Unit
	dest := append([]any{&unit.ID, &unit.TenantID, &unit.Name, &unit.Timezone}, auditDest(&unit.Audit)...)
	if err := r.db.QueryRow(ctx, query, id).Scan(dest...); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(unit.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &unit, nil
}
