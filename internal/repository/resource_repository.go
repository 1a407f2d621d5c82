package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const resourceColumns = `id, tenant_id, unit_id, name, status, ` + auditColumns

type resourceRepository struct {
	db DBTX
}

// NewResourceRepository creates repository.
func NewResourceRepository(db DBTX) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) Create(ctx context.Context, resource *domain.Resource) error {
	const query = `
        INSERT INTO resources (` + resourceColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	args := append([]any{resource.ID, resource.TenantID, resource.UnitID, resource.Name, resource.Status}, auditArgs(&resource.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *resourceRepository) Update(ctx context.Context, resource *domain.Resource) error {
	const query = `
        UPDATE resources SET name=$1, status=$2, updated_at=$3, updated_by=$4, deleted_at=$5, deleted_by=$6,
            version=version+1
        WHERE id=$7 AND tenant_id=$8 AND version=$9`
	return execVersioned(ctx, r.db, &resource.Audit, query,
		resource.Name,
		resource.Status,
		resource.UpdatedAt,
		resource.UpdatedBy,
		resource.DeletedAt,
		resource.DeletedBy,
		resource.ID,
		resource.TenantID,
		resource.Version,
	)
}

func (r *resourceRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Resource, error) {
	const query = `SELECT ` + resourceColumns + ` FROM resources WHERE id=$1`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *resourceRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Resource, error) {
	const query = `SELECT ` + resourceColumns + ` FROM resources WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *resourceRepository) fetchSingle(ctx context.Context, query, tenantID, id string) (*domain.Resource, error) {
	var resource domain.Resource
	if err := scanResource(r.db.QueryRow(ctx, query, id), &resource); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(resource.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &resource, nil
}

func (r *resourceRepository) ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Resource, error) {
	const query = `
        SELECT ` + resourceColumns + `
        FROM resources WHERE tenant_id=$1 AND unit_id=$2 AND deleted_at IS NULL
        ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, tenantID, unitID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanResource)
}

func scanResource(row pgx.Row, resource *domain.Resource) error {
	dest := append([]any{&resource.ID, &resource.TenantID, &resource.UnitID, &resource.Name, &resource.Status}, auditDest(&resource.Audit)...)
	return row.Scan(dest...)
}
