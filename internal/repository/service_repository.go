package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const serviceColumns = `id, tenant_id, unit_id, name, estimated_minutes, color, settings, ` + auditColumns

type serviceRepository struct {
	db DBTX
}

// NewServiceRepository constructs repository.
func NewServiceRepository(db DBTX) ServiceRepository {
	return &serviceRepository{db: db}
}

func settingsArg(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func (r *serviceRepository) Create(ctx context.Context, svc *domain.Service) error {
	const query = `
        INSERT INTO services (` + serviceColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12,$13,$14)`
	args := append([]any{
		svc.ID,
		svc.TenantID,
		svc.UnitID,
		svc.Name,
		svc.EstimatedMinutes,
		svc.Color,
		settingsArg(svc.Settings),
	}, auditArgs(&svc.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *serviceRepository) Update(ctx context.Context, svc *domain.Service) error {
	const query = `
        UPDATE services SET name=$1, estimated_minutes=$2, color=$3, settings=$4::jsonb,
            updated_at=$5, updated_by=$6, deleted_at=$7, deleted_by=$8, version=version+1
        WHERE id=$9 AND tenant_id=$10 AND version=$11`
	return execVersioned(ctx, r.db, &svc.Audit, query,
		svc.Name,
		svc.EstimatedMinutes,
		svc.Color,
		settingsArg(svc.Settings),
		svc.UpdatedAt,
		svc.UpdatedBy,
		svc.DeletedAt,
		svc.DeletedBy,
		svc.ID,
		svc.TenantID,
		svc.Version,
	)
}

func (r *serviceRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Service, error) {
	const query = `SELECT ` + serviceColumns + ` FROM services WHERE id=$1`
	var svc domain.Service
	if err := scanService(r.db.QueryRow(ctx, query, id), &svc); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(svc.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *serviceRepository) ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Service, error) {
	const query = `
        SELECT ` + serviceColumns + `
        FROM services WHERE tenant_id=$1 AND unit_id=$2 AND deleted_at IS NULL
        ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, tenantID, unitID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanService)
}

func scanService(row pgx.Row, svc *domain.Service) error {
	var settings []byte
	dest := append([]any{
		&svc.ID,
		&svc.TenantID,
		&svc.UnitID,
		&svc.Name,
		&svc.EstimatedMinutes,
		&svc.Color,
		&settings,
	}, auditDest(&svc.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	svc.Settings = json.RawMessage(settings)
	return nil
}
