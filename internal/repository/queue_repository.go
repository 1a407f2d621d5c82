package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const queueColumns = `id, tenant_id, unit_id, code, name, max_capacity, status, is_active, ` + auditColumns

type queueRepository struct {
	db DBTX
}

// NewQueueRepository constructs repository.
func NewQueueRepository(db DBTX) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (` + queueColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	args := append([]any{
		queue.ID,
		queue.TenantID,
		queue.UnitID,
		queue.Code,
		queue.Name,
		queue.MaxCapacity,
		queue.Status,
		queue.IsActive,
	}, auditArgs(&queue.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *queueRepository) Update(ctx context.Context, queue *domain.Queue) error {
	const query = `
        UPDATE queues SET name=$1, max_capacity=$2, status=$3, is_active=$4,
            updated_at=$5, updated_by=$6, deleted_at=$7, deleted_by=$8, version=version+1
        WHERE id=$9 AND tenant_id=$10 AND version=$11`
	return execVersioned(ctx, r.db, &queue.Audit, query,
		queue.Name,
		queue.MaxCapacity,
		queue.Status,
		queue.IsActive,
		queue.UpdatedAt,
		queue.UpdatedBy,
		queue.DeletedAt,
		queue.DeletedBy,
		queue.ID,
		queue.TenantID,
		queue.Version,
	)
}

func (r *queueRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues WHERE id=$1`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *queueRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Queue, error) {
	const query = `SELECT ` + queueColumns + ` FROM queues WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *queueRepository) fetchSingle(ctx context.Context, query, tenantID, id string) (*domain.Queue, error) {
	var queue domain.Queue
	if err := scanQueue(r.db.QueryRow(ctx, query, id), &queue); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(queue.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Queue, error) {
	const query = `
        SELECT ` + queueColumns + `
        FROM queues WHERE tenant_id=$1 AND unit_id=$2 AND deleted_at IS NULL
        ORDER BY code ASC`
	rows, err := r.db.Query(ctx, query, tenantID, unitID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanQueue)
}

func scanQueue(row pgx.Row, queue *domain.Queue) error {
	dest := append([]any{
		&queue.ID,
		&queue.TenantID,
		&queue.UnitID,
		&queue.Code,
		&queue.Name,
		&queue.MaxCapacity,
		&queue.Status,
		&queue.IsActive,
	}, auditDest(&queue.Audit)...)
	return row.Scan(dest...)
}
