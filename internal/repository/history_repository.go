package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

type historyRepository struct {
	db DBTX
}

// NewHistoryRepository builds repository.
func NewHistoryRepository(db DBTX) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, entry *domain.HistoryEntry) error {
	const query = `
        INSERT INTO history (id, tenant_id, entity_type, entity_id, actor_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.TenantID,
		entry.EntityType,
		entry.EntityID,
		entry.ActorID,
		entry.ChangeType,
		entry.OldValue,
		entry.NewValue,
		entry.CreatedAt,
	)
	return translate(err)
}

func (r *historyRepository) ListByEntity(ctx context.Context, tenantID string, entityType domain.EntityType, entityID string) ([]domain.HistoryEntry, error) {
	const query = `
        SELECT id, tenant_id, entity_type, entity_id, actor_id, change_type, old_value, new_value, created_at
        FROM history WHERE tenant_id=$1 AND entity_type=$2 AND entity_id=$3
        ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, tenantID, entityType, entityID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, func(row pgx.Row, entry *domain.HistoryEntry) error {
		return row.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.EntityType,
			&entry.EntityID,
			&entry.ActorID,
			&entry.ChangeType,
			&entry.OldValue,
			&entry.NewValue,
			&entry.CreatedAt,
		)
	})
}
