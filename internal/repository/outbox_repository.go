package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

type outboxRepository struct {
	db DBTX
}

// NewOutboxRepository constructs repository.
func NewOutboxRepository(db DBTX) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Append(ctx context.Context, event *domain.OutboxEvent) error {
	const query = `
        INSERT INTO outbox_events (id, tenant_id, event_type, payload, attempts, last_error, created_at, next_attempt_at)
        VALUES ($1,$2,$3,$4::jsonb,$5,$6,$7,$8)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.TenantID,
		event.Type,
		string(event.Payload),
		event.Attempts,
		event.LastError,
		event.CreatedAt,
		event.NextAttemptAt,
	)
	return translate(err)
}

func (r *outboxRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, tenant_id, event_type, payload, attempts, last_error, created_at, next_attempt_at, delivered_at
        FROM outbox_events
        WHERE delivered_at IS NULL AND next_attempt_at <= $1
        ORDER BY created_at ASC, id ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, func(row pgx.Row, event *domain.OutboxEvent) error {
		var payload []byte
		if err := row.Scan(
			&event.ID,
			&event.TenantID,
			&event.Type,
			&payload,
			&event.Attempts,
			&event.LastError,
			&event.CreatedAt,
			&event.NextAttemptAt,
			&event.DeliveredAt,
		); err != nil {
			return err
		}
		event.Payload = payload
		return nil
	})
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox_events SET delivered_at=$1, attempts=attempts+1, last_error='' WHERE id=$2`
	cmd, err := r.db.Exec(ctx, query, at, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, lastError string, nextAttemptAt time.Time) error {
	const query = `
        UPDATE outbox_events SET attempts=attempts+1, last_error=$1, next_attempt_at=$2
        WHERE id=$3 AND delivered_at IS NULL`
	cmd, err := r.db.Exec(ctx, query, lastError, nextAttemptAt, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE delivered_at IS NULL`).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (r *outboxRepository) PurgeDelivered(ctx context.Context, before time.Time) (int, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE delivered_at IS NOT NULL AND delivered_at < $1`, before)
	if err != nil {
		return 0, translate(err)
	}
	return int(cmd.RowsAffected()), nil
}
