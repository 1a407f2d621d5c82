package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const ticketColumns = `id, tenant_id, queue_id, service_id, unit_id, number, issue_day, sequence,
               status, priority, issued_at, called_at, started_at, completed_at, cancelled_at,
               cancel_reason, completion_notes, customer, ` + auditColumns

// waitingOrder mirrors domain.Ticket.Precedes.
const waitingOrder = `priority_rank DESC, issued_at ASC, id ASC`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `, priority_rank)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)`
	args := append([]any{
		ticket.ID,
		ticket.TenantID,
		ticket.QueueID,
		ticket.ServiceID,
		ticket.UnitID,
		ticket.Number,
		ticket.IssueDay,
		ticket.Sequence,
		ticket.Status,
		ticket.Priority,
		ticket.IssuedAt,
		ticket.CalledAt,
		ticket.StartedAt,
		ticket.CompletedAt,
		ticket.CancelledAt,
		ticket.CancelReason,
		ticket.CompletionNotes,
		ticket.Customer,
	}, auditArgs(&ticket.Audit)...)
	args = append(args, ticket.Priority.Rank())
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, priority=$2, priority_rank=$3, called_at=$4, started_at=$5,
            completed_at=$6, cancelled_at=$7, cancel_reason=$8, completion_notes=$9, customer=$10,
            updated_at=$11, updated_by=$12, deleted_at=$13, deleted_by=$14, version=version+1
        WHERE id=$15 AND tenant_id=$16 AND version=$17`
	return execVersioned(ctx, r.db, &ticket.Audit, query,
		ticket.Status,
		ticket.Priority,
		ticket.Priority.Rank(),
		ticket.CalledAt,
		ticket.StartedAt,
		ticket.CompletedAt,
		ticket.CancelledAt,
		ticket.CancelReason,
		ticket.CompletionNotes,
		ticket.Customer,
		ticket.UpdatedAt,
		ticket.UpdatedBy,
		ticket.DeletedAt,
		ticket.DeletedBy,
		ticket.ID,
		ticket.TenantID,
		ticket.Version,
	)
}

func (r *ticketRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query, tenantID, id string) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, id), &ticket); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(ticket.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWaiting(ctx context.Context, tenantID, queueID string) ([]domain.Ticket, error) {
	const query = `
        SELECT ` + ticketColumns + `
        FROM tickets
        WHERE tenant_id=$1 AND queue_id=$2 AND status='WAITING' AND deleted_at IS NULL
        ORDER BY ` + waitingOrder
	rows, err := r.db.Query(ctx, query, tenantID, queueID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanTicket)
}

func (r *ticketRepository) CountWaiting(ctx context.Context, tenantID, queueID string) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE tenant_id=$1 AND queue_id=$2 AND status='WAITING' AND deleted_at IS NULL`
	var count int
	if err := r.db.QueryRow(ctx, query, tenantID, queueID).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func (r *ticketRepository) CountPreceding(ctx context.Context, ticket *domain.Ticket) (int, error) {
	const query = `
        SELECT COUNT(*) FROM tickets
        WHERE tenant_id=$1 AND queue_id=$2 AND status='WAITING' AND deleted_at IS NULL AND id<>$5
          AND (priority_rank > $3
               OR (priority_rank = $3 AND (issued_at < $4 OR (issued_at = $4 AND id < $5))))`
	var count int
	if err := r.db.QueryRow(ctx, query,
		ticket.TenantID,
		ticket.QueueID,
		ticket.Priority.Rank(),
		ticket.IssuedAt,
		ticket.ID,
	).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func scanTicket(row pgx.Row, ticket *domain.Ticket) error {
	dest := append([]any{
		&ticket.ID,
		&ticket.TenantID,
		&ticket.QueueID,
		&ticket.ServiceID,
		&ticket.UnitID,
		&ticket.Number,
		&ticket.IssueDay,
		&ticket.Sequence,
		&ticket.Status,
		&ticket.Priority,
		&ticket.IssuedAt,
		&ticket.CalledAt,
		&ticket.StartedAt,
		&ticket.CompletedAt,
		&ticket.CancelledAt,
		&ticket.CancelReason,
		&ticket.CompletionNotes,
		&ticket.Customer,
	}, auditDest(&ticket.Audit)...)
	return row.Scan(dest...)
}
