package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const sessionColumns = `id, tenant_id, ticket_id, user_id, resource_id, queue_id, service_id, unit_id,
               status, started_at, paused_at, paused_ms, pause_count, completed_at, notes, ` + auditColumns

const openSessionStatuses = `('IN_PROGRESS','PAUSED')`

type sessionRepository struct {
	db DBTX
}

// NewSessionRepository constructs repository.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO sessions (` + sessionColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`
	args := append([]any{
		session.ID,
		session.TenantID,
		session.TicketID,
		session.UserID,
		session.ResourceID,
		session.QueueID,
		session.ServiceID,
		session.UnitID,
		session.Status,
		session.StartedAt,
		session.PausedAt,
		session.PausedDuration.Milliseconds(),
		session.PauseCount,
		session.CompletedAt,
		session.Notes,
	}, auditArgs(&session.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *sessionRepository) Update(ctx context.Context, session *domain.Session) error {
	const query = `
        UPDATE sessions SET resource_id=$1, status=$2, paused_at=$3, paused_ms=$4, pause_count=$5,
            completed_at=$6, notes=$7, updated_at=$8, updated_by=$9, version=version+1
        WHERE id=$10 AND tenant_id=$11 AND version=$12`
	return execVersioned(ctx, r.db, &session.Audit, query,
		session.ResourceID,
		session.Status,
		session.PausedAt,
		session.PausedDuration.Milliseconds(),
		session.PauseCount,
		session.CompletedAt,
		session.Notes,
		session.UpdatedAt,
		session.UpdatedBy,
		session.ID,
		session.TenantID,
		session.Version,
	)
}

func (r *sessionRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id=$1`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *sessionRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *sessionRepository) fetchSingle(ctx context.Context, query, tenantID, id string) (*domain.Session, error) {
	var session domain.Session
	if err := scanSession(r.db.QueryRow(ctx, query, id), &session); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(session.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) GetOpenByTicket(ctx context.Context, tenantID, ticketID string) (*domain.Session, error) {
	const query = `
        SELECT ` + sessionColumns + `
        FROM sessions WHERE tenant_id=$1 AND ticket_id=$2 AND status IN ` + openSessionStatuses + `
        LIMIT 1`
	var session domain.Session
	if err := scanSession(r.db.QueryRow(ctx, query, tenantID, ticketID), &session); err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *sessionRepository) GetOpenByUser(ctx context.Context, tenantID, userID string) (*domain.Session, error) {
	const query = `
        SELECT ` + sessionColumns + `
        FROM sessions WHERE tenant_id=$1 AND user_id=$2 AND status IN ` + openSessionStatuses + `
        LIMIT 1`
	var session domain.Session
	if err := scanSession(r.db.QueryRow(ctx, query, tenantID, userID), &session); err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

func (r *sessionRepository) ListRecentCompleted(ctx context.Context, tenantID, queueID string, since time.Time, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
        SELECT ` + sessionColumns + `
        FROM sessions
        WHERE tenant_id=$1 AND queue_id=$2 AND status='COMPLETED' AND completed_at >= $3
        ORDER BY completed_at DESC
        LIMIT $4`
	rows, err := r.db.Query(ctx, query, tenantID, queueID, since, limit)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanSession)
}

func (r *sessionRepository) CountActiveAgents(ctx context.Context, tenantID, unitID string) (int, error) {
	const query = `
        SELECT COUNT(DISTINCT user_id) FROM sessions
        WHERE tenant_id=$1 AND unit_id=$2 AND status IN ` + openSessionStatuses
	var count int
	if err := r.db.QueryRow(ctx, query, tenantID, unitID).Scan(&count); err != nil {
		return 0, translate(err)
	}
	return count, nil
}

func scanSession(row pgx.Row, session *domain.Session) error {
	var pausedMs int64
	dest := append([]any{
		&session.ID,
		&session.TenantID,
		&session.TicketID,
		&session.UserID,
		&session.ResourceID,
		&session.QueueID,
		&session.ServiceID,
		&session.UnitID,
		&session.Status,
		&session.StartedAt,
		&session.PausedAt,
		&pausedMs,
		&session.PauseCount,
		&session.CompletedAt,
		&session.Notes,
	}, auditDest(&session.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	session.PausedDuration = time.Duration(pausedMs) * time.Millisecond
	return nil
}
