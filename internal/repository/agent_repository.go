package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/queue-service/internal/domain"
)

const agentColumns = `id, tenant_id, unit_id, name, status, ` + auditColumns

type agentRepository struct {
	db DBTX
}

// NewAgentRepository creates repository.
func NewAgentRepository(db DBTX) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) Create(ctx context.Context, agent *domain.Agent) error {
	const query = `
        INSERT INTO agents (` + agentColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	args := append([]any{agent.ID, agent.TenantID, agent.UnitID, agent.Name, agent.Status}, auditArgs(&agent.Audit)...)
	_, err := r.db.Exec(ctx, query, args...)
	return translate(err)
}

func (r *agentRepository) Update(ctx context.Context, agent *domain.Agent) error {
	const query = `
        UPDATE agents SET name=$1, status=$2, updated_at=$3, updated_by=$4, deleted_at=$5, deleted_by=$6,
            version=version+1
        WHERE id=$7 AND tenant_id=$8 AND version=$9`
	return execVersioned(ctx, r.db, &agent.Audit, query,
		agent.Name,
		agent.Status,
		agent.UpdatedAt,
		agent.UpdatedBy,
		agent.DeletedAt,
		agent.DeletedBy,
		agent.ID,
		agent.TenantID,
		agent.Version,
	)
}

func (r *agentRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Agent, error) {
	const query = `SELECT ` + agentColumns + ` FROM agents WHERE id=$1`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *agentRepository) GetForUpdate(ctx context.Context, tenantID, id string) (*domain.Agent, error) {
	const query = `SELECT ` + agentColumns + ` FROM agents WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, tenantID, id)
}

func (r *agentRepository) fetchSingle(ctx context.Context, query, tenantID, id string) (*domain.Agent, error) {
	var agent domain.Agent
	if err := scanAgent(r.db.QueryRow(ctx, query, id), &agent); err != nil {
		return nil, translate(err)
	}
	if err := checkTenant(agent.TenantID, tenantID); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListByUnit(ctx context.Context, tenantID, unitID string) ([]domain.Agent, error) {
	const query = `
        SELECT ` + agentColumns + `
        FROM agents WHERE tenant_id=$1 AND unit_id=$2 AND deleted_at IS NULL
        ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query, tenantID, unitID)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows, scanAgent)
}

func scanAgent(row pgx.Row, agent *domain.Agent) error {
	dest := append([]any{&agent.ID, &agent.TenantID, &agent.UnitID, &agent.Name, &agent.Status}, auditDest(&agent.Audit)...)
	return row.Scan(dest...)
}
