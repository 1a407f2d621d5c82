package repository

import "context"

type sequenceRepository struct {
	db DBTX
}

// NewSequenceRepository constructs repository.
func NewSequenceRepository(db DBTX) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next upserts the counter row. Inside a transaction the row lock serializes
// concurrent issuers for the same queue and day.
func (r *sequenceRepository) Next(ctx context.Context, tenantID, queueID, day string) (int, error) {
	const query = `
        INSERT INTO ticket_sequences (tenant_id, queue_id, issue_day, last_value)
        VALUES ($1,$2,$3,1)
        ON CONFLICT (tenant_id, queue_id, issue_day)
        DO UPDATE SET last_value = ticket_sequences.last_value + 1
        RETURNING last_value`
	var value int
	if err := r.db.QueryRow(ctx, query, tenantID, queueID, day).Scan(&value); err != nil {
		return 0, translate(err)
	}
	return value, nil
}
