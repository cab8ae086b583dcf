package approval

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskvine/backend/internal/models"
)

// Repository persists gates in the approval_gates table, one row per gate.
// The rows are created with the engagement and destroyed with it.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

func (r *Repository) InitGates(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error {
	for _, gate := range models.GateOrder {
		if _, err := tx.Exec(ctx, `
			INSERT INTO approval_gates (engagement_id, gate, state)
			VALUES ($1, $2, 'pending')
		`, engagementID, gate); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) ListForUpdate(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) ([]models.ApprovalGate, error) {
	rows, err := tx.Query(ctx, `
		SELECT engagement_id, gate, state, cleared_by, cleared_at
		FROM approval_gates WHERE engagement_id = $1
		FOR UPDATE
	`, engagementID)
	if err != nil {
		return nil, err
	}
	return scanGates(rows)
}

func (r *Repository) ClearGate(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID, gate string, actorID uuid.UUID) error {
	tag, err := tx.Exec(ctx, `
		UPDATE approval_gates
		SET state = 'cleared', cleared_by = $1, cleared_at = now()
		WHERE engagement_id = $2 AND gate = $3 AND state = 'pending'
	`, actorID, engagementID, gate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) List(ctx context.Context, engagementID uuid.UUID) ([]models.ApprovalGate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT engagement_id, gate, state, cleared_by, cleared_at
		FROM approval_gates WHERE engagement_id = $1
	`, engagementID)
	if err != nil {
		return nil, err
	}
	return scanGates(rows)
}

func scanGates(rows pgx.Rows) ([]models.ApprovalGate, error) {
	defer rows.Close()
	var list []models.ApprovalGate
	for rows.Next() {
		var g models.ApprovalGate
		if err := rows.Scan(&g.EngagementID, &g.Gate, &g.State, &g.ClearedBy, &g.ClearedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}
