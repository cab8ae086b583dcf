package submission

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskvine/backend/internal/models"
)

// Repository persists submissions in the work_submissions table. Evidence
// items are stored as a JSONB array of {ref, description}.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, s *models.WorkSubmission) error {
	evidence, err := json.Marshal(s.Evidence)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO work_submissions (id, engagement_id, escrow_payment_id, provider_id, summary, evidence, status)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, s.ID, s.EngagementID, s.EscrowPaymentID, s.ProviderID, s.Summary, evidence, s.Status)
	return err
}

func (r *Repository) SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE work_submissions SET status = $1 WHERE id = $2
	`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) LatestByEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, engagement_id, escrow_payment_id, provider_id, summary, evidence, status, created_at
		FROM work_submissions
		WHERE engagement_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, engagementID)
	var s models.WorkSubmission
	var evidence []byte
	err := row.Scan(&s.ID, &s.EngagementID, &s.EscrowPaymentID, &s.ProviderID, &s.Summary, &evidence, &s.Status, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(evidence, &s.Evidence); err != nil {
		return nil, err
	}
	return &s, nil
}
