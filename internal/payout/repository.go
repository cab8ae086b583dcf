package payout

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskvine/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, a *models.PayoutAccount) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO payout_accounts (id, provider_id, account_ref, verified, active)
		VALUES ($1, $2, $3, $4, $5)
	`, a.ID, a.ProviderID, a.AccountRef, a.Verified, a.Active)
	return err
}

func (r *Repository) SetVerified(ctx context.Context, accountID uuid.UUID, verified bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payout_accounts SET verified = $1, updated_at = now() WHERE id = $2
	`, verified, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) SetActive(ctx context.Context, accountID uuid.UUID, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payout_accounts SET active = $1, updated_at = now() WHERE id = $2
	`, active, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) GetForProvider(ctx context.Context, providerID uuid.UUID) (*models.PayoutAccount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, account_ref, verified, active, created_at, updated_at
		FROM payout_accounts
		WHERE provider_id = $1 AND active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`, providerID)
	var a models.PayoutAccount
	err := row.Scan(&a.ID, &a.ProviderID, &a.AccountRef, &a.Verified, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
