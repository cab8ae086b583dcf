package auth

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

// Create inserts a new account and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName, role string) (*models.Account, error) {
	var id uuid.UUID
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (email, password_hash, display_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, email, passwordHash, displayName, role)
	if err := row.Scan(&id); err != nil {
		return nil, err
	}
	return &models.Account{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		Role:        role,
	}, nil
}

// GetByEmail returns the account for login, including the password hash.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, role, password_hash
		FROM accounts WHERE email = $1
	`, email)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.Role, &a.PasswordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListApproverIDs returns every payment approver, for work-submitted
// notifications.
func (r *Repository) ListApproverIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM accounts WHERE role = 'approver'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
