package engagement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskvine/backend/internal/models"
)

// Repository persists engagements and their quotes. Quotes are append-only.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

const engagementColumns = `
	id, client_id, provider_id, title, description, status,
	agreed_price_cents, rejection_count, dispute_reason,
	created_at, updated_at, status_changed_at`

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, e *models.Engagement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO engagements (id, client_id, title, description, status)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ID, e.ClientID, e.Title, e.Description, e.Status)
	return err
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id)
	return scanEngagement(row)
}

// GetForUpdate locks the engagement row for the duration of the transaction
// so transitions on one engagement serialize.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Engagement, error) {
	row := tx.QueryRow(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1 FOR UPDATE`, id)
	return scanEngagement(row)
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE engagements
		SET status = $1, status_changed_at = now(), updated_at = now()
		WHERE id = $2
	`, status, id)
	return err
}

func (r *Repository) SetProvider(ctx context.Context, tx pgx.Tx, id, providerID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE engagements SET provider_id = $1, updated_at = now() WHERE id = $2
	`, providerID, id)
	return err
}

func (r *Repository) SetAgreedPrice(ctx context.Context, tx pgx.Tx, id uuid.UUID, priceCents int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE engagements SET agreed_price_cents = $1, updated_at = now() WHERE id = $2
	`, priceCents, id)
	return err
}

func (r *Repository) SetDisputeReason(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE engagements SET dispute_reason = $1, updated_at = now() WHERE id = $2
	`, reason, id)
	return err
}

func (r *Repository) IncRejectionCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error) {
	var count int
	row := tx.QueryRow(ctx, `
		UPDATE engagements SET rejection_count = rejection_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING rejection_count
	`, id)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) CreateQuote(ctx context.Context, tx pgx.Tx, q *models.Quote) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO quotes (id, engagement_id, provider_id, price_cents, estimated_hours, proposal, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, q.ID, q.EngagementID, q.ProviderID, q.PriceCents, q.EstimatedHours, q.Proposal, q.Status)
	return err
}

func (r *Repository) SupersedePendingQuotes(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE quotes SET status = 'superseded'
		WHERE engagement_id = $1 AND status = 'pending'
	`, engagementID)
	return err
}

// AcceptLatestQuote freezes the most recent pending quote. The accepted
// quote is immutable from here on.
func (r *Repository) AcceptLatestQuote(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.Quote, error) {
	row := tx.QueryRow(ctx, `
		UPDATE quotes SET status = 'accepted'
		WHERE id = (
			SELECT id FROM quotes
			WHERE engagement_id = $1 AND status = 'pending'
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id, engagement_id, provider_id, price_cents, estimated_hours, proposal, status, created_at
	`, engagementID)
	var q models.Quote
	err := row.Scan(&q.ID, &q.EngagementID, &q.ProviderID, &q.PriceCents, &q.EstimatedHours, &q.Proposal, &q.Status, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *Repository) ListQuotes(ctx context.Context, engagementID uuid.UUID) ([]*models.Quote, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, engagement_id, provider_id, price_cents, estimated_hours, proposal, status, created_at
		FROM quotes WHERE engagement_id = $1
		ORDER BY created_at ASC
	`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Quote
	for rows.Next() {
		var q models.Quote
		if err := rows.Scan(&q.ID, &q.EngagementID, &q.ProviderID, &q.PriceCents, &q.EstimatedHours, &q.Proposal, &q.Status, &q.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &q)
	}
	return list, rows.Err()
}

func (r *Repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Engagement, error) {
	return r.list(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
}

func (r *Repository) ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Engagement, error) {
	return r.list(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
}

func (r *Repository) list(ctx context.Context, query string, arg any) ([]*models.Engagement, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Engagement
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanEngagement(row pgx.Row) (*models.Engagement, error) {
	var e models.Engagement
	err := row.Scan(&e.ID, &e.ClientID, &e.ProviderID, &e.Title, &e.Description, &e.Status,
		&e.AgreedPriceCents, &e.RejectionCount, &e.DisputeReason,
		&e.CreatedAt, &e.UpdatedAt, &e.StatusChangedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
