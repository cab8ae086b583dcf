package escrow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskvine/backend/internal/models"
)

// Repository persists escrow payments in the escrow_payments table. Rows are
// append-only per engagement: superseded records keep their final status.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Repo = (*Repository)(nil)

func (r *Repository) Create(ctx context.Context, tx pgx.Tx, p *models.EscrowPayment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO escrow_payments (
			id, engagement_id, client_id, provider_id,
			amount_cents, platform_fee_cents, tax_cents, total_cents, payout_cents,
			status, processor_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.EngagementID, p.ClientID, p.ProviderID,
		p.AmountCents, p.PlatformFeeCents, p.TaxCents, p.TotalCents, p.PayoutCents,
		p.Status, p.ProcessorRef)
	return err
}

func (r *Repository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowPayment, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, engagement_id, client_id, provider_id,
		       amount_cents, platform_fee_cents, tax_cents, total_cents, payout_cents,
		       status, processor_ref, approved_by, refund_reason, created_at, updated_at
		FROM escrow_payments WHERE id = $1
		FOR UPDATE
	`, id)
	return scanEscrow(row)
}

// CurrentByEngagement returns the most recent escrow record for an
// engagement and locks it for the duration of the transaction.
func (r *Repository) CurrentByEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.EscrowPayment, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, engagement_id, client_id, provider_id,
		       amount_cents, platform_fee_cents, tax_cents, total_cents, payout_cents,
		       status, processor_ref, approved_by, refund_reason, created_at, updated_at
		FROM escrow_payments WHERE engagement_id = $1
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, engagementID)
	return scanEscrow(row)
}

func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, processorRef string, approvedBy *uuid.UUID, refundReason *string) error {
	_, err := tx.Exec(ctx, `
		UPDATE escrow_payments
		SET status = $1, processor_ref = $2, approved_by = $3, refund_reason = $4, updated_at = now()
		WHERE id = $5
	`, status, processorRef, approvedBy, refundReason, id)
	return err
}

// ListByEngagement returns the full audit trail, oldest first.
func (r *Repository) ListByEngagement(ctx context.Context, engagementID uuid.UUID) ([]*models.EscrowPayment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, engagement_id, client_id, provider_id,
		       amount_cents, platform_fee_cents, tax_cents, total_cents, payout_cents,
		       status, processor_ref, approved_by, refund_reason, created_at, updated_at
		FROM escrow_payments WHERE engagement_id = $1
		ORDER BY created_at ASC
	`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.EscrowPayment
	for rows.Next() {
		p, err := scanEscrow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func scanEscrow(row pgx.Row) (*models.EscrowPayment, error) {
	var p models.EscrowPayment
	err := row.Scan(&p.ID, &p.EngagementID, &p.ClientID, &p.ProviderID,
		&p.AmountCents, &p.PlatformFeeCents, &p.TaxCents, &p.TotalCents, &p.PayoutCents,
		&p.Status, &p.ProcessorRef, &p.ApprovedBy, &p.RefundReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}
