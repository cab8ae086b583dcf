// Package escrow owns the money-custody record for an engagement: fee and
// tax arithmetic, the escrow status machine, and the calls out to the
// payment processor. Transitions run inside a caller-supplied transaction so
// a processor failure rolls back to the pre-call status.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskvine/backend/internal/models"
	"github.com/taskvine/backend/internal/processor"
)

var (
	// ErrInvalidAmount is returned for a non-positive base amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidTransition is returned when the escrow is not in a status
	// the requested operation accepts.
	ErrInvalidTransition = errors.New("invalid escrow transition")
	// ErrApprovalRequired is returned when funds would move before the
	// approval gate sequence has fully cleared.
	ErrApprovalRequired = errors.New("approval required")
	// ErrPayoutAccountNotReady is returned when the provider's payout
	// account is missing, unverified, or inactive.
	ErrPayoutAccountNotReady = errors.New("payout account not ready")
	// ErrProcessor wraps payment-processor failures. The caller retries the
	// whole operation; escrow state is unchanged.
	ErrProcessor = errors.New("payment processor error")
)

// FeePolicy holds the injected fee configuration in basis points.
type FeePolicy struct {
	PlatformFeeBPS int64
	TaxBPS         int64
	Currency       string
}

// Breakdown is the money split for one engagement, in minor currency units.
type Breakdown struct {
	AmountCents      int64 `json:"amount_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	TaxCents         int64 `json:"tax_cents"`
	TotalCents       int64 `json:"total_cents"`
	PayoutCents      int64 `json:"payout_cents"`
}

// Repo is the minimal escrow persistence interface.
type Repo interface {
	Create(ctx context.Context, tx pgx.Tx, p *models.EscrowPayment) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.EscrowPayment, error)
	CurrentByEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.EscrowPayment, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status, processorRef string, approvedBy *uuid.UUID, refundReason *string) error
}

// ApprovalChecker reports whether the engagement's gate sequence is fully
// cleared.
type ApprovalChecker interface {
	IsComplete(ctx context.Context, engagementID uuid.UUID) (bool, error)
}

// PayoutAccounts resolves the provider's payout destination.
type PayoutAccounts interface {
	GetForProvider(ctx context.Context, providerID uuid.UUID) (*models.PayoutAccount, error)
}

// Service is the money ledger. All mutating methods must be called within a
// transaction that the caller commits or rolls back.
type Service struct {
	Repo      Repo
	Processor processor.Client
	Approvals ApprovalChecker
	Payouts   PayoutAccounts
	Fees      FeePolicy
}

func NewService(repo Repo, proc processor.Client, approvals ApprovalChecker, payouts PayoutAccounts, fees FeePolicy) *Service {
	return &Service{Repo: repo, Processor: proc, Approvals: approvals, Payouts: payouts, Fees: fees}
}

// roundBPS applies a basis-point rate with round-half-up on minor units.
func roundBPS(cents, bps int64) int64 {
	return (cents*bps + 5000) / 10000
}

// ComputeBreakdown splits a base price into fee, tax, client total, and
// provider payout. The platform fee is absorbed from the base price; tax is
// a pass-through charged on top.
func (s *Service) ComputeBreakdown(baseCents int64) (Breakdown, error) {
	if baseCents <= 0 {
		return Breakdown{}, fmt.Errorf("%w: base amount must be positive, got %d", ErrInvalidAmount, baseCents)
	}
	fee := roundBPS(baseCents, s.Fees.PlatformFeeBPS)
	tax := roundBPS(baseCents, s.Fees.TaxBPS)
	return Breakdown{
		AmountCents:      baseCents,
		PlatformFeeCents: fee,
		TaxCents:         tax,
		TotalCents:       baseCents + fee + tax,
		PayoutCents:      baseCents - fee,
	}, nil
}

// Open requests a hold of the client total from the processor and persists a
// pending escrow record. On processor failure nothing is persisted.
func (s *Service) Open(ctx context.Context, tx pgx.Tx, engagementID, clientID, providerID uuid.UUID, bd Breakdown) (*models.EscrowPayment, error) {
	hold, err := s.Processor.CreateHold(ctx, bd.TotalCents, s.Fees.Currency, map[string]string{
		"engagement_id": engagementID.String(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create hold: %v", ErrProcessor, err)
	}
	p := &models.EscrowPayment{
		ID:               uuid.New(),
		EngagementID:     engagementID,
		ClientID:         clientID,
		ProviderID:       providerID,
		AmountCents:      bd.AmountCents,
		PlatformFeeCents: bd.PlatformFeeCents,
		TaxCents:         bd.TaxCents,
		TotalCents:       bd.TotalCents,
		PayoutCents:      bd.PayoutCents,
		Status:           models.EscrowPending,
		ProcessorRef:     hold.ProcessorRef,
	}
	if err := s.Repo.Create(ctx, tx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// MarkHeld confirms the processor hold and moves pending -> held.
func (s *Service) MarkHeld(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, processorRef string) error {
	p, err := s.Repo.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if p.Status != models.EscrowPending {
		return fmt.Errorf("%w: escrow is %s, only a pending escrow can be marked held", ErrInvalidTransition, p.Status)
	}
	if processorRef == "" {
		processorRef = p.ProcessorRef
	}
	if err := s.Processor.ConfirmHold(ctx, processorRef); err != nil {
		return fmt.Errorf("%w: confirm hold: %v", ErrProcessor, err)
	}
	return s.Repo.UpdateStatus(ctx, tx, escrowID, models.EscrowHeld, processorRef, nil, nil)
}

// MarkApproved moves held -> approved once every approval gate has cleared.
func (s *Service) MarkApproved(ctx context.Context, tx pgx.Tx, escrowID, approverID uuid.UUID) error {
	p, err := s.Repo.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if p.Status != models.EscrowHeld {
		return fmt.Errorf("%w: escrow is %s, only a held escrow can be approved", ErrInvalidTransition, p.Status)
	}
	complete, err := s.Approvals.IsComplete(ctx, p.EngagementID)
	if err != nil {
		return err
	}
	if !complete {
		return fmt.Errorf("%w: approval gate sequence has pending gates", ErrApprovalRequired)
	}
	return s.Repo.UpdateStatus(ctx, tx, escrowID, models.EscrowApproved, p.ProcessorRef, &approverID, nil)
}

// Release moves approved -> released and transfers the payout. Calling it on
// an already-released escrow returns the stored payout without a second
// transfer.
func (s *Service) Release(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID) (int64, error) {
	p, err := s.Repo.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return 0, err
	}
	if p.Status == models.EscrowReleased {
		return p.PayoutCents, nil
	}
	if p.Status != models.EscrowApproved {
		return 0, fmt.Errorf("%w: escrow is %s, only an approved escrow can be released", ErrInvalidTransition, p.Status)
	}
	acct, err := s.Payouts.GetForProvider(ctx, p.ProviderID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, fmt.Errorf("%w: provider has no payout account", ErrPayoutAccountNotReady)
		}
		return 0, err
	}
	if !acct.Verified || !acct.Active {
		return 0, fmt.Errorf("%w: payout account verified=%t active=%t", ErrPayoutAccountNotReady, acct.Verified, acct.Active)
	}
	if err := s.Processor.TransferPayout(ctx, acct.AccountRef, p.PayoutCents); err != nil {
		return 0, fmt.Errorf("%w: transfer payout: %v", ErrProcessor, err)
	}
	if err := s.Repo.UpdateStatus(ctx, tx, escrowID, models.EscrowReleased, p.ProcessorRef, p.ApprovedBy, nil); err != nil {
		return 0, err
	}
	return p.PayoutCents, nil
}

// Refund reverses the hold and moves held|approved -> refunded. Released
// funds are out of reach: clawing them back is a separate reversal process.
func (s *Service) Refund(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, reason string) error {
	p, err := s.Repo.GetByIDForUpdate(ctx, tx, escrowID)
	if err != nil {
		return err
	}
	if p.Status == models.EscrowReleased {
		return fmt.Errorf("%w: released funds cannot be refunded", ErrInvalidTransition)
	}
	if !models.EscrowCanTransition(p.Status, models.EscrowRefunded) {
		return fmt.Errorf("%w: escrow is %s, only a held or approved escrow can be refunded", ErrInvalidTransition, p.Status)
	}
	if err := s.Processor.ReverseHold(ctx, p.ProcessorRef); err != nil {
		return fmt.Errorf("%w: reverse hold: %v", ErrProcessor, err)
	}
	return s.Repo.UpdateStatus(ctx, tx, escrowID, models.EscrowRefunded, p.ProcessorRef, p.ApprovedBy, &reason)
}

// CurrentForEngagement returns the live escrow record for an engagement.
func (s *Service) CurrentForEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.EscrowPayment, error) {
	return s.Repo.CurrentByEngagement(ctx, tx, engagementID)
}
