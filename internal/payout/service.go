// Package payout tracks the verification state of provider payout
// destinations. Verification is the only unblock for escrow release.
package payout

import (
	"context"

	"github.com/google/uuid"

	"github.com/taskvine/backend/internal/models"
)

type Service interface {
	Register(ctx context.Context, providerID uuid.UUID, accountRef string) (*models.PayoutAccount, error)
	Verify(ctx context.Context, accountID uuid.UUID) error
	Deactivate(ctx context.Context, accountID uuid.UUID) error
	Reactivate(ctx context.Context, accountID uuid.UUID) error
	GetForProvider(ctx context.Context, providerID uuid.UUID) (*models.PayoutAccount, error)
}

// Repo is the minimal payout-account persistence interface.
type Repo interface {
	Create(ctx context.Context, a *models.PayoutAccount) error
	SetVerified(ctx context.Context, accountID uuid.UUID, verified bool) error
	SetActive(ctx context.Context, accountID uuid.UUID, active bool) error
	GetForProvider(ctx context.Context, providerID uuid.UUID) (*models.PayoutAccount, error)
}

type service struct {
	repo Repo
}

func NewService(repo Repo) *service {
	return &service{repo: repo}
}

var _ Service = (*service)(nil)

// Register creates an unverified, active payout account. Registering again
// replaces the provider's destination: the previous account is deactivated
// and the new one starts unverified.
func (s *service) Register(ctx context.Context, providerID uuid.UUID, accountRef string) (*models.PayoutAccount, error) {
	if prev, err := s.repo.GetForProvider(ctx, providerID); err == nil {
		if err := s.repo.SetActive(ctx, prev.ID, false); err != nil {
			return nil, err
		}
	}
	a := &models.PayoutAccount{
		ID:         uuid.New(),
		ProviderID: providerID,
		AccountRef: accountRef,
		Verified:   false,
		Active:     true,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Verify marks the account verified. Idempotent.
func (s *service) Verify(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.SetVerified(ctx, accountID, true)
}

// Deactivate blocks releases against this account until it is reactivated
// or replaced.
func (s *service) Deactivate(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.SetActive(ctx, accountID, false)
}

func (s *service) Reactivate(ctx context.Context, accountID uuid.UUID) error {
	return s.repo.SetActive(ctx, accountID, true)
}

// GetForProvider returns the provider's current (most recent active)
// payout account.
func (s *service) GetForProvider(ctx context.Context, providerID uuid.UUID) (*models.PayoutAccount, error) {
	return s.repo.GetForProvider(ctx, providerID)
}
