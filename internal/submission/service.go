// Package submission records work-completion claims and their evidence.
// Validation happens before any write: a bad submission leaves no trace.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskvine/backend/internal/models"
)

var (
	// ErrEvidenceRequired is returned when a completion claim carries no
	// evidence items.
	ErrEvidenceRequired = errors.New("evidence required")
	// ErrInvalidEvidence is returned when an evidence item has an empty
	// storage reference.
	ErrInvalidEvidence = errors.New("invalid evidence")
)

// Repo is the minimal submission persistence interface.
type Repo interface {
	Create(ctx context.Context, tx pgx.Tx, s *models.WorkSubmission) error
	SetStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	LatestByEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error)
}

type Service struct {
	Repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{Repo: repo}
}

// Validate checks a completion claim without touching storage.
func Validate(evidence []models.EvidenceItem, summary string) error {
	if len(evidence) == 0 {
		return fmt.Errorf("%w: at least one evidence item is required", ErrEvidenceRequired)
	}
	for i, item := range evidence {
		if item.Ref == "" {
			return fmt.Errorf("%w: evidence item %d has no storage reference", ErrInvalidEvidence, i)
		}
	}
	return nil
}

// Create validates and persists a new completion claim. A rejected earlier
// submission stays on record; this appends a fresh one.
func (s *Service) Create(ctx context.Context, tx pgx.Tx, engagementID, escrowID, providerID uuid.UUID, evidence []models.EvidenceItem, summary string) (*models.WorkSubmission, error) {
	if err := Validate(evidence, summary); err != nil {
		return nil, err
	}
	sub := &models.WorkSubmission{
		ID:              uuid.New(),
		EngagementID:    engagementID,
		EscrowPaymentID: escrowID,
		ProviderID:      providerID,
		Summary:         summary,
		Evidence:        evidence,
		Status:          models.SubmissionSubmitted,
	}
	if err := s.Repo.Create(ctx, tx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// MarkAccepted records the approver's acceptance of the latest claim.
func (s *Service) MarkAccepted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return s.Repo.SetStatus(ctx, tx, id, models.SubmissionAccepted)
}

// MarkRejected records rejection; the provider may submit again.
func (s *Service) MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	return s.Repo.SetStatus(ctx, tx, id, models.SubmissionRejected)
}

// Latest returns the most recent submission for an engagement.
func (s *Service) Latest(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error) {
	return s.Repo.LatestByEngagement(ctx, tx, engagementID)
}
