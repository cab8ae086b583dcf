// Package approval owns the per-engagement gate checklist that must clear,
// in a fixed order, before work or payment can proceed.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskvine/backend/internal/models"
	"github.com/taskvine/backend/internal/notify"
)

// ErrOutOfOrderApproval is returned when a gate is cleared out of sequence.
var ErrOutOfOrderApproval = errors.New("approval out of order")

// Repo is the minimal gate persistence interface.
type Repo interface {
	InitGates(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error
	ListForUpdate(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) ([]models.ApprovalGate, error)
	ClearGate(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID, gate string, actorID uuid.UUID) error
	List(ctx context.Context, engagementID uuid.UUID) ([]models.ApprovalGate, error)
}

// Participants resolves who is on an engagement, for notifications.
type Participants interface {
	Get(ctx context.Context, engagementID uuid.UUID) (*models.Engagement, error)
}

type Service struct {
	Repo        Repo
	Engagements Participants
	Notifier    notify.Notifier
	Log         *slog.Logger
}

func NewService(repo Repo, engagements Participants, notifier notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{Repo: repo, Engagements: engagements, Notifier: notifier, Log: log}
}

// Init creates the three pending gates for a new engagement. Call within the
// transaction that creates the engagement.
func (s *Service) Init(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error {
	return s.Repo.InitGates(ctx, tx, engagementID)
}

// Clear records actor and timestamp on the given gate. Only the first
// pending gate in the fixed order may clear; anything else fails with
// ErrOutOfOrderApproval. Call within the transaction that advances the
// engagement so gate and lifecycle move in lockstep.
func (s *Service) Clear(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID, gate string, actorID uuid.UUID) error {
	gates, err := s.Repo.ListForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	next := firstPending(gates)
	if next == "" {
		return fmt.Errorf("%w: all gates already cleared", ErrOutOfOrderApproval)
	}
	if next != gate {
		return fmt.Errorf("%w: %s cannot clear while %s is pending", ErrOutOfOrderApproval, gate, next)
	}
	if err := s.Repo.ClearGate(ctx, tx, engagementID, gate, actorID); err != nil {
		return err
	}
	if gate == models.GateCustomerDetailsReleased {
		s.notifyDetailsReleased(ctx, engagementID)
	}
	return nil
}

// IsComplete reports whether every gate has cleared.
func (s *Service) IsComplete(ctx context.Context, engagementID uuid.UUID) (bool, error) {
	gates, err := s.Repo.List(ctx, engagementID)
	if err != nil {
		return false, err
	}
	if len(gates) < len(models.GateOrder) {
		return false, nil
	}
	return firstPending(gates) == "", nil
}

// firstPending returns the first gate in canonical order that is still
// pending, or "" if all have cleared.
func firstPending(gates []models.ApprovalGate) string {
	state := make(map[string]string, len(gates))
	for _, g := range gates {
		state[g.Gate] = g.State
	}
	for _, name := range models.GateOrder {
		if state[name] != models.GateStateCleared {
			return name
		}
	}
	return ""
}

// notifyDetailsReleased tells the provider the client's contact details are
// now visible. Fire-and-forget: failure never blocks the transition.
func (s *Service) notifyDetailsReleased(ctx context.Context, engagementID uuid.UUID) {
	if s.Notifier == nil {
		return
	}
	eng, err := s.Engagements.Get(ctx, engagementID)
	if err != nil || eng.ProviderID == nil {
		s.Log.Warn("details released but provider lookup failed", "engagement_id", engagementID, "error", err)
		return
	}
	if err := s.Notifier.Notify(ctx, *eng.ProviderID, notify.EventDetailsReleased, map[string]any{
		"engagement_id": engagementID.String(),
	}); err != nil {
		s.Log.Warn("details released notification failed", "engagement_id", engagementID, "error", err)
	}
}
