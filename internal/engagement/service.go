// Package engagement implements the top-level lifecycle of a client-provider
// service relationship, composing the approval gate sequence and the escrow
// ledger. Every transition runs in its own transaction with the engagement
// row locked, so concurrent calls against the same engagement serialize: the
// loser observes the post-transition state and fails its guard.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskvine/backend/internal/escrow"
	"github.com/taskvine/backend/internal/models"
	"github.com/taskvine/backend/internal/notify"
	"github.com/taskvine/backend/internal/submission"
)

var (
	// ErrInvalidTransition is returned when the engagement is not in a
	// status the requested operation accepts.
	ErrInvalidTransition = errors.New("invalid engagement transition")
	// ErrActorNotAllowed is returned when the caller is not the participant
	// the operation belongs to.
	ErrActorNotAllowed = errors.New("actor not allowed")
)

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo is the minimal engagement/quote persistence interface.
type Repo interface {
	Create(ctx context.Context, tx pgx.Tx, e *models.Engagement) error
	Get(ctx context.Context, id uuid.UUID) (*models.Engagement, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Engagement, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	SetProvider(ctx context.Context, tx pgx.Tx, id, providerID uuid.UUID) error
	SetAgreedPrice(ctx context.Context, tx pgx.Tx, id uuid.UUID, priceCents int64) error
	SetDisputeReason(ctx context.Context, tx pgx.Tx, id uuid.UUID, reason string) error
	IncRejectionCount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (int, error)
	CreateQuote(ctx context.Context, tx pgx.Tx, q *models.Quote) error
	SupersedePendingQuotes(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error
	AcceptLatestQuote(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.Quote, error)
	ListQuotes(ctx context.Context, engagementID uuid.UUID) ([]*models.Quote, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Engagement, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID) ([]*models.Engagement, error)
}

// Ledger is the subset of the escrow service the state machine drives.
type Ledger interface {
	ComputeBreakdown(baseCents int64) (escrow.Breakdown, error)
	Open(ctx context.Context, tx pgx.Tx, engagementID, clientID, providerID uuid.UUID, bd escrow.Breakdown) (*models.EscrowPayment, error)
	MarkHeld(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, processorRef string) error
	MarkApproved(ctx context.Context, tx pgx.Tx, escrowID, approverID uuid.UUID) error
	Release(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID) (int64, error)
	Refund(ctx context.Context, tx pgx.Tx, escrowID uuid.UUID, reason string) error
	CurrentForEngagement(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.EscrowPayment, error)
}

// Gates is the approval gate sequence.
type Gates interface {
	Init(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) error
	Clear(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID, gate string, actorID uuid.UUID) error
}

// Submissions records work-completion claims.
type Submissions interface {
	Create(ctx context.Context, tx pgx.Tx, engagementID, escrowID, providerID uuid.UUID, evidence []models.EvidenceItem, summary string) (*models.WorkSubmission, error)
	MarkAccepted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	MarkRejected(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	Latest(ctx context.Context, tx pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error)
}

// ApproverDirectory lists the payment approvers eligible to review work.
type ApproverDirectory interface {
	ListApproverIDs(ctx context.Context) ([]uuid.UUID, error)
}

type Service struct {
	Pool        TxBeginner
	Repo        Repo
	Ledger      Ledger
	Gates       Gates
	Submissions Submissions
	Approvers   ApproverDirectory
	Notifier    notify.Notifier
	// RetryCap is how many rejections an engagement tolerates before it is
	// forced into dispute.
	RetryCap int
	Log      *slog.Logger
}

func NewService(pool TxBeginner, repo Repo, ledger Ledger, gates Gates, subs Submissions, approvers ApproverDirectory, notifier notify.Notifier, retryCap int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		Pool:        pool,
		Repo:        repo,
		Ledger:      ledger,
		Gates:       gates,
		Submissions: subs,
		Approvers:   approvers,
		Notifier:    notifier,
		RetryCap:    retryCap,
		Log:         log,
	}
}

// Create opens a new engagement in requested status with its three pending
// approval gates.
func (s *Service) Create(ctx context.Context, clientID uuid.UUID, title, description string) (*models.Engagement, error) {
	e := &models.Engagement{
		ID:          uuid.New(),
		ClientID:    clientID,
		Title:       title,
		Description: description,
		Status:      models.EngagementRequested,
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if err := s.Repo.Create(ctx, tx, e); err != nil {
		return nil, err
	}
	if err := s.Gates.Init(ctx, tx, e.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// SubmitQuote attaches a provider's proposal. Re-quoting is allowed while
// the engagement is still requested or quoted; earlier pending quotes are
// superseded, never deleted.
func (s *Service) SubmitQuote(ctx context.Context, engagementID, providerID uuid.UUID, priceCents int64, estimatedHours int, proposal string) (*models.Quote, error) {
	if priceCents <= 0 {
		return nil, fmt.Errorf("%w: quote price must be positive", escrow.ErrInvalidAmount)
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EngagementRequested && e.Status != models.EngagementQuoted {
		return nil, fmt.Errorf("%w: engagement is %s, quoting is closed", ErrInvalidTransition, e.Status)
	}
	if err := s.Repo.SupersedePendingQuotes(ctx, tx, engagementID); err != nil {
		return nil, err
	}
	q := &models.Quote{
		ID:             uuid.New(),
		EngagementID:   engagementID,
		ProviderID:     providerID,
		PriceCents:     priceCents,
		EstimatedHours: estimatedHours,
		Proposal:       proposal,
		Status:         models.QuoteStatusPending,
	}
	if err := s.Repo.CreateQuote(ctx, tx, q); err != nil {
		return nil, err
	}
	if err := s.Repo.SetProvider(ctx, tx, engagementID, providerID); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementQuoted); err != nil {
		return nil, err
	}
	return q, tx.Commit(ctx)
}

// AcceptPrice clears the first approval gate, freezes the accepted quote,
// and opens escrow custody of the client total. The processor hold is
// requested and confirmed inside the same transaction: if the processor
// fails, the whole acceptance rolls back and can be retried.
func (s *Service) AcceptPrice(ctx context.Context, engagementID, clientID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.ClientID != clientID {
		return fmt.Errorf("%w: only the client accepts the price", ErrActorNotAllowed)
	}
	if e.Status != models.EngagementQuoted {
		return fmt.Errorf("%w: engagement is %s, there is no quote to accept", ErrInvalidTransition, e.Status)
	}
	if err := s.Gates.Clear(ctx, tx, engagementID, models.GatePriceAccepted, clientID); err != nil {
		return err
	}
	q, err := s.Repo.AcceptLatestQuote(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if err := s.Repo.SetAgreedPrice(ctx, tx, engagementID, q.PriceCents); err != nil {
		return err
	}
	bd, err := s.Ledger.ComputeBreakdown(q.PriceCents)
	if err != nil {
		return err
	}
	p, err := s.Ledger.Open(ctx, tx, engagementID, e.ClientID, q.ProviderID, bd)
	if err != nil {
		return err
	}
	if err := s.Ledger.MarkHeld(ctx, tx, p.ID, p.ProcessorRef); err != nil {
		return err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementPriceAccepted); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApproveTaskReview clears the second gate after the client has reviewed the
// task scope with the provider.
func (s *Service) ApproveTaskReview(ctx context.Context, engagementID, clientID uuid.UUID) error {
	return s.clearGateAndAdvance(ctx, engagementID, clientID,
		models.EngagementPriceAccepted, models.GateTaskReviewed, models.EngagementUnderReview)
}

// ReleaseCustomerDetails clears the final gate, exposing the client's
// contact details to the provider.
func (s *Service) ReleaseCustomerDetails(ctx context.Context, engagementID, clientID uuid.UUID) error {
	return s.clearGateAndAdvance(ctx, engagementID, clientID,
		models.EngagementUnderReview, models.GateCustomerDetailsReleased, models.EngagementDetailsReleased)
}

func (s *Service) clearGateAndAdvance(ctx context.Context, engagementID, clientID uuid.UUID, from, gate, to string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.ClientID != clientID {
		return fmt.Errorf("%w: only the client clears approval gates", ErrActorNotAllowed)
	}
	if e.Status != from {
		return fmt.Errorf("%w: engagement is %s, expected %s", ErrInvalidTransition, e.Status, from)
	}
	if err := s.Gates.Clear(ctx, tx, engagementID, gate, clientID); err != nil {
		return err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, to); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// BeginWork moves details_released -> in_progress. Only the assigned
// provider may start work.
func (s *Service) BeginWork(ctx context.Context, engagementID, providerID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.ProviderID == nil || *e.ProviderID != providerID {
		return fmt.Errorf("%w: only the assigned provider begins work", ErrActorNotAllowed)
	}
	if e.Status != models.EngagementDetailsReleased {
		return fmt.Errorf("%w: engagement is %s, details must be released before work begins", ErrInvalidTransition, e.Status)
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementInProgress); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SubmitWork records a completion claim with its evidence and moves the
// engagement to work_submitted. Evidence is validated before any state is
// touched. Eligible payment approvers are notified.
func (s *Service) SubmitWork(ctx context.Context, engagementID, providerID uuid.UUID, evidence []models.EvidenceItem, summary string) (*models.WorkSubmission, error) {
	if err := submission.Validate(evidence, summary); err != nil {
		return nil, err
	}
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return nil, err
	}
	if e.ProviderID == nil || *e.ProviderID != providerID {
		return nil, fmt.Errorf("%w: only the assigned provider submits work", ErrActorNotAllowed)
	}
	if e.Status != models.EngagementInProgress {
		return nil, fmt.Errorf("%w: engagement is %s, work is not in progress", ErrInvalidTransition, e.Status)
	}
	esc, err := s.Ledger.CurrentForEngagement(ctx, tx, engagementID)
	if err != nil {
		return nil, err
	}
	if esc.Status != models.EscrowHeld {
		return nil, fmt.Errorf("%w: escrow is %s, funds must be held before work is submitted", ErrInvalidTransition, esc.Status)
	}
	sub, err := s.Submissions.Create(ctx, tx, engagementID, esc.ID, providerID, evidence, summary)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementWorkSubmitted); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.notifyApprovers(ctx, engagementID, sub.ID)
	return sub, nil
}

// ApproveWork accepts the latest submission, approves the escrow, and
// releases the payout. Approval and release commit separately: if the
// release is blocked (payout account not ready, processor down) the escrow
// stays approved and the whole call can be retried once the blocker clears.
// A dispute resolver uses the same path to close a dispute in the
// provider's favor.
func (s *Service) ApproveWork(ctx context.Context, engagementID, approverID uuid.UUID) (int64, error) {
	e, err := s.Repo.Get(ctx, engagementID)
	if err != nil {
		return 0, err
	}
	switch e.Status {
	case models.EngagementWorkSubmitted, models.EngagementDisputed:
		if err := s.approveSubmission(ctx, engagementID, approverID); err != nil {
			return 0, err
		}
	case models.EngagementApproved:
		// Retry after a blocked release.
	default:
		return 0, fmt.Errorf("%w: engagement is %s, there is no submission to approve", ErrInvalidTransition, e.Status)
	}
	return s.releasePayout(ctx, engagementID)
}

// approveSubmission runs the first commit: escrow held -> approved, the
// submission accepted, the engagement -> approved.
func (s *Service) approveSubmission(ctx context.Context, engagementID, approverID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.Status != models.EngagementWorkSubmitted && e.Status != models.EngagementDisputed {
		return fmt.Errorf("%w: engagement is %s, there is no submission to approve", ErrInvalidTransition, e.Status)
	}
	esc, err := s.Ledger.CurrentForEngagement(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if err := s.Ledger.MarkApproved(ctx, tx, esc.ID, approverID); err != nil {
		return err
	}
	if sub, err := s.Submissions.Latest(ctx, tx, engagementID); err == nil {
		if err := s.Submissions.MarkAccepted(ctx, tx, sub.ID); err != nil {
			return err
		}
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementApproved); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// releasePayout runs the second commit: escrow approved -> released, the
// engagement -> released.
func (s *Service) releasePayout(ctx context.Context, engagementID uuid.UUID) (int64, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return 0, err
	}
	esc, err := s.Ledger.CurrentForEngagement(ctx, tx, engagementID)
	if err != nil {
		return 0, err
	}
	payout, err := s.Ledger.Release(ctx, tx, esc.ID)
	if err != nil {
		return 0, err
	}
	if e.Status != models.EngagementReleased {
		if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementReleased); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}

	s.notifyParticipant(ctx, esc.ProviderID, notify.EventWorkApproved, map[string]any{
		"engagement_id": engagementID.String(),
		"payout_cents":  payout,
	})
	return payout, nil
}

// RejectWork returns the engagement to in_progress so the provider can
// resubmit, or forces a dispute once the rejection cap is exhausted.
func (s *Service) RejectWork(ctx context.Context, engagementID, approverID uuid.UUID, reason string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.Status != models.EngagementWorkSubmitted {
		return fmt.Errorf("%w: engagement is %s, there is no submission to reject", ErrInvalidTransition, e.Status)
	}
	if sub, err := s.Submissions.Latest(ctx, tx, engagementID); err == nil {
		if err := s.Submissions.MarkRejected(ctx, tx, sub.ID); err != nil {
			return err
		}
	}
	count, err := s.Repo.IncRejectionCount(ctx, tx, engagementID)
	if err != nil {
		return err
	}

	disputed := count > s.RetryCap
	next := models.EngagementInProgress
	if disputed {
		next = models.EngagementDisputed
		if err := s.Repo.SetDisputeReason(ctx, tx, engagementID, fmt.Sprintf("rejection cap reached: %s", reason)); err != nil {
			return err
		}
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, next); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if e.ProviderID != nil {
		kind := notify.EventWorkRejected
		if disputed {
			kind = notify.EventDisputeOpened
		}
		s.notifyParticipant(ctx, *e.ProviderID, kind, map[string]any{
			"engagement_id": engagementID.String(),
			"reason":        reason,
		})
	}
	return nil
}

// Dispute freezes the engagement pending manual resolution. It moves no
// money; only a resolver's refund or approval closes it.
func (s *Service) Dispute(ctx context.Context, engagementID, actorID uuid.UUID, reason string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if actorID != e.ClientID && (e.ProviderID == nil || *e.ProviderID != actorID) {
		return fmt.Errorf("%w: only engagement participants open disputes", ErrActorNotAllowed)
	}
	if e.Status != models.EngagementInProgress && e.Status != models.EngagementWorkSubmitted {
		return fmt.Errorf("%w: engagement is %s, disputes open from in-progress or submitted work", ErrInvalidTransition, e.Status)
	}
	if err := s.Repo.SetDisputeReason(ctx, tx, engagementID, reason); err != nil {
		return err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementDisputed); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notifyApprovers(ctx, engagementID, uuid.Nil)
	return nil
}

// ResolveRefund closes a dispute in the client's favor: the escrow hold is
// reversed and the engagement marked refunded.
func (s *Service) ResolveRefund(ctx context.Context, engagementID, resolverID uuid.UUID, reason string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if e.Status != models.EngagementDisputed {
		return fmt.Errorf("%w: engagement is %s, only a disputed engagement can be refunded by a resolver", ErrInvalidTransition, e.Status)
	}
	esc, err := s.Ledger.CurrentForEngagement(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if err := s.Ledger.Refund(ctx, tx, esc.ID, reason); err != nil {
		return err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementRefunded); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.notifyParticipant(ctx, e.ClientID, notify.EventEscrowRefunded, map[string]any{
		"engagement_id": engagementID.String(),
		"reason":        reason,
	})
	return nil
}

// Cancel abandons an engagement before work begins. A held escrow is
// refunded in the same transaction.
func (s *Service) Cancel(ctx context.Context, engagementID, actorID uuid.UUID, reason string) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if actorID != e.ClientID && (e.ProviderID == nil || *e.ProviderID != actorID) {
		return fmt.Errorf("%w: only engagement participants cancel", ErrActorNotAllowed)
	}
	if !models.EngagementCanCancel(e.Status) {
		return fmt.Errorf("%w: engagement is %s, cancellation is only possible before work begins", ErrInvalidTransition, e.Status)
	}
	if esc, err := s.Ledger.CurrentForEngagement(ctx, tx, engagementID); err == nil {
		if esc.Status == models.EscrowHeld || esc.Status == models.EscrowApproved {
			if err := s.Ledger.Refund(ctx, tx, esc.ID, "engagement cancelled: "+reason); err != nil {
				return err
			}
		}
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementCancelled); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if e.ProviderID != nil && actorID == e.ClientID {
		s.notifyParticipant(ctx, *e.ProviderID, notify.EventEngagementCancelled, map[string]any{
			"engagement_id": engagementID.String(),
			"reason":        reason,
		})
	}
	return nil
}

// Close finalizes a released or refunded engagement. After closing, the
// engagement and everything it owns are read-only audit records.
func (s *Service) Close(ctx context.Context, engagementID uuid.UUID) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	e, err := s.Repo.GetForUpdate(ctx, tx, engagementID)
	if err != nil {
		return err
	}
	if !models.EngagementCanTransition(e.Status, models.EngagementClosed) {
		return fmt.Errorf("%w: engagement is %s, only released or refunded engagements close", ErrInvalidTransition, e.Status)
	}
	if err := s.Repo.UpdateStatus(ctx, tx, engagementID, models.EngagementClosed); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Engagement, error) {
	return s.Repo.Get(ctx, id)
}

func (s *Service) ListQuotes(ctx context.Context, engagementID uuid.UUID) ([]*models.Quote, error) {
	return s.Repo.ListQuotes(ctx, engagementID)
}

func (s *Service) ListForActor(ctx context.Context, actorID uuid.UUID, role string) ([]*models.Engagement, error) {
	if role == models.RoleProvider {
		return s.Repo.ListByProvider(ctx, actorID)
	}
	return s.Repo.ListByClient(ctx, actorID)
}

// notifyParticipant is fire-and-forget: delivery failure is logged and the
// committed transition stands.
func (s *Service) notifyParticipant(ctx context.Context, userID uuid.UUID, kind string, payload map[string]any) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(ctx, userID, kind, payload); err != nil {
		s.Log.Warn("notification failed", "user_id", userID, "event_kind", kind, "error", err)
	}
}

func (s *Service) notifyApprovers(ctx context.Context, engagementID, submissionID uuid.UUID) {
	if s.Notifier == nil || s.Approvers == nil {
		return
	}
	ids, err := s.Approvers.ListApproverIDs(ctx)
	if err != nil {
		s.Log.Warn("approver lookup failed", "engagement_id", engagementID, "error", err)
		return
	}
	payload := map[string]any{"engagement_id": engagementID.String()}
	kind := notify.EventDisputeOpened
	if submissionID != uuid.Nil {
		payload["submission_id"] = submissionID.String()
		kind = notify.EventWorkSubmitted
	}
	for _, id := range ids {
		s.notifyParticipant(ctx, id, kind, payload)
	}
}
