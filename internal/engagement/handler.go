package engagement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/taskvine/backend/internal/approval"
	"github.com/taskvine/backend/internal/escrow"
	"github.com/taskvine/backend/internal/evidence"
	"github.com/taskvine/backend/internal/middleware"
	"github.com/taskvine/backend/internal/models"
	"github.com/taskvine/backend/internal/submission"
)

// Handler serves the engagement lifecycle endpoints. Routes are registered
// behind middleware.ActorAuth, so the actor is always in context.
type Handler struct {
	Svc      *Service
	Evidence evidence.Store
	Logger   *slog.Logger
}

func NewHandler(svc *Service, store evidence.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Svc: svc, Evidence: store, Logger: logger}
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type quoteRequest struct {
	PriceCents     int64  `json:"price_cents"`
	EstimatedHours int    `json:"estimated_hours"`
	Proposal       string `json:"proposal"`
}

type submitWorkRequest struct {
	Summary  string                `json:"summary"`
	Evidence []models.EvidenceItem `json:"evidence"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type payoutResponse struct {
	PayoutCents int64  `json:"payout_cents"`
	Status      string `json:"status"`
}

// Create handles POST /api/v1/engagements.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleClient {
		http.Error(w, `{"error":"only clients create engagements"}`, http.StatusForbidden)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}
	e, err := h.Svc.Create(r.Context(), actor.ID, req.Title, req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Get handles GET /api/v1/engagements/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	e, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// List handles GET /api/v1/engagements, scoped to the caller.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	list, err := h.Svc.ListForActor(r.Context(), actor.ID, actor.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// SubmitQuote handles POST /api/v1/engagements/{id}/quotes.
func (h *Handler) SubmitQuote(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProvider {
		http.Error(w, `{"error":"only providers submit quotes"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	q, err := h.Svc.SubmitQuote(r.Context(), id, actor.ID, req.PriceCents, req.EstimatedHours, req.Proposal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

// ListQuotes handles GET /api/v1/engagements/{id}/quotes.
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	quotes, err := h.Svc.ListQuotes(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quotes)
}

// AcceptPrice handles POST /api/v1/engagements/{id}/accept-price.
func (h *Handler) AcceptPrice(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.Svc.AcceptPrice)
}

// ApproveTaskReview handles POST /api/v1/engagements/{id}/approve-review.
func (h *Handler) ApproveTaskReview(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.Svc.ApproveTaskReview)
}

// ReleaseCustomerDetails handles POST /api/v1/engagements/{id}/release-details.
func (h *Handler) ReleaseCustomerDetails(w http.ResponseWriter, r *http.Request) {
	h.clientAction(w, r, h.Svc.ReleaseCustomerDetails)
}

// BeginWork handles POST /api/v1/engagements/{id}/begin-work.
func (h *Handler) BeginWork(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProvider {
		http.Error(w, `{"error":"only the assigned provider begins work"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.BeginWork(r.Context(), id, actor.ID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubmitWork handles POST /api/v1/engagements/{id}/submit-work.
func (h *Handler) SubmitWork(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProvider {
		http.Error(w, `{"error":"only the assigned provider submits work"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req submitWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	sub, err := h.Svc.SubmitWork(r.Context(), id, actor.ID, req.Evidence, req.Summary)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// UploadEvidence handles POST /api/v1/evidence. The blob goes to evidence
// storage; only the returned reference is ever persisted.
func (h *Handler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleProvider {
		http.Error(w, `{"error":"only providers upload evidence"}`, http.StatusForbidden)
		return
	}
	blob, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
	if err != nil {
		http.Error(w, `{"error":"body too large or unreadable"}`, http.StatusBadRequest)
		return
	}
	if len(blob) == 0 {
		http.Error(w, `{"error":"empty upload"}`, http.StatusBadRequest)
		return
	}
	ref, err := h.Evidence.Put(r.Context(), blob, r.Header.Get("Content-Type"))
	if err != nil {
		h.Logger.Error("evidence upload failed", "error", err)
		http.Error(w, `{"error":"evidence upload failed"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}

// ApproveWork handles POST /api/v1/engagements/{id}/approve-work.
func (h *Handler) ApproveWork(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleApprover {
		http.Error(w, `{"error":"only payment approvers approve work"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	payout, err := h.Svc.ApproveWork(r.Context(), id, actor.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{PayoutCents: payout, Status: models.EngagementReleased})
}

// RejectWork handles POST /api/v1/engagements/{id}/reject-work.
func (h *Handler) RejectWork(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleApprover {
		http.Error(w, `{"error":"only payment approvers reject work"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Svc.RejectWork(r.Context(), id, actor.ID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dispute handles POST /api/v1/engagements/{id}/dispute.
func (h *Handler) Dispute(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		http.Error(w, `{"error":"reason is required"}`, http.StatusBadRequest)
		return
	}
	if err := h.Svc.Dispute(r.Context(), id, actor.ID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveRefund handles POST /api/v1/engagements/{id}/resolve-refund.
func (h *Handler) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleApprover {
		http.Error(w, `{"error":"only payment approvers resolve disputes"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if err := h.Svc.ResolveRefund(r.Context(), id, actor.ID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Cancel handles POST /api/v1/engagements/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := h.Svc.Cancel(r.Context(), id, actor.ID, req.Reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close handles POST /api/v1/engagements/{id}/close.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Close(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) clientAction(w http.ResponseWriter, r *http.Request, action func(context.Context, uuid.UUID, uuid.UUID) error) {
	actor := middleware.ActorFromCtx(r.Context())
	if actor == nil || actor.Role != models.RoleClient {
		http.Error(w, `{"error":"only the client performs this step"}`, http.StatusForbidden)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := action(r.Context(), id, actor.ID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid engagement id"}`, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the engine's error taxonomy onto HTTP statuses. The
// message always carries the precise guard reason.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, submission.ErrEvidenceRequired),
		errors.Is(err, submission.ErrInvalidEvidence):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, ErrActorNotAllowed):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, escrow.ErrInvalidTransition),
		errors.Is(err, escrow.ErrApprovalRequired),
		errors.Is(err, approval.ErrOutOfOrderApproval):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, escrow.ErrPayoutAccountNotReady):
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": err.Error()})
	case errors.Is(err, escrow.ErrProcessor):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.Logger.Error("engagement operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
