package payout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/taskvine/backend/internal/auth"
	"github.com/taskvine/backend/internal/models"
)

type RegisterRequest struct {
	AccountRef string `json:"account_ref"`
}

type AccountResponse struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id"`
	AccountRef string `json:"account_ref"`
	Verified   bool   `json:"verified"`
	Active     bool   `json:"active"`
}

type Handler struct {
	svc     Service
	authSvc auth.Service
	log     *slog.Logger
}

func NewHandler(svc Service, authSvc auth.Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, log: log}
}

// Register handles POST /api/v1/payout-accounts. Providers only.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != models.RoleProvider {
		http.Error(w, "only providers register payout accounts", http.StatusForbidden)
		return
	}
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.AccountRef == "" {
		http.Error(w, "account_ref is required", http.StatusBadRequest)
		return
	}
	acct, err := h.svc.Register(r.Context(), actorID, req.AccountRef)
	if err != nil {
		h.log.Error("register payout account failed", "error", err)
		http.Error(w, "register payout account failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(acct))
}

// Verify handles POST /api/v1/payout-accounts/{id}/verify. Approvers only;
// verification is an idempotent compliance action.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != models.RoleApprover {
		http.Error(w, "only payment approvers verify payout accounts", http.StatusForbidden)
		return
	}
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Verify(r.Context(), accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "payout account not found", http.StatusNotFound)
			return
		}
		h.log.Error("verify payout account failed", "error", err)
		http.Error(w, "verify payout account failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Deactivate handles POST /api/v1/payout-accounts/{id}/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	_, role, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != models.RoleProvider && role != models.RoleApprover {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	accountID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}
	if err := h.svc.Deactivate(r.Context(), accountID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "payout account not found", http.StatusNotFound)
			return
		}
		h.log.Error("deactivate payout account failed", "error", err)
		http.Error(w, "deactivate payout account failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMine handles GET /api/v1/payout-accounts/me.
func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	actorID, role, err := h.actorFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if role != models.RoleProvider {
		http.Error(w, "only providers have payout accounts", http.StatusForbidden)
		return
	}
	acct, err := h.svc.GetForProvider(r.Context(), actorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "no payout account registered", http.StatusNotFound)
			return
		}
		h.log.Error("get payout account failed", "error", err)
		http.Error(w, "get payout account failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(acct))
}

func (h *Handler) actorFromRequest(r *http.Request) (uuid.UUID, string, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, "", errors.New("missing bearer token")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toResponse(a *models.PayoutAccount) AccountResponse {
	return AccountResponse{
		ID:         a.ID.String(),
		ProviderID: a.ProviderID.String(),
		AccountRef: a.AccountRef,
		Verified:   a.Verified,
		Active:     a.Active,
	}
}
