package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type stubValidator struct {
	id   uuid.UUID
	role string
	err  error
}

func (s *stubValidator) ValidateToken(context.Context, string) (uuid.UUID, string, error) {
	return s.id, s.role, s.err
}

func TestActorAuth(t *testing.T) {
	id := uuid.New()
	validator := &stubValidator{id: id, role: "client"}

	var seen *Actor
	h := ActorAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ActorFromCtx(r.Context())
	}))

	// Missing header.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no header: got %d, want 401", rec.Code)
	}

	// Wrong scheme.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("basic auth: got %d, want 401", rec.Code)
	}

	// Invalid token.
	validator.err = errors.New("expired")
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: got %d, want 401", rec.Code)
	}

	// Valid token puts the actor in context.
	validator.err = nil
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != id || seen.Role != "client" {
		t.Errorf("actor in context: got %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	// No actor in context.
	rec := httptest.NewRecorder()
	RequireRole("approver")(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no actor: got %d, want 401", rec.Code)
	}

	withActor := func(role string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), ctxActorKey, &Actor{ID: uuid.New(), Role: role})
		return req.WithContext(ctx)
	}

	rec = httptest.NewRecorder()
	RequireRole("approver")(next).ServeHTTP(rec, withActor("client"))
	if rec.Code != http.StatusForbidden {
		t.Errorf("wrong role: got %d, want 403", rec.Code)
	}

	rec = httptest.NewRecorder()
	RequireRole("client", "provider")(next).ServeHTTP(rec, withActor("provider"))
	if rec.Code != http.StatusOK {
		t.Errorf("allowed role: got %d, want 200", rec.Code)
	}
}
