package submission

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/taskvine/backend/internal/models"
)

type mockRepo struct {
	mu   sync.Mutex
	subs []*models.WorkSubmission
}

func (m *mockRepo) Create(_ context.Context, _ pgx.Tx, s *models.WorkSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *mockRepo) SetStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.ID == id {
			s.Status = status
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *mockRepo) LatestByEngagement(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.subs) - 1; i >= 0; i-- {
		if m.subs[i].EngagementID == engagementID {
			cp := *m.subs[i]
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func TestValidate(t *testing.T) {
	if err := Validate(nil, "summary"); !errors.Is(err, ErrEvidenceRequired) {
		t.Errorf("no evidence: got %v, want ErrEvidenceRequired", err)
	}
	bad := []models.EvidenceItem{
		{Ref: "evidence://ok", Description: "before"},
		{Ref: "", Description: "after"},
	}
	if err := Validate(bad, "summary"); !errors.Is(err, ErrInvalidEvidence) {
		t.Errorf("empty ref: got %v, want ErrInvalidEvidence", err)
	}
	good := []models.EvidenceItem{{Ref: "evidence://ok"}}
	if err := Validate(good, ""); err != nil {
		t.Errorf("valid evidence: %v", err)
	}
}

func TestCreateRejectsInvalidBeforeWriting(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), nil, uuid.New(), uuid.New(), uuid.New(), nil, "no proof")
	if !errors.Is(err, ErrEvidenceRequired) {
		t.Fatalf("Create without evidence: got %v, want ErrEvidenceRequired", err)
	}
	if len(repo.subs) != 0 {
		t.Error("invalid submission must leave no record")
	}
}

func TestResubmissionAppendsNewRecord(t *testing.T) {
	repo := &mockRepo{}
	svc := NewService(repo)
	ctx := context.Background()
	engID := uuid.New()
	evidence := []models.EvidenceItem{{Ref: "evidence://1", Description: "proof"}}

	first, err := svc.Create(ctx, nil, engID, uuid.New(), uuid.New(), evidence, "round one")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != models.SubmissionSubmitted {
		t.Errorf("status: got %s, want submitted", first.Status)
	}

	if err := svc.MarkRejected(ctx, nil, first.ID); err != nil {
		t.Fatalf("MarkRejected: %v", err)
	}

	second, err := svc.Create(ctx, nil, engID, uuid.New(), uuid.New(), evidence, "round two")
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	// The rejected claim stays on record; Latest points at the new one.
	if len(repo.subs) != 2 {
		t.Fatalf("records: got %d, want 2", len(repo.subs))
	}
	latest, err := svc.Latest(ctx, nil, engID)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != second.ID {
		t.Errorf("latest: got %s, want %s", latest.ID, second.ID)
	}

	if err := svc.MarkAccepted(ctx, nil, second.ID); err != nil {
		t.Fatalf("MarkAccepted: %v", err)
	}
	if repo.subs[0].Status != models.SubmissionRejected || repo.subs[1].Status != models.SubmissionAccepted {
		t.Errorf("statuses: got %s and %s, want rejected and accepted", repo.subs[0].Status, repo.subs[1].Status)
	}
}
