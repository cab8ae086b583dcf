package engagement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/taskvine/backend/internal/approval"
	"github.com/taskvine/backend/internal/escrow"
	"github.com/taskvine/backend/internal/models"
	"github.com/taskvine/backend/internal/processor"
	"github.com/taskvine/backend/internal/submission"
)

// ---------------------------------------------------------------------------
// In-memory transaction machinery. memDB serializes transactions with a
// mutex the way row locks serialize them in Postgres: Begin blocks until the
// previous transaction commits or rolls back, so concurrent lifecycle calls
// against the same world resolve to exactly one winner.
// ---------------------------------------------------------------------------

type memDB struct {
	mu sync.Mutex
}

func (db *memDB) Begin(context.Context) (pgx.Tx, error) {
	db.mu.Lock()
	tx := &memTx{}
	tx.release = func() { db.mu.Unlock() }
	return tx, nil
}

type memTx struct {
	once    sync.Once
	release func()
}

func (t *memTx) done() { t.once.Do(t.release) }

func (t *memTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(context.Context) error          { t.done(); return nil }
func (t *memTx) Rollback(context.Context) error        { t.done(); return nil }
func (t *memTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *memTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *memTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *memTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *memTx) Conn() *pgx.Conn                                         { return nil }

// ---------------------------------------------------------------------------
// In-memory repositories.
// ---------------------------------------------------------------------------

type memEngRepo struct {
	mu          sync.Mutex
	engagements map[uuid.UUID]*models.Engagement
	quotes      []*models.Quote
}

func newMemEngRepo() *memEngRepo {
	return &memEngRepo{engagements: make(map[uuid.UUID]*models.Engagement)}
}

func (m *memEngRepo) Create(_ context.Context, _ pgx.Tx, e *models.Engagement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.engagements[e.ID] = &cp
	return nil
}

func (m *memEngRepo) Get(_ context.Context, id uuid.UUID) (*models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyOf(id)
}

func (m *memEngRepo) GetForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Engagement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyOf(id)
}

func (m *memEngRepo) copyOf(id uuid.UUID) (*models.Engagement, error) {
	e, ok := m.engagements[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEngRepo) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.engagements[id]
	if !ok {
		return models.ErrNotFound
	}
	e.Status = status
	return nil
}

func (m *memEngRepo) SetProvider(_ context.Context, _ pgx.Tx, id, providerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[id].ProviderID = &providerID
	return nil
}

func (m *memEngRepo) SetAgreedPrice(_ context.Context, _ pgx.Tx, id uuid.UUID, priceCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[id].AgreedPriceCents = &priceCents
	return nil
}

func (m *memEngRepo) SetDisputeReason(_ context.Context, _ pgx.Tx, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[id].DisputeReason = &reason
	return nil
}

func (m *memEngRepo) IncRejectionCount(_ context.Context, _ pgx.Tx, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[id].RejectionCount++
	return m.engagements[id].RejectionCount, nil
}

func (m *memEngRepo) CreateQuote(_ context.Context, _ pgx.Tx, q *models.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.quotes = append(m.quotes, &cp)
	return nil
}

func (m *memEngRepo) SupersedePendingQuotes(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.quotes {
		if q.EngagementID == engagementID && q.Status == models.QuoteStatusPending {
			q.Status = models.QuoteStatusSuperseded
		}
	}
	return nil
}

func (m *memEngRepo) AcceptLatestQuote(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.quotes) - 1; i >= 0; i-- {
		q := m.quotes[i]
		if q.EngagementID == engagementID && q.Status == models.QuoteStatusPending {
			q.Status = models.QuoteStatusAccepted
			cp := *q
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memEngRepo) ListQuotes(_ context.Context, engagementID uuid.UUID) ([]*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Quote
	for _, q := range m.quotes {
		if q.EngagementID == engagementID {
			cp := *q
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memEngRepo) ListByClient(_ context.Context, clientID uuid.UUID) ([]*models.Engagement, error) {
	return m.listWhere(func(e *models.Engagement) bool { return e.ClientID == clientID }), nil
}

func (m *memEngRepo) ListByProvider(_ context.Context, providerID uuid.UUID) ([]*models.Engagement, error) {
	return m.listWhere(func(e *models.Engagement) bool {
		return e.ProviderID != nil && *e.ProviderID == providerID
	}), nil
}

func (m *memEngRepo) listWhere(keep func(*models.Engagement) bool) []*models.Engagement {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Engagement
	for _, e := range m.engagements {
		if keep(e) {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// ---

type memEscrowRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.EscrowPayment
}

func newMemEscrowRepo() *memEscrowRepo {
	return &memEscrowRepo{payments: make(map[uuid.UUID]*models.EscrowPayment)}
}

func (m *memEscrowRepo) Create(_ context.Context, _ pgx.Tx, p *models.EscrowPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memEscrowRepo) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.EscrowPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memEscrowRepo) CurrentByEngagement(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) (*models.EscrowPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.EngagementID == engagementID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memEscrowRepo) UpdateStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status, processorRef string, approvedBy *uuid.UUID, refundReason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return models.ErrNotFound
	}
	p.Status = status
	p.ProcessorRef = processorRef
	p.ApprovedBy = approvedBy
	p.RefundReason = refundReason
	return nil
}

// ---

type memGateRepo struct {
	mu    sync.Mutex
	gates map[uuid.UUID][]models.ApprovalGate
}

func newMemGateRepo() *memGateRepo {
	return &memGateRepo{gates: make(map[uuid.UUID][]models.ApprovalGate)}
}

func (m *memGateRepo) InitGates(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, gate := range models.GateOrder {
		m.gates[engagementID] = append(m.gates[engagementID], models.ApprovalGate{
			EngagementID: engagementID,
			Gate:         gate,
			State:        models.GateStatePending,
		})
	}
	return nil
}

func (m *memGateRepo) ListForUpdate(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) ([]models.ApprovalGate, error) {
	return m.list(engagementID), nil
}

func (m *memGateRepo) List(_ context.Context, engagementID uuid.UUID) ([]models.ApprovalGate, error) {
	return m.list(engagementID), nil
}

func (m *memGateRepo) list(engagementID uuid.UUID) []models.ApprovalGate {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ApprovalGate, len(m.gates[engagementID]))
	copy(out, m.gates[engagementID])
	return out
}

func (m *memGateRepo) ClearGate(_ context.Context, _ pgx.Tx, engagementID uuid.UUID, gate string, actorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, g := range m.gates[engagementID] {
		if g.Gate == gate && g.State == models.GateStatePending {
			m.gates[engagementID][i].State = models.GateStateCleared
			m.gates[engagementID][i].ClearedBy = &actorID
			return nil
		}
	}
	return models.ErrNotFound
}

// ---

type memSubRepo struct {
	mu   sync.Mutex
	subs []*models.WorkSubmission
}

func (m *memSubRepo) Create(_ context.Context, _ pgx.Tx, s *models.WorkSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs = append(m.subs, &cp)
	return nil
}

func (m *memSubRepo) SetStatus(_ context.Context, _ pgx.Tx, id uuid.UUID, status string) error {
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

func (m *memSubRepo) LatestByEngagement(_ context.Context, _ pgx.Tx, engagementID uuid.UUID) (*models.WorkSubmission, error) {
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

// ---

type payoutDir struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.PayoutAccount
}

func (d *payoutDir) GetForProvider(_ context.Context, providerID uuid.UUID) (*models.PayoutAccount, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.accounts[providerID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (d *payoutDir) registerVerified(providerID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[providerID] = &models.PayoutAccount{
		ID:         uuid.New(),
		ProviderID: providerID,
		AccountRef: "acct_test",
		Verified:   true,
		Active:     true,
	}
}

type approverList []uuid.UUID

func (a approverList) ListApproverIDs(context.Context) ([]uuid.UUID, error) { return a, nil }

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recNotifier) Notify(_ context.Context, _ uuid.UUID, eventKind string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventKind)
	return nil
}

func (n *recNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == kind {
			c++
		}
	}
	return c
}

// ---------------------------------------------------------------------------
// World setup: the real escrow, approval, and submission services wired over
// the in-memory stores, driven by the real engagement state machine.
// ---------------------------------------------------------------------------

type world struct {
	svc      *Service
	eng      *memEngRepo
	esc      *memEscrowRepo
	payouts  *payoutDir
	proc     *processor.Fake
	notifier *recNotifier
	approver uuid.UUID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	eng := newMemEngRepo()
	escRepo := newMemEscrowRepo()
	payouts := &payoutDir{accounts: make(map[uuid.UUID]*models.PayoutAccount)}
	proc := processor.NewFake()
	notifier := &recNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	approvalSvc := approval.NewService(newMemGateRepo(), eng, notifier, log)
	escrowSvc := escrow.NewService(escRepo, proc, approvalSvc, payouts, escrow.FeePolicy{
		PlatformFeeBPS: 1500,
		TaxBPS:         800,
		Currency:       "usd",
	})
	subSvc := submission.NewService(&memSubRepo{})

	approver := uuid.New()
	svc := NewService(&memDB{}, eng, escrowSvc, approvalSvc, subSvc,
		approverList{approver}, notifier, 2, log)

	return &world{
		svc:      svc,
		eng:      eng,
		esc:      escRepo,
		payouts:  payouts,
		proc:     proc,
		notifier: notifier,
		approver: approver,
	}
}

func (w *world) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	e, err := w.eng.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get engagement: %v", err)
	}
	return e.Status
}

func (w *world) escrowFor(t *testing.T, id uuid.UUID) *models.EscrowPayment {
	t.Helper()
	p, err := w.esc.CurrentByEngagement(context.Background(), nil, id)
	if err != nil {
		t.Fatalf("get escrow: %v", err)
	}
	return p
}

func testEvidence() []models.EvidenceItem {
	return []models.EvidenceItem{{Ref: "evidence://photo-1", Description: "finished lawn"}}
}

// advanceToInProgress drives a fresh engagement through quoting, the gate
// sequence, and work start.
func advanceToInProgress(t *testing.T, w *world) (engID, clientID, providerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	clientID = uuid.New()
	providerID = uuid.New()

	e, err := w.svc.Create(ctx, clientID, "Mow the lawn", "Front and back yard")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	engID = e.ID

	if _, err := w.svc.SubmitQuote(ctx, engID, providerID, 10000, 3, "Two afternoons"); err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}
	if err := w.svc.AcceptPrice(ctx, engID, clientID); err != nil {
		t.Fatalf("AcceptPrice: %v", err)
	}
	if err := w.svc.ApproveTaskReview(ctx, engID, clientID); err != nil {
		t.Fatalf("ApproveTaskReview: %v", err)
	}
	if err := w.svc.ReleaseCustomerDetails(ctx, engID, clientID); err != nil {
		t.Fatalf("ReleaseCustomerDetails: %v", err)
	}
	if err := w.svc.BeginWork(ctx, engID, providerID); err != nil {
		t.Fatalf("BeginWork: %v", err)
	}
	return engID, clientID, providerID
}

func advanceToSubmitted(t *testing.T, w *world) (engID, clientID, providerID uuid.UUID) {
	t.Helper()
	engID, clientID, providerID = advanceToInProgress(t, w)
	if _, err := w.svc.SubmitWork(context.Background(), engID, providerID, testEvidence(), "done"); err != nil {
		t.Fatalf("SubmitWork: %v", err)
	}
	return engID, clientID, providerID
}

// ---------------------------------------------------------------------------
// 1. Happy path
// ---------------------------------------------------------------------------

func TestFullLifecycle(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	engID, _, providerID := advanceToSubmitted(t, w)
	w.payouts.registerVerified(providerID)

	// Escrow held the full client total: 10000 + 1500 fee + 800 tax.
	esc := w.escrowFor(t, engID)
	if esc.Status != models.EscrowHeld {
		t.Fatalf("escrow status: got %s, want held", esc.Status)
	}
	if esc.TotalCents != 12300 || esc.PayoutCents != 8500 {
		t.Errorf("escrow amounts: total %d payout %d, want 12300 and 8500", esc.TotalCents, esc.PayoutCents)
	}

	payout, err := w.svc.ApproveWork(ctx, engID, w.approver)
	if err != nil {
		t.Fatalf("ApproveWork: %v", err)
	}
	if payout != 8500 {
		t.Errorf("payout: got %d, want 8500", payout)
	}
	if got := w.status(t, engID); got != models.EngagementReleased {
		t.Errorf("engagement status: got %s, want released", got)
	}
	if got := w.escrowFor(t, engID).Status; got != models.EscrowReleased {
		t.Errorf("escrow status: got %s, want released", got)
	}
	if n := w.proc.TransferCount(); n != 1 {
		t.Errorf("transfers: got %d, want 1", n)
	}

	if err := w.svc.Close(ctx, engID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := w.status(t, engID); got != models.EngagementClosed {
		t.Errorf("engagement status: got %s, want closed", got)
	}

	// The provider heard about details release and the approval.
	if w.notifier.count("details_released") != 1 {
		t.Error("expected one details_released notification")
	}
	if w.notifier.count("work_submitted") != 1 {
		t.Error("expected one work_submitted notification to the approver")
	}
	if w.notifier.count("work_approved") != 1 {
		t.Error("expected one work_approved notification")
	}
}

// ---------------------------------------------------------------------------
// 2. Gate and status guards
// ---------------------------------------------------------------------------

func TestGateStepsCannotSkip(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	clientID := uuid.New()
	e, err := w.svc.Create(ctx, clientID, "Fix the fence", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// No quote yet: nothing to accept, nothing to review.
	if err := w.svc.AcceptPrice(ctx, e.ID, clientID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("AcceptPrice before quote: got %v, want ErrInvalidTransition", err)
	}
	if err := w.svc.ApproveTaskReview(ctx, e.ID, clientID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ApproveTaskReview before price: got %v, want ErrInvalidTransition", err)
	}

	if _, err := w.svc.SubmitQuote(ctx, e.ID, uuid.New(), 5000, 2, ""); err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}

	// Skipping the price gate is still blocked.
	if err := w.svc.ReleaseCustomerDetails(ctx, e.ID, clientID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("ReleaseCustomerDetails early: got %v, want ErrInvalidTransition", err)
	}
}

func TestOnlyClientClearsGates(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	clientID := uuid.New()
	providerID := uuid.New()
	e, _ := w.svc.Create(ctx, clientID, "Paint the shed", "")
	if _, err := w.svc.SubmitQuote(ctx, e.ID, providerID, 8000, 4, ""); err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}
	if err := w.svc.AcceptPrice(ctx, e.ID, providerID); !errors.Is(err, ErrActorNotAllowed) {
		t.Errorf("provider accepting price: got %v, want ErrActorNotAllowed", err)
	}
}

func TestQuoteSupersede(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	clientID := uuid.New()
	providerID := uuid.New()
	e, _ := w.svc.Create(ctx, clientID, "Clean gutters", "")

	if _, err := w.svc.SubmitQuote(ctx, e.ID, providerID, 4000, 2, "first pass"); err != nil {
		t.Fatalf("first SubmitQuote: %v", err)
	}
	if _, err := w.svc.SubmitQuote(ctx, e.ID, providerID, 6000, 3, "saw the roof"); err != nil {
		t.Fatalf("second SubmitQuote: %v", err)
	}
	if err := w.svc.AcceptPrice(ctx, e.ID, clientID); err != nil {
		t.Fatalf("AcceptPrice: %v", err)
	}

	eng, _ := w.eng.Get(ctx, e.ID)
	if eng.AgreedPriceCents == nil || *eng.AgreedPriceCents != 6000 {
		t.Errorf("agreed price: got %v, want 6000", eng.AgreedPriceCents)
	}
	quotes, _ := w.eng.ListQuotes(ctx, e.ID)
	var superseded, accepted int
	for _, q := range quotes {
		switch q.Status {
		case models.QuoteStatusSuperseded:
			superseded++
		case models.QuoteStatusAccepted:
			accepted++
		}
	}
	if superseded != 1 || accepted != 1 {
		t.Errorf("quote statuses: %d superseded, %d accepted; want 1 and 1", superseded, accepted)
	}
}

func TestSubmitWorkRequiresEvidence(t *testing.T) {
	w := newWorld(t)
	engID, _, providerID := advanceToInProgress(t, w)

	if _, err := w.svc.SubmitWork(context.Background(), engID, providerID, nil, "trust me"); !errors.Is(err, submission.ErrEvidenceRequired) {
		t.Fatalf("SubmitWork without evidence: got %v, want ErrEvidenceRequired", err)
	}
	if got := w.status(t, engID); got != models.EngagementInProgress {
		t.Errorf("engagement status: got %s, want in_progress", got)
	}
}

// ---------------------------------------------------------------------------
// 3. Blocked release and retry
// ---------------------------------------------------------------------------

func TestApproveWorkBlockedByPayoutAccount(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	engID, _, providerID := advanceToSubmitted(t, w)

	// No payout account registered: the approval commits, the release does
	// not.
	if _, err := w.svc.ApproveWork(ctx, engID, w.approver); !errors.Is(err, escrow.ErrPayoutAccountNotReady) {
		t.Fatalf("ApproveWork: got %v, want ErrPayoutAccountNotReady", err)
	}
	if got := w.status(t, engID); got != models.EngagementApproved {
		t.Errorf("engagement status: got %s, want approved", got)
	}
	if got := w.escrowFor(t, engID).Status; got != models.EscrowApproved {
		t.Errorf("escrow status: got %s, want approved", got)
	}
	if n := w.proc.TransferCount(); n != 0 {
		t.Errorf("transfers: got %d, want 0", n)
	}

	// Provider fixes their account; the retry releases exactly once.
	w.payouts.registerVerified(providerID)
	payout, err := w.svc.ApproveWork(ctx, engID, w.approver)
	if err != nil {
		t.Fatalf("retry ApproveWork: %v", err)
	}
	if payout != 8500 {
		t.Errorf("payout: got %d, want 8500", payout)
	}
	if got := w.status(t, engID); got != models.EngagementReleased {
		t.Errorf("engagement status: got %s, want released", got)
	}
	if n := w.proc.TransferCount(); n != 1 {
		t.Errorf("transfers: got %d, want 1", n)
	}
}

// ---------------------------------------------------------------------------
// 4. Rejection, retry cap, dispute, refund
// ---------------------------------------------------------------------------

func TestRejectionRetryCap(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	engID, _, providerID := advanceToSubmitted(t, w)

	// Two rejections stay within the cap: each returns to in_progress.
	for i := 0; i < 2; i++ {
		if err := w.svc.RejectWork(ctx, engID, w.approver, "not finished"); err != nil {
			t.Fatalf("RejectWork %d: %v", i+1, err)
		}
		if got := w.status(t, engID); got != models.EngagementInProgress {
			t.Fatalf("status after rejection %d: got %s, want in_progress", i+1, got)
		}
		if _, err := w.svc.SubmitWork(ctx, engID, providerID, testEvidence(), "fixed"); err != nil {
			t.Fatalf("resubmit %d: %v", i+1, err)
		}
	}

	// Third rejection exhausts the cap and forces a dispute.
	if err := w.svc.RejectWork(ctx, engID, w.approver, "still wrong"); err != nil {
		t.Fatalf("third RejectWork: %v", err)
	}
	if got := w.status(t, engID); got != models.EngagementDisputed {
		t.Fatalf("status after cap: got %s, want disputed", got)
	}
	eng, _ := w.eng.Get(ctx, engID)
	if eng.DisputeReason == nil {
		t.Error("dispute reason should be recorded")
	}
	if eng.RejectionCount != 3 {
		t.Errorf("rejection count: got %d, want 3", eng.RejectionCount)
	}
}

func TestResolveRefundClosesDispute(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	engID, clientID, _ := advanceToSubmitted(t, w)

	if err := w.svc.Dispute(ctx, engID, clientID, "work never happened"); err != nil {
		t.Fatalf("Dispute: %v", err)
	}
	if got := w.status(t, engID); got != models.EngagementDisputed {
		t.Fatalf("status: got %s, want disputed", got)
	}

	if err := w.svc.ResolveRefund(ctx, engID, w.approver, "resolved for client"); err != nil {
		t.Fatalf("ResolveRefund: %v", err)
	}
	if got := w.status(t, engID); got != models.EngagementRefunded {
		t.Errorf("status: got %s, want refunded", got)
	}
	esc := w.escrowFor(t, engID)
	if esc.Status != models.EscrowRefunded {
		t.Errorf("escrow status: got %s, want refunded", esc.Status)
	}
	if !w.proc.Reversed(esc.ProcessorRef) {
		t.Error("processor hold should have been reversed")
	}
	if n := w.proc.TransferCount(); n != 0 {
		t.Errorf("transfers: got %d, want 0", n)
	}
}

func TestDisputeOnlyForParticipants(t *testing.T) {
	w := newWorld(t)
	engID, _, _ := advanceToInProgress(t, w)

	if err := w.svc.Dispute(context.Background(), engID, uuid.New(), "drive-by"); !errors.Is(err, ErrActorNotAllowed) {
		t.Fatalf("stranger dispute: got %v, want ErrActorNotAllowed", err)
	}
}

func TestCancelRefundsHeldEscrow(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	clientID := uuid.New()
	providerID := uuid.New()
	e, _ := w.svc.Create(ctx, clientID, "Assemble furniture", "")
	if _, err := w.svc.SubmitQuote(ctx, e.ID, providerID, 10000, 2, ""); err != nil {
		t.Fatalf("SubmitQuote: %v", err)
	}
	if err := w.svc.AcceptPrice(ctx, e.ID, clientID); err != nil {
		t.Fatalf("AcceptPrice: %v", err)
	}

	if err := w.svc.Cancel(ctx, e.ID, clientID, "changed my mind"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := w.status(t, e.ID); got != models.EngagementCancelled {
		t.Errorf("status: got %s, want cancelled", got)
	}
	if got := w.escrowFor(t, e.ID).Status; got != models.EscrowRefunded {
		t.Errorf("escrow status: got %s, want refunded", got)
	}
}

func TestCancelBlockedOnceWorkBegins(t *testing.T) {
	w := newWorld(t)
	engID, clientID, _ := advanceToInProgress(t, w)

	if err := w.svc.Cancel(context.Background(), engID, clientID, "too late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Cancel in progress: got %v, want ErrInvalidTransition", err)
	}
}

// ---------------------------------------------------------------------------
// 5. Concurrency: a disputed engagement resolved by two approvers at once
//    must pay out or refund, never both.
// ---------------------------------------------------------------------------

func TestConcurrentApproveAndRefund(t *testing.T) {
	for i := 0; i < 20; i++ {
		w := newWorld(t)
		ctx := context.Background()
		engID, clientID, providerID := advanceToSubmitted(t, w)
		w.payouts.registerVerified(providerID)
		if err := w.svc.Dispute(ctx, engID, clientID, "contested"); err != nil {
			t.Fatalf("Dispute: %v", err)
		}

		var g errgroup.Group
		results := make([]error, 2)
		g.Go(func() error {
			_, err := w.svc.ApproveWork(ctx, engID, w.approver)
			results[0] = err
			return nil
		})
		g.Go(func() error {
			results[1] = w.svc.ResolveRefund(ctx, engID, w.approver, "contested")
			return nil
		})
		_ = g.Wait()

		var wins int
		for _, err := range results {
			if err == nil {
				wins++
			} else if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, escrow.ErrInvalidTransition) {
				t.Fatalf("loser error: got %v, want an invalid-transition error", err)
			}
		}
		if wins != 1 {
			t.Fatalf("winners: got %d, want exactly 1", wins)
		}

		status := w.status(t, engID)
		escStatus := w.escrowFor(t, engID).Status
		transfers := w.proc.TransferCount()
		switch {
		case results[0] == nil:
			if status != models.EngagementReleased || escStatus != models.EscrowReleased || transfers != 1 {
				t.Fatalf("approve won but state is %s/%s with %d transfers", status, escStatus, transfers)
			}
		case results[1] == nil:
			if status != models.EngagementRefunded || escStatus != models.EscrowRefunded || transfers != 0 {
				t.Fatalf("refund won but state is %s/%s with %d transfers", status, escStatus, transfers)
			}
		}
	}
}
