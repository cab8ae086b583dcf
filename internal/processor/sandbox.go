package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Sandbox is the development-mode processor. It keeps holds in memory and
// never moves real money; swap in a live client for production.
type Sandbox struct {
	mu    sync.Mutex
	holds map[string]int64
	log   *slog.Logger
}

func NewSandbox(log *slog.Logger) *Sandbox {
	if log == nil {
		log = slog.Default()
	}
	return &Sandbox{holds: make(map[string]int64), log: log}
}

var _ Client = (*Sandbox)(nil)

func (s *Sandbox) CreateHold(_ context.Context, totalCents int64, currency string, metadata map[string]string) (Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "hold_" + uuid.NewString()
	s.holds[ref] = totalCents
	s.log.Info("sandbox hold created", "ref", ref, "total_cents", totalCents, "currency", currency, "metadata", metadata)
	return Hold{ProcessorRef: ref, ClientSecret: ref + "_secret"}, nil
}

func (s *Sandbox) ConfirmHold(_ context.Context, processorRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[processorRef]; !ok {
		return fmt.Errorf("unknown hold %s", processorRef)
	}
	s.log.Info("sandbox hold confirmed", "ref", processorRef)
	return nil
}

func (s *Sandbox) TransferPayout(_ context.Context, payoutAccountRef string, payoutCents int64) error {
	s.log.Info("sandbox payout transferred", "account_ref", payoutAccountRef, "payout_cents", payoutCents)
	return nil
}

func (s *Sandbox) ReverseHold(_ context.Context, processorRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[processorRef]; !ok {
		return fmt.Errorf("unknown hold %s", processorRef)
	}
	delete(s.holds, processorRef)
	s.log.Info("sandbox hold reversed", "ref", processorRef)
	return nil
}
