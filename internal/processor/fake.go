package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Fake is a deterministic in-memory processor double. Tests script failures
// by setting the Fail* fields; every call is recorded.
type Fake struct {
	mu sync.Mutex

	FailCreateHold bool
	FailConfirm    bool
	FailTransfer   bool
	FailReverse    bool

	seq       int
	holds     map[string]int64 // ref -> held cents
	confirmed map[string]bool
	reversed  map[string]bool

	Transfers []FakeTransfer
}

type FakeTransfer struct {
	AccountRef  string
	PayoutCents int64
}

var errFakeDown = errors.New("processor unavailable")

func NewFake() *Fake {
	return &Fake{
		holds:     make(map[string]int64),
		confirmed: make(map[string]bool),
		reversed:  make(map[string]bool),
	}
}

var _ Client = (*Fake)(nil)

func (f *Fake) CreateHold(_ context.Context, totalCents int64, _ string, _ map[string]string) (Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateHold {
		return Hold{}, errFakeDown
	}
	f.seq++
	ref := fmt.Sprintf("hold_%d", f.seq)
	f.holds[ref] = totalCents
	return Hold{ProcessorRef: ref, ClientSecret: ref + "_secret"}, nil
}

func (f *Fake) ConfirmHold(_ context.Context, processorRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailConfirm {
		return errFakeDown
	}
	if _, ok := f.holds[processorRef]; !ok {
		return fmt.Errorf("unknown hold %s", processorRef)
	}
	f.confirmed[processorRef] = true
	return nil
}

func (f *Fake) TransferPayout(_ context.Context, payoutAccountRef string, payoutCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailTransfer {
		return errFakeDown
	}
	f.Transfers = append(f.Transfers, FakeTransfer{AccountRef: payoutAccountRef, PayoutCents: payoutCents})
	return nil
}

func (f *Fake) ReverseHold(_ context.Context, processorRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailReverse {
		return errFakeDown
	}
	if _, ok := f.holds[processorRef]; !ok {
		return fmt.Errorf("unknown hold %s", processorRef)
	}
	f.reversed[processorRef] = true
	return nil
}

// TransferCount returns how many payout transfers have been made.
func (f *Fake) TransferCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Transfers)
}

// Reversed reports whether the given hold was reversed.
func (f *Fake) Reversed(processorRef string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reversed[processorRef]
}
