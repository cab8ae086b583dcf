// Package processor defines the boundary contract with the hosted payment
// processor. All calls are network operations that may fail or time out; the
// escrow engine treats every failure as non-fatal to its own state and rolls
// back the surrounding transaction.
package processor

import "context"

// Hold is the processor's handle for funds held on a client's card.
type Hold struct {
	ProcessorRef string
	ClientSecret string
}

type Client interface {
	// CreateHold requests custody of totalCents from the client's payment
	// method. The returned ref identifies the hold in later calls.
	CreateHold(ctx context.Context, totalCents int64, currency string, metadata map[string]string) (Hold, error)
	// ConfirmHold finalizes a previously created hold.
	ConfirmHold(ctx context.Context, processorRef string) error
	// TransferPayout moves payoutCents to the provider's payout account.
	TransferPayout(ctx context.Context, payoutAccountRef string, payoutCents int64) error
	// ReverseHold returns held funds to the client.
	ReverseHold(ctx context.Context, processorRef string) error
}
