package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowPayment statuses. Forward-only: pending -> held -> approved ->
// released, with refunded reachable from held or approved. A released
// escrow never moves again.
const (
	EscrowPending  = "pending"
	EscrowHeld     = "held"
	EscrowApproved = "approved"
	EscrowReleased = "released"
	EscrowRefunded = "refunded"
)

var escrowNext = map[string][]string{
	EscrowPending:  {EscrowHeld},
	EscrowHeld:     {EscrowApproved, EscrowRefunded},
	EscrowApproved: {EscrowReleased, EscrowRefunded},
}

// EscrowCanTransition reports whether from -> to is a legal status edge.
func EscrowCanTransition(from, to string) bool {
	for _, next := range escrowNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EscrowPayment is the money-custody record for one engagement. Amounts are
// minor currency units. Invariants:
//
//	TotalCents  = AmountCents + PlatformFeeCents + TaxCents
//	PayoutCents = AmountCents - PlatformFeeCents
//
// The platform fee comes out of the base price; tax is a pass-through to the
// processor and is never paid to the provider. Records are append-only per
// engagement: a refunded escrow may be superseded by a new one but is kept
// for audit.
type EscrowPayment struct {
	ID               uuid.UUID  `json:"id"`
	EngagementID     uuid.UUID  `json:"engagement_id"`
	ClientID         uuid.UUID  `json:"client_id"`
	ProviderID       uuid.UUID  `json:"provider_id"`
	AmountCents      int64      `json:"amount_cents"`
	PlatformFeeCents int64      `json:"platform_fee_cents"`
	TaxCents         int64      `json:"tax_cents"`
	TotalCents       int64      `json:"total_cents"`
	PayoutCents      int64      `json:"payout_cents"`
	Status           string     `json:"status"`
	ProcessorRef     string     `json:"processor_ref,omitempty"`
	ApprovedBy       *uuid.UUID `json:"approved_by,omitempty"`
	RefundReason     *string    `json:"refund_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
