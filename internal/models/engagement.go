package models

import (
	"time"

	"github.com/google/uuid"
)

// Engagement lifecycle statuses. Transitions happen only through the
// engagement service; nothing outside it writes Status directly.
const (
	EngagementRequested       = "requested"
	EngagementQuoted          = "quoted"
	EngagementPriceAccepted   = "price_accepted"
	EngagementUnderReview     = "under_review"
	EngagementDetailsReleased = "details_released"
	EngagementInProgress      = "in_progress"
	EngagementWorkSubmitted   = "work_submitted"
	EngagementApproved        = "approved"
	EngagementDisputed        = "disputed"
	EngagementReleased        = "released"
	EngagementRefunded        = "refunded"
	EngagementClosed          = "closed"
	EngagementCancelled       = "cancelled"
)

// engagementNext enumerates the legal forward edges of the lifecycle.
var engagementNext = map[string][]string{
	EngagementRequested:       {EngagementQuoted},
	EngagementQuoted:          {EngagementQuoted, EngagementPriceAccepted},
	EngagementPriceAccepted:   {EngagementUnderReview},
	EngagementUnderReview:     {EngagementDetailsReleased},
	EngagementDetailsReleased: {EngagementInProgress},
	EngagementInProgress:      {EngagementWorkSubmitted, EngagementDisputed},
	EngagementWorkSubmitted:   {EngagementApproved, EngagementInProgress, EngagementDisputed},
	EngagementApproved:        {EngagementReleased},
	EngagementDisputed:        {EngagementApproved, EngagementReleased, EngagementRefunded},
	EngagementReleased:        {EngagementClosed},
	EngagementRefunded:        {EngagementClosed},
}

// EngagementCanTransition reports whether from -> to is a legal lifecycle edge.
func EngagementCanTransition(from, to string) bool {
	for _, next := range engagementNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EngagementCanCancel reports whether an engagement may still be cancelled.
// Cancellation is only allowed before work begins.
func EngagementCanCancel(status string) bool {
	switch status {
	case EngagementRequested, EngagementQuoted, EngagementPriceAccepted,
		EngagementUnderReview, EngagementDetailsReleased:
		return true
	}
	return false
}

// EngagementFinal reports whether the engagement can no longer change.
func EngagementFinal(status string) bool {
	return status == EngagementClosed || status == EngagementCancelled
}

type Engagement struct {
	ID               uuid.UUID  `json:"id"`
	ClientID         uuid.UUID  `json:"client_id"`
	ProviderID       *uuid.UUID `json:"provider_id,omitempty"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Status           string     `json:"status"`
	AgreedPriceCents *int64     `json:"agreed_price_cents,omitempty"`
	RejectionCount   int        `json:"rejection_count"`
	DisputeReason    *string    `json:"dispute_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	StatusChangedAt  time.Time  `json:"status_changed_at"`
}

// Quote statuses. Quotes are append-only: superseded and rejected quotes are
// kept for audit, never deleted.
const (
	QuoteStatusPending    = "pending"
	QuoteStatusAccepted   = "accepted"
	QuoteStatusSuperseded = "superseded"
	QuoteStatusRejected   = "rejected"
)

type Quote struct {
	ID             uuid.UUID `json:"id"`
	EngagementID   uuid.UUID `json:"engagement_id"`
	ProviderID     uuid.UUID `json:"provider_id"`
	PriceCents     int64     `json:"price_cents"`
	EstimatedHours int       `json:"estimated_hours"`
	Proposal       string    `json:"proposal"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
