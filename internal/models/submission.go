package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SubmissionSubmitted = "submitted"
	SubmissionAccepted  = "accepted"
	SubmissionRejected  = "rejected"
)

// EvidenceItem is a stored reference to an uploaded blob plus a caption.
// The engine never stores the blob itself.
type EvidenceItem struct {
	Ref         string `json:"ref"`
	Description string `json:"description"`
}

// WorkSubmission is one completion claim. A rejected submission stays on
// record; resubmission creates a new row.
type WorkSubmission struct {
	ID              uuid.UUID      `json:"id"`
	EngagementID    uuid.UUID      `json:"engagement_id"`
	EscrowPaymentID uuid.UUID      `json:"escrow_payment_id"`
	ProviderID      uuid.UUID      `json:"provider_id"`
	Summary         string         `json:"summary"`
	Evidence        []EvidenceItem `json:"evidence"`
	Status          string         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
}
