// Package notify delivers user-facing events. Delivery is fire-and-forget:
// a failed notification never blocks or reverses a state transition.
package notify

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Event kinds emitted by the engagement engine.
const (
	EventDetailsReleased     = "details_released"
	EventWorkSubmitted       = "work_submitted"
	EventWorkApproved        = "work_approved"
	EventWorkRejected        = "work_rejected"
	EventDisputeOpened       = "dispute_opened"
	EventEscrowRefunded      = "escrow_refunded"
	EventEngagementCancelled = "engagement_cancelled"
)

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventKind string, payload map[string]any) error
}

// InsertJobFunc enqueues a delivery job. Provided by main as a closure over
// river.Client.Insert so this package stays free of the driver wiring.
type InsertJobFunc func(ctx context.Context, args DeliverJobArgs) error

// QueueNotifier enqueues notifications onto the job queue for asynchronous
// webhook delivery.
type QueueNotifier struct {
	insert InsertJobFunc
}

func NewQueueNotifier(insert InsertJobFunc) *QueueNotifier {
	return &QueueNotifier{insert: insert}
}

var _ Notifier = (*QueueNotifier)(nil)

func (n *QueueNotifier) Notify(ctx context.Context, userID uuid.UUID, eventKind string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.insert(ctx, DeliverJobArgs{
		UserID:    userID,
		EventKind: eventKind,
		Payload:   body,
	})
}
