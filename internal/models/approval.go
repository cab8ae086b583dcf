package models

import (
	"time"

	"github.com/google/uuid"
)

// Approval gates, in the fixed order they must clear. The order encodes a
// trust ramp: price is agreed before either party invests in a deeper
// review, and the client's contact details are released last.
const (
	GatePriceAccepted           = "price_accepted"
	GateTaskReviewed            = "task_reviewed"
	GateCustomerDetailsReleased = "customer_details_released"
)

// GateOrder is the canonical clearing order.
var GateOrder = []string{GatePriceAccepted, GateTaskReviewed, GateCustomerDetailsReleased}

const (
	GateStatePending = "pending"
	GateStateCleared = "cleared"
)

type ApprovalGate struct {
	EngagementID uuid.UUID  `json:"engagement_id"`
	Gate         string     `json:"gate"`
	State        string     `json:"state"`
	ClearedBy    *uuid.UUID `json:"cleared_by,omitempty"`
	ClearedAt    *time.Time `json:"cleared_at,omitempty"`
}
