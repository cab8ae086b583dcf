package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles. Payment approvers review work evidence and authorize fund
// release; they are distinct from the client and provider on an engagement.
const (
	RoleClient   = "client"
	RoleProvider = "provider"
	RoleApprover = "approver"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
