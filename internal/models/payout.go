package models

import (
	"time"

	"github.com/google/uuid"
)

// PayoutAccount is a provider's destination for released funds. An escrow
// cannot release while the account is unverified or inactive.
type PayoutAccount struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	AccountRef string    `json:"account_ref"`
	Verified   bool      `json:"verified"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
