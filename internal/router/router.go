package router

import (
	"net/http"

	"github.com/taskvine/backend/internal/auth"
	"github.com/taskvine/backend/internal/engagement"
	"github.com/taskvine/backend/internal/middleware"
	"github.com/taskvine/backend/internal/payout"
)

// New returns an http.Handler that serves the API under /api/v1. Everything
// except registration and login requires a valid bearer token.
func New(authHandler *auth.Handler, engHandler *engagement.Handler, payoutHandler *payout.Handler, validator middleware.TokenValidator) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	mux.HandleFunc("POST "+base+"/auth/register", authHandler.Register)
	mux.HandleFunc("POST "+base+"/auth/login", authHandler.Login)

	authed := middleware.ActorAuth(validator)
	protect := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authed(h))
	}

	protect("POST "+base+"/engagements", engHandler.Create)
	protect("GET "+base+"/engagements", engHandler.List)
	protect("GET "+base+"/engagements/{id}", engHandler.Get)
	protect("POST "+base+"/engagements/{id}/quotes", engHandler.SubmitQuote)
	protect("GET "+base+"/engagements/{id}/quotes", engHandler.ListQuotes)
	protect("POST "+base+"/engagements/{id}/accept-price", engHandler.AcceptPrice)
	protect("POST "+base+"/engagements/{id}/approve-review", engHandler.ApproveTaskReview)
	protect("POST "+base+"/engagements/{id}/release-details", engHandler.ReleaseCustomerDetails)
	protect("POST "+base+"/engagements/{id}/begin-work", engHandler.BeginWork)
	protect("POST "+base+"/engagements/{id}/submit-work", engHandler.SubmitWork)
	protect("POST "+base+"/engagements/{id}/approve-work", engHandler.ApproveWork)
	protect("POST "+base+"/engagements/{id}/reject-work", engHandler.RejectWork)
	protect("POST "+base+"/engagements/{id}/dispute", engHandler.Dispute)
	protect("POST "+base+"/engagements/{id}/resolve-refund", engHandler.ResolveRefund)
	protect("POST "+base+"/engagements/{id}/cancel", engHandler.Cancel)
	protect("POST "+base+"/engagements/{id}/close", engHandler.Close)
	protect("POST "+base+"/evidence", engHandler.UploadEvidence)

	// Payout handlers authenticate on their own.
	mux.HandleFunc("POST "+base+"/payout-accounts", payoutHandler.Register)
	mux.HandleFunc("GET "+base+"/payout-accounts/me", payoutHandler.GetMine)
	mux.HandleFunc("POST "+base+"/payout-accounts/{id}/verify", payoutHandler.Verify)
	mux.HandleFunc("POST "+base+"/payout-accounts/{id}/deactivate", payoutHandler.Deactivate)

	return mux
}
