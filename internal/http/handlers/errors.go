// Package handlers defines HTTP-layer error codes used across the claim
// service endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). These codes give
// clients a stable, machine-readable error taxonomy that supplements
// human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (bad_request, not_found, internal_error) mirror common
//     HTTP status semantics.
//   - Domain codes (already_claimed) carry outcomes a status alone cannot.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_claimed",
//	  "message": "prize already claimed"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAlreadyClaimed = "already_claimed"
)
