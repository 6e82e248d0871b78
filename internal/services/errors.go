// Package services defines the business logic for the contest catalog, the
// prize ledger, and the giveaway lifecycle engine. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler/notifier layer.
package services

import "errors"

// Catalog-related errors.
var (
	// ErrInvalidParameters is returned when a contest definition fails
	// validation (blank name, non-positive duration or winner count, empty
	// prize list).
	ErrInvalidParameters = errors.New("invalid contest parameters")

	// ErrContestNotFound indicates that the requested contest does not exist.
	ErrContestNotFound = errors.New("contest not found")

	// ErrPrizeNotFound indicates that the addressed prize slot does not exist.
	ErrPrizeNotFound = errors.New("prize not found")
)

// Lifecycle-related errors.
var (
	// ErrAlreadyRunning is returned when a giveaway start is attempted while
	// another giveaway is open or being drawn.
	ErrAlreadyRunning = errors.New("a giveaway is already running")

	// ErrNotRunning is returned when join or cancel is attempted with no open
	// giveaway.
	ErrNotRunning = errors.New("no giveaway is running")

	// ErrAlreadyJoined is returned when a participant tries to enter the same
	// giveaway twice.
	ErrAlreadyJoined = errors.New("already joined")

	// ErrBotsExcluded is returned when a bot account tries to join.
	ErrBotsExcluded = errors.New("bot accounts cannot join")
)

// Claim-related errors.
var (
	// ErrClaimNotFound indicates that no claim row matches the lookup
	// (unknown security code, or the user never won).
	ErrClaimNotFound = errors.New("claim not found")

	// ErrNothingToClaim is returned when a user asks to claim but holds no
	// outstanding prize in any contest.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrAlreadyClaimed is returned when the prize behind a claim was already
	// collected.
	ErrAlreadyClaimed = errors.New("prize already claimed")

	// ErrDuplicateClaim is returned when a draw would assign a slot that is
	// already bound to the same winner.
	ErrDuplicateClaim = errors.New("claim already exists")
)

// ErrPersistenceUnavailable is returned when the database kept failing
// through the bounded retry window and the operation could not be recorded.
var ErrPersistenceUnavailable = errors.New("persistence unavailable")
