// Package services – LedgerService
//
// This file implements the LedgerService, the single authority over prize
// slots and claim rows. The lifecycle engine records draw outcomes through
// it, the bot's claim command and the web claim page both collect prizes
// through it, and admins overwrite slot contents through it. Writes that must
// not be lost (recording a draw) run inside the bounded retry helper; the
// claim-once guarantee itself is carried by conditional updates in the
// repository, not by anything in this layer.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
)

// LedgerRepo defines the repository contract required by LedgerService.
type LedgerRepo interface {
	// SetPrizeSlot overwrites name and value of an existing slot.
	SetPrizeSlot(ctx context.Context, db *gorm.DB, contestID uint, position int, name, value string) error

	// GetPrizeSlots returns a contest's slots ordered by position.
	GetPrizeSlots(ctx context.Context, db *gorm.DB, contestID uint) ([]domain.PrizeSlot, error)

	// AssignWinners records a draw outcome in one transaction.
	AssignWinners(ctx context.Context, db *gorm.DB, contestID uint, orderedWinnerIDs []int64) ([]domain.PrizeClaim, error)

	// GetClaimByWinner returns the joined prize info for a winner.
	GetClaimByWinner(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (*repo.WinnerPrize, error)

	// GetLatestUnclaimedForUser returns the user's most recent outstanding prize.
	GetLatestUnclaimedForUser(ctx context.Context, db *gorm.DB, userID int64) (*repo.WinnerPrize, error)

	// GetLatestClaimForUser returns the user's most recent claim row in any
	// claimed state.
	GetLatestClaimForUser(ctx context.Context, db *gorm.DB, userID int64) (*repo.WinnerPrize, error)

	// MarkClaimed flips the winner's unclaimed row; false when already claimed.
	MarkClaimed(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (bool, error)

	// GetClaimBySecurityCode resolves a claim by its capability token.
	GetClaimBySecurityCode(ctx context.Context, db *gorm.DB, code string) (*repo.WinnerPrize, error)

	// MarkClaimedBySecurityCode flips the row behind a token; false when claimed.
	MarkClaimedBySecurityCode(ctx context.Context, db *gorm.DB, code string) (bool, error)
}

// LedgerService provides prize ledger operations for the engine, the bot
// commands, and the web claim page.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the prize ledger repository used by this service.
	Repo LedgerRepo

	// Retries bounds the retry loop around draw persistence.
	Retries int
	// RetryDelay is the pause between retry attempts.
	RetryDelay time.Duration
}

// NewLedgerService constructs a LedgerService with a small bounded retry
// window for draw persistence.
func NewLedgerService(db *gorm.DB, r LedgerRepo) *LedgerService {
	return &LedgerService{
		DB:         db,
		Repo:       r,
		Retries:    3,
		RetryDelay: 500 * time.Millisecond,
	}
}

// SetPrize overwrites the content of an existing prize slot. Name and value
// are sanitized; blanks are rejected before touching the database.
func (s *LedgerService) SetPrize(ctx context.Context, contestID uint, position int, name, value string) error {
	name = sanitizeText(name)
	value = sanitizeText(value)
	if contestID == 0 || position < 1 || name == "" || value == "" {
		return ErrInvalidParameters
	}
	err := s.Repo.SetPrizeSlot(ctx, s.DB, contestID, position, name, value)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrPrizeNotFound
	}
	return err
}

// Prizes returns a contest's slots ordered by position.
func (s *LedgerService) Prizes(ctx context.Context, contestID uint) ([]domain.PrizeSlot, error) {
	return s.Repo.GetPrizeSlots(ctx, s.DB, contestID)
}

// RecordDraw persists the ordered winner list of a finished draw. The write
// retries through transient failures; if the database stays down the caller
// gets ErrPersistenceUnavailable and must not treat the draw as recorded.
func (s *LedgerService) RecordDraw(ctx context.Context, contestID uint, orderedWinnerIDs []int64) ([]domain.PrizeClaim, error) {
	var claims []domain.PrizeClaim
	err := repo.WithRetry(ctx, s.Retries, s.RetryDelay, func() error {
		var err error
		claims, err = s.Repo.AssignWinners(ctx, s.DB, contestID, orderedWinnerIDs)
		return err
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrDuplicateClaim
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Join(ErrPersistenceUnavailable, err)
	}
	return claims, nil
}

// PrizeFor returns the prize a winner holds in a specific contest.
func (s *LedgerService) PrizeFor(ctx context.Context, contestID uint, winnerUserID int64) (*repo.WinnerPrize, error) {
	wp, err := s.Repo.GetClaimByWinner(ctx, s.DB, contestID, winnerUserID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClaimNotFound
	}
	return wp, err
}

// ClaimLatest collects the user's most recent outstanding prize across all
// contests. ErrNothingToClaim is reserved for users who never won anything;
// a winner whose prizes are all collected gets ErrAlreadyClaimed together
// with the latest claimed row, whether the earlier collection happened in a
// previous call or in a concurrent one.
func (s *LedgerService) ClaimLatest(ctx context.Context, userID int64) (*repo.WinnerPrize, error) {
	wp, err := s.Repo.GetLatestUnclaimedForUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		claimed, cerr := s.Repo.GetLatestClaimForUser(ctx, s.DB, userID)
		if errors.Is(cerr, repo.ErrNotFound) {
			return nil, ErrNothingToClaim
		}
		if cerr != nil {
			return nil, cerr
		}
		return claimed, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.Repo.MarkClaimed(ctx, s.DB, wp.ContestID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlreadyClaimed
	}
	now := time.Now().UTC()
	wp.ClaimedAt = &now
	return wp, nil
}

// ResolveCode looks up the claim behind a security code without changing it.
func (s *LedgerService) ResolveCode(ctx context.Context, code string) (*repo.WinnerPrize, error) {
	wp, err := s.Repo.GetClaimBySecurityCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClaimNotFound
	}
	return wp, err
}

// ClaimByCode collects the prize behind a security code. The first successful
// call returns the prize; later calls get ErrAlreadyClaimed, and unknown
// codes get ErrClaimNotFound. Lookup happens after the conditional update so
// the claimed timestamp in the returned row is authoritative.
func (s *LedgerService) ClaimByCode(ctx context.Context, code string) (*repo.WinnerPrize, error) {
	ok, err := s.Repo.MarkClaimedBySecurityCode(ctx, s.DB, code)
	if err != nil {
		return nil, err
	}
	wp, err := s.Repo.GetClaimBySecurityCode(ctx, s.DB, code)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrClaimNotFound
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return wp, ErrAlreadyClaimed
	}
	return wp, nil
}
