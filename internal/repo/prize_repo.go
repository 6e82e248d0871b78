// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the prize
// ledger: prize slots and the claim rows that bind winners to them.
//
// The claim rows carry the correctness-critical semantics of the system:
//   - (contest_id, position, winner_user_id) is unique, so a slot can be
//     assigned to a winner at most once (CreateClaim maps the violation to
//     ErrDuplicate).
//   - claimed_at flips from NULL to a timestamp through a conditional UPDATE
//     only; callers learn from the affected-row count whether they won the
//     race. This is the shared concurrency boundary between the bot's /claim
//     flow and the web claim page, which run in different processes.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

// WinnerPrize is the joined slot+claim projection returned by the lookup
// helpers. SecurityCode is included so callers can build claim links; it must
// never be logged.
type WinnerPrize struct {
	ContestID    uint             `json:"contest_id"`
	ContestName  string           `json:"contest_name"`
	Position     int              `json:"position"`
	PrizeName    string           `json:"prize_name"`
	Kind         domain.PrizeKind `json:"kind"`
	Value        string           `json:"value"`
	WinnerUserID int64            `json:"winner_user_id"`
	SecurityCode string           `json:"-"`
	ClaimedAt    *time.Time       `json:"claimed_at,omitempty"`
}

// winnerPrizeSelect joins slots, claims, and contests into a WinnerPrize row.
const winnerPrizeSelect = `
SELECT ps.contest_id    AS contest_id,
       c.name           AS contest_name,
       ps.position      AS position,
       ps.name          AS prize_name,
       ps.kind          AS kind,
       ps.value         AS value,
       pc.winner_user_id AS winner_user_id,
       pc.security_code AS security_code,
       pc.claimed_at    AS claimed_at
FROM prize_claims pc
JOIN prize_slots ps ON ps.contest_id = pc.contest_id AND ps.position = pc.position
JOIN contests c     ON c.id = pc.contest_id`

// MaterializePrizes creates one prize slot per name with 1-based positions.
// The prize value starts out equal to its name (admins overwrite it later via
// SetPrizeSlot) and the kind is auto-classified from that value.
func MaterializePrizes(ctx context.Context, db *gorm.DB, contestID uint, names []string) ([]domain.PrizeSlot, error) {
	slots := make([]domain.PrizeSlot, 0, len(names))
	now := time.Now().UTC()
	for i, name := range names {
		slots = append(slots, domain.PrizeSlot{
			ContestID: contestID,
			Position:  i + 1,
			Name:      name,
			Kind:      domain.ClassifyPrizeKind(name),
			Value:     name,
			CreatedAt: now,
		})
	}
	if len(slots) == 0 {
		return slots, nil
	}
	if err := db.WithContext(ctx).Create(&slots).Error; err != nil {
		if isDuplicateErr(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return slots, nil
}

// GetPrizeSlots returns a contest's slots ordered by position.
func GetPrizeSlots(ctx context.Context, db *gorm.DB, contestID uint) ([]domain.PrizeSlot, error) {
	var out []domain.PrizeSlot
	err := db.WithContext(ctx).
		Where("contest_id = ?", contestID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// SetPrizeSlot overwrites the name and value of an existing slot,
// re-classifying the kind from the new value. ErrNotFound when the
// (contest, position) slot does not exist; slots are never created here.
func SetPrizeSlot(ctx context.Context, db *gorm.DB, contestID uint, position int, name, value string) error {
	res := db.WithContext(ctx).
		Model(&domain.PrizeSlot{}).
		Where("contest_id = ? AND position = ?", contestID, position).
		Updates(map[string]any{
			"name":  name,
			"kind":  domain.ClassifyPrizeKind(value),
			"value": value,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateClaim inserts a claim row binding winnerUserID to (contestID,
// position) with the given security code. ErrDuplicate when the triple
// already exists.
func CreateClaim(ctx context.Context, db *gorm.DB, contestID uint, position int, winnerUserID int64, securityCode string) (*domain.PrizeClaim, error) {
	pc := &domain.PrizeClaim{
		ContestID:    contestID,
		Position:     position,
		WinnerUserID: winnerUserID,
		SecurityCode: securityCode,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(pc).Error; err != nil {
		if isDuplicateErr(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return pc, nil
}

// GetClaimByWinner returns the joined prize info for a given winner in a
// given contest, or ErrNotFound.
func GetClaimByWinner(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (*WinnerPrize, error) {
	var rows []WinnerPrize
	err := db.WithContext(ctx).
		Raw(winnerPrizeSelect+" WHERE pc.contest_id = ? AND pc.winner_user_id = ? LIMIT 1", contestID, winnerUserID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetLatestUnclaimedForUser returns the user's most recent outstanding prize
// across all contests: newest contest first, lowest position first. That
// ordering is the tie-break when one user somehow holds several unclaimed
// prizes. ErrNotFound when there is nothing to claim.
func GetLatestUnclaimedForUser(ctx context.Context, db *gorm.DB, userID int64) (*WinnerPrize, error) {
	var rows []WinnerPrize
	err := db.WithContext(ctx).
		Raw(winnerPrizeSelect+` WHERE pc.winner_user_id = ? AND pc.claimed_at IS NULL
ORDER BY pc.contest_id DESC, pc.position ASC LIMIT 1`, userID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetLatestClaimForUser returns the user's most recent claim row regardless
// of claimed state, same ordering as GetLatestUnclaimedForUser. It lets
// callers tell "already collected everything" apart from "never won".
// ErrNotFound when the user has no claim rows at all.
func GetLatestClaimForUser(ctx context.Context, db *gorm.DB, userID int64) (*WinnerPrize, error) {
	var rows []WinnerPrize
	err := db.WithContext(ctx).
		Raw(winnerPrizeSelect+` WHERE pc.winner_user_id = ?
ORDER BY pc.contest_id DESC, pc.position ASC LIMIT 1`, userID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// GetClaimBySecurityCode resolves a claim by its capability token, regardless
// of claimed state, so the web page can distinguish "already claimed" from
// "not found". ErrNotFound for an unknown code.
func GetClaimBySecurityCode(ctx context.Context, db *gorm.DB, code string) (*WinnerPrize, error) {
	var rows []WinnerPrize
	err := db.WithContext(ctx).
		Raw(winnerPrizeSelect+" WHERE pc.security_code = ? LIMIT 1", code).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

// MarkClaimed atomically flips the winner's unclaimed row in contestID to
// claimed. Returns false when the conditional update affected zero rows,
// meaning a concurrent caller already claimed it (or there was nothing to
// claim).
func MarkClaimed(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PrizeClaim{}).
		Where("contest_id = ? AND winner_user_id = ? AND claimed_at IS NULL", contestID, winnerUserID).
		Update("claimed_at", time.Now().UTC())
	return res.RowsAffected > 0, res.Error
}

// MarkClaimedBySecurityCode is the code-scoped variant of MarkClaimed used by
// the web claim service. Same claim-once guard, same affected-row contract.
func MarkClaimedBySecurityCode(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.PrizeClaim{}).
		Where("security_code = ? AND claimed_at IS NULL", code).
		Update("claimed_at", time.Now().UTC())
	return res.RowsAffected > 0, res.Error
}
