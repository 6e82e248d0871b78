package repo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

// newSecurityCode returns a fresh 32-hex-char capability token for a claim
// row. Codes come from crypto/rand so they cannot be guessed or enumerated.
func newSecurityCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate security code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// AssignWinners persists the outcome of a draw in one transaction: winner i
// (0-based) gets position i+1. Missing slots are backfilled with a
// placeholder name so every winner always has a row to claim against, even
// when the contest listed fewer prizes than winners. All-or-nothing: any
// failure rolls the whole assignment back, so a draw is never half-recorded.
// ErrDuplicate when any (contest, position, winner) row already exists.
func AssignWinners(ctx context.Context, db *gorm.DB, contestID uint, orderedWinnerIDs []int64) ([]domain.PrizeClaim, error) {
	claims := make([]domain.PrizeClaim, 0, len(orderedWinnerIDs))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var slots []domain.PrizeSlot
		if err := tx.Where("contest_id = ?", contestID).Order("position ASC").Find(&slots).Error; err != nil {
			return err
		}
		havePos := make(map[int]bool, len(slots))
		for _, s := range slots {
			havePos[s.Position] = true
		}

		now := time.Now().UTC()
		for i, winnerID := range orderedWinnerIDs {
			pos := i + 1
			if !havePos[pos] {
				name := fmt.Sprintf("Prize %d", pos)
				slot := domain.PrizeSlot{
					ContestID: contestID,
					Position:  pos,
					Name:      name,
					Kind:      domain.PrizeKindText,
					Value:     name,
					CreatedAt: now,
				}
				if err := tx.Create(&slot).Error; err != nil {
					if isDuplicateErr(err) {
						return ErrDuplicate
					}
					return err
				}
			}
			code, err := newSecurityCode()
			if err != nil {
				return err
			}
			pc, err := CreateClaim(ctx, tx, contestID, pos, winnerID, code)
			if err != nil {
				return err
			}
			claims = append(claims, *pc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}
