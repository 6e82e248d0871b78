// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Contest
// model (the contest catalog).
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

// CreateContest inserts a new contest row. Parameter validation is a service
// concern; the repo stores what it is given. Prizes are persisted as a single
// comma-joined column, matching the announcement ordering.
func CreateContest(ctx context.Context, db *gorm.DB, name string, durationSeconds, winnersCount int, prizes []string, imageURL string) (*domain.Contest, error) {
	c := &domain.Contest{
		Name:            name,
		DurationSeconds: durationSeconds,
		WinnersCount:    winnersCount,
		Prizes:          strings.Join(prizes, ","),
		ImageURL:        imageURL,
		CreatedAt:       time.Now().UTC(),
	}
	return c, db.WithContext(ctx).Create(c).Error
}

// GetContest fetches a contest by ID, returning ErrNotFound when absent.
func GetContest(ctx context.Context, db *gorm.DB, id uint) (*domain.Contest, error) {
	var c domain.Contest
	err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContests returns every contest ordered by creation (ID ascending).
func ListContests(ctx context.Context, db *gorm.DB) ([]domain.Contest, error) {
	var out []domain.Contest
	err := db.WithContext(ctx).Order("id ASC").Find(&out).Error
	return out, err
}

// ResetAll wipes every durable relation in one transaction. This is the
// explicit full-reset operation; nothing else ever deletes contests or claims.
func ResetAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range []string{
			"DELETE FROM prize_claims",
			"DELETE FROM prize_slots",
			"DELETE FROM contests",
			"DELETE FROM giveaway_snapshots",
		} {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
