package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

// SaveSnapshot serializes the engine state into the singleton snapshot row,
// inserting or overwriting it in one statement.
func SaveSnapshot(ctx context.Context, db *gorm.DB, state domain.GiveawayState) error {
	participants, err := json.Marshal(state.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}
	winners, err := json.Marshal(state.Winners)
	if err != nil {
		return fmt.Errorf("encode winners: %w", err)
	}
	claimed, err := json.Marshal(state.Claimed)
	if err != nil {
		return fmt.Errorf("encode claimed: %w", err)
	}
	row := domain.GiveawaySnapshot{
		ID:              domain.SnapshotRowID,
		Participants:    string(participants),
		Winners:         string(winners),
		Claimed:         string(claimed),
		MessageID:       state.MessageID,
		ChatID:          state.ChatID,
		HasImage:        state.HasImage,
		ActiveContestID: state.ActiveContestID,
		EndsAt:          state.EndsAt,
		UpdatedAt:       time.Now().UTC(),
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
}

// LoadSnapshot reads the singleton row back into a GiveawayState. A missing
// row means a fresh install and yields an empty state with no error. A row
// whose JSON columns no longer decode yields an empty state together with the
// decode error, so the caller can log the corruption and still start clean.
func LoadSnapshot(ctx context.Context, db *gorm.DB) (domain.GiveawayState, error) {
	empty := domain.NewGiveawayState()

	var row domain.GiveawaySnapshot
	err := db.WithContext(ctx).First(&row, domain.SnapshotRowID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return empty, nil
		}
		return empty, err
	}

	state := domain.NewGiveawayState()
	if row.Participants != "" {
		if err := json.Unmarshal([]byte(row.Participants), &state.Participants); err != nil {
			return empty, fmt.Errorf("decode participants: %w", err)
		}
	}
	if row.Winners != "" {
		if err := json.Unmarshal([]byte(row.Winners), &state.Winners); err != nil {
			return empty, fmt.Errorf("decode winners: %w", err)
		}
	}
	if row.Claimed != "" {
		if err := json.Unmarshal([]byte(row.Claimed), &state.Claimed); err != nil {
			return empty, fmt.Errorf("decode claimed: %w", err)
		}
	}
	state.MessageID = row.MessageID
	state.ChatID = row.ChatID
	state.HasImage = row.HasImage
	state.ActiveContestID = row.ActiveContestID
	state.EndsAt = row.EndsAt
	return state, nil
}

// ClearSnapshot resets the singleton row to an empty state.
func ClearSnapshot(ctx context.Context, db *gorm.DB) error {
	return SaveSnapshot(ctx, db, domain.NewGiveawayState())
}
