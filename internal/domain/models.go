// Package domain defines the persistence models for contests, prize slots,
// prize claims, and the singleton giveaway snapshot. These types are mapped
// with GORM and form the durable data layer shared by the bot process and the
// prize-claim web service.
package domain

import (
	"strings"
	"time"
)

// PrizeKind distinguishes how a prize value should be presented to a winner.
type PrizeKind string

const (
	// PrizeKindLink marks a prize value that is a recognized safe URL and can
	// be rendered as a clickable link.
	PrizeKindLink PrizeKind = "link"
	// PrizeKindText marks any other prize value (codes, keys, plain text).
	PrizeKindText PrizeKind = "text"
)

// safeLinkPrefixes is the closed set of URL prefixes a prize value may carry
// to be classified as a link. Anything else is treated as opaque text.
var safeLinkPrefixes = []string{"http://", "https://", "www.", "t.me/", "tg://"}

// ClassifyPrizeKind derives the kind of a prize from its value: link when the
// value starts with a recognized safe URL prefix, text otherwise.
func ClassifyPrizeKind(value string) PrizeKind {
	v := strings.TrimSpace(value)
	for _, p := range safeLinkPrefixes {
		if strings.HasPrefix(v, p) {
			return PrizeKindLink
		}
	}
	return PrizeKindText
}

// Contest is a reusable definition of a giveaway's parameters. Contests are
// immutable once created (there is no update operation) and are only removed
// by an explicit full reset.
//
// Fields:
//   - ID: auto-increment primary key, referenced by prize slots and claims.
//   - Name: display name shown in announcements.
//   - DurationSeconds: how long a run of this contest accepts joins (> 0).
//   - WinnersCount: how many winners to draw (> 0).
//   - Prizes: comma-joined ordered prize list; at least one non-blank entry.
//   - ImageURL: optional announcement image reference.
type Contest struct {
	ID              uint      `json:"id"                   gorm:"primaryKey"`
	Name            string    `json:"name"                 gorm:"type:varchar(255);not null"`
	DurationSeconds int       `json:"duration_seconds"     gorm:"not null"`
	WinnersCount    int       `json:"winners_count"        gorm:"not null"`
	Prizes          string    `json:"prizes"               gorm:"type:text;not null"`
	ImageURL        string    `json:"image_url,omitempty"  gorm:"type:varchar(500)"`
	CreatedAt       time.Time `json:"created_at"`
}

// TableName returns the database table name for Contest.
func (Contest) TableName() string { return "contests" }

// PrizeList splits the stored comma-joined prize column into trimmed,
// non-blank entries, preserving order.
func (c Contest) PrizeList() []string {
	parts := strings.Split(c.Prizes, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Duration returns the contest duration as a time.Duration.
func (c Contest) Duration() time.Duration {
	return time.Duration(c.DurationSeconds) * time.Second
}

// PrizeSlot is a (contest, position) prize definition, independent of who wins
// it. Slots are materialized when a contest is created and may be overwritten
// by an explicit admin action; they are never deleted independently of their
// contest.
type PrizeSlot struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	ContestID uint      `json:"contest_id" gorm:"not null;uniqueIndex:idx_slot_contest_pos,priority:1"`
	Position  int       `json:"position"   gorm:"not null;uniqueIndex:idx_slot_contest_pos,priority:2"`
	Name      string    `json:"name"       gorm:"type:varchar(255);not null"`
	Kind      PrizeKind `json:"kind"       gorm:"type:varchar(8);not null;check:kind IN ('link','text')"`
	Value     string    `json:"value"      gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for PrizeSlot.
func (PrizeSlot) TableName() string { return "prize_slots" }

// PrizeClaim binds a specific winner to a specific prize slot. The
// (contest, position, winner) triple is unique, which enforces "one winner per
// slot, no double assignment". SecurityCode is an unguessable capability token
// granting access to the prize via the web claim page. ClaimedAt stays NULL
// until the prize is collected; the NULL→timestamp transition is guarded by a
// conditional update so it can succeed at most once.
type PrizeClaim struct {
	ID           uint       `json:"id"             gorm:"primaryKey"`
	ContestID    uint       `json:"contest_id"     gorm:"not null;uniqueIndex:idx_claim_slot_winner,priority:1"`
	Position     int        `json:"position"       gorm:"not null;uniqueIndex:idx_claim_slot_winner,priority:2"`
	WinnerUserID int64      `json:"winner_user_id" gorm:"not null;uniqueIndex:idx_claim_slot_winner,priority:3"`
	SecurityCode string     `json:"-"              gorm:"type:varchar(32);not null;uniqueIndex"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName returns the database table name for PrizeClaim.
func (PrizeClaim) TableName() string { return "prize_claims" }

// Claimed reports whether this claim has already been collected.
func (p PrizeClaim) Claimed() bool { return p.ClaimedAt != nil }

// Participant is the explicit profile of a giveaway participant, replacing the
// opaque platform user object. It serializes to JSON inside the snapshot row.
type Participant struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsBot        bool   `json:"is_bot,omitempty"`
}

// DisplayName returns the best human-readable handle for the participant:
// @username when present, the joined name parts otherwise, "Anonymous" as the
// last resort.
func (p Participant) DisplayName() string {
	if p.Username != "" {
		return "@" + p.Username
	}
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name != "" {
		return name
	}
	return "Anonymous"
}

// SnapshotRowID is the fixed primary key of the singleton snapshot row.
const SnapshotRowID uint = 1

// GiveawaySnapshot is the durable serialization of the lifecycle engine's
// in-memory state. There is at most one logical row (ID = SnapshotRowID); it
// is overwritten after every engine mutation so a process restart can resume
// an in-flight giveaway without losing participants.
//
// Participants, Winners, and Claimed hold JSON-encoded columns. ActiveContestID
// is NULL when no giveaway is running. EndsAt records the countdown deadline so
// a restart can re-arm the remaining duration.
type GiveawaySnapshot struct {
	ID              uint `gorm:"primaryKey"`
	Participants    string
	Winners         string
	Claimed         string
	MessageID       int64
	ChatID          int64
	HasImage        bool
	ActiveContestID *uint
	EndsAt          *time.Time
	UpdatedAt       time.Time
}

// TableName returns the database table name for GiveawaySnapshot.
func (GiveawaySnapshot) TableName() string { return "giveaway_snapshots" }
