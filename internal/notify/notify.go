// Package notify provides the announcement surface used by the lifecycle
// engine. The chat transport is pluggable; LogNotifier is the built-in
// implementation that publishes announcements to the structured log, which is
// what development and headless deployments run with.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/services"
)

// LogNotifier writes every announcement to the log and fabricates message
// handles from a local counter. It satisfies services.Notifier.
type LogNotifier struct {
	Log zerolog.Logger

	// ChatID is the synthetic chat handle recorded on started giveaways.
	ChatID int64
	// ClaimBaseURL prefixes the per-winner claim links, e.g.
	// "https://prizes.example.com". Empty disables link rendering.
	ClaimBaseURL string

	nextMessageID atomic.Int64
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log zerolog.Logger, chatID int64, claimBaseURL string) *LogNotifier {
	return &LogNotifier{
		Log:          log,
		ChatID:       chatID,
		ClaimBaseURL: strings.TrimRight(claimBaseURL, "/"),
	}
}

// AnnounceStart publishes the giveaway opening and returns the handle of the
// fabricated announcement message.
func (n *LogNotifier) AnnounceStart(ctx context.Context, contest *domain.Contest, endsAt time.Time) (services.MessageRef, error) {
	ref := services.MessageRef{
		MessageID: n.nextMessageID.Add(1),
		ChatID:    n.ChatID,
		HasImage:  contest.ImageURL != "",
	}
	n.Log.Info().
		Uint("contest_id", contest.ID).
		Str("contest", contest.Name).
		Int("winners", contest.WinnersCount).
		Time("ends_at", endsAt).
		Int64("message_id", ref.MessageID).
		Msg("announcement: giveaway open, join now")
	return ref, nil
}

// AnnounceEnd publishes the ranked winner list, one line per winner with the
// ordinal label and claim link.
func (n *LogNotifier) AnnounceEnd(ctx context.Context, contest *domain.Contest, winners []services.DrawnWinner) error {
	for _, w := range winners {
		ev := n.Log.Info().
			Uint("contest_id", contest.ID).
			Str("place", Ordinal(w.Position)).
			Int64("user_id", w.Participant.ID).
			Str("winner", w.Participant.DisplayName())
		if n.ClaimBaseURL != "" && w.Claim.SecurityCode != "" {
			ev = ev.Str("claim_url", n.ClaimBaseURL+"/claim/"+w.Claim.SecurityCode)
		}
		ev.Msg("announcement: winner drawn")
	}
	n.Log.Info().
		Uint("contest_id", contest.ID).
		Str("contest", contest.Name).
		Int("winners", len(winners)).
		Msg("announcement: giveaway finished")
	return nil
}

// AnnounceNobodyJoined publishes the empty-draw outcome.
func (n *LogNotifier) AnnounceNobodyJoined(ctx context.Context, contest *domain.Contest) error {
	n.Log.Info().
		Uint("contest_id", contest.ID).
		Str("contest", contest.Name).
		Msg("announcement: giveaway ended, nobody joined")
	return nil
}

// AnnounceCancelled publishes the cancellation notice.
func (n *LogNotifier) AnnounceCancelled(ctx context.Context, contest *domain.Contest) error {
	n.Log.Info().
		Uint("contest_id", contest.ID).
		Str("contest", contest.Name).
		Msg("announcement: giveaway cancelled")
	return nil
}

// Ordinal renders a 1-based rank as "1st", "2nd", "3rd", "4th", ...
func Ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
