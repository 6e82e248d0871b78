// Package services – Engine
//
// This file implements the giveaway lifecycle engine, the stateful core of
// the system. At most one giveaway exists at a time and it moves through an
// explicit phase tag: Idle -> Open (countdown armed) -> Drawing (atomic) ->
// Idle, with Cancel short-circuiting Open back to Idle. All mutations happen
// under one mutex; the countdown fires through a run-generation guard so a
// stale timer from a cancelled or superseded run can never trigger a draw.
//
// The engine's collaborators sit behind small interfaces (contest source,
// prize ledger, snapshot store, notifier) so tests can drive the whole
// lifecycle with fakes and a manual clock.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/random"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
)

// Phase is the lifecycle phase tag.
type Phase string

const (
	// PhaseIdle means no giveaway exists; Start is the only valid transition.
	PhaseIdle Phase = "idle"
	// PhaseOpen means a giveaway accepts joins and a countdown is armed.
	PhaseOpen Phase = "open"
	// PhaseDrawing means winner selection is in progress; everything else waits.
	PhaseDrawing Phase = "drawing"
)

// MessageRef identifies the announcement message a started giveaway hangs off.
type MessageRef struct {
	MessageID int64
	ChatID    int64
	HasImage  bool
}

// DrawnWinner pairs a winner with their rank and the claim row recorded for
// them. Position 1 is the first participant drawn.
type DrawnWinner struct {
	Position    int
	Participant domain.Participant
	Claim       domain.PrizeClaim
}

// Notifier is the outbound announcement surface. The chat transport behind it
// is out of scope here; implementations range from a logging notifier in
// development to a messaging-platform client in production.
type Notifier interface {
	// AnnounceStart publishes the giveaway announcement and returns a handle
	// to the published message. An error aborts the start.
	AnnounceStart(ctx context.Context, contest *domain.Contest, endsAt time.Time) (MessageRef, error)

	// AnnounceEnd publishes the ranked winner list.
	AnnounceEnd(ctx context.Context, contest *domain.Contest, winners []DrawnWinner) error

	// AnnounceNobodyJoined publishes the empty-draw outcome.
	AnnounceNobodyJoined(ctx context.Context, contest *domain.Contest) error

	// AnnounceCancelled publishes the cancellation notice.
	AnnounceCancelled(ctx context.Context, contest *domain.Contest) error
}

// ContestSource resolves validated contest definitions.
type ContestSource interface {
	Get(ctx context.Context, id uint) (*domain.Contest, error)
}

// PrizeLedger is the slice of LedgerService the engine needs.
type PrizeLedger interface {
	RecordDraw(ctx context.Context, contestID uint, orderedWinnerIDs []int64) ([]domain.PrizeClaim, error)
	PrizeFor(ctx context.Context, contestID uint, winnerUserID int64) (*repo.WinnerPrize, error)
	ClaimLatest(ctx context.Context, userID int64) (*repo.WinnerPrize, error)
}

// SnapshotStore persists and restores the engine state across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, state domain.GiveawayState) error
	Load(ctx context.Context) (domain.GiveawayState, error)
}

// Stats is the read-only lifecycle report.
type Stats struct {
	Phase        Phase         `json:"phase"`
	ContestID    uint          `json:"contest_id,omitempty"`
	ContestName  string        `json:"contest_name,omitempty"`
	Participants int           `json:"participants"`
	Winners      int           `json:"winners"`
	Claimed      int           `json:"claimed"`
	TimeLeft     time.Duration `json:"time_left,omitempty"`
}

// Engine drives the giveaway lifecycle. Construct with NewEngine; the zero
// value is not usable.
type Engine struct {
	log       zerolog.Logger
	contests  ContestSource
	ledger    PrizeLedger
	snapshots SnapshotStore
	notifier  Notifier

	// DrawRetryDelay is how long to wait before re-trying a draw whose
	// persistence failed.
	DrawRetryDelay time.Duration
	// RestoreGrace is the minimum countdown re-armed after a restart, even
	// when the deadline already passed while the process was down.
	RestoreGrace time.Duration

	mu          sync.Mutex
	phase       Phase
	state       domain.GiveawayState
	contest     *domain.Contest
	gen         uint64
	timer       *time.Timer
	contestName string

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer
	sample    func(ids []int64, n int) ([]int64, error)
}

// NewEngine constructs an idle engine.
func NewEngine(log zerolog.Logger, contests ContestSource, ledger PrizeLedger, snapshots SnapshotStore, notifier Notifier) *Engine {
	return &Engine{
		log:            log,
		contests:       contests,
		ledger:         ledger,
		snapshots:      snapshots,
		notifier:       notifier,
		DrawRetryDelay: 30 * time.Second,
		RestoreGrace:   10 * time.Second,
		phase:          PhaseIdle,
		state:          domain.NewGiveawayState(),
		now:            time.Now,
		afterFunc:      time.AfterFunc,
		sample:         random.Sample[int64],
	}
}

// StartGiveaway opens a new giveaway for the given contest. Only valid while
// Idle. The announcement goes out first; if it fails nothing is armed and the
// engine stays Idle.
func (e *Engine) StartGiveaway(ctx context.Context, contestID uint) (*domain.Contest, time.Time, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseIdle {
		return nil, time.Time{}, ErrAlreadyRunning
	}
	c, err := e.contests.Get(ctx, contestID)
	if err != nil {
		return nil, time.Time{}, err
	}

	endsAt := e.now().UTC().Add(c.Duration())
	ref, err := e.notifier.AnnounceStart(ctx, c, endsAt)
	if err != nil {
		return nil, time.Time{}, err
	}

	e.state = domain.NewGiveawayState()
	id := c.ID
	e.state.ActiveContestID = &id
	e.state.EndsAt = &endsAt
	e.state.MessageID = ref.MessageID
	e.state.ChatID = ref.ChatID
	e.state.HasImage = ref.HasImage
	e.contest = c
	e.contestName = c.Name
	e.phase = PhaseOpen

	e.saveSnapshotLocked(ctx)
	e.armLocked(c.Duration())

	e.log.Info().
		Uint("contest_id", c.ID).
		Time("ends_at", endsAt).
		Int("winners", c.WinnersCount).
		Msg("giveaway started")
	return c, endsAt, nil
}

// Join registers a participant in the open giveaway. Repeat joins are a
// distinct expected signal, not a failure of the giveaway. Returns the
// participant count after the join.
func (e *Engine) Join(ctx context.Context, p domain.Participant) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseOpen {
		return 0, ErrNotRunning
	}
	if p.IsBot {
		return 0, ErrBotsExcluded
	}
	if _, ok := e.state.Participants[p.ID]; ok {
		return len(e.state.Participants), ErrAlreadyJoined
	}
	e.state.Participants[p.ID] = p
	e.saveSnapshotLocked(ctx)
	e.log.Debug().Int64("user_id", p.ID).Int("total", len(e.state.Participants)).Msg("participant joined")
	return len(e.state.Participants), nil
}

// Cancel aborts the open giveaway without drawing. The countdown is stopped
// and invalidated so it can never fire afterwards.
func (e *Engine) Cancel(ctx context.Context) (*domain.Contest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase != PhaseOpen {
		return nil, ErrNotRunning
	}
	e.disarmLocked()
	c := e.contest
	e.state = domain.NewGiveawayState()
	e.contest = nil
	e.phase = PhaseIdle
	e.saveSnapshotLocked(ctx)

	if err := e.notifier.AnnounceCancelled(ctx, c); err != nil {
		e.log.Error().Err(err).Msg("cancel announcement failed")
	}
	e.log.Info().Uint("contest_id", c.ID).Msg("giveaway cancelled")
	return c, nil
}

// Claim collects the caller's most recent outstanding prize. Valid in any
// phase: prizes from past giveaways stay claimable after the engine moved on.
func (e *Engine) Claim(ctx context.Context, userID int64) (*repo.WinnerPrize, error) {
	wp, err := e.ledger.ClaimLatest(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, won := e.state.Winners[userID]; won {
		e.state.Claimed[userID] = true
		e.saveSnapshotLocked(ctx)
	}
	e.mu.Unlock()
	return wp, nil
}

// Stats reports lifecycle counters. ErrNotRunning when there is neither an
// open giveaway nor a finished one to report on.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseIdle && len(e.state.Winners) == 0 {
		return Stats{}, ErrNotRunning
	}
	s := Stats{
		Phase:        e.phase,
		ContestName:  e.contestName,
		Participants: len(e.state.Participants),
		Winners:      len(e.state.Winners),
		Claimed:      len(e.state.Claimed),
	}
	if e.state.ActiveContestID != nil {
		s.ContestID = *e.state.ActiveContestID
	}
	if e.state.EndsAt != nil {
		if left := e.state.EndsAt.Sub(e.now().UTC()); left > 0 {
			s.TimeLeft = left
		}
	}
	return s, nil
}

// Restore reloads the snapshot on startup. A surviving open giveaway
// re-enters Open with the remaining countdown; a deadline that passed while
// the process was down gets a short grace period instead of drawing
// immediately, so late joiners racing the restart are not cut off mid-write.
func (e *Engine) Restore(ctx context.Context) error {
	state, err := e.snapshots.Load(ctx)
	if err != nil {
		e.log.Warn().Err(err).Msg("snapshot unreadable, starting from empty state")
		state = domain.NewGiveawayState()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = state
	if !state.Active() {
		e.phase = PhaseIdle
		return nil
	}

	c, cerr := e.contests.Get(ctx, *state.ActiveContestID)
	if cerr != nil {
		e.log.Error().Err(cerr).Uint("contest_id", *state.ActiveContestID).
			Msg("active contest unrecoverable, dropping in-flight giveaway")
		e.state = domain.NewGiveawayState()
		e.phase = PhaseIdle
		e.saveSnapshotLocked(ctx)
		return nil
	}
	e.contest = c
	e.contestName = c.Name
	e.phase = PhaseOpen

	remaining := e.RestoreGrace
	if state.EndsAt != nil {
		if left := state.EndsAt.Sub(e.now().UTC()); left > remaining {
			remaining = left
		}
	}
	e.armLocked(remaining)
	e.log.Info().
		Uint("contest_id", c.ID).
		Int("participants", len(state.Participants)).
		Dur("remaining", remaining).
		Msg("giveaway restored from snapshot")
	return nil
}

// Close stops any armed countdown. Pending draws simply never fire; the
// snapshot lets the next process pick the giveaway back up.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disarmLocked()
}

// armLocked schedules the draw after d, bound to the current run generation.
// Caller holds e.mu.
func (e *Engine) armLocked(d time.Duration) {
	gen := e.gen
	e.timer = e.afterFunc(d, func() { e.draw(gen) })
}

// disarmLocked stops the countdown and invalidates its generation.
// Caller holds e.mu.
func (e *Engine) disarmLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.gen++
}

// draw is the timer-fired transition Open -> Drawing -> Idle. The generation
// check makes it a no-op for timers that outlived their run.
func (e *Engine) draw(gen uint64) {
	ctx := context.Background()

	e.mu.Lock()
	if e.phase != PhaseOpen || gen != e.gen {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseDrawing
	c := e.contest

	ids := make([]int64, 0, len(e.state.Participants))
	for id := range e.state.Participants {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		e.state = domain.NewGiveawayState()
		e.contest = nil
		e.phase = PhaseIdle
		e.saveSnapshotLocked(ctx)
		e.mu.Unlock()

		if err := e.notifier.AnnounceNobodyJoined(ctx, c); err != nil {
			e.log.Error().Err(err).Msg("empty-draw announcement failed")
		}
		e.log.Info().Uint("contest_id", c.ID).Msg("giveaway ended with no participants")
		return
	}

	n := c.WinnersCount
	if n > len(ids) {
		n = len(ids)
	}
	winnerIDs, err := e.sample(ids, n)
	if err != nil {
		// Entropy failure. Keep everything and retry shortly.
		e.log.Error().Err(err).Msg("winner sampling failed, re-arming draw")
		e.phase = PhaseOpen
		e.armLocked(e.DrawRetryDelay)
		e.mu.Unlock()
		return
	}

	claims, err := e.ledger.RecordDraw(ctx, c.ID, winnerIDs)
	if errors.Is(err, ErrDuplicateClaim) {
		// A previous attempt committed before we saw its result. Recover the
		// existing rows instead of failing the draw.
		e.log.Error().Uint("contest_id", c.ID).Msg("draw already recorded, recovering existing claims")
		claims = claims[:0]
		for _, id := range winnerIDs {
			wp, perr := e.ledger.PrizeFor(ctx, c.ID, id)
			if perr != nil {
				e.log.Error().Err(perr).Int64("user_id", id).Msg("claim recovery failed")
				continue
			}
			claims = append(claims, domain.PrizeClaim{
				ContestID:    wp.ContestID,
				Position:     wp.Position,
				WinnerUserID: wp.WinnerUserID,
				SecurityCode: wp.SecurityCode,
			})
		}
	} else if err != nil {
		// Nothing was committed. Keep participants, go back to Open, and
		// retry the whole draw shortly.
		e.log.Error().Err(err).Uint("contest_id", c.ID).Dur("retry_in", e.DrawRetryDelay).
			Msg("draw persistence failed, re-arming")
		e.phase = PhaseOpen
		e.armLocked(e.DrawRetryDelay)
		e.mu.Unlock()
		return
	}

	winners := make([]DrawnWinner, 0, len(winnerIDs))
	for i, id := range winnerIDs {
		dw := DrawnWinner{Position: i + 1, Participant: e.state.Participants[id]}
		for _, pc := range claims {
			if pc.WinnerUserID == id {
				dw.Claim = pc
				break
			}
		}
		winners = append(winners, dw)
	}

	prizes := c.PrizeList()
	won := make(map[int64]domain.WonPrize, len(winnerIDs))
	for i, id := range winnerIDs {
		name := fmt.Sprintf("Prize %d", i+1)
		if i < len(prizes) {
			name = prizes[i]
		}
		won[id] = domain.WonPrize{Position: i + 1, PrizeName: name}
	}
	e.state.Winners = won
	e.state.Claimed = make(map[int64]bool)
	e.state.ActiveContestID = nil
	e.state.EndsAt = nil
	e.contest = nil
	e.phase = PhaseIdle
	e.saveSnapshotLocked(ctx)
	e.mu.Unlock()

	if err := e.notifier.AnnounceEnd(ctx, c, winners); err != nil {
		e.log.Error().Err(err).Msg("winner announcement failed")
	}
	e.log.Info().
		Uint("contest_id", c.ID).
		Int("participants", len(ids)).
		Int("winners", len(winnerIDs)).
		Msg("giveaway drawn")
}

// saveSnapshotLocked persists the current state best-effort: resilience data
// must never take the lifecycle down with it. Caller holds e.mu.
func (e *Engine) saveSnapshotLocked(ctx context.Context) {
	if err := e.snapshots.Save(ctx, e.state); err != nil {
		e.log.Error().Err(err).Msg("snapshot save failed")
	}
}
