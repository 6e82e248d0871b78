package domain

import "time"

// WonPrize is the per-winner prize descriptor kept in the snapshot: which
// rank the winner drew and which prize that rank carried. A restart can then
// still report who won what without re-joining the ledger.
type WonPrize struct {
	Position  int    `json:"position"`
	PrizeName string `json:"prize_name"`
}

// GiveawayState is the decoded form of the snapshot row: everything the
// lifecycle engine must remember across a restart. Participants is keyed by
// user ID; Winners maps each winner to their assigned prize; Claimed marks
// which winners already collected their prize in the current giveaway.
// EndsAt is the countdown deadline of the open giveaway, nil when none is
// running.
type GiveawayState struct {
	Participants    map[int64]Participant
	Winners         map[int64]WonPrize
	Claimed         map[int64]bool
	MessageID       int64
	ChatID          int64
	HasImage        bool
	ActiveContestID *uint
	EndsAt          *time.Time
}

// NewGiveawayState returns an empty state with initialized maps.
func NewGiveawayState() GiveawayState {
	return GiveawayState{
		Participants: make(map[int64]Participant),
		Winners:      make(map[int64]WonPrize),
		Claimed:      make(map[int64]bool),
	}
}

// Active reports whether the state describes an in-flight giveaway.
func (s GiveawayState) Active() bool { return s.ActiveContestID != nil }
