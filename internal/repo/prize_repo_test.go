package repo

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
)

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

func newPrizeDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:prizerepo?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Contest{}, &domain.PrizeSlot{}, &domain.PrizeClaim{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM prize_claims")
		db.Exec("DELETE FROM prize_slots")
		db.Exec("DELETE FROM contests")
	})
	return db
}

func seedContest(t *testing.T, db *gorm.DB, name string, prizes []string) *domain.Contest {
	t.Helper()
	c, err := CreateContest(context.Background(), db, name, 60, len(prizes), prizes, "")
	if err != nil {
		t.Fatalf("seed contest: %v", err)
	}
	return c
}

func TestMaterializePrizes_PositionsAndKinds(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "kinds", []string{"https://example.com/a", "PLAIN-CODE", "t.me/prize"})

	slots, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList())
	if err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	wantKinds := []domain.PrizeKind{domain.PrizeKindLink, domain.PrizeKindText, domain.PrizeKindLink}
	for i, s := range slots {
		if s.Position != i+1 {
			t.Fatalf("slot %d: expected position %d, got %d", i, i+1, s.Position)
		}
		if s.Kind != wantKinds[i] {
			t.Fatalf("slot %d: expected kind %q, got %q", i, wantKinds[i], s.Kind)
		}
		if s.Value != s.Name {
			t.Fatalf("slot %d: value should start equal to name, got name=%q value=%q", i, s.Name, s.Value)
		}
	}
}

func TestMaterializePrizes_EmptyList(t *testing.T) {
	db := newPrizeDB(t)

	slots, err := MaterializePrizes(context.Background(), db, 99, nil)
	if err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestSetPrizeSlot_UpdatesAndReclassifies(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "update", []string{"placeholder"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}

	if err := SetPrizeSlot(context.Background(), db, c.ID, 1, "Game Key", "https://store.example.com/redeem/abc"); err != nil {
		t.Fatalf("SetPrizeSlot: %v", err)
	}

	slots, err := GetPrizeSlots(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetPrizeSlots: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	s := slots[0]
	if s.Name != "Game Key" || s.Value != "https://store.example.com/redeem/abc" || s.Kind != domain.PrizeKindLink {
		t.Fatalf("unexpected slot after update: %+v", s)
	}
}

func TestSetPrizeSlot_MissingSlot(t *testing.T) {
	db := newPrizeDB(t)

	err := SetPrizeSlot(context.Background(), db, 123, 9, "x", "y")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAssignWinners_BackfillsMissingSlots(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "backfill", []string{"only-one"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}

	claims, err := AssignWinners(context.Background(), db, c.ID, []int64{101, 202, 303})
	if err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected 3 claims, got %d", len(claims))
	}
	for i, pc := range claims {
		if pc.Position != i+1 {
			t.Fatalf("claim %d: expected position %d, got %d", i, i+1, pc.Position)
		}
		if !hex32.MatchString(pc.SecurityCode) {
			t.Fatalf("claim %d: bad security code %q", i, pc.SecurityCode)
		}
		if pc.Claimed() {
			t.Fatalf("claim %d: should start unclaimed", i)
		}
	}

	slots, err := GetPrizeSlots(context.Background(), db, c.ID)
	if err != nil {
		t.Fatalf("GetPrizeSlots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected backfilled slots, got %d", len(slots))
	}
	if slots[1].Name != "Prize 2" || slots[2].Name != "Prize 3" {
		t.Fatalf("expected placeholder names, got %q and %q", slots[1].Name, slots[2].Name)
	}
}

func TestAssignWinners_DuplicateRollsBack(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "dup", []string{"p1", "p2"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, c.ID, []int64{11}); err != nil {
		t.Fatalf("first AssignWinners: %v", err)
	}

	// Same winner at the same position again: unique index must reject, and
	// the failed assignment must leave no partial rows behind.
	_, err := AssignWinners(context.Background(), db, c.ID, []int64{11, 22})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	var n int64
	if err := db.Model(&domain.PrizeClaim{}).Where("contest_id = ?", c.ID).Count(&n).Error; err != nil {
		t.Fatalf("count claims: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected rollback to keep exactly 1 claim, got %d", n)
	}
}

func TestGetClaimByWinner_JoinsSlotAndContest(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "joined", []string{"https://example.com/prize"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, c.ID, []int64{501}); err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}

	wp, err := GetClaimByWinner(context.Background(), db, c.ID, 501)
	if err != nil {
		t.Fatalf("GetClaimByWinner: %v", err)
	}
	if wp.ContestName != "joined" || wp.Position != 1 || wp.Kind != domain.PrizeKindLink {
		t.Fatalf("unexpected joined row: %+v", wp)
	}
	if wp.ClaimedAt != nil {
		t.Fatalf("expected unclaimed, got %+v", wp.ClaimedAt)
	}

	if _, err := GetClaimByWinner(context.Background(), db, c.ID, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown winner, got %v", err)
	}
}

func TestGetLatestUnclaimedForUser_Ordering(t *testing.T) {
	db := newPrizeDB(t)
	older := seedContest(t, db, "older", []string{"old-prize"})
	newer := seedContest(t, db, "newer", []string{"new-prize-1", "new-prize-2"})
	for _, c := range []*domain.Contest{older, newer} {
		if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
			t.Fatalf("MaterializePrizes: %v", err)
		}
	}
	if _, err := AssignWinners(context.Background(), db, older.ID, []int64{700}); err != nil {
		t.Fatalf("AssignWinners older: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, newer.ID, []int64{999, 700}); err != nil {
		t.Fatalf("AssignWinners newer: %v", err)
	}

	// User 700 holds prizes in both contests; newest contest wins.
	wp, err := GetLatestUnclaimedForUser(context.Background(), db, 700)
	if err != nil {
		t.Fatalf("GetLatestUnclaimedForUser: %v", err)
	}
	if wp.ContestID != newer.ID || wp.Position != 2 {
		t.Fatalf("expected newest contest position 2, got %+v", wp)
	}

	// After claiming it, the older contest's prize surfaces next.
	ok, err := MarkClaimed(context.Background(), db, newer.ID, 700)
	if err != nil || !ok {
		t.Fatalf("MarkClaimed: ok=%v err=%v", ok, err)
	}
	wp, err = GetLatestUnclaimedForUser(context.Background(), db, 700)
	if err != nil {
		t.Fatalf("GetLatestUnclaimedForUser after claim: %v", err)
	}
	if wp.ContestID != older.ID {
		t.Fatalf("expected older contest after newest claimed, got %+v", wp)
	}

	if _, err := GetLatestUnclaimedForUser(context.Background(), db, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user without prizes, got %v", err)
	}
}

func TestGetLatestClaimForUser_IgnoresClaimedState(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "latest-any", []string{"p"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, c.ID, []int64{61}); err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}
	if ok, err := MarkClaimed(context.Background(), db, c.ID, 61); err != nil || !ok {
		t.Fatalf("MarkClaimed: ok=%v err=%v", ok, err)
	}

	// The claimed row still resolves, with its timestamp.
	wp, err := GetLatestClaimForUser(context.Background(), db, 61)
	if err != nil {
		t.Fatalf("GetLatestClaimForUser: %v", err)
	}
	if wp.WinnerUserID != 61 || wp.ClaimedAt == nil {
		t.Fatalf("unexpected row: %+v", wp)
	}

	if _, err := GetLatestClaimForUser(context.Background(), db, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user who never won, got %v", err)
	}
}

func TestMarkClaimed_SucceedsExactlyOnce(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "once", []string{"p"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, c.ID, []int64{31}); err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}

	start := time.Now().UTC()
	ok, err := MarkClaimed(context.Background(), db, c.ID, 31)
	if err != nil || !ok {
		t.Fatalf("first MarkClaimed: ok=%v err=%v", ok, err)
	}

	ok, err = MarkClaimed(context.Background(), db, c.ID, 31)
	if err != nil {
		t.Fatalf("second MarkClaimed: %v", err)
	}
	if ok {
		t.Fatalf("second MarkClaimed must report false")
	}

	wp, err := GetClaimByWinner(context.Background(), db, c.ID, 31)
	if err != nil {
		t.Fatalf("GetClaimByWinner: %v", err)
	}
	if wp.ClaimedAt == nil || wp.ClaimedAt.Before(start.Add(-time.Minute)) {
		t.Fatalf("ClaimedAt not set reasonably: %v", wp.ClaimedAt)
	}
}

func TestMarkClaimed_ConcurrentCallersOneWinner(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "claim-race", []string{"p"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	if _, err := AssignWinners(context.Background(), db, c.ID, []int64{73}); err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}

	// Serialize on one connection; the conditional update decides the race.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	results := make(chan bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := MarkClaimed(context.Background(), db, c.ID, 73)
			if err != nil {
				t.Errorf("MarkClaimed: %v", err)
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for ok := range results {
		if ok {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("claim row transitioned %d times, want exactly 1", transitions)
	}
}

func TestSecurityCodeLookupAndClaim(t *testing.T) {
	db := newPrizeDB(t)
	c := seedContest(t, db, "codes", []string{"p"})
	if _, err := MaterializePrizes(context.Background(), db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("MaterializePrizes: %v", err)
	}
	claims, err := AssignWinners(context.Background(), db, c.ID, []int64{88})
	if err != nil {
		t.Fatalf("AssignWinners: %v", err)
	}
	code := claims[0].SecurityCode

	wp, err := GetClaimBySecurityCode(context.Background(), db, code)
	if err != nil {
		t.Fatalf("GetClaimBySecurityCode: %v", err)
	}
	if wp.WinnerUserID != 88 || wp.ClaimedAt != nil {
		t.Fatalf("unexpected row: %+v", wp)
	}

	ok, err := MarkClaimedBySecurityCode(context.Background(), db, code)
	if err != nil || !ok {
		t.Fatalf("MarkClaimedBySecurityCode: ok=%v err=%v", ok, err)
	}
	ok, err = MarkClaimedBySecurityCode(context.Background(), db, code)
	if err != nil || ok {
		t.Fatalf("repeat MarkClaimedBySecurityCode must report false, got ok=%v err=%v", ok, err)
	}

	// Lookup still resolves after claiming, so the page can say "already
	// claimed" instead of "not found".
	wp, err = GetClaimBySecurityCode(context.Background(), db, code)
	if err != nil {
		t.Fatalf("GetClaimBySecurityCode after claim: %v", err)
	}
	if wp.ClaimedAt == nil {
		t.Fatalf("expected ClaimedAt set after claim")
	}

	if _, err := GetClaimBySecurityCode(context.Background(), db, "ffffffffffffffffffffffffffffffff"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}
