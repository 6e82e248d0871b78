// Command bot runs the giveaway lifecycle engine: it restores any in-flight
// giveaway from the snapshot store, re-arms the countdown, and keeps the
// timer-driven draw alive until the process is told to stop.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/config"
	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/notify"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
	"github.com/sweetdrop/giveaway-bot/internal/services"
	"github.com/sweetdrop/giveaway-bot/internal/sysutil"
)

// catalogRepoShim adapts the repository free functions to services.CatalogRepo.
type catalogRepoShim struct{}

func (catalogRepoShim) CreateContest(ctx context.Context, db *gorm.DB, name string, durationSeconds, winnersCount int, prizes []string, imageURL string) (*domain.Contest, error) {
	return repo.CreateContest(ctx, db, name, durationSeconds, winnersCount, prizes, imageURL)
}

func (catalogRepoShim) MaterializePrizes(ctx context.Context, db *gorm.DB, contestID uint, names []string) ([]domain.PrizeSlot, error) {
	return repo.MaterializePrizes(ctx, db, contestID, names)
}

func (catalogRepoShim) GetContest(ctx context.Context, db *gorm.DB, id uint) (*domain.Contest, error) {
	return repo.GetContest(ctx, db, id)
}

func (catalogRepoShim) ListContests(ctx context.Context, db *gorm.DB) ([]domain.Contest, error) {
	return repo.ListContests(ctx, db)
}

func (catalogRepoShim) ResetAll(ctx context.Context, db *gorm.DB) error {
	return repo.ResetAll(ctx, db)
}

// ledgerRepoShim adapts the repository free functions to services.LedgerRepo.
type ledgerRepoShim struct{}

func (ledgerRepoShim) SetPrizeSlot(ctx context.Context, db *gorm.DB, contestID uint, position int, name, value string) error {
	return repo.SetPrizeSlot(ctx, db, contestID, position, name, value)
}

func (ledgerRepoShim) GetPrizeSlots(ctx context.Context, db *gorm.DB, contestID uint) ([]domain.PrizeSlot, error) {
	return repo.GetPrizeSlots(ctx, db, contestID)
}

func (ledgerRepoShim) AssignWinners(ctx context.Context, db *gorm.DB, contestID uint, orderedWinnerIDs []int64) ([]domain.PrizeClaim, error) {
	return repo.AssignWinners(ctx, db, contestID, orderedWinnerIDs)
}

func (ledgerRepoShim) GetClaimByWinner(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (*repo.WinnerPrize, error) {
	return repo.GetClaimByWinner(ctx, db, contestID, winnerUserID)
}

func (ledgerRepoShim) GetLatestUnclaimedForUser(ctx context.Context, db *gorm.DB, userID int64) (*repo.WinnerPrize, error) {
	return repo.GetLatestUnclaimedForUser(ctx, db, userID)
}

func (ledgerRepoShim) GetLatestClaimForUser(ctx context.Context, db *gorm.DB, userID int64) (*repo.WinnerPrize, error) {
	return repo.GetLatestClaimForUser(ctx, db, userID)
}

func (ledgerRepoShim) MarkClaimed(ctx context.Context, db *gorm.DB, contestID uint, winnerUserID int64) (bool, error) {
	return repo.MarkClaimed(ctx, db, contestID, winnerUserID)
}

func (ledgerRepoShim) GetClaimBySecurityCode(ctx context.Context, db *gorm.DB, code string) (*repo.WinnerPrize, error) {
	return repo.GetClaimBySecurityCode(ctx, db, code)
}

func (ledgerRepoShim) MarkClaimedBySecurityCode(ctx context.Context, db *gorm.DB, code string) (bool, error) {
	return repo.MarkClaimedBySecurityCode(ctx, db, code)
}

// snapshotStore binds the snapshot repository functions to a database handle,
// satisfying services.SnapshotStore.
type snapshotStore struct {
	db *gorm.DB
}

func (s snapshotStore) Save(ctx context.Context, state domain.GiveawayState) error {
	return repo.SaveSnapshot(ctx, s.db, state)
}

func (s snapshotStore) Load(ctx context.Context) (domain.GiveawayState, error) {
	return repo.LoadSnapshot(ctx, s.db)
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	log := sysutil.NewLogger("bot", cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	catalog := services.NewCatalogService(db, catalogRepoShim{})
	ledger := services.NewLedgerService(db, ledgerRepoShim{})
	ledger.Retries = cfg.PersistRetries
	ledger.RetryDelay = cfg.PersistRetryDelay

	notifier := notify.NewLogNotifier(log, cfg.AnnounceChatID, cfg.ClaimBaseURL)

	engine := services.NewEngine(log, catalog, ledger, snapshotStore{db: db}, notifier)
	engine.DrawRetryDelay = cfg.Engine.DrawRetryDelay
	engine.RestoreGrace = cfg.Engine.RestoreGrace

	if err := engine.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore giveaway state")
	}

	log.Info().Str("db", cfg.DBPath).Msg("giveaway engine running")
	<-ctx.Done()
	stop()

	engine.Close()
	log.Info().Msg("giveaway engine stopped")
}
