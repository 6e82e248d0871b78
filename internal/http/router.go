// Package httpapi wires the Gin router of the prize claim web service.
//
// The service is deliberately tiny: a banner, the claim endpoint, liveness,
// and metrics. Everything else is middleware posture around the one endpoint
// that matters, because claim URLs are unauthenticated capability links.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/config"
	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/http/handlers"
	"github.com/sweetdrop/giveaway-bot/internal/http/middleware"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
	"github.com/sweetdrop/giveaway-bot/internal/services"
)

// ledgerRepoShim adapts the repository free functions to the
// services.LedgerRepo interface expected by LedgerService.
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

// RegisterRoutes installs the middleware chain and the claim endpoints.
//
// Middleware order matters:
//  1. RequestID: generate/propagate correlation id
//  2. Logger: structured access logs with code masking
//  3. Recovery: capture panics after logger
//  4. Body size limiter (the API takes no bodies, the cap is a backstop)
//  5. Gzip compression
//  6. Metrics
//  7. Rate limiter (per IP, brakes code enumeration)
//  8. CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(64 << 10))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// CORS posture: allow all when no origins configured (claim links are
	// opened from anywhere), otherwise the explicit allowlist.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Prize payloads must never be cached by intermediaries.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: handler <- service <- repo/db
	ledger := services.NewLedgerService(db, ledgerRepoShim{})
	ledger.Retries = cfg.PersistRetries
	ledger.RetryDelay = cfg.PersistRetryDelay
	h := &handlers.ClaimHandler{Svc: ledger}

	r.GET("/", h.Root)
	r.GET("/health", handlers.Health)
	r.GET("/claim/:code", h.Claim)
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
