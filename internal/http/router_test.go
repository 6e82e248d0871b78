package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sweetdrop/giveaway-bot/internal/config"
	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
)

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:routerdb?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Contest{}, &domain.PrizeSlot{}, &domain.PrizeClaim{}, &domain.GiveawaySnapshot{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec("DELETE FROM prize_claims")
		db.Exec("DELETE FROM prize_slots")
		db.Exec("DELETE FROM contests")
	})
	return db
}

func testConfig() config.Config {
	return config.Config{
		RateRPS:   100,
		RateBurst: 50,
		CORS:      config.CORSConfig{AllowedOrigins: nil},
		Security:  config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
	}
}

// seedClaim creates a contest with one slot and one recorded winner, and
// returns the winner's security code.
func seedClaim(t *testing.T, db *gorm.DB) string {
	t.Helper()
	ctx := context.Background()
	c, err := repo.CreateContest(ctx, db, "router contest", 60, 1, []string{"sticker pack"}, "")
	if err != nil {
		t.Fatalf("create contest: %v", err)
	}
	if _, err := repo.MaterializePrizes(ctx, db, c.ID, c.PrizeList()); err != nil {
		t.Fatalf("materialize: %v", err)
	}
	claims, err := repo.AssignWinners(ctx, db, c.ID, []int64{501})
	if err != nil {
		t.Fatalf("assign winners: %v", err)
	}
	return claims[0].SecurityCode
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), testConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	// prize payloads must not be cached
	if got := w.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("expected no-store Cache-Control, got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://example.com"}
	RegisterRoutes(r, newTestDB(t), cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected origin echo, got %q", got)
	}

	// Unlisted origin gets no ACAO header.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin should get no ACAO, got %q", got)
	}
}

func TestRegisterRoutes_ClaimEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	db := newTestDB(t)
	RegisterRoutes(r, db, testConfig())

	code := seedClaim(t, db)

	// First visit claims the prize.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/claim/"+code, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /claim = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		ContestName string     `json:"contest_name"`
		PrizeName   string     `json:"prize_name"`
		Place       string     `json:"place"`
		ClaimedAt   *time.Time `json:"claimed_at"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ContestName != "router contest" || resp.PrizeName != "sticker pack" || resp.Place != "1st" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	if resp.ClaimedAt == nil {
		t.Fatalf("claimed_at missing")
	}

	// Second visit reports the claim was already used.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/claim/"+code, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("repeat claim = %d", w.Code)
	}

	// Unknown but well-formed code is a plain 404.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/claim/"+strings.Repeat("ab", 16), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown code = %d", w.Code)
	}
}
