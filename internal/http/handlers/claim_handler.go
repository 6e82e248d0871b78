// Package handlers provides the HTTP handlers of the prize claim service.
//
// This file implements the claim page: winners open their personal link
// (/claim/<security code>) and receive their prize payload. The first
// successful view atomically marks the prize claimed; later views of the same
// link are answered with a stable already_claimed error. Codes never appear
// in logs or metrics labels.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweetdrop/giveaway-bot/internal/http/middleware"
	"github.com/sweetdrop/giveaway-bot/internal/notify"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
	"github.com/sweetdrop/giveaway-bot/internal/services"
)

// securityCodeRe matches the 32-hex-char claim tokens. Anything else is
// rejected before the database sees it.
var securityCodeRe = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ClaimService is the slice of the ledger service the claim page needs.
type ClaimService interface {
	ClaimByCode(ctx context.Context, code string) (*repo.WinnerPrize, error)
}

// ClaimResponse is the prize payload returned on a successful claim.
type ClaimResponse struct {
	ContestName string     `json:"contest_name"`
	Position    int        `json:"position"`
	Place       string     `json:"place"`
	PrizeName   string     `json:"prize_name"`
	Kind        string     `json:"kind"`
	Value       string     `json:"value"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
}

// ClaimHandler serves the claim endpoints.
type ClaimHandler struct {
	Svc ClaimService
}

// Root is the service banner. The claim portal is API-only; the banner tells
// stray visitors what the service is and how winners are meant to use it.
func (h *ClaimHandler) Root(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{
		"service": "giveaway-claim",
		"status":  "ok",
		"hint":    "open the personal claim link from your winner notification",
	})
}

// Claim resolves /claim/:code. Outcomes:
//   - 200 with the prize payload on the first successful view
//   - 409 already_claimed when the link was used before
//   - 404 not_found for unknown or malformed codes
func (h *ClaimHandler) Claim(c *gin.Context) {
	code := c.Param("code")
	if !securityCodeRe.MatchString(code) {
		// Malformed codes are indistinguishable from unknown ones on purpose.
		middleware.ClaimOutcome(middleware.ClaimOutcomeNotFound)
		fail(c, http.StatusNotFound, ErrCodeNotFound, "claim not found")
		return
	}

	wp, err := h.Svc.ClaimByCode(c.Request.Context(), code)
	switch {
	case errors.Is(err, services.ErrClaimNotFound):
		middleware.ClaimOutcome(middleware.ClaimOutcomeNotFound)
		fail(c, http.StatusNotFound, ErrCodeNotFound, "claim not found")
		return
	case errors.Is(err, services.ErrAlreadyClaimed):
		middleware.ClaimOutcome(middleware.ClaimOutcomeAlreadyClaimed)
		fail(c, http.StatusConflict, ErrCodeAlreadyClaimed, "prize already claimed")
		return
	case err != nil:
		middleware.ClaimOutcome(middleware.ClaimOutcomeError)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve claim")
		return
	}

	middleware.ClaimOutcome(middleware.ClaimOutcomeClaimed)
	middleware.LoggerFrom(c).Info().
		Uint("contest_id", wp.ContestID).
		Int("position", wp.Position).
		Msg("prize claimed via web")

	ok(c, http.StatusOK, ClaimResponse{
		ContestName: wp.ContestName,
		Position:    wp.Position,
		Place:       notify.Ordinal(wp.Position),
		PrizeName:   wp.PrizeName,
		Kind:        string(wp.Kind),
		Value:       wp.Value,
		ClaimedAt:   wp.ClaimedAt,
	})
}

// Health reports liveness.
func Health(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}
