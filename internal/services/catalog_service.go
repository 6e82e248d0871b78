// Package services – CatalogService
//
// This file implements the CatalogService, which manages contest definitions.
// It sanitizes and validates incoming parameters, creates the contest together
// with its prize slots in one transaction, and re-validates stored rows on
// read so a hand-edited database cannot smuggle an unrunnable contest into
// the lifecycle engine.
//
// Service-level errors (e.g., ErrInvalidParameters) are returned for
// predictable cases so callers can map them to user-facing replies
// consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/repo"
)

// CatalogRepo defines the repository contract required by CatalogService.
type CatalogRepo interface {
	// CreateContest inserts a new contest row.
	CreateContest(ctx context.Context, db *gorm.DB, name string, durationSeconds, winnersCount int, prizes []string, imageURL string) (*domain.Contest, error)

	// MaterializePrizes creates one prize slot per name for the contest.
	MaterializePrizes(ctx context.Context, db *gorm.DB, contestID uint, names []string) ([]domain.PrizeSlot, error)

	// GetContest fetches a contest by ID.
	GetContest(ctx context.Context, db *gorm.DB, id uint) (*domain.Contest, error)

	// ListContests returns every contest in creation order.
	ListContests(ctx context.Context, db *gorm.DB) ([]domain.Contest, error)

	// ResetAll wipes contests, slots, claims, and the snapshot.
	ResetAll(ctx context.Context, db *gorm.DB) error
}

// CatalogService provides contest catalog operations: defining contests,
// looking them up for a run, and the explicit full reset.
type CatalogService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the contest repository used by this service.
	Repo CatalogRepo

	// NameMaxLen caps stored contest names by rune length.
	NameMaxLen int
	// ImageURLMaxLen caps stored image references by rune length.
	ImageURLMaxLen int
}

// NewCatalogService constructs a CatalogService with defaults matching the
// column widths of the contest table.
func NewCatalogService(db *gorm.DB, r CatalogRepo) *CatalogService {
	return &CatalogService{
		DB:             db,
		Repo:           r,
		NameMaxLen:     255,
		ImageURLMaxLen: 500,
	}
}

// Create validates and stores a new contest definition, materializing its
// prize slots in the same transaction. Name and prizes are sanitized first;
// validation runs on the sanitized values, so a name of control characters is
// rejected as blank rather than stored.
func (s *CatalogService) Create(ctx context.Context, name string, durationSeconds, winnersCount int, prizes []string, imageURL string) (*domain.Contest, error) {
	name = clipRunes(sanitizeText(name), s.NameMaxLen)
	imageURL = clipRunes(strings.TrimSpace(imageURL), s.ImageURLMaxLen)

	clean := make([]string, 0, len(prizes))
	for _, p := range prizes {
		// The contest row stores prizes comma-joined, so a comma inside a
		// prize name would split it into two entries on read-back.
		p = strings.ReplaceAll(p, ",", " ")
		if t := sanitizeText(p); t != "" {
			clean = append(clean, t)
		}
	}

	if name == "" || durationSeconds <= 0 || winnersCount <= 0 || len(clean) == 0 {
		return nil, ErrInvalidParameters
	}

	var created *domain.Contest
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		c, err := s.Repo.CreateContest(ctx, tx, name, durationSeconds, winnersCount, clean, imageURL)
		if err != nil {
			return err
		}
		if _, err := s.Repo.MaterializePrizes(ctx, tx, c.ID, clean); err != nil {
			return err
		}
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get fetches a contest and re-validates it before handing it to the engine.
func (s *CatalogService) Get(ctx context.Context, id uint) (*domain.Contest, error) {
	c, err := s.Repo.GetContest(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrContestNotFound
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Name) == "" || c.DurationSeconds <= 0 || c.WinnersCount <= 0 || len(c.PrizeList()) == 0 {
		return nil, ErrInvalidParameters
	}
	return c, nil
}

// List returns every stored contest in creation order.
func (s *CatalogService) List(ctx context.Context) ([]domain.Contest, error) {
	return s.Repo.ListContests(ctx, s.DB)
}

// Reset removes all contests, prizes, claims, and the lifecycle snapshot.
func (s *CatalogService) Reset(ctx context.Context) error {
	return s.Repo.ResetAll(ctx, s.DB)
}

// sanitizeText strips control characters and collapses runs of whitespace
// into single spaces, then trims.
func sanitizeText(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	space := false
	for _, r := range in {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
