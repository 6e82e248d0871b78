package notify

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweetdrop/giveaway-bot/internal/domain"
	"github.com/sweetdrop/giveaway-bot/internal/services"
)

func TestOrdinal(t *testing.T) {
	cases := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 23: "23rd",
		101: "101st", 111: "111th",
	}
	for n, want := range cases {
		if got := Ordinal(n); got != want {
			t.Errorf("Ordinal(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestAnnounceStart_ReturnsDistinctRefs(t *testing.T) {
	n := NewLogNotifier(zerolog.Nop(), -100500, "")
	c := &domain.Contest{ID: 1, Name: "x", WinnersCount: 1, ImageURL: "https://cdn/img.png"}

	r1, err := n.AnnounceStart(context.Background(), c, time.Now())
	if err != nil {
		t.Fatalf("AnnounceStart: %v", err)
	}
	r2, err := n.AnnounceStart(context.Background(), c, time.Now())
	if err != nil {
		t.Fatalf("AnnounceStart: %v", err)
	}
	if r1.MessageID == r2.MessageID {
		t.Fatalf("message ids must differ: %d vs %d", r1.MessageID, r2.MessageID)
	}
	if r1.ChatID != -100500 || !r1.HasImage {
		t.Fatalf("unexpected ref: %+v", r1)
	}
}

func TestAnnounceEnd_RendersClaimLinks(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	n := NewLogNotifier(log, 0, "https://prizes.example.com/")

	c := &domain.Contest{ID: 3, Name: "end-test"}
	winners := []services.DrawnWinner{
		{
			Position:    1,
			Participant: domain.Participant{ID: 9, Username: "alice"},
			Claim:       domain.PrizeClaim{SecurityCode: "aaaabbbbccccddddaaaabbbbccccdddd"},
		},
	}
	if err := n.AnnounceEnd(context.Background(), c, winners); err != nil {
		t.Fatalf("AnnounceEnd: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "https://prizes.example.com/claim/aaaabbbbccccddddaaaabbbbccccdddd") {
		t.Fatalf("expected claim url in output, got %s", out)
	}
	if !strings.Contains(out, `"place":"1st"`) || !strings.Contains(out, "@alice") {
		t.Fatalf("expected place and winner handle in output, got %s", out)
	}
}
